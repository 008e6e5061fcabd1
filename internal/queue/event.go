// Package queue defines message payloads exchanged over the message broker.
package queue

// Event types published to the auth.events queue.
const (
	EventUserLogin      = "user.login"        // successful OAuth callback
	EventTokenRefreshed = "token.refreshed"   // refresh token rotated
	EventTokenReplayed  = "token.replayed"    // revoked token presented again
	EventRevokedAll     = "session.revoked_all" // sign-out-everywhere or theft response
)

// AuthEvent is published for security-relevant session lifecycle changes.
// It contains enough information for downstream consumers to audit, alert,
// or feed analytics without querying the primary database.  Raw tokens never
// appear in events.
type AuthEvent struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id"`
	GitHubID   int64  `json:"github_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Platform   string `json:"platform,omitempty"`
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
