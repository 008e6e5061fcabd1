package model

import "time"

// RefreshToken models a row in the `refresh_tokens` table.  Each
// refresh token belongs to a user and carries metadata for expiry
// and revocation.  The raw token is not stored; only its SHA-256
// hash.  Validity is computed from the fields — a row with a
// non-null RevokedAt or a past ExpiresAt is never valid, whether or
// not the expired-row sweeper has deleted it yet.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the raw token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Valid reports whether the token row may still be redeemed at t.
func (r RefreshToken) Valid(t time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(t)
}
