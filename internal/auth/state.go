// Package auth implements the OAuth pieces of the service: the signed state
// that rides the GitHub redirect round-trip and the provider client that
// exchanges authorization codes for profiles.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/utils"
)

// State validation failure kinds.  They are distinct so the callback handler
// can log the specific sub-reason, but the HTTP response collapses all of
// them into one generic "invalid state" to avoid acting as an oracle.
var (
	ErrStateMalformed    = errors.New("oauth state: malformed")
	ErrStateBadSignature = errors.New("oauth state: bad signature")
	ErrStateUndecodable  = errors.New("oauth state: undecodable payload")
	ErrStateExpired      = errors.New("oauth state: expired")
	ErrStateFutureIssued = errors.New("oauth state: issued in the future")
)

const (
	stateTTL       = 10 * time.Minute // validity window of a state string
	stateClockSkew = 60 * time.Second // tolerated forward clock drift on iat
)

// StatePayload is the tamper-evident payload carried through the OAuth
// redirect.  It is never persisted; integrity comes from the attached HMAC.
// The nonce adds entropy but is deliberately not checked against a replay
// store: the ten-minute window plus GitHub's single-use authorization code
// bounds what a captured state string is worth.
type StatePayload struct {
	Nonce       string         `json:"nonce"`
	Platform    model.Platform `json:"platform"`
	RedirectURI string         `json:"redirect_uri,omitempty"` // mobile deep link target
	IssuedAt    int64          `json:"iat"`
	ExpiresAt   int64          `json:"exp"`
}

// StateSigner issues and validates signed state strings.  The zero value is
// unusable; construct with NewStateSigner so the secret is always set.
type StateSigner struct {
	secret string
	now    func() time.Time // injectable clock for tests
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: secret, now: time.Now}
}

// Generate builds a fresh state payload for the given platform, serializes
// it to base64url and appends its HMAC signature as "<payload>.<signature>".
func (s *StateSigner) Generate(platform model.Platform, redirectURI string) (string, error) {
	nonce, err := utils.RandomHex(16)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	payload := StatePayload{
		Nonce:       nonce,
		Platform:    platform,
		RedirectURI: redirectURI,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(stateTTL).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	sig := utils.SignHMAC(encoded, s.secret)
	return encoded + "." + sig, nil
}

// Validate checks a state string returned by the provider redirect and
// returns the decoded payload.  The signature is verified with a
// constant-time comparison before the payload is decoded or trusted for any
// other check, so a tampered payload is never parsed.
func (s *StateSigner) Validate(state string) (*StatePayload, error) {
	parts := strings.Split(state, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrStateMalformed
	}
	expected := utils.SignHMAC(parts[0], s.secret)
	if !utils.TimingSafeEqual(parts[1], expected) {
		return nil, ErrStateBadSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrStateUndecodable
	}
	var payload StatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrStateUndecodable
	}

	if payload.Nonce == "" || payload.IssuedAt == 0 || payload.ExpiresAt == 0 {
		return nil, ErrStateMalformed
	}
	if _, ok := model.ParsePlatform(string(payload.Platform)); !ok {
		return nil, ErrStateMalformed
	}

	now := s.now().UTC()
	if now.Unix() > payload.ExpiresAt {
		return nil, ErrStateExpired
	}
	// iat further in the future than tolerated skew means a forged timestamp
	// or badly drifted clock; either way the state is not trusted.
	if payload.IssuedAt > now.Add(stateClockSkew).Unix() {
		return nil, ErrStateFutureIssued
	}
	return &payload, nil
}
