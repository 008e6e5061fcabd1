package utils

import (
	"errors"  // sentinel errors for token verification failures
	"strconv" // user id rendering for the subject claim
	"time"    // expiry computation

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens

	"github.com/iliyamo/auth-service/internal/model"
)

// ErrInvalidAccessToken is returned for any access token that fails
// verification: bad signature, wrong algorithm, expired, malformed or
// carrying the wrong type claim.  Callers never learn which; every failure
// means re-authenticate.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessClaims are the claims embedded in every access token.  The token is
// self-contained: validity is determined entirely by the signature and the
// registered expiry, the server holds no access-token state.
type AccessClaims struct {
	jwt.RegisteredClaims
	GitHubID    int64          `json:"github_id"`
	Username    string         `json:"username"`
	Email       string         `json:"email,omitempty"`
	Platform    model.Platform `json:"platform"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	TokenType   string         `json:"type"`
}

// SubjectID parses the subject claim back into the numeric user id.
func (c *AccessClaims) SubjectID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short-lived and presented in the Authorization header or
// the access cookie when calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived, single-use token exchanged for new
// token pairs.  The Raw field is returned to the client exactly once; the
// database keeps only its SHA-256 hash.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The claims carry
// the user's identity, the session platform and an optional request
// fingerprint.  Lifetime is fixed by ttl regardless of platform.
func NewAccessToken(secret string, u model.User, platform model.Platform, fingerprint string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		GitHubID:    u.GitHubID,
		Username:    u.Username,
		Platform:    platform,
		Fingerprint: fingerprint,
		TokenType:   "access",
	}
	if u.Email != nil {
		claims.Email = *u.Email
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature, algorithm, expiry and the type claim,
// returning the decoded claims.  Any failure collapses to
// ErrInvalidAccessToken.
func ParseAccessToken(raw, secret string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC; an attacker must not
		// be able to downgrade the algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAccessToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.TokenType != "access" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.  The ttl depends on the session platform: browser
// sessions are shorter-lived than mobile "remember device" sessions.
func NewRefreshToken(ttl time.Duration) (RefreshToken, error) {
	raw, err := RandomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(ttl),
	}, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string.  Storing only the hash prevents attackers from using stolen
// database entries to refresh sessions.
func HashRefreshRaw(raw string) string {
	return HashSHA256Hex(raw)
}
