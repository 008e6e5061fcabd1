package utils // package utils provides helper functions for hashing, signing and token generation

import (
	"crypto/hmac"     // HMAC construction for state signing
	"crypto/rand"     // secure random number generation
	"crypto/sha256"   // SHA-256 hashing for refresh tokens and fingerprints
	"crypto/subtle"   // constant-time comparison
	"encoding/base64" // base64url encoding for signatures
	"encoding/hex"    // hex encoding for digests and random tokens
)

// HashSHA256Hex returns the SHA-256 digest of data as a hex string.  It is
// deterministic and one-way; refresh tokens are stored only in this form so
// a database compromise does not yield usable credentials.
func HashSHA256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  It is used to produce refresh
// tokens and state nonces.  A failing entropy source is not recoverable at
// the call site, so the error is surfaced for the caller to treat as fatal.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SignHMAC computes an HMAC-SHA256 over payload with the given secret and
// returns it base64url-encoded without padding, suitable for embedding in a
// URL query parameter.
func SignHMAC(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// TimingSafeEqual compares two strings in constant time.  All signature
// checks go through this helper so a mismatch position cannot be recovered
// from response timing.
func TimingSafeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
