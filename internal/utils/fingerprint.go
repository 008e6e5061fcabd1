package utils

import (
	"strings"

	"github.com/iliyamo/auth-service/internal/model"
)

// FingerprintAttrs are the observable request attributes bound into a token
// fingerprint.  Absent values stay empty strings so the concatenation order
// is stable across requests.
type FingerprintAttrs struct {
	UserAgent string
	IP        string
	Platform  model.Platform
	DeviceID  string
}

// Fingerprint derives a stable hash of the client's observable attributes.
// The fields are joined with a newline, which cannot appear in any of the
// inputs (header values and IPs are single-line), so distinct attribute
// tuples never collide by concatenation.
//
// The fingerprint is an advisory binding signal only: proxies and NAT can
// legitimately change a client's IP between issuance and use, so a mismatch
// is not fatal unless strict mode is enabled by policy.
func Fingerprint(a FingerprintAttrs) string {
	joined := strings.Join([]string{a.UserAgent, a.IP, string(a.Platform), a.DeviceID}, "\n")
	return HashSHA256Hex(joined)
}
