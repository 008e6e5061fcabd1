package model

// Platform labels the kind of client a session belongs to.  It is resolved
// once per request and threaded explicitly through state generation, token
// issuance and delivery; it is never re-sniffed downstream.  The value
// drives both refresh-token lifetime and the delivery channel (cookies for
// web, JSON/bearer for mobile).
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
)

// ParsePlatform maps a raw client-supplied string to a known platform.
// Unknown values report false so callers can apply their own default.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformWeb:
		return PlatformWeb, true
	case PlatformMobile:
		return PlatformMobile, true
	}
	return "", false
}
