package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings" // strings splits comma separated values
	"time"    // time expresses token lifetimes as durations
)

// minSecretLen is the minimum accepted length for signing secrets.  Anything
// shorter is trivially brute-forceable for HMAC-SHA256 and is rejected at
// startup rather than at first use.
const minSecretLen = 32

// Config holds all runtime configuration values.  It is built exactly once in
// main and passed by value to every component that needs it; no package reads
// the environment after startup.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	GitHubClientID     string // OAuth app client id
	GitHubClientSecret string // OAuth app client secret
	GitHubCallbackURL  string // registered callback URL for the OAuth app

	JWTSecret   string // secret used to sign access tokens
	StateSecret string // secret used to HMAC-sign OAuth state payloads

	AccessTTL        time.Duration // access token lifetime (both platforms)
	RefreshTTLWeb    time.Duration // refresh token lifetime for browser sessions
	RefreshTTLMobile time.Duration // refresh token lifetime for mobile sessions

	CookieDomain string // domain attribute on auth cookies
	CookieSecure bool   // whether auth cookies carry the Secure flag

	AllowedOrigins []string // origins accepted by the CORS layer

	FingerprintEnabled bool // bind a request fingerprint into access tokens
	FingerprintStrict  bool // reject requests whose fingerprint no longer matches

	ReplayRevokeAll bool // revoke the whole session family when a redeemed token is replayed

	TokenGCInterval time.Duration // how often expired refresh rows are purged
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values cause
// the program to exit with a fatal log message.  Lifetimes and policy flags
// have defaults matching the documented token policy: 15 minute access
// tokens, 7 day web refresh tokens, 30 day mobile refresh tokens.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		GitHubClientID:     must("GITHUB_CLIENT_ID"),
		GitHubClientSecret: must("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  must("GITHUB_CALLBACK_URL"),

		JWTSecret:   mustSecret("JWT_SECRET"),
		StateSecret: mustSecret("STATE_SECRET"),

		AccessTTL:        envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTLWeb:    envDur("REFRESH_TOKEN_TTL_WEB", 7*24*time.Hour),
		RefreshTTLMobile: envDur("REFRESH_TOKEN_TTL_MOBILE", 30*24*time.Hour),

		CookieDomain: os.Getenv("COOKIE_DOMAIN"), // empty means host-only cookies
		CookieSecure: envBool("COOKIE_SECURE", true),

		AllowedOrigins: splitCSV(os.Getenv("ALLOWED_ORIGINS")),

		FingerprintEnabled: envBool("FINGERPRINT_ENABLED", true),
		FingerprintStrict:  envBool("FINGERPRINT_STRICT", false),

		ReplayRevokeAll: envBool("REFRESH_REPLAY_REVOKE_ALL", true),

		TokenGCInterval: envDur("TOKEN_GC_INTERVAL", time.Hour),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustSecret is like must() but additionally enforces the minimum secret
// length.  Refusing to start beats running with a guessable signing key.
func mustSecret(key string) string {
	v := must(key)
	if len(v) < minSecretLen {
		log.Fatalf("%s must be at least %d bytes, got %d", key, minSecretLen, len(v))
	}
	return v
}

// envBool reads an optional boolean variable, returning the default when the
// variable is unset or unrecognized.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return def
}

// envDur reads an optional duration variable ("15m", "168h", ...), returning
// the default when unset or unparsable.
func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

// splitCSV turns a comma separated list into a slice, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
