package middleware // middleware contains reusable HTTP middleware functions

import (
	"log"      // advisory fingerprint mismatches are logged, not fatal
	"net/http" // HTTP status codes for responses
	"strings"  // prefix checking and trimming for the Authorization header

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/utils"
)

// SessionGuard returns an Echo middleware that verifies the access token and
// injects the decoded claims into the request context.  The credential is
// read from the channel the detected platform uses — the Authorization
// header for mobile, the access cookie for web — never both.  Any
// verification failure ends the request with 401; there is no partial-trust
// state and no silent fall-through to anonymous.
//
// Handlers downstream read the verified identity via c.Get("claims")
// (*utils.AccessClaims) and c.Get("user_id") (string subject).
func SessionGuard(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := readAccessCredential(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}

			claims, err := utils.ParseAccessToken(raw, cfg.JWTSecret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}

			// The fingerprint binds the token to the attributes observed at
			// issuance.  Proxies and NAT can legitimately move a client's
			// IP, so a mismatch is advisory unless strict mode says
			// otherwise.
			if cfg.FingerprintEnabled && claims.Fingerprint != "" {
				current := utils.Fingerprint(utils.FingerprintAttrs{
					UserAgent: c.Request().UserAgent(),
					IP:        c.RealIP(),
					Platform:  claims.Platform,
					DeviceID:  c.Request().Header.Get("X-Device-ID"),
				})
				if !utils.TimingSafeEqual(current, claims.Fingerprint) {
					if cfg.FingerprintStrict {
						return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
					}
					log.Printf("session: fingerprint drift for user %s", claims.Subject)
					c.Set("fingerprint_mismatch", true)
				}
			}

			c.Set("claims", claims)
			c.Set("user_id", claims.Subject)
			return next(c)
		}
	}
}

// readAccessCredential picks the access token off the request using the
// platform's channel.  Web clients carry it in the HttpOnly access cookie;
// mobile clients send a standard bearer header.
func readAccessCredential(c echo.Context) string {
	platform := model.PlatformWeb
	if raw := c.Request().Header.Get("X-Client-Platform"); raw != "" {
		if p, ok := model.ParsePlatform(raw); ok {
			platform = p
		}
	} else if p, ok := model.ParsePlatform(c.QueryParam("platform")); ok {
		platform = p
	}

	if platform == model.PlatformWeb {
		ck, err := c.Cookie("access_token")
		if err != nil {
			return ""
		}
		return strings.TrimSpace(ck.Value)
	}
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}
