package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"              // the Echo web framework handles routing
	echomw "github.com/labstack/echo/v4/middleware" // built-in CORS middleware
	"github.com/redis/go-redis/v9"             // Redis client for the rate limiter

	"github.com/iliyamo/auth-service/internal/config"     // configuration for guard and limiter
	"github.com/iliyamo/auth-service/internal/handler"    // handlers that implement the auth logic
	"github.com/iliyamo/auth-service/internal/middleware" // session guard and rate limiting
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems use this endpoint to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  The OAuth entry points and token exchange live
// under /v1/auth; endpoints that require a verified session additionally
// pass through the session guard.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, cfg config.Config, rdb *redis.Client) {
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowCredentials: true, // cookies must survive cross-origin XHR from the web client
		}))
	}

	g := e.Group("/v1/auth")
	// A Redis token bucket shields every auth endpoint from brute force.
	// With no Redis available the limiter is a pass-through.
	g.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	// OAuth round-trip: redirect out to GitHub, then handle the provider's
	// redirect back with code + signed state.
	g.GET("/github", a.Login)
	g.GET("/github/callback", a.Callback)

	// Token exchange endpoints.  Refresh rotates the presented token;
	// logout revokes one session best-effort and always succeeds.
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	// Endpoints below require a valid access token: the guard verifies it
	// and stores the decoded claims in the request context.
	guarded := g.Group("")
	guarded.Use(middleware.SessionGuard(cfg))
	guarded.POST("/revoke-all", a.RevokeAll)
	guarded.GET("/session", a.Session)
}
