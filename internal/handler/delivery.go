package handler

// delivery.go decides how token pairs travel to and from clients.  Browser
// sessions use HttpOnly cookies; mobile sessions use JSON bodies or a
// deep-link redirect, and present tokens back as bearer credentials.  The
// platform is resolved once per request and threaded through explicitly so
// every issuing, refreshing and revoking path classifies identically.

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/utils"
)

// Cookie names for browser sessions.  Clearing uses the exact same
// name/domain/path with an empty value and immediate expiry.
const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// requestMeta captures the client attributes a single request exposes.  It
// is computed once per request by the handlers and passed down; nothing
// re-sniffs the request later.
type requestMeta struct {
	Platform  model.Platform
	IP        string
	UserAgent string
	DeviceID  string
}

// detectPlatform reads the explicit platform signal: the X-Client-Platform
// header first, then the ?platform= query parameter, defaulting to web.
// This classification drives both token lifetime and delivery channel, so it
// must be the only way any handler resolves a platform.
func detectPlatform(c echo.Context) model.Platform {
	raw := c.Request().Header.Get("X-Client-Platform")
	if raw == "" {
		raw = c.QueryParam("platform")
	}
	if p, ok := model.ParsePlatform(raw); ok {
		return p
	}
	return model.PlatformWeb
}

// metaFrom builds the per-request attribute set used for fingerprinting and
// audit events.
func metaFrom(c echo.Context) requestMeta {
	return requestMeta{
		Platform:  detectPlatform(c),
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		DeviceID:  c.Request().Header.Get("X-Device-ID"),
	}
}

// tokenPair carries a freshly issued pair plus expiries; response-only,
// never persisted as a unit.
type tokenPair struct {
	Access     utils.AccessToken
	RefreshRaw string
	RefreshExp time.Time
}

type userPart struct {
	ID          uint64  `json:"id"`
	Username    string  `json:"username"`
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func userPartFrom(u model.User) userPart {
	return userPart{ID: u.ID, Username: u.Username, Email: u.Email, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// deliver writes a token pair to the client over the channel the platform
// dictates.  Web: both tokens become cookies and only the user is echoed in
// the body.  Mobile: tokens ride the JSON body, or the query string of a
// deep-link redirect when the state carried a redirect URI.
func deliver(c echo.Context, cfg config.Config, u model.User, pair tokenPair, platform model.Platform, redirectURI string, status int) error {
	if platform == model.PlatformWeb {
		setAuthCookies(c, cfg, pair)
		return c.JSON(status, echo.Map{"user": userPartFrom(u)})
	}
	if redirectURI != "" {
		target, err := url.Parse(redirectURI)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid redirect uri"})
		}
		q := target.Query()
		q.Set("access_token", pair.Access.Token)
		q.Set("refresh_token", pair.RefreshRaw)
		target.RawQuery = q.Encode()
		return c.Redirect(http.StatusFound, target.String())
	}
	return c.JSON(status, authResp{
		User:    userPartFrom(u),
		Access:  tokenPart{Token: pair.Access.Token, Expires: pair.Access.Exp},
		Refresh: tokenPart{Token: pair.RefreshRaw, Expires: pair.RefreshExp},
	})
}

// setAuthCookies installs the pair as HttpOnly SameSite=Lax cookies with
// maxAge matching each token's own lifetime.
func setAuthCookies(c echo.Context, cfg config.Config, pair tokenPair) {
	now := time.Now().UTC()
	c.SetCookie(authCookie(cfg, accessCookieName, pair.Access.Token, pair.Access.Exp.Sub(now)))
	c.SetCookie(authCookie(cfg, refreshCookieName, pair.RefreshRaw, pair.RefreshExp.Sub(now)))
}

// clearAuthCookies is the exact inverse of setAuthCookies: same names,
// domain and path, empty value, immediate expiry.
func clearAuthCookies(c echo.Context, cfg config.Config) {
	c.SetCookie(authCookie(cfg, accessCookieName, "", -time.Hour))
	c.SetCookie(authCookie(cfg, refreshCookieName, "", -time.Hour))
}

func authCookie(cfg config.Config, name, value string, maxAge time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		ck.MaxAge = int(maxAge / time.Second)
		ck.Expires = time.Now().UTC().Add(maxAge)
	} else {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	}
	return ck
}

// readRefreshCredential pulls the refresh token from the channel the
// detected platform uses: the refresh cookie for web, the JSON body for
// mobile.  Never both; a bearer-style client cannot smuggle a cookie
// credential and vice versa.
func readRefreshCredential(c echo.Context, platform model.Platform) string {
	if platform == model.PlatformWeb {
		ck, err := c.Cookie(refreshCookieName)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(ck.Value)
	}
	var req refreshReq
	// Bind failures just leave the field empty; the caller decides whether a
	// missing credential is an error (refresh) or a no-op (logout).
	_ = c.Bind(&req)
	return strings.TrimSpace(req.RefreshToken)
}
