package handler

import (
	"context"  // context with cancellation for DB and provider calls
	"errors"   // sentinel error matching
	"log"      // internal logging of collapsed error sub-reasons
	"net/http" // HTTP status codes
	"time"     // timeouts and event timestamps

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/auth-service/internal/auth"       // state signer and provider client
	"github.com/iliyamo/auth-service/internal/config"     // app configuration
	"github.com/iliyamo/auth-service/internal/model"      // user and platform types
	"github.com/iliyamo/auth-service/internal/queue"      // audit event payloads
	"github.com/iliyamo/auth-service/internal/repository" // sentinel storage errors
	"github.com/iliyamo/auth-service/internal/utils"      // token minting and hashing
)

// UserStore is the user persistence contract the handler depends on.
// *repository.UserRepo satisfies it; tests substitute fakes.
type UserStore interface {
	UpsertByGitHubID(ctx context.Context, p auth.Profile) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore is the refresh-token persistence contract.  Redeem must be
// atomic with respect to concurrent calls presenting the same hash: exactly
// one caller wins, the rest get repository.ErrInvalidRefresh.
type TokenStore interface {
	Create(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Redeem(ctx context.Context, tokenHash string) (uint64, error)
	WasRevoked(ctx context.Context, tokenHash string) (uint64, bool, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// Provider exchanges an authorization code for a profile at the identity
// provider.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.Profile, error)
}

// EventPublisher forwards an audit event to the broker.  Publishing is
// best-effort: a broker outage never fails a login or refresh.
type EventPublisher func(ctx context.Context, ev queue.AuthEvent) error

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Tokens   TokenStore
	States   *auth.StateSigner
	Provider Provider
	Publish  EventPublisher
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, s *auth.StateSigner, p Provider, pub EventPublisher) *AuthHandler {
	if pub == nil {
		pub = func(context.Context, queue.AuthEvent) error { return nil }
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, States: s, Provider: p, Publish: pub}
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Login starts the OAuth round-trip: mint a signed state for the detected
// platform and redirect the client to GitHub's authorization page.  Mobile
// clients may pass a redirect_uri deep link that the callback will honor.
func (h *AuthHandler) Login(c echo.Context) error {
	platform := detectPlatform(c)
	redirectURI := ""
	if platform == model.PlatformMobile {
		redirectURI = c.QueryParam("redirect_uri")
	}
	state, err := h.States.Generate(platform, redirectURI)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "state generation failed"})
	}
	return c.Redirect(http.StatusFound, h.Provider.AuthCodeURL(state))
}

// Callback handles the provider redirect: validate the signed state, redeem
// the authorization code for a profile, upsert the local user and issue a
// token pair delivered per platform.  All state failure kinds collapse to
// one external response; the sub-reason is only logged.
func (h *AuthHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	stateStr := c.QueryParam("state")
	if code == "" || stateStr == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_oauth_state"})
	}

	state, err := h.States.Validate(stateStr)
	if err != nil {
		log.Printf("oauth callback: state rejected: %v", err)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_oauth_state"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	profile, err := h.Provider.Exchange(ctx, code)
	if err != nil {
		log.Printf("oauth callback: provider exchange failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "provider_error"})
	}

	u, err := h.Users.UpsertByGitHubID(ctx, profile)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upsert user failed"})
	}

	meta := metaFrom(c)
	meta.Platform = state.Platform // the state, not the callback request, fixes the platform
	pair, err := h.issue(ctx, u, meta)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	h.publishEvent(queue.EventUserLogin, u, meta)
	return deliver(c, h.Cfg, u, pair, state.Platform, state.RedirectURI, http.StatusOK)
}

// issue mints an access+refresh pair for a user.  The access token lifetime
// is fixed regardless of platform; the refresh lifetime depends on it (web
// sessions expire in days, mobile "remember device" sessions in weeks).
// Only the hash of the refresh token is persisted; the raw value leaves this
// function exactly once and cannot be retrieved again.
func (h *AuthHandler) issue(ctx context.Context, u model.User, meta requestMeta) (tokenPair, error) {
	fingerprint := ""
	if h.Cfg.FingerprintEnabled {
		fingerprint = utils.Fingerprint(utils.FingerprintAttrs{
			UserAgent: meta.UserAgent,
			IP:        meta.IP,
			Platform:  meta.Platform,
			DeviceID:  meta.DeviceID,
		})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u, meta.Platform, fingerprint, h.Cfg.AccessTTL)
	if err != nil {
		return tokenPair{}, err
	}

	refreshTTL := h.Cfg.RefreshTTLWeb
	if meta.Platform == model.PlatformMobile {
		refreshTTL = h.Cfg.RefreshTTLMobile
	}
	refresh, err := utils.NewRefreshToken(refreshTTL)
	if err != nil {
		return tokenPair{}, err
	}
	if err := h.Tokens.Create(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return tokenPair{}, err
	}
	return tokenPair{Access: access, RefreshRaw: refresh.Raw, RefreshExp: refresh.Exp}, nil
}

// Refresh rotates a refresh token: the presented token is atomically
// redeemed (single-use), then a brand-new pair is issued.  Not-found,
// expired and revoked all yield the same response.  A redeem failure whose
// hash matches an already-revoked row is a replay signal; policy decides
// whether the whole session family is torn down.
func (h *AuthHandler) Refresh(c echo.Context) error {
	meta := metaFrom(c)
	raw := readRefreshCredential(c, meta.Platform)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_refresh_token"})
	}
	hash := utils.HashRefreshRaw(raw)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.Redeem(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidRefresh) {
			h.handleReplay(ctx, hash, meta)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_refresh_token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user_not_found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}

	pair, err := h.issue(ctx, u, meta)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	h.publishEvent(queue.EventTokenRefreshed, u, meta)
	return deliver(c, h.Cfg, u, pair, meta.Platform, "", http.StatusOK)
}

// handleReplay probes whether a failed redemption hit a revoked row.  If so
// the raw token was presented again after rotation — a captured-and-replayed
// credential.  The event is always published; revoking the user's remaining
// sessions is the policy-gated theft response.
func (h *AuthHandler) handleReplay(ctx context.Context, hash string, meta requestMeta) {
	userID, revoked, err := h.Tokens.WasRevoked(ctx, hash)
	if err != nil || !revoked {
		return
	}
	log.Printf("refresh: replay of revoked token detected for user %d", userID)
	h.publishEvent(queue.EventTokenReplayed, model.User{ID: userID}, meta)
	if h.Cfg.ReplayRevokeAll {
		if err := h.Tokens.RevokeAllForUser(ctx, userID); err != nil {
			log.Printf("refresh: revoke-all after replay failed for user %d: %v", userID, err)
		}
	}
}

// Logout revokes the presented refresh token, best-effort.  A missing or
// already-invalid token is not an error: the user-visible outcome of logout
// must always be "you are logged out".  Single-device semantics — other
// sessions stay alive.
func (h *AuthHandler) Logout(c echo.Context) error {
	meta := metaFrom(c)
	raw := readRefreshCredential(c, meta.Platform)

	if raw != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := h.Tokens.Revoke(ctx, utils.HashRefreshRaw(raw)); err != nil {
			log.Printf("logout: revoke failed: %v", err)
		}
	}
	if meta.Platform == model.PlatformWeb {
		clearAuthCookies(c, h.Cfg)
	}
	return c.NoContent(http.StatusNoContent)
}

// RevokeAll signs the caller out everywhere by revoking every refresh token
// they own.  Requires a valid access token; the session guard has already
// placed the verified claims in the context.
func (h *AuthHandler) RevokeAll(c echo.Context) error {
	claims, ok := c.Get("claims").(*utils.AccessClaims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	userID, err := claims.SubjectID()
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Tokens.RevokeAllForUser(ctx, userID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke all failed"})
	}

	meta := metaFrom(c)
	h.publishEvent(queue.EventRevokedAll, model.User{ID: userID, GitHubID: claims.GitHubID, Username: claims.Username}, meta)
	if claims.Platform == model.PlatformWeb {
		clearAuthCookies(c, h.Cfg)
	}
	return c.NoContent(http.StatusNoContent)
}

// Session echoes the verified claims and expiry for the current access
// token.  Useful for clients to introspect their session without decoding
// the JWT themselves.
func (h *AuthHandler) Session(c echo.Context) error {
	claims, ok := c.Get("claims").(*utils.AccessClaims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":   claims.Subject,
		"github_id": claims.GitHubID,
		"username":  claims.Username,
		"email":     claims.Email,
		"platform":  claims.Platform,
		"expires":   claims.ExpiresAt.Time,
	})
}

// publishEvent forwards an audit event without ever failing the request.
func (h *AuthHandler) publishEvent(kind string, u model.User, meta requestMeta) {
	ev := queue.AuthEvent{
		Type:       kind,
		UserID:     u.ID,
		GitHubID:   u.GitHubID,
		Username:   u.Username,
		Platform:   string(meta.Platform),
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.Publish(ctx, ev); err != nil {
		log.Printf("audit: publish %s failed: %v", kind, err)
	}
}
