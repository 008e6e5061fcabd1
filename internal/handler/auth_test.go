package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-service/internal/auth"
	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/utils"
)

// ----- fakes -----

type fakeUsers struct {
	mu       sync.Mutex
	byGitHub map[int64]*model.User
	nextID   uint64
	upserts  int
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byGitHub: map[int64]*model.User{}} }

func (f *fakeUsers) UpsertByGitHubID(_ context.Context, p auth.Profile) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if u, ok := f.byGitHub[p.ID]; ok {
		u.Username = p.Login
		u.Email = p.Email
		u.DisplayName = p.Name
		u.AvatarURL = p.AvatarURL
		return *u, nil
	}
	f.nextID++
	u := &model.User{ID: f.nextID, GitHubID: p.ID, Username: p.Login, Email: p.Email, DisplayName: p.Name, AvatarURL: p.AvatarURL}
	f.byGitHub[p.ID] = u
	return *u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byGitHub {
		if u.ID == id {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byGitHub)
}

type tokenRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

type fakeTokens struct {
	mu             sync.Mutex
	rows           map[string]*tokenRow
	revokeAllUsers []uint64
}

func newFakeTokens() *fakeTokens { return &fakeTokens{rows: map[string]*tokenRow{}} }

func (f *fakeTokens) Create(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[hash] = &tokenRow{userID: userID, exp: exp}
	return nil
}

// Redeem mirrors the production conditional UPDATE: the check and the revoke
// happen under one lock, so concurrent redemptions of the same hash yield
// exactly one winner.
func (f *fakeTokens) Redeem(_ context.Context, hash string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[hash]
	if !ok || row.revoked || !row.exp.After(time.Now().UTC()) {
		return 0, repository.ErrInvalidRefresh
	}
	row.revoked = true
	return row.userID, nil
}

func (f *fakeTokens) WasRevoked(_ context.Context, hash string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[hash]
	if !ok {
		return 0, false, nil
	}
	return row.userID, row.revoked, nil
}

func (f *fakeTokens) Revoke(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[hash]; ok {
		row.revoked = true
	}
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeAllUsers = append(f.revokeAllUsers, userID)
	for _, row := range f.rows {
		if row.userID == userID {
			row.revoked = true
		}
	}
	return nil
}

func (f *fakeTokens) row(hash string) (tokenRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[hash]
	if !ok {
		return tokenRow{}, false
	}
	return *row, true
}

type fakeProvider struct {
	profile auth.Profile
	err     error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(context.Context, string) (auth.Profile, error) {
	return f.profile, f.err
}

type eventLog struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (l *eventLog) publish(_ context.Context, ev queue.AuthEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

// ----- fixture -----

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "jwt-secret-jwt-secret-jwt-secret",
		StateSecret:        "state-secret-state-secret-secret",
		AccessTTL:          15 * time.Minute,
		RefreshTTLWeb:      7 * 24 * time.Hour,
		RefreshTTLMobile:   30 * 24 * time.Hour,
		CookieDomain:       "example.com",
		CookieSecure:       false,
		FingerprintEnabled: true,
		ReplayRevokeAll:    true,
	}
}

type fixture struct {
	h      *AuthHandler
	users  *fakeUsers
	tokens *fakeTokens
	events *eventLog
	states *auth.StateSigner
}

func newFixture(profile auth.Profile) *fixture {
	cfg := testConfig()
	users := newFakeUsers()
	tokens := newFakeTokens()
	events := &eventLog{}
	states := auth.NewStateSigner(cfg.StateSecret)
	h := NewAuthHandler(cfg, users, tokens, states, &fakeProvider{profile: profile}, events.publish)
	return &fixture{h: h, users: users, tokens: tokens, events: events, states: states}
}

func octoProfile() auth.Profile {
	email := "octo@example.com"
	name := "The Octocat"
	return auth.Profile{ID: 583231, Login: "octocat", Email: &email, Name: &name}
}

func doCallback(t *testing.T, f *fixture, platform model.Platform, redirectURI string) *httptest.ResponseRecorder {
	t.Helper()
	state, err := f.states.Generate(platform, redirectURI)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/github/callback?code=abc&state="+url.QueryEscape(state), nil)
	rec := httptest.NewRecorder()
	require.NoError(t, f.h.Callback(e.NewContext(req, rec)))
	return rec
}

// ----- tests -----

func TestCallback_WebDeliversCookies(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	rec := doCallback(t, f, model.PlatformWeb, "")
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	var access, refresh *http.Cookie
	for _, ck := range cookies {
		switch ck.Name {
		case "access_token":
			access = ck
		case "refresh_token":
			refresh = ck
		}
	}
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.True(t, access.HttpOnly)
	require.True(t, refresh.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)
	require.Equal(t, "example.com", access.Domain)
	require.Equal(t, "/", access.Path)

	// cookie lifetimes track the tokens: 15 minutes and 7 days
	require.InDelta(t, (15 * time.Minute).Seconds(), float64(access.MaxAge), 5)
	require.InDelta(t, (7 * 24 * time.Hour).Seconds(), float64(refresh.MaxAge), 5)

	// the access cookie holds a verifiable JWT with the documented lifetime
	claims, err := utils.ParseAccessToken(access.Value, f.h.Cfg.JWTSecret)
	require.NoError(t, err)
	require.Equal(t, model.PlatformWeb, claims.Platform)
	require.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	// tokens never appear in the web response body
	require.NotContains(t, rec.Body.String(), refresh.Value)

	// the store holds the hash, never the raw refresh value
	_, ok := f.tokens.row(refresh.Value)
	require.False(t, ok)
	_, ok = f.tokens.row(utils.HashRefreshRaw(refresh.Value))
	require.True(t, ok)

	require.Equal(t, []string{queue.EventUserLogin}, f.events.types())
}

func TestCallback_MobileDeliversJSON(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	rec := doCallback(t, f, model.PlatformMobile, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Result().Cookies())

	var resp struct {
		User struct {
			ID       uint64 `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
		Access  struct{ Token string } `json:"access"`
		Refresh struct {
			Token   string    `json:"token"`
			Expires time.Time `json:"expires"`
		} `json:"refresh"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "octocat", resp.User.Username)
	require.NotEmpty(t, resp.Access.Token)
	require.NotEmpty(t, resp.Refresh.Token)

	// mobile sessions get the long refresh lifetime
	require.WithinDuration(t, time.Now().UTC().Add(30*24*time.Hour), resp.Refresh.Expires, 5*time.Second)

	row, ok := f.tokens.row(utils.HashRefreshRaw(resp.Refresh.Token))
	require.True(t, ok)
	require.WithinDuration(t, time.Now().UTC().Add(30*24*time.Hour), row.exp, 5*time.Second)
}

func TestCallback_MobileDeepLink(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	rec := doCallback(t, f, model.PlatformMobile, "myapp://auth")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	require.Equal(t, "myapp", loc.Scheme)
	require.NotEmpty(t, loc.Query().Get("access_token"))
	require.NotEmpty(t, loc.Query().Get("refresh_token"))
}

func TestCallback_UpsertUpdatesInsteadOfDuplicating(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	doCallback(t, f, model.PlatformWeb, "")
	require.Equal(t, 1, f.users.count())

	// same external id comes back with a changed email
	changed := "new@example.com"
	prof := octoProfile()
	prof.Email = &changed
	f.h.Provider = &fakeProvider{profile: prof}

	doCallback(t, f, model.PlatformWeb, "")
	require.Equal(t, 1, f.users.count(), "second callback must update, not duplicate")

	u, err := f.users.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", *u.Email)
}

func TestCallback_RejectsTamperedState(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	state, err := f.states.Generate(model.PlatformWeb, "")
	require.NoError(t, err)
	tampered := state[:len(state)-2] + "xx"

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/github/callback?code=abc&state="+url.QueryEscape(tampered), nil)
	rec := httptest.NewRecorder()
	require.NoError(t, f.h.Callback(e.NewContext(req, rec)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_oauth_state")
	require.Equal(t, 0, f.users.count())
}

func TestCallback_ProviderFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	f.h.Provider = &fakeProvider{err: fmt.Errorf("%w: boom", auth.ErrProvider)}
	state, err := f.states.Generate(model.PlatformWeb, "")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/github/callback?code=abc&state="+url.QueryEscape(state), nil)
	rec := httptest.NewRecorder()
	require.NoError(t, f.h.Callback(e.NewContext(req, rec)))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "provider_error")
}

// seedSession creates a user plus one valid refresh token and returns the raw
// token value.
func seedSession(t *testing.T, f *fixture, ttl time.Duration) (model.User, string) {
	t.Helper()
	u, err := f.users.UpsertByGitHubID(context.Background(), octoProfile())
	require.NoError(t, err)
	raw, err := utils.RandomHex(48)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Create(context.Background(), u.ID, utils.HashRefreshRaw(raw), time.Now().UTC().Add(ttl)))
	return u, raw
}

func doRefreshMobile(f *fixture, raw string) *httptest.ResponseRecorder {
	e := echo.New()
	body := strings.NewReader(`{"refresh_token":"` + raw + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Client-Platform", "mobile")
	rec := httptest.NewRecorder()
	_ = f.h.Refresh(e.NewContext(req, rec))
	return rec
}

func TestRefresh_RotatesAndRejectsSecondUse(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	_, raw := seedSession(t, f, time.Hour)

	rec := doRefreshMobile(f, raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Refresh struct {
			Token string `json:"token"`
		} `json:"refresh"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Refresh.Token)
	require.NotEqual(t, raw, resp.Refresh.Token, "rotation must mint a new token")

	// a second redemption of the spent token fails
	rec = doRefreshMobile(f, raw)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_refresh_token")

	// ...and is treated as a replay: the whole family is torn down
	require.Contains(t, f.events.types(), queue.EventTokenReplayed)
	require.NotEmpty(t, f.tokens.revokeAllUsers)

	// the rotated token was itself revoked by the theft response
	rec = doRefreshMobile(f, resp.Refresh.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	_, raw := seedSession(t, f, -time.Minute)

	rec := doRefreshMobile(f, raw)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_refresh_token")
}

func TestRefresh_UnknownToken(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	rec := doRefreshMobile(f, strings.Repeat("ab", 48))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	// unknown hash is not a replay; nothing gets revoked
	require.Empty(t, f.tokens.revokeAllUsers)
}

func TestRefresh_WebUsesCookieChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	_, raw := seedSession(t, f, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: raw})
	rec := httptest.NewRecorder()
	require.NoError(t, f.h.Refresh(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	// fresh cookies are set, and the new refresh row carries the 7 day web ttl
	var newRefresh *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "refresh_token" && ck.Value != "" {
			newRefresh = ck
		}
	}
	require.NotNil(t, newRefresh)
	row, ok := f.tokens.row(utils.HashRefreshRaw(newRefresh.Value))
	require.True(t, ok)
	require.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), row.exp, 5*time.Second)
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	_, raw := seedSession(t, f, time.Hour)

	const n = 16
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = doRefreshMobile(f, raw).Code
		}(i)
	}
	wg.Wait()

	ok, unauthorized := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusUnauthorized:
			unauthorized++
		}
	}
	require.Equal(t, 1, ok, "exactly one concurrent refresh may win")
	require.Equal(t, n-1, unauthorized)
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	_, raw := seedSession(t, f, time.Hour)
	e := echo.New()

	// no credential at all
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, f.h.Logout(e.NewContext(req, rec)))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// a garbage credential is still a successful logout
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/logout", strings.NewReader(`{"refresh_token":"bogus"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Client-Platform", "mobile")
	rec = httptest.NewRecorder()
	require.NoError(t, f.h.Logout(e.NewContext(req, rec)))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// a real credential revokes exactly that session
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/logout", strings.NewReader(`{"refresh_token":"`+raw+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Client-Platform", "mobile")
	rec = httptest.NewRecorder()
	require.NoError(t, f.h.Logout(e.NewContext(req, rec)))
	require.Equal(t, http.StatusNoContent, rec.Code)

	row, ok := f.tokens.row(utils.HashRefreshRaw(raw))
	require.True(t, ok)
	require.True(t, row.revoked)
}

func TestLogout_WebClearsCookies(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, f.h.Logout(e.NewContext(req, rec)))

	cleared := 0
	for _, ck := range rec.Result().Cookies() {
		if (ck.Name == "access_token" || ck.Name == "refresh_token") && ck.Value == "" && ck.MaxAge < 0 {
			cleared++
		}
	}
	require.Equal(t, 2, cleared)
}

func TestRevokeAll_FencesEveryOutstandingToken(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	u, raw1 := seedSession(t, f, time.Hour)
	raw2, err := utils.RandomHex(48)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Create(context.Background(), u.ID, utils.HashRefreshRaw(raw2), time.Now().UTC().Add(time.Hour)))

	access, err := utils.NewAccessToken(f.h.Cfg.JWTSecret, u, model.PlatformMobile, "", time.Minute)
	require.NoError(t, err)
	claims, err := utils.ParseAccessToken(access.Token, f.h.Cfg.JWTSecret)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/revoke-all", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("claims", claims)
	require.NoError(t, f.h.RevokeAll(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// every token issued before the call is now dead
	require.Equal(t, http.StatusUnauthorized, doRefreshMobile(f, raw1).Code)
	require.Equal(t, http.StatusUnauthorized, doRefreshMobile(f, raw2).Code)
	require.Contains(t, f.events.types(), queue.EventRevokedAll)
}

func TestSession_EchoesClaims(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	u, _ := seedSession(t, f, time.Hour)
	access, err := utils.NewAccessToken(f.h.Cfg.JWTSecret, u, model.PlatformWeb, "", 15*time.Minute)
	require.NoError(t, err)
	claims, err := utils.ParseAccessToken(access.Token, f.h.Cfg.JWTSecret)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("claims", claims)
	require.NoError(t, f.h.Session(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"octocat"`)
	require.Contains(t, rec.Body.String(), `"platform":"web"`)
}

func TestDetectPlatform(t *testing.T) {
	t.Parallel()

	e := echo.New()
	cases := []struct {
		name   string
		header string
		query  string
		want   model.Platform
	}{
		{"default web", "", "", model.PlatformWeb},
		{"header mobile", "mobile", "", model.PlatformMobile},
		{"query mobile", "", "mobile", model.PlatformMobile},
		{"header wins over query", "web", "mobile", model.PlatformWeb},
		{"unknown falls back to web", "desktop", "", model.PlatformWeb},
	}
	for _, tc := range cases {
		target := "/"
		if tc.query != "" {
			target = "/?platform=" + tc.query
		}
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if tc.header != "" {
			req.Header.Set("X-Client-Platform", tc.header)
		}
		c := e.NewContext(req, httptest.NewRecorder())
		require.Equal(t, tc.want, detectPlatform(c), tc.name)
	}
}

func TestLogin_RedirectCarriesValidState(t *testing.T) {
	t.Parallel()

	f := newFixture(octoProfile())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/github?platform=mobile&redirect_uri=myapp://auth", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, f.h.Login(e.NewContext(req, rec)))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	payload, err := f.states.Validate(loc.Query().Get("state"))
	require.NoError(t, err)
	require.Equal(t, model.PlatformMobile, payload.Platform)
	require.Equal(t, "myapp://auth", payload.RedirectURI)
}
