// Package authclient is a small helper for processes that hold one session
// against the auth service (a mobile app core, a CLI, a worker acting on a
// user's behalf).  Its job is the cooperative part of refresh-token
// rotation: refresh tokens are single-use, so two goroutines that each
// notice an expired access token must not both present the same token — the
// second presentation would be indistinguishable from a replay.  Concurrent
// Refresh calls therefore collapse into one in-flight HTTP exchange whose
// result every waiter shares.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoSession is returned when Refresh is called before any refresh token
// has been installed (or after the server rejected the last one).
var ErrNoSession = errors.New("authclient: no active session")

// ErrRefreshRejected means the server answered 401: the stored refresh token
// is spent, expired or revoked.  The only recovery is re-authenticating.
var ErrRefreshRejected = errors.New("authclient: refresh token rejected")

// TokenPair is the client-side view of an issued pair.
type TokenPair struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// Client calls the auth service's refresh endpoint as a mobile bearer
// client.  Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	group singleflight.Group

	mu      sync.Mutex
	refresh string // current (unspent) refresh token
}

// New returns a client seeded with the refresh token obtained at login.
// httpClient may be nil, in which case a 15 second timeout client is used.
func New(baseURL, refreshToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient, refresh: refreshToken}
}

// SetRefreshToken replaces the stored refresh token, e.g. after a fresh
// login outside this client.
func (c *Client) SetRefreshToken(tok string) {
	c.mu.Lock()
	c.refresh = tok
	c.mu.Unlock()
}

// Refresh exchanges the stored refresh token for a new pair.  Later callers
// that arrive while an exchange is outstanding await the first caller's
// result instead of starting their own; exactly one HTTP round trip happens
// per expiry no matter how many goroutines notice it.
func (c *Client) Refresh(ctx context.Context) (TokenPair, error) {
	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return TokenPair{}, err
	}
	return v.(TokenPair), nil
}

func (c *Client) doRefresh(ctx context.Context) (TokenPair, error) {
	c.mu.Lock()
	current := c.refresh
	c.mu.Unlock()
	if current == "" {
		return TokenPair{}, ErrNoSession
	}

	body, err := json.Marshal(map[string]string{"refresh_token": current})
	if err != nil {
		return TokenPair{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Platform", "mobile")

	resp, err := c.http.Do(req)
	if err != nil {
		return TokenPair{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		// The token is spent either way; forget it so callers surface
		// re-authentication instead of hammering the endpoint.
		c.mu.Lock()
		if c.refresh == current {
			c.refresh = ""
		}
		c.mu.Unlock()
		return TokenPair{}, ErrRefreshRejected
	default:
		return TokenPair{}, fmt.Errorf("authclient: refresh status %d", resp.StatusCode)
	}

	var decoded struct {
		Access struct {
			Token   string    `json:"token"`
			Expires time.Time `json:"expires"`
		} `json:"access"`
		Refresh struct {
			Token   string    `json:"token"`
			Expires time.Time `json:"expires"`
		} `json:"refresh"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return TokenPair{}, err
	}
	if decoded.Access.Token == "" || decoded.Refresh.Token == "" {
		return TokenPair{}, fmt.Errorf("authclient: refresh response missing tokens")
	}

	pair := TokenPair{
		AccessToken:    decoded.Access.Token,
		AccessExpires:  decoded.Access.Expires,
		RefreshToken:   decoded.Refresh.Token,
		RefreshExpires: decoded.Refresh.Expires,
	}
	c.mu.Lock()
	c.refresh = pair.RefreshToken // rotate: the old token is spent server-side
	c.mu.Unlock()
	return pair, nil
}
