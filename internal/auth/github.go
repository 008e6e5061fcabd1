package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// ErrProvider wraps any failure while talking to GitHub: the code exchange,
// the profile fetch, or an unexpected response shape.  The concrete cause is
// wrapped for logs; HTTP-facing code maps the whole family to one
// PROVIDER_ERROR response.
var ErrProvider = errors.New("identity provider error")

// Profile is the subset of the GitHub user object this service consumes.
type Profile struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Email     *string `json:"email"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// GitHubProvider exchanges authorization codes for user profiles.  It wraps
// the oauth2 client config plus the single authenticated profile fetch.
type GitHubProvider struct {
	conf       *oauth2.Config
	profileURL string       // overridable for tests
	httpClient *http.Client // nil means oauth2's default
}

// NewGitHubProvider builds a provider for the given OAuth app credentials.
// The user:email scope is requested so the primary email is visible even
// when the profile email is private.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		profileURL: "https://api.github.com/user",
	}
}

// AuthCodeURL returns the provider authorization URL carrying the signed
// state string.
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

// Exchange redeems an authorization code for a bearer token and performs one
// authenticated GET against the profile endpoint.  Both steps are bounded by
// the caller's context; failures wrap ErrProvider.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: code exchange: %v", ErrProvider, err)
	}

	client := p.conf.Client(ctx, tok)
	client.Timeout = 10 * time.Second
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: build profile request: %v", ErrProvider, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: profile fetch: %v", ErrProvider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: profile fetch status %d", ErrProvider, resp.StatusCode)
	}
	var prof Profile
	if err := json.NewDecoder(resp.Body).Decode(&prof); err != nil {
		return Profile{}, fmt.Errorf("%w: decode profile: %v", ErrProvider, err)
	}
	if prof.ID == 0 || prof.Login == "" {
		return Profile{}, fmt.Errorf("%w: profile missing id or login", ErrProvider)
	}
	return prof, nil
}
