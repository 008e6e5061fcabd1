package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// stubProvider spins up a fake GitHub: a token endpoint and a profile
// endpoint, wired into a GitHubProvider.
func stubProvider(t *testing.T, profileStatus int, profileBody string) *GitHubProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(profileStatus)
		_, _ = w.Write([]byte(profileBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("id", "secret", "http://localhost/cb")
	p.conf.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.profileURL = srv.URL + "/user"
	return p
}

func TestGitHubProvider_Exchange(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusOK,
		`{"id":583231,"login":"octocat","email":"octo@example.com","name":"The Octocat","avatar_url":"https://example.com/a.png"}`)

	prof, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	require.Equal(t, int64(583231), prof.ID)
	require.Equal(t, "octocat", prof.Login)
	require.NotNil(t, prof.Email)
	require.Equal(t, "octo@example.com", *prof.Email)
}

func TestGitHubProvider_NullableFields(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusOK, `{"id":1,"login":"minimal","email":null,"name":null,"avatar_url":null}`)

	prof, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	require.Nil(t, prof.Email)
	require.Nil(t, prof.Name)
	require.Nil(t, prof.AvatarURL)
}

func TestGitHubProvider_ProfileError(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusForbidden, `{"message":"rate limited"}`)

	_, err := p.Exchange(context.Background(), "good-code")
	require.ErrorIs(t, err, ErrProvider)
}

func TestGitHubProvider_MissingIdentity(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusOK, `{"id":0,"login":""}`)

	_, err := p.Exchange(context.Background(), "good-code")
	require.ErrorIs(t, err, ErrProvider)
}

func TestGitHubProvider_AuthCodeURL(t *testing.T) {
	t.Parallel()

	p := NewGitHubProvider("client-id", "secret", "https://app.example.com/cb")
	u := p.AuthCodeURL("signed-state")
	require.Contains(t, u, "client_id=client-id")
	require.Contains(t, u, "state=signed-state")
}
