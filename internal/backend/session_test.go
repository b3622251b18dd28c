package backend

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "web.json")

	saved := &sessionArtifact{
		Username:  "tester",
		UserAgent: "test-agent",
		SavedAt:   time.Now(),
		Cookies: []Cookie{
			{Name: "sessionid", Value: "abc123", Domain: ".instagram.com", Path: "/", Secure: true, HttpOnly: true},
			{Name: "csrftoken", Value: "tok", Domain: ".instagram.com", Path: "/"},
		},
	}
	require.NoError(t, saved.save(path))

	// Session files hold credentials material, keep them private.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loadSessionArtifact(path, "tester")
	require.NoError(t, err)
	assert.Equal(t, "tester", loaded.Username)
	require.Len(t, loaded.Cookies, 2)
	assert.Equal(t, "sessionid", loaded.Cookies[0].Name)
	assert.Equal(t, "abc123", loaded.Cookies[0].Value)
}

func TestLoadSessionMissingFile(t *testing.T) {
	_, err := loadSessionArtifact(filepath.Join(t.TempDir(), "nope.json"), "tester")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLoadSessionWrongAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.json")
	saved := &sessionArtifact{Username: "someone-else", SavedAt: time.Now()}
	require.NoError(t, saved.save(path))

	_, err := loadSessionArtifact(path, "tester")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLoadSessionCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := loadSessionArtifact(path, "tester")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestHTTPCookieConversion(t *testing.T) {
	expires := time.Date(2027, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []*http.Cookie{
		{Name: "sessionid", Value: "v", Domain: ".instagram.com", Path: "/", Secure: true, HttpOnly: true, Expires: expires},
		{Name: "mid", Value: "m"},
	}

	cookies := fromHTTPCookies(in)
	require.Len(t, cookies, 2)
	assert.Equal(t, expires.Format(time.RFC3339), cookies[0].Expires)
	assert.Empty(t, cookies[1].Expires)

	artifact := &sessionArtifact{Cookies: cookies}
	out := artifact.httpCookies()
	require.Len(t, out, 2)
	assert.Equal(t, "sessionid", out[0].Name)
	assert.True(t, out[0].Expires.Equal(expires))
	assert.True(t, out[1].Expires.IsZero())
}
