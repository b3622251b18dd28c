package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HttpOnly bool   `json:"httpOnly"`
	Expires  string `json:"expires,omitempty"`
}

// sessionArtifact is the persisted per-backend session file: the cookie
// bundle for the logged-in account plus enough metadata to spot a stale file.
type sessionArtifact struct {
	Username  string    `json:"username"`
	UserAgent string    `json:"user_agent,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
	Cookies   []Cookie  `json:"cookies"`
}

func loadSessionArtifact(path, username string) (*sessionArtifact, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrNoSession
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var artifact sessionArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	// A session saved for a different account is useless here.
	if artifact.Username != "" && artifact.Username != username {
		return nil, ErrNoSession
	}

	return &artifact, nil
}

func (sa *sessionArtifact) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sa, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (sa *sessionArtifact) httpCookies() []*http.Cookie {
	var cookies []*http.Cookie
	for _, cookie := range sa.Cookies {
		httpCookie := &http.Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HttpOnly: cookie.HttpOnly,
		}
		if cookie.Expires != "" {
			if expires, err := time.Parse(time.RFC3339, cookie.Expires); err == nil {
				httpCookie.Expires = expires
			}
		}
		cookies = append(cookies, httpCookie)
	}
	return cookies
}

func fromHTTPCookies(cookies []*http.Cookie) []Cookie {
	var out []Cookie
	for _, cookie := range cookies {
		c := Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HttpOnly: cookie.HttpOnly,
		}
		if !cookie.Expires.IsZero() {
			c.Expires = cookie.Expires.Format(time.RFC3339)
		}
		out = append(out, c)
	}
	return out
}
