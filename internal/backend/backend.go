package backend

import (
	"context"
	"errors"

	"instagram-dispatcher/pkg/types"
)

var (
	// ErrNoSession means no persisted session artifact exists yet.
	ErrNoSession = errors.New("no session artifact")
	// ErrLoginRequired means the persisted session is no longer accepted.
	ErrLoginRequired = errors.New("login required")
	// ErrTwoFactorRequired means the account is 2FA-protected and a fresh
	// login cannot complete non-interactively.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrCheckpoint means Instagram raised a checkpoint challenge.
	ErrCheckpoint = errors.New("checkpoint challenge required")
	// ErrNotFound means the target account or post does not exist.
	ErrNotFound = errors.New("target not found")
)

type Credentials struct {
	Username string
	Password string
}

// Client is one automation backend. The dispatcher only ever talks to this
// interface; the session artifact behind it is opaque.
type Client interface {
	Name() string

	// RestoreSession loads the persisted session artifact and validates it.
	// Returns ErrNoSession when no artifact exists and ErrLoginRequired when
	// the artifact is no longer accepted by the platform.
	RestoreSession(ctx context.Context) error

	// Login performs a fresh credential login.
	Login(ctx context.Context) error

	// SaveSession persists the current session artifact.
	SaveSession() error

	// UseProxy routes subsequent calls through the given proxy URL.
	// An empty URL restores direct connections.
	UseProxy(proxyURL string) error

	FetchProfile(ctx context.Context, username string, maxPosts int) (*types.Profile, []types.Post, error)
	FetchPost(ctx context.Context, shortcode string) (*types.Post, error)

	Close() error
}
