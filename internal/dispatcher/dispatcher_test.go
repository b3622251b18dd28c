package dispatcher

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instagram-dispatcher/internal/backend"
	"instagram-dispatcher/internal/proxy"
	"instagram-dispatcher/pkg/types"
)

type fakeBackend struct {
	name       string
	restoreErr error
	loginErr   error
	fetchErrs  map[string]error

	restores int
	logins   int
	saves    int
	profiles []string
	posts    []string
	proxies  []string
}

func (fb *fakeBackend) Name() string { return fb.name }

func (fb *fakeBackend) RestoreSession(ctx context.Context) error {
	fb.restores++
	return fb.restoreErr
}

func (fb *fakeBackend) Login(ctx context.Context) error {
	fb.logins++
	return fb.loginErr
}

func (fb *fakeBackend) SaveSession() error {
	fb.saves++
	return nil
}

func (fb *fakeBackend) UseProxy(proxyURL string) error {
	fb.proxies = append(fb.proxies, proxyURL)
	return nil
}

func (fb *fakeBackend) FetchProfile(ctx context.Context, username string, maxPosts int) (*types.Profile, []types.Post, error) {
	fb.profiles = append(fb.profiles, username)
	if err := fb.fetchErrs[username]; err != nil {
		return nil, nil, err
	}
	return &types.Profile{Username: username, FollowerCount: 100},
		[]types.Post{{Shortcode: "SC_" + username}}, nil
}

func (fb *fakeBackend) FetchPost(ctx context.Context, shortcode string) (*types.Post, error) {
	fb.posts = append(fb.posts, shortcode)
	if err := fb.fetchErrs[shortcode]; err != nil {
		return nil, err
	}
	return &types.Post{Shortcode: shortcode}, nil
}

func (fb *fakeBackend) Close() error { return nil }

type fakeSink struct {
	results []*types.ActionResult
}

func (fs *fakeSink) Record(ctx context.Context, result *types.ActionResult) error {
	fs.results = append(fs.results, result)
	return nil
}

func (fs *fakeSink) Close() error { return nil }

type sleepCall struct {
	min, max time.Duration
}

func newTestDispatcher(backends []backend.Client, pool *proxy.Pool, sink Sink, seed int64) (*Dispatcher, *[]sleepCall) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := Config{
		MaxPosts: 3,
		MinDelay: 3 * time.Second,
		MaxDelay: 7 * time.Second,
	}

	d := New(backends, pool, sink, nil, rand.New(rand.NewSource(seed)), cfg, logger)

	var calls []sleepCall
	d.SetSleeper(func(ctx context.Context, min, max time.Duration) error {
		calls = append(calls, sleepCall{min, max})
		return nil
	})
	return d, &calls
}

func TestRunRecordsEveryTarget(t *testing.T) {
	web := &fakeBackend{name: "web"}
	browser := &fakeBackend{name: "browser"}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web, browser}, proxy.NewPool(nil), sink, 1)

	targets := []string{"alice", "bob", "carol"}
	summary, err := d.Run(context.Background(), targets)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, sink.results, 3)
	for i, result := range sink.results {
		assert.Equal(t, targets[i], result.Target)
		assert.Equal(t, "profile", result.Mode)
		assert.True(t, result.OK())
		require.NotNil(t, result.Profile)
		assert.Equal(t, targets[i], result.Profile.Username)
	}
}

func TestRunUsesBothBackends(t *testing.T) {
	web := &fakeBackend{name: "web"}
	browser := &fakeBackend{name: "browser"}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web, browser}, proxy.NewPool(nil), sink, 7)

	var targets []string
	for i := 0; i < 100; i++ {
		targets = append(targets, "user")
	}

	summary, err := d.Run(context.Background(), targets)
	require.NoError(t, err)

	assert.Positive(t, summary.PerBackend["web"])
	assert.Positive(t, summary.PerBackend["browser"])
	assert.Equal(t, 100, summary.PerBackend["web"]+summary.PerBackend["browser"])
	assert.Equal(t, len(web.profiles), summary.PerBackend["web"])
	assert.Equal(t, len(browser.profiles), summary.PerBackend["browser"])
}

func TestRunFailureDoesNotStopRun(t *testing.T) {
	web := &fakeBackend{name: "web", fetchErrs: map[string]error{"bob": errors.New("rate limited")}}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	summary, err := d.Run(context.Background(), []string{"alice", "bob", "carol"})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	require.Len(t, sink.results, 3)
	assert.True(t, sink.results[0].OK())
	assert.Equal(t, "rate limited", sink.results[1].Error)
	assert.Nil(t, sink.results[1].Profile)
	assert.True(t, sink.results[2].OK())
}

func TestSessionEstablishedOncePerBackend(t *testing.T) {
	web := &fakeBackend{name: "web", restoreErr: backend.ErrNoSession}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	_, err := d.Run(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	// Restore fails once, login runs once, and the session is reused after.
	assert.Equal(t, 1, web.restores)
	assert.Equal(t, 1, web.logins)
	assert.Equal(t, 1, web.saves)
}

func TestRestoredSessionSkipsLogin(t *testing.T) {
	web := &fakeBackend{name: "web"}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	_, err := d.Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 1, web.restores)
	assert.Zero(t, web.logins)
}

func TestUnrecoverableSessionErrorFailsTarget(t *testing.T) {
	web := &fakeBackend{name: "web", restoreErr: backend.ErrCheckpoint}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	summary, err := d.Run(context.Background(), []string{"alice"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, web.logins)
	require.Len(t, sink.results, 1)
	assert.Contains(t, sink.results[0].Error, "checkpoint")
}

func TestTwoFactorLoginFailsTarget(t *testing.T) {
	web := &fakeBackend{
		name:       "web",
		restoreErr: backend.ErrLoginRequired,
		loginErr:   backend.ErrTwoFactorRequired,
	}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	summary, err := d.Run(context.Background(), []string{"alice"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, web.saves)
	require.Len(t, sink.results, 1)
	assert.Contains(t, sink.results[0].Error, "two-factor")
}

func TestProxyAppliedPerTarget(t *testing.T) {
	proxies := []string{"http://p1:8080", "socks5://p2:1080"}
	web := &fakeBackend{name: "web"}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(proxies), sink, 3)

	_, err := d.Run(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	require.Len(t, web.proxies, 5)
	for _, p := range web.proxies {
		assert.Contains(t, proxies, p)
	}
	for _, result := range sink.results {
		assert.Contains(t, proxies, result.Proxy)
	}
}

func TestNoProxiesMeansDirect(t *testing.T) {
	web := &fakeBackend{name: "web"}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	_, err := d.Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	for _, p := range web.proxies {
		assert.Empty(t, p)
	}
}

func TestSleepsBetweenTargetsOnly(t *testing.T) {
	web := &fakeBackend{name: "web"}
	sink := &fakeSink{}
	d, calls := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	_, err := d.Run(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, *calls, 2)
	for _, call := range *calls {
		assert.Equal(t, 3*time.Second, call.min)
		assert.Equal(t, 7*time.Second, call.max)
	}
}

func TestShortcodeTargetFetchesPost(t *testing.T) {
	web := &fakeBackend{name: "web"}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	_, err := d.Run(context.Background(), []string{"p/Cxyz_123", "alice"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Cxyz_123"}, web.posts)
	assert.Equal(t, []string{"alice"}, web.profiles)

	require.Len(t, sink.results, 2)
	assert.Equal(t, "post", sink.results[0].Mode)
	require.Len(t, sink.results[0].Posts, 1)
	assert.Equal(t, "Cxyz_123", sink.results[0].Posts[0].Shortcode)
	assert.Equal(t, "profile", sink.results[1].Mode)
}

func TestCancelledContextStopsRun(t *testing.T) {
	web := &fakeBackend{name: "web"}
	sink := &fakeSink{}
	d, _ := newTestDispatcher([]backend.Client{web}, proxy.NewPool(nil), sink, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := d.Run(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Attempted)
	assert.Empty(t, sink.results)
}

func TestReproducibleWithSameSeed(t *testing.T) {
	run := func() map[string]int {
		web := &fakeBackend{name: "web"}
		browser := &fakeBackend{name: "browser"}
		sink := &fakeSink{}
		d, _ := newTestDispatcher([]backend.Client{web, browser}, proxy.NewPool(nil), sink, 42)

		summary, err := d.Run(context.Background(), []string{"a", "b", "c", "d", "e", "f"})
		require.NoError(t, err)
		return summary.PerBackend
	}

	assert.Equal(t, run(), run())
}
