package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"instagram-dispatcher/internal/backend"
	"instagram-dispatcher/internal/monitoring"
	"instagram-dispatcher/internal/proxy"
	"instagram-dispatcher/pkg/types"
)

// Sink receives one result per processed target.
type Sink interface {
	Record(ctx context.Context, result *types.ActionResult) error
	Close() error
}

// Sleeper pauses between targets. Injected so tests can observe the requested
// bounds without waiting.
type Sleeper func(ctx context.Context, min, max time.Duration) error

// Config carries the per-run knobs of the dispatch loop.
type Config struct {
	MaxPosts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Dispatcher walks a target list, picks one backend and optionally one proxy
// per target at random, runs the action, and records the outcome. A failed
// target never stops the run.
type Dispatcher struct {
	backends []backend.Client
	pool     *proxy.Pool
	sink     Sink
	monitor  *monitoring.Monitor
	rng      *rand.Rand
	sleep    Sleeper
	cfg      Config
	logger   *logrus.Logger

	sessionReady map[string]bool
}

func New(backends []backend.Client, pool *proxy.Pool, sink Sink, monitor *monitoring.Monitor, rng *rand.Rand, cfg Config, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		backends:     backends,
		pool:         pool,
		sink:         sink,
		monitor:      monitor,
		rng:          rng,
		sleep:        randomSleep,
		cfg:          cfg,
		logger:       logger,
		sessionReady: make(map[string]bool),
	}
}

// SetSleeper replaces the inter-target pause implementation.
func (d *Dispatcher) SetSleeper(sleep Sleeper) {
	d.sleep = sleep
}

// Run processes every target once. It returns an error only when the run as a
// whole cannot proceed; per-target failures are recorded and counted instead.
func (d *Dispatcher) Run(ctx context.Context, targets []string) (*types.RunSummary, error) {
	if len(d.backends) == 0 {
		return nil, errors.New("no backends configured")
	}

	summary := &types.RunSummary{PerBackend: make(map[string]int)}

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := d.processTarget(ctx, target)
		summary.Attempted++
		summary.PerBackend[result.Backend]++
		if result.OK() {
			summary.Succeeded++
		} else {
			summary.Failed++
			d.logger.Warnf("Target %s failed: %s", target, result.Error)
		}

		if d.monitor != nil {
			d.monitor.RecordAction(result.Backend, result.OK(), result.Duration)
		}
		if err := d.sink.Record(ctx, result); err != nil {
			d.logger.Errorf("Failed to record result for %s: %v", target, err)
		}

		if i < len(targets)-1 {
			if err := d.sleep(ctx, d.cfg.MinDelay, d.cfg.MaxDelay); err != nil {
				return summary, err
			}
		}
	}

	d.logger.Infof("Run complete: %s", summary)
	return summary, nil
}

// processTarget runs one action end to end and never returns an error; any
// failure lands in the result's Error field.
func (d *Dispatcher) processTarget(ctx context.Context, target string) *types.ActionResult {
	client := d.backends[d.rng.Intn(len(d.backends))]
	proxyURL := d.pool.Pick(d.rng)

	result := &types.ActionResult{
		Target:    target,
		Mode:      "profile",
		Backend:   client.Name(),
		Proxy:     proxyURL,
		ScrapedAt: time.Now(),
	}
	started := time.Now()
	defer func() { result.Duration = time.Since(started) }()

	d.logger.WithFields(logrus.Fields{
		"target":  target,
		"backend": client.Name(),
		"proxy":   proxyURL,
	}).Info("Dispatching action")

	if err := client.UseProxy(proxyURL); err != nil {
		result.Error = fmt.Sprintf("proxy setup failed: %v", err)
		return result
	}

	if err := d.ensureSession(ctx, client); err != nil {
		result.Error = fmt.Sprintf("session setup failed: %v", err)
		return result
	}

	if shortcode, ok := backend.ParseShortcodeTarget(target); ok {
		result.Mode = "post"
		post, err := client.FetchPost(ctx, shortcode)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Posts = []types.Post{*post}
		return result
	}

	profile, posts, err := client.FetchProfile(ctx, target, d.cfg.MaxPosts)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Profile = profile
	result.Posts = posts
	return result
}

// ensureSession restores or establishes the backend's session once per run.
func (d *Dispatcher) ensureSession(ctx context.Context, client backend.Client) error {
	if d.sessionReady[client.Name()] {
		return nil
	}

	err := client.RestoreSession(ctx)
	switch {
	case err == nil:
		d.logger.Infof("[%s] session restored", client.Name())
	case errors.Is(err, backend.ErrNoSession) || errors.Is(err, backend.ErrLoginRequired):
		d.logger.Infof("[%s] no usable session, logging in", client.Name())
		if err := client.Login(ctx); err != nil {
			return err
		}
		if err := client.SaveSession(); err != nil {
			d.logger.Warnf("[%s] failed to persist session: %v", client.Name(), err)
		}
	default:
		return err
	}

	d.sessionReady[client.Name()] = true
	return nil
}

// randomSleep waits a uniform random duration in [min, max], honoring context
// cancellation.
func randomSleep(ctx context.Context, min, max time.Duration) error {
	delay := min
	if max > min {
		delay += time.Duration(rand.Int63n(int64(max - min + 1)))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
