// Package offline implements the caching worker that sits between the edge
// proxy and the portal origin. Requests are classified by a Router and answered
// by one of four strategies over versioned partitions in a kv.Store.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/kv"
	"github.com/l0p7/newsedge/internal/metrics"
)

// State is the worker lifecycle position.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateWaiting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

var (
	// ErrNotInstalled is returned by Activate before Install has completed.
	ErrNotInstalled = errors.New("offline: worker not installed")
	// ErrUnknownMessage is returned for message types the worker does not handle.
	ErrUnknownMessage = errors.New("offline: unknown message type")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("offline: worker closed")
)

// Config wires a Worker. Network defaults to http.DefaultTransport.
type Config struct {
	Settings config.WorkerConfig
	Store    kv.Store
	Network  http.RoundTripper
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Now      func() time.Time
}

// Worker is an http.RoundTripper that answers requests from cache partitions
// or the network depending on the request's route.
type Worker struct {
	settings config.WorkerConfig
	origin   *url.URL
	store    kv.Store
	network  http.RoundTripper
	logger   *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
	router   *Router

	partitions map[Purpose]*Partition

	mu                   sync.Mutex
	state                State
	skipWaitingRequested bool
	precache             []string
	closed               bool

	pending      sync.WaitGroup
	revalidation chan error
	drained      chan struct{}
}

func New(cfg Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, errors.New("offline: store required")
	}
	origin, err := url.Parse(strings.TrimSpace(cfg.Settings.Origin))
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("offline: origin must be an absolute URL: %q", cfg.Settings.Origin)
	}
	network := cfg.Network
	if network == nil {
		network = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Settings.MaxEntryBytes <= 0 {
		cfg.Settings.MaxEntryBytes = config.DefaultConfig().Worker.MaxEntryBytes
	}

	w := &Worker{
		settings: cfg.Settings,
		origin:   origin,
		store:    cfg.Store,
		network:  network,
		logger:   logger.With(slog.String("agent", "offline_worker")),
		metrics:  cfg.Metrics,
		now:      now,
		router: NewRouter(RouterConfig{
			Origin:          origin,
			Precache:        cfg.Settings.Precache,
			StaticPrefix:    cfg.Settings.StaticPrefix,
			APIPrefix:       cfg.Settings.APIPrefix,
			ContentPrefixes: cfg.Settings.ContentPrefixes,
		}),
		partitions:   make(map[Purpose]*Partition, len(purposes)),
		precache:     append([]string(nil), cfg.Settings.Precache...),
		revalidation: make(chan error, 64),
		drained:      make(chan struct{}),
	}
	for _, purpose := range purposes {
		w.partitions[purpose] = newPartition(cfg.Store, PartitionName(cfg.Settings.CachePrefix, purpose, cfg.Settings.Version))
	}
	go w.drainRevalidationErrors()
	return w, nil
}

func (w *Worker) Partition(purpose Purpose) *Partition {
	return w.partitions[purpose]
}

func (w *Worker) Router() *Router { return w.router }

// Origin is the site the worker caches for.
func (w *Worker) Origin() *url.URL {
	u := *w.origin
	return &u
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	if prev != s {
		w.logger.Info("worker state changed", slog.String("from", prev.String()), slog.String("to", s.String()))
	}
}

// Start installs the worker and activates it straight away when the install
// asked to skip waiting.
func (w *Worker) Start(ctx context.Context) error {
	w.Install(ctx)
	w.mu.Lock()
	skip := w.skipWaitingRequested
	w.mu.Unlock()
	if !skip {
		w.logger.Info("worker waiting for activation")
		return nil
	}
	return w.Activate(ctx)
}

// Install opens the static partition and precaches the manifest. A failed
// precache is logged and otherwise ignored: the worker still reaches the
// waiting state. It reports whether the precache succeeded.
func (w *Worker) Install(ctx context.Context) bool {
	w.setState(StateInstalling)
	defer w.setState(StateWaiting)

	w.mu.Lock()
	assets := append([]string(nil), w.precache...)
	w.mu.Unlock()

	if err := w.precacheAssets(ctx, assets); err != nil {
		w.logger.Error("failed to cache static assets", slog.Any("error", err))
		return false
	}
	w.logger.Info("static assets cached", slog.Int("assets", len(assets)))
	if w.settings.SkipWaiting {
		w.mu.Lock()
		w.skipWaitingRequested = true
		w.mu.Unlock()
	}
	return true
}

// Activate removes every cache partition that is not one of the current three
// and takes control of requests. Cleanup failures are logged.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	state, closed := w.state, w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if state != StateWaiting && state != StateActive {
		return ErrNotInstalled
	}

	if err := w.cleanupPartitions(ctx); err != nil {
		w.logger.Error("cache cleanup failed", slog.Any("error", err))
	} else {
		w.logger.Info("old caches cleaned up")
	}
	w.setState(StateActive)
	return nil
}

func (w *Worker) cleanupPartitions(ctx context.Context) error {
	current := make(map[string]struct{}, len(w.partitions))
	for _, p := range w.partitions {
		current[p.Name()] = struct{}{}
	}
	names, err := listPartitions(ctx, w.store)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, keep := current[name]; keep {
			continue
		}
		w.logger.Info("deleting old cache", slog.String("partition", name))
		if _, err := dropPartition(ctx, w.store, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RoundTrip implements http.RoundTripper. Until the worker is active every
// request goes straight to the network.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	if w.State() != StateActive {
		return w.network.RoundTrip(req)
	}
	route := w.router.Route(req)
	switch route.Strategy {
	case StrategyCacheFirst:
		return w.cacheFirst(req, w.partitions[route.Purpose])
	case StrategyNetworkFirst:
		return w.networkFirst(req, w.partitions[route.Purpose])
	case StrategyStaleWhileRevalidate:
		return w.staleWhileRevalidate(req, w.partitions[route.Purpose])
	case StrategyImage:
		return w.cacheImage(req, w.partitions[route.Purpose])
	default:
		w.metrics.ObserveCacheRequest("", string(StrategyPassthrough), metrics.CacheResultBypass)
		return w.network.RoundTrip(req)
	}
}

// SetPrecache swaps the manifest used by routing and by the next install.
func (w *Worker) SetPrecache(assets []string) {
	w.mu.Lock()
	w.precache = append([]string(nil), assets...)
	w.mu.Unlock()
	w.router.SetPrecache(assets)
}

// UpdatePrecache swaps the manifest and re-populates the static partition.
func (w *Worker) UpdatePrecache(ctx context.Context, assets []string) error {
	w.SetPrecache(assets)
	if err := w.precacheAssets(ctx, assets); err != nil {
		return err
	}
	w.logger.Info("precache manifest refreshed", slog.Int("assets", len(assets)))
	return nil
}

// Snapshot describes the worker for diagnostics.
type Snapshot struct {
	State      string           `json:"state"`
	Version    int              `json:"version"`
	Precache   []string         `json:"precache"`
	Partitions []PartitionStats `json:"partitions"`
}

func (w *Worker) Snapshot(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	snap := Snapshot{
		State:    w.state.String(),
		Version:  w.settings.Version,
		Precache: append([]string(nil), w.precache...),
	}
	w.mu.Unlock()
	for _, purpose := range purposes {
		stats, err := w.partitions[purpose].Stats(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Partitions = append(snap.Partitions, stats)
	}
	return snap, nil
}

// Wait blocks until in-flight background revalidations finish.
func (w *Worker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops new background work, waits for the in-flight revalidations and
// then shuts the error drain down.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if err := w.Wait(ctx); err != nil {
		return err
	}
	close(w.revalidation)
	select {
	case <-w.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("offline: parse url %q: %w", raw, err)
	}
	return w.origin.ResolveReference(ref), nil
}
