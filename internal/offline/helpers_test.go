package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/kv"
	"github.com/l0p7/newsedge/internal/logging"
	"github.com/l0p7/newsedge/internal/metrics"
)

type asset struct {
	status      int
	contentType string
	body        string
	date        string
}

// originFixture is an httptest origin with per-path responses and fetch counters.
type originFixture struct {
	server *httptest.Server

	mu     sync.Mutex
	assets map[string]asset
	hits   map[string]int
}

func newOrigin(t *testing.T) *originFixture {
	t.Helper()
	o := &originFixture{assets: make(map[string]asset), hits: make(map[string]int)}
	for _, path := range config.DefaultConfig().Worker.Precache {
		o.assets[path] = asset{status: http.StatusOK, contentType: "text/html", body: "shell " + path}
	}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.hits[r.URL.RequestURI()]++
		a, ok := o.assets[r.URL.Path]
		o.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if a.contentType != "" {
			w.Header().Set("Content-Type", a.contentType)
		}
		if a.date != "" {
			w.Header().Set("Date", a.date)
		}
		status := a.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, a.body)
	}))
	t.Cleanup(o.server.Close)
	return o
}

func (o *originFixture) set(path string, a asset) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.assets[path] = a
}

func (o *originFixture) count(requestURI string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[requestURI]
}

func (o *originFixture) url(path string) string {
	return o.server.URL + path
}

// flakyTransport fails every round trip while down is set.
type flakyTransport struct {
	base http.RoundTripper
	down atomic.Bool
}

var errNetworkDown = errors.New("network down")

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.down.Load() {
		return nil, errNetworkDown
	}
	return f.base.RoundTrip(req)
}

type workerFixture struct {
	origin  *originFixture
	network *flakyTransport
	store   kv.Store
	worker  *Worker
	metrics *metrics.Recorder
	client  *http.Client
}

func newWorkerFixture(t *testing.T, mutate func(*config.WorkerConfig)) *workerFixture {
	t.Helper()
	origin := newOrigin(t)
	settings := config.DefaultConfig().Worker
	settings.Origin = origin.server.URL
	settings.FetchTimeout = 5 * time.Second
	settings.RevalidateTimeout = 5 * time.Second
	if mutate != nil {
		mutate(&settings)
	}
	network := &flakyTransport{base: origin.server.Client().Transport}
	store := kv.NewMemory()
	rec := metrics.NewRecorder(nil)
	worker, err := New(Config{
		Settings: settings,
		Store:    store,
		Network:  network,
		Logger:   logging.Discard(),
		Metrics:  rec,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Close(ctx)
	})
	return &workerFixture{
		origin:  origin,
		network: network,
		store:   store,
		worker:  worker,
		metrics: rec,
		client:  &http.Client{Transport: worker},
	}
}

func (f *workerFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.worker.Start(context.Background()))
	require.Equal(t, StateActive, f.worker.State())
}

func (f *workerFixture) get(t *testing.T, rawURL string) (int, string, error) {
	t.Helper()
	resp, err := f.client.Get(rawURL)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), nil
}

func (f *workerFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.worker.Wait(ctx))
}

func (f *workerFixture) keys(t *testing.T, purpose Purpose) []string {
	t.Helper()
	keys, err := f.store.Keys(context.Background(), f.worker.Partition(purpose).namespace())
	require.NoError(t, err)
	return keys
}

func counterValue(t *testing.T, rec *metrics.Recorder, name string) float64 {
	t.Helper()
	families, err := rec.Gatherer().Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
