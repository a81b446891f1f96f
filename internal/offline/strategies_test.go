package offline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/l0p7/newsedge/internal/config"
	"github.com/l0p7/newsedge/internal/kv"
	"github.com/l0p7/newsedge/internal/logging"
	"github.com/l0p7/newsedge/internal/metrics"
)

// newStreamingWorker starts a worker in front of handler with a short fetch
// timeout and no precache manifest.
func newStreamingWorker(t *testing.T, handler http.Handler) (*Worker, kv.Store, string) {
	t.Helper()
	origin := httptest.NewServer(handler)
	t.Cleanup(origin.Close)

	settings := config.DefaultConfig().Worker
	settings.Origin = origin.URL
	settings.Precache = nil
	settings.SkipWaiting = true
	settings.FetchTimeout = 100 * time.Millisecond
	store := kv.NewMemory()
	worker, err := New(Config{
		Settings: settings,
		Store:    store,
		Network:  origin.Client().Transport,
		Logger:   logging.Discard(),
		Metrics:  metrics.NewRecorder(nil),
	})
	require.NoError(t, err)
	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(func() { _ = worker.Close(context.Background()) })
	return worker, store, origin.URL
}

func TestSlowBodyOutlivesFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	unblock := sync.OnceFunc(func() { close(release) })
	worker, store, base := newStreamingWorker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "first chunk")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, " and the rest")
	}))
	t.Cleanup(unblock)

	req, err := http.NewRequest(http.MethodGet, base+"/downloads/video.mp4", nil)
	require.NoError(t, err)
	started := time.Now()
	resp, err := worker.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Less(t, time.Since(started), time.Second, "headers arrive before the body completes")

	first := make([]byte, len("first chunk"))
	_, err = io.ReadFull(resp.Body, first)
	require.NoError(t, err)
	require.Equal(t, "first chunk", string(first))

	time.Sleep(300 * time.Millisecond)
	unblock()
	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "the fetch timeout must not cut off the body")
	require.Equal(t, " and the rest", string(rest))

	keys, err := store.Keys(context.Background(), worker.Partition(PurposeDynamic).namespace())
	require.NoError(t, err)
	require.Equal(t, []string{base + "/downloads/video.mp4"}, keys, "a completed body within the limit is cached")
}

func TestFetchTimeoutBoundsHeaders(t *testing.T) {
	release := make(chan struct{})
	worker, _, base := newStreamingWorker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release) })

	req, err := http.NewRequest(http.MethodGet, base+"/api/slow", nil)
	require.NoError(t, err)
	_, err = worker.RoundTrip(req)
	require.ErrorIs(t, err, ErrFetchTimeout)
}

func TestOversizedBodyStreamsWithoutCaching(t *testing.T) {
	f := newWorkerFixture(t, func(w *config.WorkerConfig) { w.MaxEntryBytes = 32 })
	f.start(t)

	large := strings.Repeat("x", 64)
	f.origin.set("/static/bundle.js", asset{body: large})
	for range 2 {
		status, body, err := f.get(t, f.origin.url("/static/bundle.js"))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, large, body)
	}
	require.Equal(t, 2, f.origin.count("/static/bundle.js"))
	require.NotContains(t, f.keys(t, PurposeStatic), f.origin.url("/static/bundle.js"))
}

func TestTeeBody(t *testing.T) {
	t.Run("completes once within limit", func(t *testing.T) {
		var calls int
		var kept string
		tee := &teeBody{
			ReadCloser: io.NopCloser(strings.NewReader("abcdef")),
			limit:      6,
			complete: func(body []byte) {
				calls++
				kept = string(body)
			},
		}
		body, err := io.ReadAll(tee)
		require.NoError(t, err)
		require.Equal(t, "abcdef", string(body))
		_, err = tee.Read(make([]byte, 4))
		require.ErrorIs(t, err, io.EOF)
		require.Equal(t, 1, calls)
		require.Equal(t, "abcdef", kept)
	})

	t.Run("passes overflow through without completing", func(t *testing.T) {
		tee := &teeBody{
			ReadCloser: io.NopCloser(strings.NewReader("abcdef")),
			limit:      4,
			complete:   func([]byte) { t.Fatal("overflowed body must not complete") },
		}
		body, err := io.ReadAll(tee)
		require.NoError(t, err)
		require.Equal(t, "abcdef", string(body))
	})
}

func TestPrecacheRejectsOversizedAsset(t *testing.T) {
	f := newWorkerFixture(t, func(w *config.WorkerConfig) { w.MaxEntryBytes = 8 })

	require.NoError(t, f.worker.Start(context.Background()))
	require.Equal(t, StateWaiting, f.worker.State())
	require.Empty(t, f.keys(t, PurposeStatic))
}

func TestPrecacheResolvesEveryAssetBeforeFetching(t *testing.T) {
	f := newWorkerFixture(t, nil)

	err := f.worker.UpdatePrecache(context.Background(), []string{"/index.html", "/%zz"})
	require.Error(t, err)
	require.Zero(t, f.origin.count("/index.html"), "no fetch starts when a later asset does not resolve")
	require.Empty(t, f.keys(t, PurposeStatic))
}
