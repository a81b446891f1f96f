package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/l0p7/newsedge/internal/metrics"
)

// ErrFetchTimeout is returned when the network does not answer with response
// headers within the configured fetch timeout.
var ErrFetchTimeout = errors.New("offline: timed out waiting for response headers")

// roundTrip sends req to the network. FetchTimeout bounds the wait for the
// response headers only; the body is read under the caller's context and its
// Close releases the request.
func (w *Worker) roundTrip(ctx context.Context, req *http.Request, strategy Strategy) (*http.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	var timer *time.Timer
	if timeout := w.settings.FetchTimeout; timeout > 0 {
		timer = time.AfterFunc(timeout, cancel)
	}
	start := time.Now()
	resp, err := w.network.RoundTrip(req.Clone(ctx))
	w.metrics.ObserveFetch(string(strategy), time.Since(start))
	if timer != nil && !timer.Stop() {
		if err == nil {
			_ = resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrFetchTimeout, req.URL.Redacted())
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: cancel}
	resp.Request = req
	return resp, nil
}

// fetch is roundTrip with the body teed for caching: once the caller has read
// the body to the end, complete receives it, provided it stayed within
// MaxEntryBytes. Larger bodies stream through untouched.
func (w *Worker) fetch(ctx context.Context, req *http.Request, strategy Strategy, complete func(*http.Response, []byte)) (*http.Response, error) {
	resp, err := w.roundTrip(ctx, req, strategy)
	if err != nil || complete == nil {
		return resp, err
	}
	limit := w.settings.MaxEntryBytes
	if resp.ContentLength > limit {
		w.logger.Debug("response too large to cache",
			slog.String("url", req.URL.String()),
			slog.Int64("content_length", resp.ContentLength))
		return resp, nil
	}
	resp.Body = &teeBody{
		ReadCloser: resp.Body,
		limit:      limit,
		complete:   func(body []byte) { complete(resp, body) },
	}
	return resp, nil
}

// fetchAll reads the whole body up front. Only background and install work
// uses it; a body over MaxEntryBytes is an error.
func (w *Worker) fetchAll(ctx context.Context, req *http.Request, strategy Strategy) (*http.Response, []byte, error) {
	resp, err := w.roundTrip(ctx, req, strategy)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	limit := w.settings.MaxEntryBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, nil, fmt.Errorf("offline: read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, nil, fmt.Errorf("offline: %s: body exceeds %d bytes", req.URL.Redacted(), limit)
	}
	return resp, body, nil
}

// releasingBody cancels the fetch context once the body is closed.
type releasingBody struct {
	io.ReadCloser
	release context.CancelFunc
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

// teeBody keeps a copy of what passes through, up to limit bytes. complete
// runs once, before io.EOF is handed to the reader, and never after overflow.
type teeBody struct {
	io.ReadCloser
	limit    int64
	buf      bytes.Buffer
	overflow bool
	done     bool
	complete func([]byte)
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	if n > 0 && !t.overflow {
		if int64(t.buf.Len()+n) > t.limit {
			t.overflow = true
			t.buf = bytes.Buffer{}
		} else {
			t.buf.Write(p[:n])
		}
	}
	if errors.Is(err, io.EOF) && !t.overflow && !t.done {
		t.done = true
		t.complete(t.buf.Bytes())
	}
	return n, err
}

// keep returns a completion that stores 2xx responses under key.
func (w *Worker) keep(ctx context.Context, p *Partition, key string) func(*http.Response, []byte) {
	ctx = context.WithoutCancel(ctx)
	return func(resp *http.Response, body []byte) {
		if isOK(resp.StatusCode) {
			w.put(ctx, p, key, resp, body)
		}
	}
}

func (w *Worker) put(ctx context.Context, p *Partition, key string, resp *http.Response, body []byte) {
	if err := p.Put(ctx, key, newEntry(resp, body, w.now())); err != nil {
		w.logger.Warn("cache write failed",
			slog.String("partition", p.Name()),
			slog.String("url", key),
			slog.Any("error", err))
	}
}

func (w *Worker) match(ctx context.Context, p *Partition, key string) (Entry, bool) {
	entry, ok, err := p.Match(ctx, key)
	if err != nil {
		w.logger.Warn("cache read failed",
			slog.String("partition", p.Name()),
			slog.String("url", key),
			slog.Any("error", err))
		return Entry{}, false
	}
	return entry, ok
}

// cacheFirst serves a stored entry when present, otherwise fetches and stores
// 2xx responses.
func (w *Worker) cacheFirst(req *http.Request, p *Partition) (*http.Response, error) {
	ctx := req.Context()
	key := req.URL.String()
	if entry, ok := w.match(ctx, p, key); ok {
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyCacheFirst), metrics.CacheResultHit)
		return entry.Response(req), nil
	}
	resp, err := w.fetch(ctx, req, StrategyCacheFirst, w.keep(ctx, p, key))
	if err != nil {
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyCacheFirst), metrics.CacheResultError)
		w.logger.Error("cache first strategy failed", slog.String("url", key), slog.Any("error", err))
		return nil, err
	}
	w.metrics.ObserveCacheRequest(p.Name(), string(StrategyCacheFirst), metrics.CacheResultMiss)
	return resp, nil
}

// networkFirst prefers the network and only falls back to a stored entry when
// the round trip itself fails. Non-2xx responses are returned as-is.
func (w *Worker) networkFirst(req *http.Request, p *Partition) (*http.Response, error) {
	ctx := req.Context()
	key := req.URL.String()
	resp, err := w.fetch(ctx, req, StrategyNetworkFirst, w.keep(ctx, p, key))
	if err == nil {
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyNetworkFirst), metrics.CacheResultMiss)
		return resp, nil
	}
	w.logger.Debug("network failed, trying cache", slog.String("url", key), slog.Any("error", err))
	if entry, ok := w.match(ctx, p, key); ok {
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyNetworkFirst), metrics.CacheResultFallback)
		return entry.Response(req), nil
	}
	w.metrics.ObserveCacheRequest(p.Name(), string(StrategyNetworkFirst), metrics.CacheResultError)
	return nil, err
}

// staleWhileRevalidate answers from the partition immediately and refreshes the
// entry in the background. Without a stored entry the caller waits on the
// network.
func (w *Worker) staleWhileRevalidate(req *http.Request, p *Partition) (*http.Response, error) {
	ctx := req.Context()
	key := req.URL.String()
	if entry, ok := w.match(ctx, p, key); ok {
		w.revalidate(req, p)
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyStaleWhileRevalidate), metrics.CacheResultHit)
		return entry.Response(req), nil
	}
	resp, err := w.fetch(ctx, req, StrategyStaleWhileRevalidate, w.keep(ctx, p, key))
	if err != nil {
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyStaleWhileRevalidate), metrics.CacheResultError)
		w.logger.Error("fetch failed in stale while revalidate", slog.String("url", key), slog.Any("error", err))
		return nil, err
	}
	w.metrics.ObserveCacheRequest(p.Name(), string(StrategyStaleWhileRevalidate), metrics.CacheResultMiss)
	return resp, nil
}

// RevalidationError reports a failed background refresh.
type RevalidationError struct {
	URL string
	Err error
}

func (e *RevalidationError) Error() string {
	return fmt.Sprintf("offline: revalidate %s: %v", e.URL, e.Err)
}

func (e *RevalidationError) Unwrap() error { return e.Err }

// revalidate starts a detached refresh of the entry behind req. Its failures
// go to the revalidation error channel and never reach the caller.
func (w *Worker) revalidate(req *http.Request, p *Partition) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending.Add(1)
	w.mu.Unlock()

	ctx := context.WithoutCancel(req.Context())
	var cancel context.CancelFunc = func() {}
	if timeout := w.settings.RevalidateTimeout; timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	bg := req.Clone(ctx)
	key := req.URL.String()

	go func() {
		defer w.pending.Done()
		defer cancel()
		resp, body, err := w.fetchAll(ctx, bg, StrategyStaleWhileRevalidate)
		if err != nil {
			w.revalidation <- &RevalidationError{URL: key, Err: err}
			return
		}
		if !isOK(resp.StatusCode) {
			w.logger.Debug("revalidation returned non-ok status", slog.String("url", key), slog.Int("status", resp.StatusCode))
			return
		}
		if err := p.Put(ctx, key, newEntry(resp, body, w.now())); err != nil {
			w.revalidation <- &RevalidationError{URL: key, Err: err}
		}
	}()
}

func (w *Worker) drainRevalidationErrors() {
	defer close(w.drained)
	for err := range w.revalidation {
		w.metrics.ObserveRevalidationError()
		w.logger.Warn("background revalidation failed", slog.Any("error", err))
	}
}
