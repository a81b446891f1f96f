package offline

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/l0p7/newsedge/internal/metrics"
)

// cacheImage is cache-first for images. A fetched response is stored only when
// it is 2xx with an image content type and has been read to the end, after
// making room under the budget.
func (w *Worker) cacheImage(req *http.Request, p *Partition) (*http.Response, error) {
	ctx := req.Context()
	key := req.URL.String()
	if entry, ok := w.match(ctx, p, key); ok {
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyImage), metrics.CacheResultHit)
		return entry.Response(req), nil
	}
	storeCtx := context.WithoutCancel(ctx)
	resp, err := w.fetch(ctx, req, StrategyImage, func(resp *http.Response, body []byte) {
		if !isOK(resp.StatusCode) || !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
			return
		}
		if err := w.makeRoom(storeCtx, p, int64(len(body))); err != nil {
			w.logger.Warn("image eviction failed", slog.String("partition", p.Name()), slog.Any("error", err))
		}
		w.put(storeCtx, p, key, resp, body)
	})
	if err != nil {
		w.metrics.ObserveCacheRequest(p.Name(), string(StrategyImage), metrics.CacheResultError)
		w.logger.Error("image cache failed", slog.String("url", key), slog.Any("error", err))
		return nil, err
	}
	w.metrics.ObserveCacheRequest(p.Name(), string(StrategyImage), metrics.CacheResultMiss)
	return resp, nil
}

// makeRoom sweeps the oldest entries out of p until the partition plus an
// incoming body of the given size fits the image budget, or p is empty.
func (w *Worker) makeRoom(ctx context.Context, p *Partition, incoming int64) error {
	budget := w.settings.ImageBudgetBytes
	for {
		entries, err := p.entries(ctx)
		if err != nil {
			return err
		}
		var total int64
		for _, e := range entries {
			total += e.entry.Size()
		}
		if len(entries) == 0 || total+incoming <= budget {
			return nil
		}
		removed, err := w.evict(ctx, p, entries)
		if err != nil {
			return err
		}
		w.logger.Info("evicted image cache entries",
			slog.String("partition", p.Name()),
			slog.Int("removed", removed),
			slog.Int64("bytes_before", total))
	}
}

// evict deletes the oldest share of entries by Date header. At least one
// entry goes per sweep so makeRoom always makes progress.
func (w *Worker) evict(ctx context.Context, p *Partition, entries []keyedEntry) (int, error) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].entry.Recency(), entries[j].entry.Recency()
		if ti.Equal(tj) {
			return entries[i].key < entries[j].key
		}
		return ti.Before(tj)
	})
	count := int(math.Floor(float64(len(entries)) * w.settings.EvictionRatio))
	if count < 1 {
		count = 1
	}
	removed := 0
	for _, e := range entries[:count] {
		if _, err := p.Delete(ctx, e.key); err != nil {
			w.metrics.ObserveEvictions(p.Name(), removed)
			return removed, err
		}
		removed++
	}
	w.metrics.ObserveEvictions(p.Name(), removed)
	return removed, nil
}
