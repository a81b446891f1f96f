package metrics

import (
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveCacheRequest(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheRequest("umar-media-static-v3", "cache-first", CacheResultHit)
	rec.ObserveCacheRequest("umar-media-static-v3", "cache-first", CacheResultHit)
	rec.ObserveCacheRequest("", "network-first", "")

	families := gather(t, rec, "newsedge_cache_requests_total")

	hit := findMetric(t, families["newsedge_cache_requests_total"], map[string]string{
		"partition": "umar-media-static-v3",
		"strategy":  "cache-first",
		"result":    "hit",
	})
	if got := hit.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected hit counter 2, got %v", got)
	}

	normalized := findMetric(t, families["newsedge_cache_requests_total"], map[string]string{
		"partition": "unknown",
		"strategy":  "network-first",
		"result":    "bypass",
	})
	if got := normalized.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected normalized counter 1, got %v", got)
	}
}

func TestRecorderObserveFetch(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveFetch("stale-while-revalidate", 250*time.Millisecond)

	families := gather(t, rec, "newsedge_cache_fetch_duration_seconds")
	metric := findMetric(t, families["newsedge_cache_fetch_duration_seconds"], map[string]string{
		"strategy": "stale-while-revalidate",
	})
	hist := metric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for fetch latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	if diff := math.Abs(hist.GetSampleSum() - 0.25); diff > 0.001 {
		t.Fatalf("expected histogram sum near 0.25, got %v", hist.GetSampleSum())
	}
}

func TestRecorderEvictionsAndRevalidation(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveEvictions("umar-media-images-v3", 3)
	rec.ObserveEvictions("umar-media-images-v3", 0)
	rec.ObserveRevalidationError()

	families := gather(t, rec, "newsedge_cache_evictions_total", "newsedge_cache_revalidation_errors_total")

	evicted := findMetric(t, families["newsedge_cache_evictions_total"], map[string]string{
		"partition": "umar-media-images-v3",
	})
	if got := evicted.GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected evictions 3, got %v", got)
	}
	if got := families["newsedge_cache_revalidation_errors_total"][0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected revalidation errors 1, got %v", got)
	}
}

func TestRecorderAccess(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveAccessAttempt(AccessOutcomeFailure, "invalid")
	rec.ObserveAccessAttempt(AccessOutcomeSuccess, "")
	rec.ObserveLockout()

	families := gather(t, rec, "newsedge_access_attempts_total", "newsedge_access_lockouts_total")

	failure := findMetric(t, families["newsedge_access_attempts_total"], map[string]string{
		"outcome": "failure",
		"reason":  "invalid",
	})
	if got := failure.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected failure counter 1, got %v", got)
	}
	success := findMetric(t, families["newsedge_access_attempts_total"], map[string]string{
		"outcome": "success",
		"reason":  "none",
	})
	if got := success.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected success counter 1, got %v", got)
	}
	if got := families["newsedge_access_lockouts_total"][0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected lockouts 1, got %v", got)
	}
}

func TestRecorderNilSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveCacheRequest("p", "s", CacheResultHit)
	rec.ObserveFetch("s", time.Second)
	rec.ObserveEvictions("p", 1)
	rec.ObserveRevalidationError()
	rec.ObserveAccessAttempt(AccessOutcomeLocked, "locked")
	rec.ObserveLockout()

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder, got %d", rr.Code)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveLockout()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "newsedge_access_lockouts_total 1") {
		t.Fatalf("expected lockout counter in exposition, got %q", rr.Body.String())
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
