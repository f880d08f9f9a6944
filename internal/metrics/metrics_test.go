package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveFetchCountsBySource(t *testing.T) {
	c := New()
	c.ObserveFetch("cache_first", "cache", time.Millisecond)
	c.ObserveFetch("cache_first", "cache", time.Millisecond)
	c.ObserveFetch("api_timeout", "offline", 10*time.Second)

	if got := testutil.ToFloat64(c.fetches.WithLabelValues("cache_first", "cache")); got != 2 {
		t.Fatalf("expected 2 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(c.fetches.WithLabelValues("api_timeout", "offline")); got != 1 {
		t.Fatalf("expected 1 degraded api response, got %v", got)
	}
}

func TestLifecycleResultLabel(t *testing.T) {
	c := New()
	c.Lifecycle("install", nil)
	c.Lifecycle("install", errors.New("boom"))

	if got := testutil.ToFloat64(c.lifecycle.WithLabelValues("install", "ok")); got != 1 {
		t.Fatalf("expected 1 ok install, got %v", got)
	}
	if got := testutil.ToFloat64(c.lifecycle.WithLabelValues("install", "failed")); got != 1 {
		t.Fatalf("expected 1 failed install, got %v", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveFetch("cache_first", "network", time.Second)
	c.CacheWrite(false)
	c.Lifecycle("activate", nil)
	c.CachesDeleted(3)
	c.Notification("shown")
	if c.Registry() != nil {
		t.Fatalf("nil collector should expose nil registry")
	}
}

func TestCachesDeletedIgnoresZero(t *testing.T) {
	c := New()
	c.CachesDeleted(0)
	c.CachesDeleted(2)
	if got := testutil.ToFloat64(c.deletedCaches); got != 2 {
		t.Fatalf("expected 2 deleted caches, got %v", got)
	}
}
