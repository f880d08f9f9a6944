// Package metrics 汇总 offline-hub 的 Prometheus 指标。每个 Collector 自带独立
// Registry，便于测试并行构造而不触发重复注册。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector 持有路由、缓存与生命周期相关的计数器。所有方法对 nil 接收者安全。
type Collector struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cacheWrites   *prometheus.CounterVec
	lifecycle     *prometheus.CounterVec
	deletedCaches prometheus.Counter
	notifications *prometheus.CounterVec
}

// New 构造 Collector 并注册进新的 Registry（附带 Go runtime/process 指标）。
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offlinehub_fetch_total",
			Help: "Intercepted requests by routing strategy and response source",
		}, []string{"strategy", "source"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "offlinehub_fetch_duration_seconds",
			Help:    "Time to produce a response for an intercepted request",
			Buckets: prometheus.ExponentialBucketsRange(0.0005, 15, 16),
		}, []string{"strategy"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offlinehub_cache_writes_total",
			Help: "Cache puts (precache and write-through) by result",
		}, []string{"result"}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offlinehub_lifecycle_events_total",
			Help: "Worker lifecycle and control events by result",
		}, []string{"event", "result"}),
		deletedCaches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offlinehub_deleted_caches_total",
			Help: "Cache stores deleted by activation or CLEAR_CACHE",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offlinehub_notifications_total",
			Help: "Notifications shown and clicked",
		}, []string{"event"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.fetches,
		c.fetchDuration,
		c.cacheWrites,
		c.lifecycle,
		c.deletedCaches,
		c.notifications,
	)
	return c
}

// Registry 返回底层 Registry，供 /-/metrics 暴露。
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveFetch 记录一次被拦截请求的策略、来源与耗时。
func (c *Collector) ObserveFetch(strategy, source string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.fetches.WithLabelValues(strategy, source).Inc()
	c.fetchDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// CacheWrite 记录写穿缓存结果（ok/failed）。
func (c *Collector) CacheWrite(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.cacheWrites.WithLabelValues(result).Inc()
}

// Lifecycle 记录 install/activate/message/sync 等事件。
func (c *Collector) Lifecycle(event string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.lifecycle.WithLabelValues(event, result).Inc()
}

// CachesDeleted 累加被删除的缓存仓库数量。
func (c *Collector) CachesDeleted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.deletedCaches.Add(float64(n))
}

// Notification 记录通知展示/点击事件。
func (c *Collector) Notification(event string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(event).Inc()
}
