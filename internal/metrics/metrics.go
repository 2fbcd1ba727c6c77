// Package metrics exposes the mirror's Prometheus collectors on a private
// registry. Every recording method tolerates a nil *Metrics so components can
// run without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "apk_mirror"

// Metrics 汇总缓存命中、回源、合并请求与过期清理相关指标。
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups    *prometheus.CounterVec
	upstreamFetches *prometheus.CounterVec
	coalesced       prometheus.Counter
	cacheWrites     *prometheus.CounterVec
	sweepRuns       prometheus.Counter
	sweepRemoved    prometheus.Counter
	sweepFailures   prometheus.Counter
	sweepDuration   prometheus.Histogram
}

// New 创建并注册全部指标，同时附带 Go runtime 与进程指标。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result (hit or miss).",
		}, []string{"result"}),
		upstreamFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetches_total",
			Help:      "Origin fetches by outcome.",
		}, []string{"outcome"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_requests_total",
			Help:      "Requests that shared an in-flight fetch.",
		}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache writes by result.",
		}, []string{"result"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Completed expiry sweeps.",
		}),
		sweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Cache entries removed by expiry sweeps.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Entries the expiry sweep failed to inspect or delete.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a full expiry sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	m.registry.MustRegister(
		m.cacheLookups,
		m.upstreamFetches,
		m.coalesced,
		m.cacheWrites,
		m.sweepRuns,
		m.sweepRemoved,
		m.sweepFailures,
		m.sweepDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 返回私有 registry，便于测试直接 Gather。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 Prometheus 文本格式的 http.Handler。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCacheLookup 记录一次缓存查询。
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveUpstreamFetch 记录一次回源结果，outcome 取 upstream.Outcome 的字符串形式。
func (m *Metrics) ObserveUpstreamFetch(outcome string) {
	if m == nil {
		return
	}
	m.upstreamFetches.WithLabelValues(outcome).Inc()
}

// ObserveCoalesced 记录一次共享了进行中回源的请求。
func (m *Metrics) ObserveCoalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

// ObserveCacheWrite 记录一次缓存写入。
func (m *Metrics) ObserveCacheWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.cacheWrites.WithLabelValues(result).Inc()
}

// ObserveSweep 记录一次过期清理。
func (m *Metrics) ObserveSweep(removed, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepRemoved.Add(float64(removed))
	m.sweepFailures.Add(float64(failed))
	m.sweepDuration.Observe(elapsed.Seconds())
}
