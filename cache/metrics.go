package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the code cache's hit/miss counters and compile-duration
// histogram, so cache effectiveness is an observable metric rather than
// a one-off timing assertion in a test.
type Metrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	compileMS *prometheus.HistogramVec
}

// NewMetrics creates cache metrics and registers them against reg. Pass
// nil to leave the metrics unregistered (safe for tests that don't care
// about global registry collisions).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglang_code_cache_hits_total",
			Help: "Code cache lookups served without compiling, by language.",
		}, []string{"language", "negative"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglang_code_cache_misses_total",
			Help: "Code cache lookups that triggered a compile, by language.",
		}, []string{"language", "failed"}),
		compileMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polyglang_code_cache_compile_duration_ms",
			Help:    "Compile duration in milliseconds, by language.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"language"}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.compileMS)
	}
	return m
}

func (m *Metrics) RecordHit(language string, negative bool) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(language, boolLabel(negative)).Inc()
}

func (m *Metrics) RecordMiss(language string, failed bool) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(language, boolLabel(failed)).Inc()
}

func (m *Metrics) ObserveCompile(language string, d time.Duration) {
	if m == nil {
		return
	}
	m.compileMS.WithLabelValues(language).Observe(float64(d.Milliseconds()))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
