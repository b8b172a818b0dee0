package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single counter or histogram slot.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricRefreshRevoked
	MetricLogout
	MetricTokenPairIssued
	MetricFederatedLoginSuccess
	MetricFederatedLoginFailure
	MetricPrincipalCreated
	MetricSignUpSuccess
	MetricSignUpDuplicate
	MetricSignUpFailure
	MetricVerifyLatency

	// MetricIDCount is the number of defined metric IDs. New IDs are
	// appended above this marker.
	MetricIDCount
)

// HistogramBuckets is the fixed bucket count for latency histograms:
// ≤5ms, ≤10ms, ≤25ms, ≤50ms, ≤100ms, ≤250ms, ≤500ms, +Inf.
const HistogramBuckets = 8

var bucketBounds = [HistogramBuckets - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// Config controls which metric families are recorded.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// paddedCounter occupies a full cache line so adjacent counters do not
// false-share under concurrent increments.
type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// Metrics holds lock-free counters and optional latency histograms.
// The write path is allocation-free; Snapshot allocates.
type Metrics struct {
	enabled    bool
	latency    bool
	counters   [MetricIDCount]paddedCounter
	histograms [MetricIDCount][HistogramBuckets]paddedCounter
}

// Snapshot is a point-in-time deep copy of all recorded metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// New creates a [Metrics] instance. When cfg.Enabled is false every
// operation is a no-op and Snapshot returns empty maps.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatency,
	}
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// LatencyEnabled reports whether Observe records anything.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Observe records a duration into the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latency || id >= MetricIDCount {
		return
	}
	bucket := HistogramBuckets - 1
	for i, bound := range bucketBounds {
		if d <= bound {
			bucket = i
			break
		}
	}
	m.histograms[id][bucket].value.Add(1)
}

// Snapshot returns a deep copy of all non-zero counters and histograms.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		if v := m.counters[id].value.Load(); v > 0 {
			snap.Counters[id] = v
		}
	}

	if !m.latency {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		var buckets []uint64
		var total uint64
		for b := 0; b < HistogramBuckets; b++ {
			v := m.histograms[id][b].value.Load()
			total += v
			if buckets == nil && v > 0 {
				buckets = make([]uint64, HistogramBuckets)
			}
			if buckets != nil {
				buckets[b] = v
			}
		}
		if total > 0 {
			snap.Histograms[id] = buckets
		}
	}
	return snap
}
