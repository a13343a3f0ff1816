package phoneauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram exposed by the engine.
type MetricID uint16

const (
	// MetricSendSuccess counts successfully dispatched challenges.
	MetricSendSuccess MetricID = iota
	// MetricSendFailure counts sends rejected by a provider.
	MetricSendFailure
	// MetricSendRejectedInvalidNumber counts sends stopped at
	// normalization, before any provider call.
	MetricSendRejectedInvalidNumber
	// MetricSendRejectedInFlight counts sends refused by the
	// single-flight guard.
	MetricSendRejectedInFlight
	// MetricSendRejectedCooldown counts sends refused by the resend
	// cooldown window.
	MetricSendRejectedCooldown
	// MetricSendRateLimited counts sends refused by the per-IP window.
	MetricSendRateLimited
	// MetricNativeFallback counts transparent native-plugin to
	// server-dispatch fallbacks.
	MetricNativeFallback
	// MetricConfirmSuccess counts successful code confirmations.
	MetricConfirmSuccess
	// MetricConfirmInvalidCode counts wrong-code submissions.
	MetricConfirmInvalidCode
	// MetricConfirmExpired counts confirmations against expired codes or
	// sessions.
	MetricConfirmExpired
	// MetricConfirmAttemptsExceeded counts challenges discarded at the
	// attempt cap.
	MetricConfirmAttemptsExceeded
	// MetricChallengeCancelled counts explicit cancellations.
	MetricChallengeCancelled
	// MetricReconcileCreated counts profiles created by reconciliation.
	MetricReconcileCreated
	// MetricReconcileUpdated counts profiles updated by reconciliation.
	MetricReconcileUpdated
	// MetricSignInSuccess counts completed password sign-ins.
	MetricSignInSuccess
	// MetricSignInFailure counts rejected password sign-ins.
	MetricSignInFailure
	// MetricSignInPhoneRequired counts sign-ins reverted because the
	// profile carries no phone number.
	MetricSignInPhoneRequired
	// MetricSignUpSuccess counts completed sign-ups.
	MetricSignUpSuccess
	// MetricSignUpFailure counts rejected sign-ups.
	MetricSignUpFailure
	// MetricGuestSession counts anonymous sign-ins.
	MetricGuestSession
	// MetricSignOut counts sign-outs.
	MetricSignOut
	// MetricAccountDeleted counts completed account deletions.
	MetricAccountDeleted
	// MetricAccountDeleteReauth counts deletions blocked pending
	// re-authentication.
	MetricAccountDeleteReauth
	// MetricConfirmLatency is the send-to-verified latency histogram.
	MetricConfirmLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so concurrent
// increments of different metrics do not contend.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the in-process counter set. All methods are safe for
// concurrent use; a nil *Metrics is a valid no-op receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a counter set per cfg. When cfg.Enabled is false all
// recording methods are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether recording is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histogram recording is active.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample. Only MetricConfirmLatency carries
// a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricConfirmLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricConfirmLatency].buckets[i])
		}
		s.Histograms[MetricConfirmLatency] = buckets
	}

	return s
}

// Confirm latency is dominated by the human typing the code, so the
// buckets run in seconds rather than the usual milliseconds.
func bucketIndex(d time.Duration) int {
	s := d.Seconds()

	switch {
	case s <= 1:
		return 0
	case s <= 5:
		return 1
	case s <= 15:
		return 2
	case s <= 30:
		return 3
	case s <= 60:
		return 4
	case s <= 120:
		return 5
	case s <= 300:
		return 6
	default:
		return 7
	}
}
