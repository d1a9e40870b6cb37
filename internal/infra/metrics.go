package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	txSubmitted     atomic.Uint64
	txFinalized     atomic.Uint64
	txRejected      atomic.Uint64
	eventsDelivered atomic.Uint64
	errorsTotal     atomic.Uint64

	// Submission-to-inclusion latency
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections   atomic.Int32
	activeSubscriptions atomic.Int32
}

// NewMetrics returns a zeroed metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSubmitted records a transaction accepted by the ledger.
func (m *Metrics) RecordSubmitted() {
	m.txSubmitted.Add(1)
}

// RecordInBlock records how long inclusion took.
func (m *Metrics) RecordInBlock(latency time.Duration) {
	m.latencySumNs.Add(int64(latency))
	m.latencyCount.Add(1)
}

// RecordFinalized records a finalized transaction.
func (m *Metrics) RecordFinalized() {
	m.txFinalized.Add(1)
}

// RecordRejected records a rejected transaction.
func (m *Metrics) RecordRejected() {
	m.txRejected.Add(1)
}

// RecordEventDelivered records one event handed to one subscriber.
func (m *Metrics) RecordEventDelivered() {
	m.eventsDelivered.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// SetSubscriptions sets the current event subscriber count.
func (m *Metrics) SetSubscriptions(count int32) {
	m.activeSubscriptions.Store(count)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TxSubmitted         uint64
	TxFinalized         uint64
	TxRejected          uint64
	EventsDelivered     uint64
	ErrorsTotal         uint64
	AvgInclusionNs      int64
	ActiveConnections   int32
	ActiveSubscriptions int32
	Timestamp           time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TxSubmitted:         m.txSubmitted.Load(),
		TxFinalized:         m.txFinalized.Load(),
		TxRejected:          m.txRejected.Load(),
		EventsDelivered:     m.eventsDelivered.Load(),
		ErrorsTotal:         m.errorsTotal.Load(),
		AvgInclusionNs:      avgLatency,
		ActiveConnections:   m.activeConnections.Load(),
		ActiveSubscriptions: m.activeSubscriptions.Load(),
		Timestamp:           time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.txSubmitted.Store(0)
	m.txFinalized.Store(0)
	m.txRejected.Store(0)
	m.eventsDelivered.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.activeSubscriptions.Store(0)
}
