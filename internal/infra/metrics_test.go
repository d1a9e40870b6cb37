package infra

import (
	"testing"
	"time"
)

func TestMetrics_Transactions(t *testing.T) {
	m := NewMetrics()

	m.RecordSubmitted()
	m.RecordSubmitted()
	m.RecordSubmitted()
	m.RecordInBlock(1 * time.Second)
	m.RecordInBlock(3 * time.Second)
	m.RecordFinalized()
	m.RecordRejected()

	snap := m.Snapshot()

	if snap.TxSubmitted != 3 {
		t.Errorf("Expected 3 submitted, got %d", snap.TxSubmitted)
	}
	if snap.TxFinalized != 1 || snap.TxRejected != 1 {
		t.Errorf("Expected 1 finalized and 1 rejected, got %d/%d", snap.TxFinalized, snap.TxRejected)
	}

	// Average inclusion: (1s + 3s) / 2 = 2s
	if snap.AvgInclusionNs != int64(2*time.Second) {
		t.Errorf("Expected avg inclusion 2s, got %d", snap.AvgInclusionNs)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := NewMetrics()

	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 1 {
		t.Errorf("Expected 1 connection, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()

	m.RecordSubmitted()
	m.RecordError()
	m.RecordEventDelivered()
	m.SetSubscriptions(4)
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.TxSubmitted != 0 {
		t.Error("Expected 0 submissions after reset")
	}
	if snap.ErrorsTotal != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.EventsDelivered != 0 || snap.ActiveSubscriptions != 0 {
		t.Error("Expected event counters cleared after reset")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}
