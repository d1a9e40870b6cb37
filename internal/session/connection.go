// Package session owns the ledger connection, the signing session and the
// aggregated snapshot that consumers subscribe to.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"createfi_go/internal/domain"
	"createfi_go/internal/infra"
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Ready
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	default:
		return "disconnected"
	}
}

type connectAttempt struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// ConnectionManager owns the single logical connection to a ledger endpoint.
// There is no automatic reconnection.
type ConnectionManager struct {
	dialer   domain.LedgerDialer
	timeout  time.Duration
	metrics  *infra.Metrics
	logger   *slog.Logger
	onChange func()

	mu       sync.Mutex
	state    ConnState
	endpoint string
	conn     domain.LedgerConn
	attempt  *connectAttempt
}

// NewConnectionManager creates a manager. timeout bounds each connect attempt;
// zero means no timeout.
func NewConnectionManager(dialer domain.LedgerDialer, timeout time.Duration, metrics *infra.Metrics) *ConnectionManager {
	if metrics == nil {
		metrics = infra.NewMetrics()
	}
	return &ConnectionManager{
		dialer:   dialer,
		timeout:  timeout,
		metrics:  metrics,
		logger:   slog.Default().With("module", "connection"),
		onChange: func() {},
	}
}

// Connect establishes the connection. It succeeds immediately when already
// ready; concurrent callers share one in-flight attempt.
func (m *ConnectionManager) Connect(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	if m.state == Ready {
		m.mu.Unlock()
		return nil
	}
	if a := m.attempt; a != nil {
		m.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.NewError(domain.KindTimeout, ctx.Err(), "connect to %s timed out", endpoint)
			}
			return domain.NewError(domain.KindNotConnected, ctx.Err(), "connect to %s cancelled", endpoint)
		}
	}

	var (
		dialCtx context.Context
		cancel  context.CancelFunc
	)
	if m.timeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, m.timeout)
	} else {
		dialCtx, cancel = context.WithCancel(ctx)
	}
	a := &connectAttempt{done: make(chan struct{}), cancel: cancel}
	m.attempt = a
	m.state = Connecting
	m.mu.Unlock()

	m.logger.Info("Connecting to ledger", slog.String("endpoint", endpoint))
	conn, err := m.dialer.Dial(dialCtx, endpoint)
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	changed := false
	m.mu.Lock()
	switch {
	case m.attempt != a:
		// Disconnect ran while dialing.
		if conn != nil {
			conn.Close()
		}
		a.err = domain.NewError(domain.KindNotConnected, err, "connect to %s cancelled", endpoint)
	case err != nil:
		m.state = Disconnected
		if timedOut {
			a.err = domain.NewError(domain.KindTimeout, err, "connect to %s timed out after %s", endpoint, m.timeout)
		} else {
			a.err = domain.NewError(domain.KindNotConnected, err, "connect to %s failed", endpoint)
		}
	default:
		m.state = Ready
		m.conn = conn
		m.endpoint = endpoint
		changed = true
		go m.watch(conn)
	}
	if m.attempt == a {
		m.attempt = nil
	}
	close(a.done)
	m.mu.Unlock()

	if a.err != nil {
		m.metrics.RecordError()
		m.logger.Error("❌ Failed to connect to ledger", slog.String("endpoint", endpoint), slog.Any("error", a.err))
		return a.err
	}

	m.metrics.IncrementConnections()
	m.logger.Info("✅ Connected to ledger", slog.String("endpoint", endpoint))
	if changed {
		m.onChange()
	}
	return nil
}

// Disconnect releases the connection. It is a no-op when not connected.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	if m.state == Disconnected && m.attempt == nil {
		m.mu.Unlock()
		return
	}
	if m.attempt != nil {
		m.attempt.cancel()
		m.attempt = nil
	}
	wasReady := m.state == Ready
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Warn("Close failed", slog.Any("error", err))
		}
		m.metrics.DecrementConnections()
	}
	if wasReady {
		m.logger.Info("Disconnected from ledger")
		m.onChange()
	}
}

// watch marks the manager disconnected if the transport drops on its own.
func (m *ConnectionManager) watch(conn domain.LedgerConn) {
	<-conn.Done()

	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = Disconnected
	m.mu.Unlock()

	conn.Close()
	m.metrics.DecrementConnections()
	m.logger.Warn("Ledger connection lost; reconnect is caller-initiated")
	m.onChange()
}

// Handle returns the ready connection for read-only use.
func (m *ConnectionManager) Handle() (domain.LedgerConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready {
		return nil, domain.ErrNotConnected
	}
	return m.conn, nil
}

// Ready reports whether the connection is usable.
func (m *ConnectionManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Ready
}

// State returns the lifecycle state.
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Endpoint returns the connected endpoint, or "" when not ready.
func (m *ConnectionManager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready {
		return ""
	}
	return m.endpoint
}
