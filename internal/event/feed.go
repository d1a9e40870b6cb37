// Package event fans ledger runtime events out to independent subscribers
// over a single upstream subscription.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"createfi_go/internal/domain"
	"createfi_go/internal/infra"
)

// DefaultModules is the whitelist of runtime sections forwarded to consumers.
var DefaultModules = []string{"dex", "fiStablecoin", "createToken", "dao", "feeEngine"}

// ConnectionSource yields the ready ledger handle.
type ConnectionSource interface {
	Handle() (domain.LedgerConn, error)
}

// Handler receives one event. It must not unsubscribe itself synchronously.
type Handler func(domain.LedgerEvent)

type subscriber struct {
	modules map[string]struct{}
	fn      Handler

	// mu is held for the duration of a callback so unsubscribe can wait for it.
	mu     sync.Mutex
	closed bool
}

func (s *subscriber) deliver(ev domain.LedgerEvent, logger *slog.Logger) bool {
	if _, ok := s.modules[ev.Section]; !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event handler panicked", slog.String("event", ev.Section+"."+ev.Method), slog.Any("panic", r))
		}
	}()
	s.fn(ev)
	return true
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Feed owns the upstream event subscription, which is opened with the first
// subscriber and released with the last.
type Feed struct {
	conn    ConnectionSource
	allowed map[string]struct{}
	metrics *infra.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	stream domain.EventStream
}

// NewFeed creates a feed forwarding only the given modules; nil means
// DefaultModules.
func NewFeed(conn ConnectionSource, modules []string, metrics *infra.Metrics) *Feed {
	if modules == nil {
		modules = DefaultModules
	}
	if metrics == nil {
		metrics = infra.NewMetrics()
	}
	return &Feed{
		conn:    conn,
		allowed: toSet(modules),
		metrics: metrics,
		logger:  slog.Default().With("module", "event_feed"),
		subs:    make(map[uint64]*subscriber),
	}
}

// Subscribe registers fn for events of the given modules, intersected with
// the feed whitelist; nil means every whitelisted module. Events arrive in
// emission order. After unsubscribe returns no further call is made.
func (f *Feed) Subscribe(ctx context.Context, modules []string, fn Handler) (unsubscribe func(), err error) {
	wanted := f.allowed
	if modules != nil {
		wanted = make(map[string]struct{}, len(modules))
		for _, m := range modules {
			if _, ok := f.allowed[m]; ok {
				wanted[m] = struct{}{}
			}
		}
	}
	sub := &subscriber{modules: wanted, fn: fn}

	f.mu.Lock()
	if f.stream == nil {
		f.mu.Unlock()
		stream, err := f.open(ctx)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.installLocked(stream)
	}
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs[id] = sub
	f.metrics.SetSubscriptions(int32(len(f.subs)))

	var once sync.Once
	return func() {
		once.Do(func() { f.unsubscribe(id, sub) })
	}, nil
}

// Resume reopens the upstream subscription for existing subscribers after the
// connection was re-established. It is a no-op when already streaming or when
// nobody is subscribed.
func (f *Feed) Resume(ctx context.Context) error {
	f.mu.Lock()
	idle := f.stream != nil || len(f.subs) == 0
	f.mu.Unlock()
	if idle {
		return nil
	}

	stream, err := f.open(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		stream.Close()
		return nil
	}
	f.installLocked(stream)
	return nil
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close drops every subscriber and releases the upstream subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[uint64]*subscriber)
	stream := f.stream
	f.stream = nil
	f.metrics.SetSubscriptions(0)
	f.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	if stream != nil {
		stream.Close()
	}
}

// open subscribes upstream without holding f.mu.
func (f *Feed) open(ctx context.Context) (domain.EventStream, error) {
	h, err := f.conn.Handle()
	if err != nil {
		return nil, domain.ErrNotConnected
	}
	stream, err := h.SubscribeEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe events: %w", err)
	}
	return stream, nil
}

// installLocked makes stream the upstream unless a concurrent open already
// installed one, in which case stream is released.
func (f *Feed) installLocked(stream domain.EventStream) {
	if f.stream != nil {
		stream.Close()
		return
	}
	f.stream = stream
	go f.dispatch(stream)
	f.logger.Info("Event stream opened")
}

func (f *Feed) unsubscribe(id uint64, sub *subscriber) {
	sub.close()

	f.mu.Lock()
	delete(f.subs, id)
	f.metrics.SetSubscriptions(int32(len(f.subs)))
	var stream domain.EventStream
	if len(f.subs) == 0 && f.stream != nil {
		stream = f.stream
		f.stream = nil
	}
	f.mu.Unlock()

	if stream != nil {
		stream.Close()
		f.logger.Info("Event stream released")
	}
}

// dispatch is the single delivery loop for one upstream stream, so every
// subscriber sees events in emission order.
func (f *Feed) dispatch(stream domain.EventStream) {
	for ev := range stream.Events() {
		if _, ok := f.allowed[ev.Section]; !ok {
			continue
		}
		for _, sub := range f.snapshot() {
			if sub.deliver(ev, f.logger) {
				f.metrics.RecordEventDelivered()
			}
		}
	}

	f.mu.Lock()
	if f.stream == stream {
		f.stream = nil
		f.logger.Warn("Event stream ended; call Resume after reconnecting")
	}
	f.mu.Unlock()
}

// snapshot returns the current subscribers in subscription order.
func (f *Feed) snapshot() []*subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint64, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*subscriber, len(ids))
	for i, id := range ids {
		out[i] = f.subs[id]
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
