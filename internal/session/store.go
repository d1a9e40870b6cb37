package session

import (
	"sort"
	"sync"
	"sync/atomic"

	"createfi_go/internal/domain"
)

// Snapshot is the immutable state broadcast to subscribers.
type Snapshot struct {
	version    uint64
	ready      bool
	endpoint   string
	identities []domain.Identity
	selected   *domain.Identity
}

// Version increases with every published snapshot.
func (s Snapshot) Version() uint64 { return s.version }

// ConnectionReady reports whether the ledger connection is ready.
func (s Snapshot) ConnectionReady() bool { return s.ready }

// Endpoint is the connected endpoint, or "".
func (s Snapshot) Endpoint() string { return s.endpoint }

// Identities returns a copy of the discovered identities, in discovery order.
func (s Snapshot) Identities() []domain.Identity {
	return append([]domain.Identity(nil), s.identities...)
}

// SelectedIdentity returns the selected identity, if any.
func (s Snapshot) SelectedIdentity() (domain.Identity, bool) {
	if s.selected == nil {
		return domain.Identity{}, false
	}
	return *s.selected, true
}

// Ready reports whether actions can be enabled: connected with a selected identity.
func (s Snapshot) Ready() bool {
	return s.ready && s.selected != nil
}

type subscriber struct {
	fn     func(Snapshot)
	active atomic.Bool
	last   atomic.Uint64
}

// deliver hands snap to the subscriber at most once and never after an older one.
func (sub *subscriber) deliver(snap Snapshot) {
	for {
		if !sub.active.Load() {
			return
		}
		last := sub.last.Load()
		if snap.version <= last {
			return
		}
		if sub.last.CompareAndSwap(last, snap.version) {
			break
		}
	}
	sub.fn(snap)
}

// Store aggregates the connection and signing session into one snapshot and
// fans it out. Callbacks run synchronously on the goroutine of the mutating call.
type Store struct {
	conn    *ConnectionManager
	signing *SigningSessionManager

	mu      sync.Mutex
	current Snapshot
	subs    map[uint64]*subscriber
	nextID  uint64
}

// NewStore wires the store as the change observer of both managers.
func NewStore(conn *ConnectionManager, signing *SigningSessionManager) *Store {
	s := &Store{
		conn:    conn,
		signing: signing,
		subs:    make(map[uint64]*subscriber),
	}
	s.current = s.compute(1)
	conn.onChange = s.publish
	signing.onChange = s.publish
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe calls fn with the current snapshot before returning, then on every
// change. The returned function stops further delivery.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	sub := &subscriber{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	snap := s.current
	s.mu.Unlock()

	sub.deliver(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// publish recomputes the snapshot once and fans it out to current subscribers
// in subscription order.
func (s *Store) publish() {
	s.mu.Lock()
	snap := s.compute(s.current.version + 1)
	s.current = snap
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	targets := make([]*subscriber, len(ids))
	for i, id := range ids {
		targets[i] = s.subs[id]
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(snap)
	}
}

func (s *Store) compute(version uint64) Snapshot {
	snap := Snapshot{
		version:    version,
		ready:      s.conn.Ready(),
		endpoint:   s.conn.Endpoint(),
		identities: s.signing.Identities(),
	}
	if id, ok := s.signing.Selected(); ok {
		snap.selected = &id
	}
	return snap
}
