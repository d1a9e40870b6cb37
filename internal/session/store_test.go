package session

import (
	"context"
	"testing"
	"time"

	"createfi_go/internal/domain"
	"createfi_go/internal/ledgertest"
)

func newTestStore(t *testing.T, ids ...domain.Identity) (*Store, *ConnectionManager, *SigningSessionManager) {
	t.Helper()
	conn := NewConnectionManager(&ledgertest.Dialer{Conn: ledgertest.NewConn()}, time.Second, nil)
	signing := NewSigningSessionManager(&ledgertest.Agent{IDs: ids}, "CreateFi", nil)
	return NewStore(conn, signing), conn, signing
}

func TestStore_SubscribeDeliversCurrent(t *testing.T) {
	s, _, _ := newTestStore(t, alice)

	var got []Snapshot
	unsub := s.Subscribe(func(snap Snapshot) { got = append(got, snap) })
	defer unsub()

	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1 immediate", len(got))
	}
	if got[0].ConnectionReady() || got[0].Ready() {
		t.Error("initial snapshot must not be ready")
	}
	if _, ok := got[0].SelectedIdentity(); ok {
		t.Error("initial snapshot has a selection")
	}
}

func TestStore_PublishesEveryChange(t *testing.T) {
	s, conn, signing := newTestStore(t, alice, bob)
	ctx := context.Background()

	var got []Snapshot
	unsub := s.Subscribe(func(snap Snapshot) { got = append(got, snap) })
	defer unsub()

	if err := conn.Connect(ctx, testEndpoint); err != nil {
		t.Fatal(err)
	}
	if _, err := signing.RequestIdentities(ctx); err != nil {
		t.Fatal(err)
	}
	if err := signing.SelectIdentity(bob); err != nil {
		t.Fatal(err)
	}

	if len(got) != 4 {
		t.Fatalf("deliveries = %d, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Version() <= got[i-1].Version() {
			t.Errorf("version not increasing: %d then %d", got[i-1].Version(), got[i].Version())
		}
	}

	last := got[3]
	if !last.Ready() || last.Endpoint() != testEndpoint {
		t.Errorf("last snapshot ready=%v endpoint=%q", last.Ready(), last.Endpoint())
	}
	if sel, _ := last.SelectedIdentity(); sel != bob {
		t.Errorf("selected = %v", sel)
	}
	if ids := last.Identities(); len(ids) != 2 {
		t.Errorf("identities = %v", ids)
	}

	// Earlier snapshots are immutable.
	if got[1].Ready() {
		t.Error("connect-only snapshot claims an identity")
	}
}

func TestStore_UnsubscribeStopsDelivery(t *testing.T) {
	s, conn, _ := newTestStore(t)

	var a, b int
	unsubA := s.Subscribe(func(Snapshot) { a++ })
	unsubB := s.Subscribe(func(Snapshot) { b++ })
	defer unsubB()

	unsubA()
	unsubA()
	if err := conn.Connect(context.Background(), testEndpoint); err != nil {
		t.Fatal(err)
	}

	if a != 1 {
		t.Errorf("unsubscribed callback ran %d times, want 1", a)
	}
	if b != 2 {
		t.Errorf("subscribed callback ran %d times, want 2", b)
	}
}

func TestStore_ReentrantCallback(t *testing.T) {
	s, conn, signing := newTestStore(t, alice)
	ctx := context.Background()
	if err := conn.Connect(ctx, testEndpoint); err != nil {
		t.Fatal(err)
	}

	var versions []uint64
	unsub := s.Subscribe(func(snap Snapshot) {
		versions = append(versions, snap.Version())
		if snap.ConnectionReady() && len(snap.Identities()) == 0 {
			if _, err := signing.RequestIdentities(ctx); err != nil {
				t.Errorf("RequestIdentities from callback: %v", err)
			}
		}
	})
	defer unsub()

	if len(versions) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(versions))
	}
	if versions[1] <= versions[0] {
		t.Errorf("versions out of order: %v", versions)
	}
	if !s.Snapshot().Ready() {
		t.Error("store not ready after discovery")
	}
}

func TestStore_DisconnectAndClear(t *testing.T) {
	s, conn, signing := newTestStore(t, alice)
	ctx := context.Background()
	if err := conn.Connect(ctx, testEndpoint); err != nil {
		t.Fatal(err)
	}
	if _, err := signing.RequestIdentities(ctx); err != nil {
		t.Fatal(err)
	}

	conn.Disconnect()
	signing.ClearSession()

	snap := s.Snapshot()
	if snap.ConnectionReady() || snap.Ready() || len(snap.Identities()) != 0 {
		t.Errorf("snapshot not cleared: ready=%v ids=%v", snap.ConnectionReady(), snap.Identities())
	}
}
