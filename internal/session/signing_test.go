package session

import (
	"context"
	"errors"
	"testing"

	"createfi_go/internal/domain"
	"createfi_go/internal/ledgertest"
)

var (
	alice = domain.Identity{Address: "0xa11ce", DisplayName: "Alice"}
	bob   = domain.Identity{Address: "0xb0b", DisplayName: "Bob"}
	carol = domain.Identity{Address: "0xca401", DisplayName: "Carol"}
)

func TestSigningSession_RequestIdentities(t *testing.T) {
	agent := &ledgertest.Agent{IDs: []domain.Identity{alice, bob}}
	sel := &ledgertest.Selections{}
	m := NewSigningSessionManager(agent, "CreateFi", sel)

	ids, err := m.RequestIdentities(context.Background())
	if err != nil {
		t.Fatalf("RequestIdentities: %v", err)
	}
	if len(ids) != 2 || ids[0] != alice || ids[1] != bob {
		t.Errorf("identities = %v", ids)
	}
	got, ok := m.Selected()
	if !ok || got != alice {
		t.Errorf("Selected() = %v, %v; want first identity", got, ok)
	}
	if addr, _ := sel.LoadSelectedAddress(); addr != alice.Address {
		t.Errorf("remembered = %q", addr)
	}
}

func TestSigningSession_RequestIdentitiesFailures(t *testing.T) {
	tests := []struct {
		name  string
		agent domain.SigningAgent
		want  error
	}{
		{"no agent", nil, domain.ErrNoSigningAgent},
		{"agent refuses", &ledgertest.Agent{EnableErr: ledgertest.ErrRefused}, domain.ErrNoSigningAgent},
		{"no accounts", &ledgertest.Agent{}, domain.ErrNoIdentities},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSigningSessionManager(tt.agent, "CreateFi", nil)
			changes := 0
			m.onChange = func() { changes++ }

			_, err := m.RequestIdentities(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(m.Identities()) != 0 {
				t.Error("identities changed on failure")
			}
			if _, ok := m.Selected(); ok {
				t.Error("selection changed on failure")
			}
			if changes != 0 {
				t.Errorf("failure published %d changes", changes)
			}
		})
	}
}

func TestSigningSession_RemembersSelection(t *testing.T) {
	sel := &ledgertest.Selections{}
	sel.SaveSelectedAddress(bob.Address)
	m := NewSigningSessionManager(&ledgertest.Agent{IDs: []domain.Identity{alice, bob}}, "CreateFi", sel)

	if _, err := m.RequestIdentities(context.Background()); err != nil {
		t.Fatalf("RequestIdentities: %v", err)
	}
	if got, _ := m.Selected(); got != bob {
		t.Errorf("Selected() = %v, want remembered %v", got, bob)
	}
}

func TestSigningSession_RediscoveryKeepsSelection(t *testing.T) {
	agent := &ledgertest.Agent{IDs: []domain.Identity{alice, bob}}
	m := NewSigningSessionManager(agent, "CreateFi", nil)
	ctx := context.Background()

	if _, err := m.RequestIdentities(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.SelectIdentity(bob); err != nil {
		t.Fatal(err)
	}

	agent.IDs = []domain.Identity{carol, bob}
	if _, err := m.RequestIdentities(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Selected(); got != bob {
		t.Errorf("Selected() = %v, want %v kept", got, bob)
	}

	agent.IDs = []domain.Identity{carol}
	if _, err := m.RequestIdentities(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Selected(); got != carol {
		t.Errorf("Selected() = %v, want fallback %v", got, carol)
	}
}

func TestSigningSession_EmptyRediscoveryDropsSelection(t *testing.T) {
	agent := &ledgertest.Agent{IDs: []domain.Identity{alice, bob}}
	m := NewSigningSessionManager(agent, "CreateFi", nil)
	ctx := context.Background()

	if _, err := m.RequestIdentities(ctx); err != nil {
		t.Fatal(err)
	}
	changes := 0
	m.onChange = func() { changes++ }

	agent.IDs = nil
	if _, err := m.RequestIdentities(ctx); !errors.Is(err, domain.ErrNoIdentities) {
		t.Fatalf("err = %v, want NoIdentities", err)
	}
	if ids := m.Identities(); len(ids) != 0 {
		t.Errorf("identities = %v, want none", ids)
	}
	if got, ok := m.Selected(); ok {
		t.Errorf("Selected() = %v, want none", got)
	}
	if changes != 1 {
		t.Errorf("changes = %d, want 1", changes)
	}
}

func TestSigningSession_SelectIdentity(t *testing.T) {
	sel := &ledgertest.Selections{}
	m := NewSigningSessionManager(&ledgertest.Agent{IDs: []domain.Identity{alice, bob}}, "CreateFi", sel)
	if _, err := m.RequestIdentities(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := m.SelectIdentity(carol); !errors.Is(err, domain.ErrUnknownIdentity) {
		t.Fatalf("select undiscovered: err = %v", err)
	}
	if got, _ := m.Selected(); got != alice {
		t.Errorf("selection changed after rejected select: %v", got)
	}

	if err := m.SelectIdentity(bob); err != nil {
		t.Fatalf("SelectIdentity: %v", err)
	}
	if got, _ := m.Selected(); got != bob {
		t.Errorf("Selected() = %v", got)
	}
	if addr, _ := sel.LoadSelectedAddress(); addr != bob.Address {
		t.Errorf("remembered = %q", addr)
	}
}

func TestSigningSession_ClearSession(t *testing.T) {
	sel := &ledgertest.Selections{}
	m := NewSigningSessionManager(&ledgertest.Agent{IDs: []domain.Identity{alice}}, "CreateFi", sel)
	changes := 0
	m.onChange = func() { changes++ }

	m.ClearSession()
	if changes != 0 {
		t.Fatal("clearing an empty session published a change")
	}

	if _, err := m.RequestIdentities(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.ClearSession()

	if len(m.Identities()) != 0 {
		t.Error("identities survive ClearSession")
	}
	if _, ok := m.Selected(); ok {
		t.Error("selection survives ClearSession")
	}
	if addr, _ := sel.LoadSelectedAddress(); addr != alice.Address {
		t.Errorf("remembered address lost: %q", addr)
	}
	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
}
