package session

import (
	"context"
	"log/slog"
	"sync"

	"createfi_go/internal/domain"
)

// SigningSessionManager owns the discovered identities and the current selection.
type SigningSessionManager struct {
	agent      domain.SigningAgent
	appName    string
	selections domain.SelectionStore
	logger     *slog.Logger
	onChange   func()

	mu         sync.RWMutex
	identities []domain.Identity
	selected   *domain.Identity
}

// NewSigningSessionManager creates a manager. agent may be nil when no signing
// agent is installed; selections may be nil to disable persistence.
func NewSigningSessionManager(agent domain.SigningAgent, appName string, selections domain.SelectionStore) *SigningSessionManager {
	return &SigningSessionManager{
		agent:      agent,
		appName:    appName,
		selections: selections,
		logger:     slog.Default().With("module", "signing_session"),
		onChange:   func() {},
	}
}

// RequestIdentities runs discovery through the signing agent and replaces the
// discovered set. A still-present selection is kept; otherwise the remembered
// identity is reselected, falling back to the first one. An empty discovery
// drops the previous set and selection.
func (m *SigningSessionManager) RequestIdentities(ctx context.Context) ([]domain.Identity, error) {
	if m.agent == nil {
		return nil, domain.ErrNoSigningAgent
	}
	if err := m.agent.Enable(ctx, m.appName); err != nil {
		return nil, asAgentError(err, "enable signing agent")
	}
	ids, err := m.agent.Identities(ctx)
	if err != nil {
		return nil, asAgentError(err, "list identities")
	}
	if len(ids) == 0 {
		m.mu.Lock()
		had := m.identities != nil || m.selected != nil
		m.identities = nil
		m.selected = nil
		m.mu.Unlock()
		if had {
			m.onChange()
		}
		return nil, domain.ErrNoIdentities
	}

	remembered := m.rememberedAddress()

	m.mu.Lock()
	m.identities = append([]domain.Identity(nil), ids...)
	prev := m.selected
	m.selected = nil
	if prev != nil {
		m.selected = m.lookup(prev.Address)
	}
	if m.selected == nil && remembered != "" {
		m.selected = m.lookup(remembered)
	}
	if m.selected == nil {
		first := m.identities[0]
		m.selected = &first
	}
	selected := *m.selected
	out := append([]domain.Identity(nil), m.identities...)
	m.mu.Unlock()

	m.remember(selected.Address)
	m.logger.Info("✅ Wallet connected", slog.String("account", selected.DisplayName), slog.Int("identities", len(out)))
	m.onChange()
	return out, nil
}

// SelectIdentity sets the current selection, which must be a discovered identity.
func (m *SigningSessionManager) SelectIdentity(identity domain.Identity) error {
	m.mu.Lock()
	found := m.lookup(identity.Address)
	if found == nil {
		m.mu.Unlock()
		return domain.NewError(domain.KindUnknownIdentity, nil, "identity %s not in discovered set", identity.Address)
	}
	m.selected = found
	m.mu.Unlock()

	m.remember(found.Address)
	m.onChange()
	return nil
}

// ClearSession drops the discovered identities and the selection. The
// remembered address survives so the next discovery can reselect it.
func (m *SigningSessionManager) ClearSession() {
	m.mu.Lock()
	if m.identities == nil && m.selected == nil {
		m.mu.Unlock()
		return
	}
	m.identities = nil
	m.selected = nil
	m.mu.Unlock()

	m.onChange()
}

// Identities returns a copy of the discovered set.
func (m *SigningSessionManager) Identities() []domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Identity(nil), m.identities...)
}

// Selected returns the selected identity, if any.
func (m *SigningSessionManager) Selected() (domain.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.selected == nil {
		return domain.Identity{}, false
	}
	return *m.selected, true
}

// Signer returns the agent used to sign calls.
func (m *SigningSessionManager) Signer() domain.SigningAgent {
	return m.agent
}

// lookup must be called with the lock held.
func (m *SigningSessionManager) lookup(address string) *domain.Identity {
	for i := range m.identities {
		if m.identities[i].Address == address {
			id := m.identities[i]
			return &id
		}
	}
	return nil
}

func (m *SigningSessionManager) rememberedAddress() string {
	if m.selections == nil {
		return ""
	}
	addr, err := m.selections.LoadSelectedAddress()
	if err != nil {
		m.logger.Warn("Failed to load remembered identity", slog.Any("error", err))
		return ""
	}
	return addr
}

func (m *SigningSessionManager) remember(address string) {
	if m.selections == nil {
		return
	}
	if err := m.selections.SaveSelectedAddress(address); err != nil {
		m.logger.Warn("Failed to remember identity", slog.String("address", address), slog.Any("error", err))
	}
}

func asAgentError(err error, op string) error {
	switch domain.KindOf(err) {
	case domain.KindNoSigningAgent, domain.KindNoIdentities:
		return err
	default:
		return domain.NewError(domain.KindNoSigningAgent, err, "%s: %v", op, err)
	}
}
