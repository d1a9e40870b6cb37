// Package query reads ledger storage and decodes it into display records.
// Nothing is cached; every call goes to the ledger.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"createfi_go/internal/domain"
	"createfi_go/internal/finance"
)

// ConnectionSource yields the ready ledger handle.
type ConnectionSource interface {
	Handle() (domain.LedgerConn, error)
}

// Service runs read-only storage queries.
type Service struct {
	conn   ConnectionSource
	calc   *finance.Calculator
	logger *slog.Logger
}

func NewService(conn ConnectionSource, calc *finance.Calculator) *Service {
	if calc == nil {
		calc = finance.NewCalculator()
	}
	return &Service{
		conn:   conn,
		calc:   calc,
		logger: slog.Default().With("module", "query"),
	}
}

// Balance returns the account balance of address.
func (s *Service) Balance(ctx context.Context, address string) (domain.Balance, error) {
	h, err := s.handle()
	if err != nil {
		return domain.Balance{}, err
	}
	raw, err := h.Account(ctx, address)
	if err != nil {
		return domain.Balance{}, s.readErr(err, "system.account")
	}
	return decodeBalance(address, raw)
}

// ListPools returns every dex pool.
func (s *Service) ListPools(ctx context.Context) ([]domain.Pool, error) {
	entries, err := s.entries(ctx, "dex", "pools")
	if err != nil {
		return nil, err
	}
	pools := make([]domain.Pool, 0, len(entries))
	for i, e := range entries {
		p, err := decodePool(i, e)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// ListVaults returns the vaults owned by owner with their derived risk fields.
func (s *Service) ListVaults(ctx context.Context, owner string) ([]domain.Vault, error) {
	entries, err := s.entries(ctx, "fiStablecoin", "vaults")
	if err != nil {
		return nil, err
	}
	vaults := make([]domain.Vault, 0)
	for i, e := range entries {
		v, err := decodeVault(i, e)
		if err != nil {
			return nil, err
		}
		if v.Owner != owner {
			continue
		}
		vaults = append(vaults, s.calc.Vault(v))
	}
	return vaults, nil
}

// ListProposals returns every governance proposal with vote percentages.
func (s *Service) ListProposals(ctx context.Context) ([]domain.Proposal, error) {
	entries, err := s.entries(ctx, "dao", "proposals")
	if err != nil {
		return nil, err
	}
	proposals := make([]domain.Proposal, 0, len(entries))
	for i, e := range entries {
		p, err := decodeProposal(i, e)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, s.calc.Proposal(p))
	}
	return proposals, nil
}

// View is one consistent read of everything a dashboard shows.
type View struct {
	Owner     string
	Balance   domain.Balance
	Pools     []domain.Pool
	Vaults    []domain.Vault
	Proposals []domain.Proposal
}

// Refresh runs all queries concurrently. Owner-scoped reads are skipped when
// owner is empty. The first failure cancels the rest.
func (s *Service) Refresh(ctx context.Context, owner string) (*View, error) {
	if _, err := s.handle(); err != nil {
		return nil, err
	}

	v := &View{Owner: owner}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pools, err := s.ListPools(gctx)
		v.Pools = pools
		return err
	})
	g.Go(func() error {
		proposals, err := s.ListProposals(gctx)
		v.Proposals = proposals
		return err
	})
	if owner != "" {
		g.Go(func() error {
			b, err := s.Balance(gctx, owner)
			v.Balance = b
			return err
		})
		g.Go(func() error {
			vaults, err := s.ListVaults(gctx, owner)
			v.Vaults = vaults
			return err
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("Refresh failed", slog.String("owner", owner), slog.Any("error", err))
		return nil, err
	}
	return v, nil
}

func (s *Service) handle() (domain.LedgerConn, error) {
	h, err := s.conn.Handle()
	if err != nil {
		return nil, domain.ErrNotConnected
	}
	return h, nil
}

func (s *Service) entries(ctx context.Context, module, item string) ([]domain.StorageEntry, error) {
	h, err := s.handle()
	if err != nil {
		return nil, err
	}
	entries, err := h.StorageEntries(ctx, module, item)
	if err != nil {
		return nil, s.readErr(err, module+"."+item)
	}
	return entries, nil
}

// readErr classifies a failed read. A closed or broken transport means the
// connection is gone; anything else is passed through.
func (s *Service) readErr(err error, what string) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	var netErr *domain.NetworkError
	if errors.Is(err, domain.ErrConnectionClosed) || errors.As(err, &netErr) {
		return domain.NewError(domain.KindNotConnected, err, "read %s: connection closed", what)
	}
	return fmt.Errorf("read %s: %w", what, err)
}
