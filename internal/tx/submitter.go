// Package tx submits signed state-changing calls and tracks their progress.
package tx

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"createfi_go/internal/domain"
	"createfi_go/internal/finance"
	"createfi_go/internal/infra"
)

// ConnectionSource yields the ready ledger handle.
type ConnectionSource interface {
	Handle() (domain.LedgerConn, error)
}

// IdentitySource yields the selected identity and the agent that signs for it.
type IdentitySource interface {
	Selected() (domain.Identity, bool)
	Signer() domain.SigningAgent
}

// Submitter builds, signs and submits one call per action. Nothing is retried.
type Submitter struct {
	conn     ConnectionSource
	identity IdentitySource
	calc     *finance.Calculator
	timeout  time.Duration
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewSubmitter creates a submitter. timeout bounds signing plus submission;
// zero means no timeout.
func NewSubmitter(conn ConnectionSource, identity IdentitySource, calc *finance.Calculator, timeout time.Duration, metrics *infra.Metrics) *Submitter {
	if calc == nil {
		calc = finance.NewCalculator()
	}
	if metrics == nil {
		metrics = infra.NewMetrics()
	}
	return &Submitter{
		conn:     conn,
		identity: identity,
		calc:     calc,
		timeout:  timeout,
		metrics:  metrics,
		logger:   slog.Default().With("module", "submitter"),
	}
}

// CreatePoolArgs opens a liquidity pool.
type CreatePoolArgs struct {
	TokenA     string
	TokenB     string
	LiquidityA decimal.Decimal
	LiquidityB decimal.Decimal
}

// SwapArgs trades against a pool. When MinAmountOut is not set it is derived
// from Quote (or the flat fee estimate) and Slippage (or the configured
// tolerance).
type SwapArgs struct {
	PoolID       uint32
	TokenIn      string
	AmountIn     decimal.Decimal
	Quote        decimal.Decimal
	Slippage     decimal.Decimal
	MinAmountOut decimal.NullDecimal
}

// CreateVaultArgs locks collateral in a new vault.
type CreateVaultArgs struct {
	CollateralType   string
	CollateralAmount decimal.Decimal
}

// MintArgs mints stablecoin against a vault.
type MintArgs struct {
	VaultID uint64
	Amount  decimal.Decimal
}

// StakeArgs locks governance tokens for a number of blocks.
type StakeArgs struct {
	Amount   decimal.Decimal
	Duration uint32
}

// ProposalArgs opens a governance proposal.
type ProposalArgs struct {
	Title       string
	Description string
	Action      string
}

// VoteArgs casts a weighted vote.
type VoteArgs struct {
	ProposalID uint32
	Support    bool
	Amount     decimal.Decimal
}

func (s *Submitter) CreatePool(ctx context.Context, a CreatePoolArgs) (*Pending, error) {
	return s.submit(ctx, domain.Call{
		Module: "dex",
		Method: "createPool",
		Args:   []any{a.TokenA, a.TokenB, planck(a.LiquidityA), planck(a.LiquidityB)},
	},
		requireText("tokenA", a.TokenA),
		requireText("tokenB", a.TokenB),
		requirePositive("liquidityA", a.LiquidityA),
		requirePositive("liquidityB", a.LiquidityB),
	)
}

func (s *Submitter) Swap(ctx context.Context, a SwapArgs) (*Pending, error) {
	minOut := s.minAmountOut(a)
	return s.submit(ctx, domain.Call{
		Module: "dex",
		Method: "ammTrade",
		Args:   []any{a.PoolID, a.TokenIn, planck(a.AmountIn), planck(minOut)},
	},
		requireText("tokenIn", a.TokenIn),
		requirePositive("amountIn", a.AmountIn),
		requireNonNegative("minAmountOut", minOut),
	)
}

func (s *Submitter) minAmountOut(a SwapArgs) decimal.Decimal {
	if a.MinAmountOut.Valid {
		return a.MinAmountOut.Decimal
	}
	quote := a.Quote
	if quote.IsZero() {
		quote = finance.SwapQuote(a.AmountIn, s.calc.FeeRate)
	}
	slippage := a.Slippage
	if slippage.IsZero() {
		slippage = s.calc.SlippageTolerance
	}
	return finance.MinAmountOut(quote, slippage)
}

func (s *Submitter) CreateVault(ctx context.Context, a CreateVaultArgs) (*Pending, error) {
	return s.submit(ctx, domain.Call{
		Module: "fiStablecoin",
		Method: "createVault",
		Args:   []any{a.CollateralType, planck(a.CollateralAmount)},
	},
		requireText("collateralType", a.CollateralType),
		requirePositive("collateralAmount", a.CollateralAmount),
	)
}

func (s *Submitter) MintStablecoin(ctx context.Context, a MintArgs) (*Pending, error) {
	return s.submit(ctx, domain.Call{
		Module: "fiStablecoin",
		Method: "mintFi",
		Args:   []any{a.VaultID, planck(a.Amount)},
	}, requirePositive("amount", a.Amount))
}

func (s *Submitter) Stake(ctx context.Context, a StakeArgs) (*Pending, error) {
	return s.submit(ctx, domain.Call{
		Module: "createToken",
		Method: "stake",
		Args:   []any{planck(a.Amount), a.Duration},
	}, requirePositive("amount", a.Amount))
}

func (s *Submitter) CreateProposal(ctx context.Context, a ProposalArgs) (*Pending, error) {
	return s.submit(ctx, domain.Call{
		Module: "dao",
		Method: "createProposal",
		Args:   []any{a.Title, a.Description, a.Action},
	},
		requireText("title", a.Title),
		requireText("description", a.Description),
	)
}

func (s *Submitter) Vote(ctx context.Context, a VoteArgs) (*Pending, error) {
	return s.submit(ctx, domain.Call{
		Module: "dao",
		Method: "vote",
		Args:   []any{a.ProposalID, a.Support, planck(a.Amount)},
	}, requirePositive("amount", a.Amount))
}

// submit checks preconditions and argument checks, then signs and submits
// exactly once.
func (s *Submitter) submit(ctx context.Context, call domain.Call, checks ...error) (*Pending, error) {
	handle, err := s.conn.Handle()
	if err != nil {
		return nil, domain.ErrNotConnected
	}
	who, ok := s.identity.Selected()
	if !ok {
		return nil, domain.NewError(domain.KindNotConnected, nil, "no identity selected")
	}
	agent := s.identity.Signer()
	if agent == nil {
		return nil, domain.ErrNoSigningAgent
	}
	for _, err := range checks {
		if err != nil {
			return nil, err
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	signed, err := agent.Sign(ctx, who.Address, call)
	if err != nil {
		return nil, s.fail(ctx, call, "sign", err)
	}
	watch, err := handle.SubmitAndWatch(ctx, signed)
	if err != nil {
		return nil, s.fail(ctx, call, "submit", err)
	}

	p := newPending(call, time.Now())
	s.metrics.RecordSubmitted()
	s.logger.Info("Submitted",
		slog.String("call", call.Name()),
		slog.String("id", p.ID.String()),
		slog.String("signer", who.Address),
	)
	go p.follow(watch, s.metrics, s.logger)
	return p, nil
}

func (s *Submitter) fail(ctx context.Context, call domain.Call, op string, err error) error {
	s.metrics.RecordError()
	var out error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out = domain.NewError(domain.KindTimeout, err, "%s %s timed out", op, call.Name())
	} else {
		out = domain.NewError(domain.KindSubmissionFailed, err, "%s %s: %v", op, call.Name(), err)
	}
	s.logger.Error("❌ Submission failed", slog.String("call", call.Name()), slog.Any("error", out))
	return out
}

// planck encodes an amount as the ledger's fixed-point integer string.
func planck(d decimal.Decimal) string {
	return domain.ToPlanck(d).String()
}

func malformed(reason string) error {
	return domain.NewError(domain.KindSubmissionFailed, nil, "malformed call: %s", reason)
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return malformed(field + " is required")
	}
	return nil
}

func requirePositive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return malformed(field + " must be positive")
	}
	return nil
}

func requireNonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return malformed(field + " must not be negative")
	}
	return nil
}
