// Package finance derives display numbers from raw ledger values. Everything
// here is pure and synchronous.
package finance

import (
	"github.com/shopspring/decimal"

	"createfi_go/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)

	safeAbove    = decimal.NewFromInt(200)
	warningAbove = decimal.NewFromInt(150)
)

// Defaults used when configuration leaves a value unset.
var (
	DefaultLiquidationBuffer = decimal.RequireFromString("0.9")
	DefaultFeeRate           = decimal.RequireFromString("0.003")
	DefaultSlippageTolerance = decimal.RequireFromString("0.005")
)

// DefaultAMMFeeBps matches the dex pallet's trading fee.
const DefaultAMMFeeBps = 30

// Calculator carries the configured constants.
type Calculator struct {
	LiquidationBuffer decimal.Decimal
	FeeRate           decimal.Decimal
	SlippageTolerance decimal.Decimal
	AMMFeeBps         int64
}

// NewCalculator creates a calculator with the default constants.
func NewCalculator() *Calculator {
	return &Calculator{
		LiquidationBuffer: DefaultLiquidationBuffer,
		FeeRate:           DefaultFeeRate,
		SlippageTolerance: DefaultSlippageTolerance,
		AMMFeeBps:         DefaultAMMFeeBps,
	}
}

// CollateralizationRatio = collateral / debt × 100, or 0 when there is no debt.
func CollateralizationRatio(collateral, debt decimal.Decimal) decimal.Decimal {
	if !debt.IsPositive() {
		return decimal.Zero
	}
	return collateral.Div(debt).Mul(hundred)
}

// LiquidationPrice = collateral × buffer / debt, or 0 when there is no debt.
func LiquidationPrice(collateral, debt, buffer decimal.Decimal) decimal.Decimal {
	if !debt.IsPositive() {
		return decimal.Zero
	}
	return collateral.Mul(buffer).Div(debt)
}

// Risk buckets a ratio: > 200 safe, (150, 200] warning, <= 150 danger.
func Risk(ratio decimal.Decimal) domain.RiskLevel {
	switch {
	case ratio.GreaterThan(safeAbove):
		return domain.RiskSafe
	case ratio.GreaterThan(warningAbove):
		return domain.RiskWarning
	default:
		return domain.RiskDanger
	}
}

// SwapQuote = amount × (1 − feeRate). It is a flat fee-only estimate with no
// price-impact term; the ledger's execution may differ.
func SwapQuote(amountIn, feeRate decimal.Decimal) decimal.Decimal {
	return amountIn.Mul(one.Sub(feeRate))
}

// MinAmountOut is the lowest output accepted when submitting a swap.
func MinAmountOut(quote, slippage decimal.Decimal) decimal.Decimal {
	return quote.Mul(one.Sub(slippage))
}

// ConstantProductQuote mirrors the dex pallet: the fee in basis points is taken
// from the input, then out = reserveOut × in / (reserveIn + in).
func ConstantProductQuote(reserveIn, reserveOut, amountIn decimal.Decimal, feeBps int64) decimal.Decimal {
	fee := amountIn.Mul(decimal.NewFromInt(feeBps)).Div(decimal.NewFromInt(10_000))
	in := amountIn.Sub(fee)
	denom := reserveIn.Add(in)
	if !denom.IsPositive() {
		return decimal.Zero
	}
	return reserveOut.Mul(in).Div(denom)
}

// VotePercentages returns for/total × 100 and against/total × 100, both 0 when
// nobody voted.
func VotePercentages(votesFor, votesAgainst, total decimal.Decimal) (forPct, againstPct decimal.Decimal) {
	if !total.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	return votesFor.Div(total).Mul(hundred), votesAgainst.Div(total).Mul(hundred)
}

// Vault fills the derived fields of v.
func (c *Calculator) Vault(v domain.Vault) domain.Vault {
	v.CollateralizationRatio = CollateralizationRatio(v.CollateralAmount, v.DebtAmount)
	v.LiquidationPrice = LiquidationPrice(v.CollateralAmount, v.DebtAmount, c.LiquidationBuffer)
	v.RiskLevel = Risk(v.CollateralizationRatio)
	return v
}

// Proposal fills the vote percentages of p.
func (c *Calculator) Proposal(p domain.Proposal) domain.Proposal {
	p.ForPct, p.AgainstPct = VotePercentages(
		decimal.NewFromUint64(p.VotesFor),
		decimal.NewFromUint64(p.VotesAgainst),
		decimal.NewFromUint64(p.TotalVotes()),
	)
	return p
}

// Quote is a swap estimate ready for display and submission.
type Quote struct {
	AmountIn     decimal.Decimal
	EstimatedOut decimal.Decimal
	MinAmountOut decimal.Decimal
	PoolOut      decimal.Decimal // constant-product output, zero when reserves are unknown
}

// Quote estimates a swap with the configured fee and slippage.
func (c *Calculator) Quote(amountIn decimal.Decimal) Quote {
	est := SwapQuote(amountIn, c.FeeRate)
	return Quote{
		AmountIn:     amountIn,
		EstimatedOut: est,
		MinAmountOut: MinAmountOut(est, c.SlippageTolerance),
	}
}

// QuoteWithPool adds the pool's constant-product output to the flat quote.
func (c *Calculator) QuoteWithPool(amountIn, reserveIn, reserveOut decimal.Decimal) Quote {
	q := c.Quote(amountIn)
	q.PoolOut = ConstantProductQuote(reserveIn, reserveOut, amountIn, c.AMMFeeBps)
	return q
}
