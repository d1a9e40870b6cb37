package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppConfig represents persisted client state (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is a user-selectable signing account exposed by the signing agent.
type Identity struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
}

// Balance is the decoded system.account record, in display units.
type Balance struct {
	Address  string          `json:"address"`
	Free     decimal.Decimal `json:"free"`
	Reserved decimal.Decimal `json:"reserved"`
	Frozen   decimal.Decimal `json:"frozen"`
}

// RiskLevel buckets a collateralization ratio.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskWarning RiskLevel = "warning"
	RiskDanger  RiskLevel = "danger"
)

// Vault is a collateralized debt position as displayed. Derived fields are
// recomputed on every read.
type Vault struct {
	ID                     string          `json:"id"`
	Owner                  string          `json:"owner"`
	CollateralType         string          `json:"collateral_type"`
	CollateralAmount       decimal.Decimal `json:"collateral_amount"`
	DebtAmount             decimal.Decimal `json:"debt_amount"`
	CollateralizationRatio decimal.Decimal `json:"collateralization_ratio"`
	LiquidationPrice       decimal.Decimal `json:"liquidation_price"`
	RiskLevel              RiskLevel       `json:"risk_level"`
}

// HasDebt reports whether the ratio is meaningful. A debt-free vault reports a
// zero ratio and must be displayed as a special case.
func (v Vault) HasDebt() bool {
	return v.DebtAmount.IsPositive()
}

// Pool is an AMM liquidity pool record from dex.pools.
type Pool struct {
	ID             string          `json:"id"`
	TokenPair      string          `json:"token_pair"`
	ReserveA       decimal.Decimal `json:"reserve_a"`
	ReserveB       decimal.Decimal `json:"reserve_b"`
	TotalLiquidity decimal.Decimal `json:"total_liquidity"`
	LPTokenSupply  decimal.Decimal `json:"lp_token_supply"`
	FeeCollector   string          `json:"fee_collector"`
}

// Proposal is a governance proposal record from dao.proposals.
type Proposal struct {
	ID           string          `json:"id"`
	Proposer     string          `json:"proposer"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Recipient    string          `json:"recipient"`
	VotesFor     uint64          `json:"votes_for"`
	VotesAgainst uint64          `json:"votes_against"`
	StartBlock   uint64          `json:"start_block"`
	EndBlock     uint64          `json:"end_block"`
	Executed     bool            `json:"executed"`
	Cancelled    bool            `json:"cancelled"`

	ForPct     decimal.Decimal `json:"for_pct"`
	AgainstPct decimal.Decimal `json:"against_pct"`
}

// TotalVotes is the number of cast votes; there is no abstain category.
func (p Proposal) TotalVotes() uint64 {
	return p.VotesFor + p.VotesAgainst
}
