package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// PlanckDecimals is the fixed-point scale of every ledger-native amount.
const PlanckDecimals = 12

// ToPlanck converts a human-displayed amount into its ledger integer (× 10^12).
// Digits beyond the 12th decimal place are truncated toward zero.
func ToPlanck(amount decimal.Decimal) *big.Int {
	return amount.Shift(PlanckDecimals).Truncate(0).BigInt()
}

// FromPlanck converts a ledger integer into its human-displayed amount (÷ 10^12).
func FromPlanck(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -PlanckDecimals)
}

// ParseAmount parses a human-displayed amount such as "100" or "0.25".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: negative", s)
	}
	return d, nil
}

// ParsePlanck parses a ledger integer rendered either as decimal digits or as
// a 0x-prefixed hex string (large u128 values are serialized that way).
func ParsePlanck(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return n, nil
		}
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid ledger integer %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("invalid ledger integer %q: negative", s)
	}
	return n, nil
}
