package finance

import (
	"testing"

	"github.com/shopspring/decimal"

	"createfi_go/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCollateralizationRatio(t *testing.T) {
	tests := []struct {
		name       string
		collateral string
		debt       string
		want       string
	}{
		{"boundary 200", "10000", "5000", "200"},
		{"danger 125", "5000", "4000", "125"},
		{"no debt", "10000", "0", "0"},
		{"no collateral", "0", "100", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollateralizationRatio(d(tt.collateral), d(tt.debt))
			if !got.Equal(d(tt.want)) {
				t.Errorf("ratio = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLiquidationPrice(t *testing.T) {
	buffer := DefaultLiquidationBuffer

	got := LiquidationPrice(d("10000"), d("5000"), buffer)
	if !got.Equal(d("1.8")) {
		t.Errorf("liquidation price = %s, want 1.8", got)
	}

	if !LiquidationPrice(d("10000"), decimal.Zero, buffer).IsZero() {
		t.Error("liquidation price must be 0 without debt")
	}

	// collateral * 0.9 / debt for a handful of debts
	for _, debt := range []string{"1", "3", "7.5", "12345.678"} {
		want := d("5000").Mul(d("0.9")).Div(d(debt))
		if got := LiquidationPrice(d("5000"), d(debt), buffer); !got.Equal(want) {
			t.Errorf("debt %s: got %s, want %s", debt, got, want)
		}
	}
}

func TestRisk_Boundaries(t *testing.T) {
	tests := []struct {
		ratio string
		want  domain.RiskLevel
	}{
		{"0", domain.RiskDanger},
		{"125", domain.RiskDanger},
		{"150", domain.RiskDanger},
		{"150.0001", domain.RiskWarning},
		{"200", domain.RiskWarning},
		{"200.0001", domain.RiskSafe},
		{"1000000", domain.RiskSafe},
	}

	for _, tt := range tests {
		t.Run(tt.ratio, func(t *testing.T) {
			if got := Risk(d(tt.ratio)); got != tt.want {
				t.Errorf("Risk(%s) = %s, want %s", tt.ratio, got, tt.want)
			}
		})
	}
}

func TestRisk_TotalPartition(t *testing.T) {
	step := d("0.5")
	for r := decimal.Zero; r.LessThanOrEqual(d("400")); r = r.Add(step) {
		switch Risk(r) {
		case domain.RiskSafe, domain.RiskWarning, domain.RiskDanger:
		default:
			t.Fatalf("ratio %s has no bucket", r)
		}
	}
}

func TestCalculator_Vault(t *testing.T) {
	calc := NewCalculator()

	t.Run("warning at exactly 200", func(t *testing.T) {
		v := calc.Vault(domain.Vault{CollateralAmount: d("10000"), DebtAmount: d("5000")})
		if !v.CollateralizationRatio.Equal(d("200")) {
			t.Errorf("ratio = %s", v.CollateralizationRatio)
		}
		if v.RiskLevel != domain.RiskWarning {
			t.Errorf("risk = %s, want warning", v.RiskLevel)
		}
	})

	t.Run("danger at 125", func(t *testing.T) {
		v := calc.Vault(domain.Vault{CollateralAmount: d("5000"), DebtAmount: d("4000")})
		if v.CollateralizationRatio.StringFixed(1) != "125.0" {
			t.Errorf("ratio = %s", v.CollateralizationRatio)
		}
		if v.RiskLevel != domain.RiskDanger {
			t.Errorf("risk = %s, want danger", v.RiskLevel)
		}
	})

	t.Run("debt free", func(t *testing.T) {
		v := calc.Vault(domain.Vault{CollateralAmount: d("5000")})
		if v.HasDebt() {
			t.Error("expected no debt")
		}
		if !v.CollateralizationRatio.IsZero() || !v.LiquidationPrice.IsZero() {
			t.Error("ratio and liquidation price must be 0")
		}
	})
}

func TestSwapQuote(t *testing.T) {
	got := SwapQuote(d("100"), DefaultFeeRate)
	if got.StringFixed(6) != "99.700000" {
		t.Errorf("quote = %s, want 99.700000", got.StringFixed(6))
	}

	prev := decimal.Zero
	for _, amt := range []string{"0", "0.001", "1", "50", "100", "1000000"} {
		q := SwapQuote(d(amt), DefaultFeeRate)
		if !q.Equal(d(amt).Mul(d("0.997"))) {
			t.Errorf("quote(%s) = %s", amt, q)
		}
		if q.LessThan(prev) {
			t.Errorf("quote not monotonic at %s", amt)
		}
		prev = q
	}
}

func TestCalculator_Quote(t *testing.T) {
	calc := NewCalculator()
	q := calc.Quote(d("100"))

	if q.EstimatedOut.StringFixed(6) != "99.700000" {
		t.Errorf("estimated = %s", q.EstimatedOut)
	}
	// 99.7 * 0.995
	if !q.MinAmountOut.Equal(d("99.2015")) {
		t.Errorf("min out = %s, want 99.2015", q.MinAmountOut)
	}
}

func TestConstantProductQuote(t *testing.T) {
	// 1000 in at 30bps → 997 effective; 100000 * 997 / (100000 + 997)
	got := ConstantProductQuote(d("100000"), d("100000"), d("1000"), 30)
	want := d("100000").Mul(d("997")).Div(d("100997"))
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}

	if flat := SwapQuote(d("1000"), DefaultFeeRate); !got.LessThan(flat) {
		t.Error("pool output should include price impact below the flat quote")
	}

	if !ConstantProductQuote(decimal.Zero, d("10"), decimal.Zero, 30).IsZero() {
		t.Error("empty pool should quote zero")
	}
}

func TestVotePercentages(t *testing.T) {
	forPct, againstPct := VotePercentages(d("1250000"), d("300000"), d("1550000"))
	if forPct.StringFixed(1) != "80.6" {
		t.Errorf("for = %s, want ~80.6", forPct)
	}
	if againstPct.StringFixed(1) != "19.4" {
		t.Errorf("against = %s, want ~19.4", againstPct)
	}
	if forPct.Add(againstPct).GreaterThan(d("100")) {
		t.Errorf("sum exceeds 100: %s", forPct.Add(againstPct))
	}

	forPct, againstPct = VotePercentages(decimal.Zero, decimal.Zero, decimal.Zero)
	if !forPct.IsZero() || !againstPct.IsZero() {
		t.Error("both must be 0 without votes")
	}
}

func TestCalculator_Proposal(t *testing.T) {
	calc := NewCalculator()
	p := calc.Proposal(domain.Proposal{VotesFor: 3, VotesAgainst: 1})

	if !p.ForPct.Equal(d("75")) || !p.AgainstPct.Equal(d("25")) {
		t.Errorf("for=%s against=%s", p.ForPct, p.AgainstPct)
	}
}
