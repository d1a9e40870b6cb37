package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"createfi_go/internal/domain"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.Ledger.Endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %s, want %s", cfg.Ledger.Endpoint, DefaultEndpoint)
	}
	if cfg.ConnectTimeout() != 0 || cfg.SubmitTimeout() != 0 {
		t.Error("timeouts must default to none")
	}
	if !cfg.Finance.FeeRate.Equal(decimal.RequireFromString("0.003")) {
		t.Errorf("fee rate = %s", cfg.Finance.FeeRate)
	}
	if !cfg.Finance.LiquidationBuffer.Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("buffer = %s", cfg.Finance.LiquidationBuffer)
	}
	if cfg.Signer.AppName != DefaultAppName {
		t.Errorf("app name = %s", cfg.Signer.AppName)
	}
}

func TestParseConfig_Values(t *testing.T) {
	raw := `
ledger:
  endpoint: "wss://node.example:443"
  connect_timeout_ms: 1500
  submit_timeout_ms: 20000
finance:
  fee_rate: "0.01"
  amm_fee_bps: 25
events:
  modules: ["dex", "dao"]
`
	cfg, err := ParseConfig([]byte(raw))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.ConnectTimeout() != 1500*time.Millisecond {
		t.Errorf("connect timeout = %v", cfg.ConnectTimeout())
	}
	if cfg.SubmitTimeout() != 20*time.Second {
		t.Errorf("submit timeout = %v", cfg.SubmitTimeout())
	}
	if !cfg.Finance.FeeRate.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("fee rate = %s", cfg.Finance.FeeRate)
	}
	if cfg.Finance.AMMFeeBps != 25 {
		t.Errorf("amm fee = %d", cfg.Finance.AMMFeeBps)
	}
	if len(cfg.Events.Modules) != 2 {
		t.Errorf("modules = %v", cfg.Events.Modules)
	}
}

func TestParseConfig_ExplicitZeroKept(t *testing.T) {
	raw := `
finance:
  fee_rate: "0"
  slippage_tolerance: "0"
  amm_fee_bps: 0
`
	cfg, err := ParseConfig([]byte(raw))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if !cfg.Finance.FeeRate.IsZero() {
		t.Errorf("fee rate = %s, want 0", cfg.Finance.FeeRate)
	}
	if !cfg.Finance.SlippageTolerance.IsZero() {
		t.Errorf("slippage = %s, want 0", cfg.Finance.SlippageTolerance)
	}
	if cfg.Finance.AMMFeeBps != 0 {
		t.Errorf("amm fee = %d, want 0", cfg.Finance.AMMFeeBps)
	}
	if !cfg.Finance.LiquidationBuffer.Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("buffer = %s, want default", cfg.Finance.LiquidationBuffer)
	}
}

func TestParseConfig_EnvOverride(t *testing.T) {
	t.Setenv("CREATEFI_ENDPOINT", "ws://10.0.0.5:9944")
	t.Setenv("CREATEFI_KEYRING_DIR", "/tmp/keys")

	cfg, err := ParseConfig([]byte("{}"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Ledger.Endpoint != "ws://10.0.0.5:9944" {
		t.Errorf("endpoint = %s", cfg.Ledger.Endpoint)
	}
	if cfg.Signer.KeyringDir != "/tmp/keys" {
		t.Errorf("keyring dir = %s", cfg.Signer.KeyringDir)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"http endpoint", "ledger:\n  endpoint: \"http://localhost\"\n", "ledger.endpoint"},
		{"negative timeout", "ledger:\n  connect_timeout_ms: -1\n", "ledger.connect_timeout_ms"},
		{"fee rate too high", "finance:\n  fee_rate: \"1.5\"\n", "finance.fee_rate"},
		{"buffer too high", "finance:\n  liquidation_buffer: \"2\"\n", "finance.liquidation_buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected validation error")
			}
			var cerr *domain.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %T", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("field = %s, want %s", cerr.Field, tt.field)
			}
		})
	}
}
