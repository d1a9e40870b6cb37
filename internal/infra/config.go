package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"createfi_go/internal/domain"
)

const (
	// DefaultEndpoint is the local development node.
	DefaultEndpoint = "ws://127.0.0.1:9944"

	// DefaultAppName is announced to the signing agent on enable.
	DefaultAppName = "CREATEFI DApp"
)

// Config holds all application settings. Environment variables override the
// file after LoadConfig reads it.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Ledger struct {
		Endpoint string `yaml:"endpoint"`
		// Zero means no timeout is applied.
		ConnectTimeoutMS int `yaml:"connect_timeout_ms"`
		SubmitTimeoutMS  int `yaml:"submit_timeout_ms"`
	} `yaml:"ledger"`

	Signer struct {
		AppName    string `yaml:"app_name"`
		KeyringDir string `yaml:"keyring_dir"`
	} `yaml:"signer"`

	Events struct {
		Modules []string `yaml:"modules"`
	} `yaml:"events"`

	Finance struct {
		LiquidationBuffer decimal.Decimal `yaml:"liquidation_buffer"`
		FeeRate           decimal.Decimal `yaml:"fee_rate"`
		SlippageTolerance decimal.Decimal `yaml:"slippage_tolerance"`
		AMMFeeBps         int64           `yaml:"amm_fee_bps"`
	} `yaml:"finance"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML bytes, applies defaults and env overrides, then validates.
func ParseConfig(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Ledger.Endpoint == "" || (!strings.HasPrefix(c.Ledger.Endpoint, "ws://") && !strings.HasPrefix(c.Ledger.Endpoint, "wss://")) {
		return &domain.ConfigError{Field: "ledger.endpoint", Err: fmt.Errorf("invalid websocket url %q", c.Ledger.Endpoint)}
	}
	if c.Ledger.ConnectTimeoutMS < 0 {
		return &domain.ConfigError{Field: "ledger.connect_timeout_ms", Err: errors.New("must not be negative")}
	}
	if c.Ledger.SubmitTimeoutMS < 0 {
		return &domain.ConfigError{Field: "ledger.submit_timeout_ms", Err: errors.New("must not be negative")}
	}

	one := decimal.NewFromInt(1)
	if !c.Finance.LiquidationBuffer.IsPositive() || c.Finance.LiquidationBuffer.GreaterThan(one) {
		return &domain.ConfigError{Field: "finance.liquidation_buffer", Err: errors.New("must be in (0, 1]")}
	}
	if c.Finance.FeeRate.IsNegative() || c.Finance.FeeRate.GreaterThanOrEqual(one) {
		return &domain.ConfigError{Field: "finance.fee_rate", Err: errors.New("must be in [0, 1)")}
	}
	if c.Finance.SlippageTolerance.IsNegative() || c.Finance.SlippageTolerance.GreaterThanOrEqual(one) {
		return &domain.ConfigError{Field: "finance.slippage_tolerance", Err: errors.New("must be in [0, 1)")}
	}
	if c.Finance.AMMFeeBps < 0 || c.Finance.AMMFeeBps >= 10_000 {
		return &domain.ConfigError{Field: "finance.amm_fee_bps", Err: errors.New("must be in [0, 10000)")}
	}

	return nil
}

// ConnectTimeout returns the configured connect timeout; zero means none.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Ledger.ConnectTimeoutMS) * time.Millisecond
}

// SubmitTimeout returns the configured submission timeout; zero means none.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Ledger.SubmitTimeoutMS) * time.Millisecond
}

// defaultConfig is decoded over, so numeric values set in the file, zero
// included, replace these.
func defaultConfig() Config {
	var cfg Config
	cfg.Finance.LiquidationBuffer = decimal.RequireFromString("0.9")
	cfg.Finance.FeeRate = decimal.RequireFromString("0.003")
	cfg.Finance.SlippageTolerance = decimal.RequireFromString("0.005")
	cfg.Finance.AMMFeeBps = 30
	return cfg
}

// applyDefaults fills string settings left empty in the file.
func applyDefaults(cfg *Config) {
	if cfg.Ledger.Endpoint == "" {
		cfg.Ledger.Endpoint = DefaultEndpoint
	}
	if cfg.Signer.AppName == "" {
		cfg.Signer.AppName = DefaultAppName
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
}

// overrideWithEnv replaces settings whose environment variable is set.
func overrideWithEnv(cfg *Config) {
	if endpoint := os.Getenv("CREATEFI_ENDPOINT"); endpoint != "" {
		cfg.Ledger.Endpoint = endpoint
	}
	if dir := os.Getenv("CREATEFI_KEYRING_DIR"); dir != "" {
		cfg.Signer.KeyringDir = dir
	}
	if level := os.Getenv("CREATEFI_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
