package app

import (
	"log/slog"

	"createfi_go/internal/infra"
	"createfi_go/internal/infra/keyring"
	"createfi_go/internal/infra/rpc"
	"createfi_go/internal/infra/storage"
)

// DefaultConfigPath is used when no path is given.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	Config     *infra.Config
	Storage    *storage.Storage
	Client     *Client
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize performs core system initialization (config, logger, DB, client)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping CreateFi client...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	if saved, err := store.LoadConfigMap(); err == nil {
		slog.Info("✅ Database initialized", slog.Int("entries", len(saved)))
	}

	// 4. Wire the client
	b.Client = NewClient(cfg, Deps{
		Dialer:     rpc.NewDialer(),
		Agent:      keyring.NewAgent(cfg.Signer.KeyringDir),
		Selections: store,
		Settings:   store,
	})
	slog.Info("✅ Client ready", slog.String("endpoint", cfg.Ledger.Endpoint))

	return nil
}

// Shutdown releases the client and the database.
func (b *Bootstrap) Shutdown() {
	if b.Client != nil {
		b.Client.Close()
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}
