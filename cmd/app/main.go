package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"createfi_go/internal/app"
	"createfi_go/internal/domain"
	"createfi_go/internal/infra/keyring"
	"createfi_go/internal/session"
)

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to config.yaml")
	keygen := flag.String("keygen", "", "generate a signing key with this name in the keyring dir and exit")
	refresh := flag.Duration("refresh", 30*time.Second, "interval between dashboard refreshes (0 disables)")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	if *keygen != "" {
		if err := generateKey(bootstrap, *keygen); err != nil {
			slog.Error("❌ Key generation failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bootstrap.Client

	// 3. Observe session state
	unsubState := client.Store.Subscribe(func(s session.Snapshot) {
		sel, _ := s.SelectedIdentity()
		slog.Info("Session state",
			slog.Uint64("version", s.Version()),
			slog.Bool("connected", s.ConnectionReady()),
			slog.Int("identities", len(s.Identities())),
			slog.String("account", sel.DisplayName),
		)
	})
	defer unsubState()

	// 4. Connect (ledger, then signing session)
	if err := client.Connect(ctx); err != nil {
		slog.Error("❌ Failed to connect", slog.Any("error", err))
		bootstrap.Shutdown()
		os.Exit(1)
	}
	if err := client.ConnectSigningSession(ctx); err != nil {
		slog.Warn("Continuing read-only", slog.String("reason", domain.KindOf(err).String()))
	}

	// 5. Event feed
	unsubEvents, err := client.Events.Subscribe(ctx, nil, func(ev domain.LedgerEvent) {
		slog.Info("Ledger event", slog.String("section", ev.Section), slog.String("method", ev.Method), slog.String("data", string(ev.Data)))
	})
	if err != nil {
		slog.Error("Failed to subscribe to events", slog.Any("error", err))
	} else {
		defer unsubEvents()
	}

	// 6. Dashboard refresh loop
	go refreshLoop(ctx, client, *refresh)

	slog.InfoContext(ctx, "✨ CreateFi client fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal or connection loss
	select {
	case <-ctx.Done():
	case <-connectionLost(ctx, client):
		slog.Warn("Connection lost; exiting")
	}

	slog.Info("👋 Shutting down gracefully...")
}

func generateKey(b *app.Bootstrap, name string) error {
	dir := b.Config.Signer.KeyringDir
	if dir == "" {
		return fmt.Errorf("signer.keyring_dir is not configured")
	}
	id, err := keyring.GenerateKey(dir, name)
	if err != nil {
		return err
	}
	slog.Info("✅ Key generated", slog.String("name", id.DisplayName), slog.String("address", id.Address))
	return nil
}

func refreshLoop(ctx context.Context, client *app.Client, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		owner := ""
		if id, ok := client.Store.Snapshot().SelectedIdentity(); ok {
			owner = id.Address
		}
		view, err := client.Query.Refresh(ctx, owner)
		if err != nil {
			slog.Warn("Refresh failed", slog.Any("error", err))
		} else {
			slog.Info("Dashboard",
				slog.String("free", view.Balance.Free.String()),
				slog.Int("pools", len(view.Pools)),
				slog.Int("vaults", len(view.Vaults)),
				slog.Int("proposals", len(view.Proposals)),
			)
			for _, v := range view.Vaults {
				slog.Info("Vault",
					slog.String("id", v.ID),
					slog.String("ratio", v.CollateralizationRatio.StringFixed(2)),
					slog.String("risk", string(v.RiskLevel)),
					slog.Bool("has_debt", v.HasDebt()),
				)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// connectionLost closes when the session reports the connection gone.
func connectionLost(ctx context.Context, client *app.Client) <-chan struct{} {
	lost := make(chan struct{})
	var once sync.Once
	unsub := client.Store.Subscribe(func(s session.Snapshot) {
		if !s.ConnectionReady() {
			once.Do(func() { close(lost) })
		}
	})
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return lost
}
