// Package app is the composition root: it wires configuration, transport,
// signing and the session components into one Client.
package app

import (
	"context"
	"errors"
	"log/slog"

	"createfi_go/internal/domain"
	"createfi_go/internal/event"
	"createfi_go/internal/finance"
	"createfi_go/internal/infra"
	"createfi_go/internal/query"
	"createfi_go/internal/session"
	"createfi_go/internal/tx"
)

// settingLastEndpoint records the endpoint of the last successful connect.
const settingLastEndpoint = "last_endpoint"

// SettingsStore persists small client settings.
type SettingsStore interface {
	SaveConfig(key, value string) error
}

// Deps are the external collaborators of a Client. Nil fields disable the
// corresponding feature, except Dialer which is required.
type Deps struct {
	Dialer     domain.LedgerDialer
	Agent      domain.SigningAgent
	Selections domain.SelectionStore
	Settings   SettingsStore
}

// Client owns one ledger session and exposes every component built on it.
type Client struct {
	Config     *infra.Config
	Metrics    *infra.Metrics
	Calculator *finance.Calculator

	Connection *session.ConnectionManager
	Signing    *session.SigningSessionManager
	Store      *session.Store
	Submitter  *tx.Submitter
	Query      *query.Service
	Events     *event.Feed

	settings SettingsStore
	logger   *slog.Logger
}

// NewClient wires the components. Nothing touches the network until Start or
// Connect is called.
func NewClient(cfg *infra.Config, deps Deps) *Client {
	metrics := infra.NewMetrics()
	calc := &finance.Calculator{
		LiquidationBuffer: cfg.Finance.LiquidationBuffer,
		FeeRate:           cfg.Finance.FeeRate,
		SlippageTolerance: cfg.Finance.SlippageTolerance,
		AMMFeeBps:         cfg.Finance.AMMFeeBps,
	}

	conn := session.NewConnectionManager(deps.Dialer, cfg.ConnectTimeout(), metrics)
	signing := session.NewSigningSessionManager(deps.Agent, cfg.Signer.AppName, deps.Selections)

	return &Client{
		Config:     cfg,
		Metrics:    metrics,
		Calculator: calc,
		Connection: conn,
		Signing:    signing,
		Store:      session.NewStore(conn, signing),
		Submitter:  tx.NewSubmitter(conn, signing, calc, cfg.SubmitTimeout(), metrics),
		Query:      query.NewService(conn, calc),
		Events:     event.NewFeed(conn, cfg.Events.Modules, metrics),
		settings:   deps.Settings,
		logger:     slog.Default().With("module", "client"),
	}
}

// Start connects to the configured endpoint and then opens the signing
// session. A signing failure leaves the connection up.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.ConnectSigningSession(ctx)
}

// Connect opens the ledger connection and resumes event delivery for
// subscribers that outlived a previous connection.
func (c *Client) Connect(ctx context.Context) error {
	endpoint := c.Config.Ledger.Endpoint
	if err := c.Connection.Connect(ctx, endpoint); err != nil {
		return err
	}
	if c.settings != nil {
		if err := c.settings.SaveConfig(settingLastEndpoint, endpoint); err != nil {
			c.logger.Warn("Failed to save endpoint", slog.Any("error", err))
		}
	}
	if err := c.Events.Resume(ctx); err != nil {
		c.logger.Warn("Failed to resume event stream", slog.Any("error", err))
	}
	return nil
}

// ConnectSigningSession discovers identities through the signing agent.
func (c *Client) ConnectSigningSession(ctx context.Context) error {
	_, err := c.Signing.RequestIdentities(ctx)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoSigningAgent):
			c.logger.Warn("❌ No signing agent found", slog.Any("error", err))
		case errors.Is(err, domain.ErrNoIdentities):
			c.logger.Warn("❌ Signing agent has no accounts")
		default:
			c.logger.Error("❌ Failed to connect signing session", slog.Any("error", err))
		}
	}
	return err
}

// Disconnect drops the connection and clears the signing session.
func (c *Client) Disconnect() {
	c.Connection.Disconnect()
	c.Signing.ClearSession()
}

// Close releases every subscription and the connection.
func (c *Client) Close() {
	c.Events.Close()
	c.Disconnect()
	snap := c.Metrics.Snapshot()
	c.logger.Info("Client closed",
		slog.Uint64("tx_submitted", snap.TxSubmitted),
		slog.Uint64("tx_finalized", snap.TxFinalized),
		slog.Uint64("tx_rejected", snap.TxRejected),
		slog.Uint64("events_delivered", snap.EventsDelivered),
	)
}
