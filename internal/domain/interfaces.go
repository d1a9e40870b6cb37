package domain

import (
	"context"
	"encoding/json"
)

// Call is a state-changing call understood by the ledger.
type Call struct {
	Module string
	Method string
	Args   []any
}

// Name returns "module.method".
func (c Call) Name() string {
	return c.Module + "." + c.Method
}

// SignedCall is an encoded, signed extrinsic ready for submission.
type SignedCall struct {
	Signer  string
	Payload string // hex encoded
}

// TxStatusKind is the ledger's view of a submitted extrinsic.
type TxStatusKind string

const (
	TxReady           TxStatusKind = "ready"
	TxFuture          TxStatusKind = "future"
	TxBroadcast       TxStatusKind = "broadcast"
	TxInBlock         TxStatusKind = "inBlock"
	TxRetracted       TxStatusKind = "retracted"
	TxFinalityTimeout TxStatusKind = "finalityTimeout"
	TxFinalized       TxStatusKind = "finalized"
	TxUsurped         TxStatusKind = "usurped"
	TxDropped         TxStatusKind = "dropped"
	TxInvalid         TxStatusKind = "invalid"
)

// TxStatus is one status notification for a watched extrinsic.
type TxStatus struct {
	Kind      TxStatusKind
	BlockHash string
	Reason    string
}

// TxWatch streams status notifications for one submitted extrinsic. Updates is
// closed when the ledger stops reporting or the connection drops.
type TxWatch interface {
	Updates() <-chan TxStatus
	Close()
}

// LedgerEvent is a runtime event as emitted by the ledger.
type LedgerEvent struct {
	Section string          `json:"section"`
	Method  string          `json:"method"`
	Data    json.RawMessage `json:"data"`
}

// EventStream delivers ledger events in emission order. Events is closed when
// the stream ends.
type EventStream interface {
	Events() <-chan LedgerEvent
	Close()
}

// StorageEntry is one key/value pair of a keyed storage item.
type StorageEntry struct {
	Key   []json.RawMessage `json:"key"`
	Value json.RawMessage   `json:"value"`
}

// LedgerConn is the ready connection handle. It is shared read-only by the
// query, submission and event components.
type LedgerConn interface {
	Account(ctx context.Context, address string) (json.RawMessage, error)
	StorageEntries(ctx context.Context, module, item string) ([]StorageEntry, error)
	SubmitAndWatch(ctx context.Context, signed SignedCall) (TxWatch, error)
	SubscribeEvents(ctx context.Context) (EventStream, error)
	// Done is closed when the underlying transport is gone.
	Done() <-chan struct{}
	Close() error
}

// LedgerDialer opens connections to a ledger endpoint.
type LedgerDialer interface {
	Dial(ctx context.Context, endpoint string) (LedgerConn, error)
}

// SigningAgent is the external component holding keys.
type SigningAgent interface {
	Enable(ctx context.Context, appName string) error
	Identities(ctx context.Context) ([]Identity, error)
	Sign(ctx context.Context, address string, call Call) (SignedCall, error)
}

// SelectionStore persists the last-selected identity address.
type SelectionStore interface {
	SaveSelectedAddress(address string) error
	LoadSelectedAddress() (string, error)
}
