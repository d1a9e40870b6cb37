package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"createfi_go/internal/domain"
)

// Node RPC methods.
const (
	MethodAccount          = "state_getAccount"
	MethodStorageEntries   = "state_getStorageEntries"
	MethodSubmitAndWatch   = "author_submitAndWatchExtrinsic"
	MethodUnwatch          = "author_unwatchExtrinsic"
	MethodSubscribeEvents  = "state_subscribeEvents"
	MethodUnsubscribeEvent = "state_unsubscribeEvents"
)

// Dialer opens Ledger connections.
type Dialer struct{}

// NewDialer returns the websocket dialer used in production.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements domain.LedgerDialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (domain.LedgerConn, error) {
	c, err := Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &Ledger{client: c}, nil
}

// Ledger adapts the JSON-RPC client to the ledger connection port.
type Ledger struct {
	client *Client
}

// NewLedger wraps an existing client.
func NewLedger(c *Client) *Ledger {
	return &Ledger{client: c}
}

func (l *Ledger) Account(ctx context.Context, address string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := l.client.Call(ctx, MethodAccount, []any{address}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (l *Ledger) StorageEntries(ctx context.Context, module, item string) ([]domain.StorageEntry, error) {
	var entries []domain.StorageEntry
	if err := l.client.Call(ctx, MethodStorageEntries, []any{module, item}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Ledger) SubmitAndWatch(ctx context.Context, signed domain.SignedCall) (domain.TxWatch, error) {
	sub, err := l.client.Subscribe(ctx, MethodSubmitAndWatch, MethodUnwatch, []any{signed.Payload})
	if err != nil {
		return nil, err
	}
	w := &txWatch{sub: sub, out: make(chan domain.TxStatus), stop: make(chan struct{})}
	go w.run()
	return w, nil
}

func (l *Ledger) SubscribeEvents(ctx context.Context) (domain.EventStream, error) {
	sub, err := l.client.Subscribe(ctx, MethodSubscribeEvents, MethodUnsubscribeEvent, nil)
	if err != nil {
		return nil, err
	}
	s := &eventStream{sub: sub, out: make(chan domain.LedgerEvent), stop: make(chan struct{})}
	go s.run()
	return s, nil
}

func (l *Ledger) Done() <-chan struct{} {
	return l.client.Done()
}

func (l *Ledger) Close() error {
	return l.client.Close()
}

type txWatch struct {
	sub  *Subscription
	out  chan domain.TxStatus
	once sync.Once
	stop chan struct{}
}

func (w *txWatch) Updates() <-chan domain.TxStatus {
	return w.out
}

func (w *txWatch) Close() {
	w.once.Do(func() {
		close(w.stop)
		w.sub.Close()
	})
}

func (w *txWatch) run() {
	defer close(w.out)
	for raw := range w.sub.C() {
		st, err := DecodeTxStatus(raw)
		if err != nil {
			slog.Warn("Skipping undecodable extrinsic status", slog.String("raw", string(raw)), slog.Any("error", err))
			continue
		}
		select {
		case w.out <- st:
		case <-w.stop:
			return
		}
	}
}

// DecodeTxStatus decodes a node extrinsic status: either a bare string such as
// "ready" or a single-key object such as {"inBlock": "0x…"}.
func DecodeTxStatus(raw json.RawMessage) (domain.TxStatus, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return domain.TxStatus{Kind: domain.TxStatusKind(name)}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return domain.TxStatus{}, fmt.Errorf("unexpected status %s", string(raw))
	}
	if len(obj) != 1 {
		return domain.TxStatus{}, fmt.Errorf("unexpected status with %d keys", len(obj))
	}

	for k, v := range obj {
		st := domain.TxStatus{Kind: domain.TxStatusKind(k)}
		var s string
		if json.Unmarshal(v, &s) == nil {
			switch st.Kind {
			case domain.TxInvalid, domain.TxDropped:
				st.Reason = s
			default:
				st.BlockHash = s
			}
		}
		return st, nil
	}
	return domain.TxStatus{}, fmt.Errorf("unexpected status %s", string(raw))
}

type eventStream struct {
	sub  *Subscription
	out  chan domain.LedgerEvent
	once sync.Once
	stop chan struct{}
}

func (s *eventStream) Events() <-chan domain.LedgerEvent {
	return s.out
}

func (s *eventStream) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.sub.Close()
	})
}

func (s *eventStream) run() {
	defer close(s.out)
	for raw := range s.sub.C() {
		var batch []domain.LedgerEvent
		if err := json.Unmarshal(raw, &batch); err != nil {
			slog.Warn("Skipping undecodable event batch", slog.Any("error", err))
			continue
		}
		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-s.stop:
				return
			}
		}
	}
}
