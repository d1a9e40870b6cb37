// Package ledgertest provides in-memory ledger, dialer and signing agent fakes
// for tests.
package ledgertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"createfi_go/internal/domain"
)

// Conn is an in-memory domain.LedgerConn.
type Conn struct {
	mu         sync.Mutex
	accounts   map[string]json.RawMessage
	storage    map[string][]domain.StorageEntry
	storageErr error
	submitErr  error
	submitted  []domain.SignedCall
	watches    []*Watch
	streams    []*Stream
	subErr     error

	subscribeCalls atomic.Int32
	closeCalls     atomic.Int32
	done           chan struct{}
	dropOnce       sync.Once
}

// NewConn returns an empty fake connection.
func NewConn() *Conn {
	return &Conn{
		accounts: make(map[string]json.RawMessage),
		storage:  make(map[string][]domain.StorageEntry),
		done:     make(chan struct{}),
	}
}

// SetAccount stores the raw account info returned for address.
func (c *Conn) SetAccount(address, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[address] = json.RawMessage(raw)
}

// SetStorage sets the entries of module.item. Keys and values are raw JSON.
func (c *Conn) SetStorage(module, item string, entries ...domain.StorageEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage[module+"."+item] = entries
}

// Entry builds a storage entry from raw JSON fragments.
func Entry(value string, keys ...string) domain.StorageEntry {
	e := domain.StorageEntry{Value: json.RawMessage(value)}
	for _, k := range keys {
		e.Key = append(e.Key, json.RawMessage(k))
	}
	return e
}

// FailStorage makes every storage read fail with err.
func (c *Conn) FailStorage(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storageErr = err
}

// FailSubmit makes every submission fail with err.
func (c *Conn) FailSubmit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// FailSubscribe makes event subscriptions fail with err.
func (c *Conn) FailSubscribe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subErr = err
}

func (c *Conn) Account(ctx context.Context, address string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.accounts[address]
	if !ok {
		return json.RawMessage(`{"nonce":0,"data":{"free":0,"reserved":0,"frozen":0}}`), nil
	}
	return raw, nil
}

func (c *Conn) StorageEntries(ctx context.Context, module, item string) ([]domain.StorageEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storageErr != nil {
		return nil, c.storageErr
	}
	return append([]domain.StorageEntry(nil), c.storage[module+"."+item]...), nil
}

func (c *Conn) SubmitAndWatch(ctx context.Context, signed domain.SignedCall) (domain.TxWatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	w := newWatch()
	c.submitted = append(c.submitted, signed)
	c.watches = append(c.watches, w)
	return w, nil
}

// Submitted returns every signed call accepted so far.
func (c *Conn) Submitted() []domain.SignedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SignedCall(nil), c.submitted...)
}

// LastWatch returns the watch of the most recent submission.
func (c *Conn) LastWatch() *Watch {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.watches) == 0 {
		return nil
	}
	return c.watches[len(c.watches)-1]
}

func (c *Conn) SubscribeEvents(ctx context.Context) (domain.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	c.subscribeCalls.Add(1)
	s := &Stream{ch: make(chan domain.LedgerEvent, 64)}
	c.streams = append(c.streams, s)
	return s, nil
}

// SubscribeCalls counts upstream event subscriptions.
func (c *Conn) SubscribeCalls() int {
	return int(c.subscribeCalls.Load())
}

// OpenStreams counts event streams not yet closed.
func (c *Conn) OpenStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.streams {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Emit pushes ev to every open event stream.
func (c *Conn) Emit(section, method, data string) {
	ev := domain.LedgerEvent{Section: section, Method: method, Data: json.RawMessage(data)}
	c.mu.Lock()
	streams := append([]*Stream(nil), c.streams...)
	c.mu.Unlock()
	for _, s := range streams {
		s.push(ev)
	}
}

// Drop simulates the transport going away.
func (c *Conn) Drop() {
	c.dropOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		streams := append([]*Stream(nil), c.streams...)
		watches := append([]*Watch(nil), c.watches...)
		c.mu.Unlock()
		for _, s := range streams {
			s.end()
		}
		for _, w := range watches {
			w.End()
		}
	})
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() error {
	c.closeCalls.Add(1)
	c.Drop()
	return nil
}

// CloseCalls counts Close invocations.
func (c *Conn) CloseCalls() int {
	return int(c.closeCalls.Load())
}

// Watch is a scripted domain.TxWatch.
type Watch struct {
	ch      chan domain.TxStatus
	once    sync.Once
	closed  atomic.Bool
	endOnce sync.Once
}

func newWatch() *Watch {
	return &Watch{ch: make(chan domain.TxStatus, 16)}
}

// Push emits one status.
func (w *Watch) Push(kind domain.TxStatusKind, detail string) {
	st := domain.TxStatus{Kind: kind}
	switch kind {
	case domain.TxInvalid, domain.TxDropped, domain.TxUsurped, domain.TxFinalityTimeout:
		st.Reason = detail
	default:
		st.BlockHash = detail
	}
	w.ch <- st
}

// End closes the update stream.
func (w *Watch) End() {
	w.endOnce.Do(func() { close(w.ch) })
}

func (w *Watch) Updates() <-chan domain.TxStatus { return w.ch }

func (w *Watch) Close() {
	w.once.Do(func() { w.closed.Store(true) })
}

// Closed reports whether the consumer released the watch.
func (w *Watch) Closed() bool { return w.closed.Load() }

// Stream is an in-memory domain.EventStream.
type Stream struct {
	ch     chan domain.LedgerEvent
	mu     sync.Mutex
	closed bool
	ended  bool
}

func (s *Stream) push(ev domain.LedgerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return
	}
	s.ch <- ev
}

func (s *Stream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.ch)
	}
}

func (s *Stream) Events() <-chan domain.LedgerEvent { return s.ch }

func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.end()
}

// Closed reports whether the consumer closed the stream.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Dialer hands out a fixed connection, optionally blocking until released.
type Dialer struct {
	Conn  domain.LedgerConn
	Err   error
	Gate  chan struct{} // when non-nil, Dial waits for it to close
	calls atomic.Int32
}

func (d *Dialer) Dial(ctx context.Context, endpoint string) (domain.LedgerConn, error) {
	d.calls.Add(1)
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

// Calls counts Dial invocations.
func (d *Dialer) Calls() int { return int(d.calls.Load()) }

// ErrRefused is a generic signing refusal.
var ErrRefused = errors.New("user refused")

// Agent is a scripted domain.SigningAgent.
type Agent struct {
	mu        sync.Mutex
	IDs       []domain.Identity
	EnableErr error
	SignErr   error
	signed    []domain.Call
}

func (a *Agent) Enable(ctx context.Context, appName string) error {
	return a.EnableErr
}

func (a *Agent) Identities(ctx context.Context) ([]domain.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Identity(nil), a.IDs...), nil
}

func (a *Agent) Sign(ctx context.Context, address string, call domain.Call) (domain.SignedCall, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SignErr != nil {
		return domain.SignedCall{}, a.SignErr
	}
	a.signed = append(a.signed, call)
	return domain.SignedCall{Signer: address, Payload: "0x" + call.Name()}, nil
}

// Signed returns every call signed so far.
func (a *Agent) Signed() []domain.Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Call(nil), a.signed...)
}

// Selections is an in-memory domain.SelectionStore.
type Selections struct {
	mu      sync.Mutex
	address string
}

func (s *Selections) SaveSelectedAddress(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
	return nil
}

func (s *Selections) LoadSelectedAddress() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, nil
}
