package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"createfi_go/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
	unsubTimeout     = 5 * time.Second
	maxEarlySubs     = 64
)

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// message covers responses and subscription notifications.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *notification   `json:"params,omitempty"`
}

type notification struct {
	Subscription subID           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// subID accepts both string and numeric subscription ids.
type subID string

func (s *subID) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = subID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = subID(n.String())
	return nil
}

// Client is a JSON-RPC 2.0 client over a single websocket.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan *message
	subs    map[subID]*Subscription
	early   map[subID][]json.RawMessage
	err     error

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial opens a websocket to endpoint and starts the read loop.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, make(http.Header))
	if err != nil {
		return nil, domain.NewNetworkError("dial", err)
	}

	c := &Client{
		conn:    conn,
		logger:  slog.Default().With("module", "rpc_client", "endpoint", endpoint),
		pending: make(map[uint64]chan *message),
		subs:    make(map[subID]*Subscription),
		early:   make(map[subID][]json.RawMessage),
		done:    make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call invokes method and decodes the result into result (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	raw, err := c.call(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	ch := make(chan *message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	b, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}
	if err := c.threadSafeWrite(websocket.TextMessage, b); err != nil {
		return nil, domain.NewNetworkError("write", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.Err()
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	}
}

// Subscribe starts a subscription with method and returns its notification stream.
// unsubMethod is invoked when the subscription is closed.
func (c *Client) Subscribe(ctx context.Context, method, unsubMethod string, params []any) (*Subscription, error) {
	raw, err := c.call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var id subID
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("%s: decode subscription id: %w", method, err)
	}

	sub := newSubscription(c, id, unsubMethod)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		sub.finish()
		return sub, nil
	}
	c.subs[id] = sub
	// Drain under the lock so the read loop cannot overtake the backlog.
	for _, r := range c.early[id] {
		sub.push(r)
	}
	delete(c.early, id)
	c.mu.Unlock()

	return sub, nil
}

// Close shuts the websocket down and ends every pending call and subscription.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	c.shutdown(domain.ErrConnectionClosed)
	c.wg.Wait()
	return nil
}

func (c *Client) threadSafeWrite(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return domain.ErrConnectionClosed
	default:
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(msgType, data)
}

func (c *Client) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("Ping failed", slog.Any("error", err))
			}
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(domain.NewNetworkError("read", err))
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("Dropping malformed message", slog.Any("error", err))
		return
	}

	if msg.ID != nil {
		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		c.mu.Unlock()
		if ok {
			ch <- &msg
		}
		return
	}

	if msg.Params == nil {
		return
	}

	c.mu.Lock()
	sub, ok := c.subs[msg.Params.Subscription]
	if !ok {
		// Notification raced ahead of the subscribe response.
		if len(c.early) < maxEarlySubs {
			c.early[msg.Params.Subscription] = append(c.early[msg.Params.Subscription], msg.Params.Result)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	sub.push(msg.Params.Result)
}

func (c *Client) shutdown(reason error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = reason
	subs := c.subs
	c.subs = make(map[subID]*Subscription)
	c.early = make(map[subID][]json.RawMessage)
	close(c.done)
	c.mu.Unlock()

	c.conn.Close()
	for _, sub := range subs {
		sub.finish()
	}
	if !errors.Is(reason, domain.ErrConnectionClosed) {
		c.logger.Warn("Ledger connection lost", slog.Any("error", reason))
	}
}

func (c *Client) removeSubscription(id subID) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

// Subscription is an ordered, unbounded stream of notification payloads.
type Subscription struct {
	client      *Client
	id          subID
	unsubMethod string

	mu      sync.Mutex
	queue   []json.RawMessage
	ended   bool
	wake    chan struct{}
	out     chan json.RawMessage
	stop    chan struct{}
	stopped sync.Once
}

func newSubscription(c *Client, id subID, unsubMethod string) *Subscription {
	s := &Subscription{
		client:      c,
		id:          id,
		unsubMethod: unsubMethod,
		wake:        make(chan struct{}, 1),
		out:         make(chan json.RawMessage),
		stop:        make(chan struct{}),
	}
	go s.pump()
	return s
}

// ID returns the node-assigned subscription id.
func (s *Subscription) ID() string {
	return string(s.id)
}

// C delivers payloads in arrival order; it is closed when the subscription ends.
func (s *Subscription) C() <-chan json.RawMessage {
	return s.out
}

// Close unsubscribes on the node and ends the stream.
func (s *Subscription) Close() {
	s.stopped.Do(func() {
		close(s.stop)
		s.client.removeSubscription(s.id)
		if s.unsubMethod != "" {
			ctx, cancel := context.WithTimeout(context.Background(), unsubTimeout)
			defer cancel()
			if err := s.client.Call(ctx, s.unsubMethod, []any{string(s.id)}, nil); err != nil {
				s.client.logger.Debug("Unsubscribe failed", slog.String("method", s.unsubMethod), slog.Any("error", err))
			}
		}
	})
}

func (s *Subscription) push(r json.RawMessage) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, r)
	s.mu.Unlock()
	s.signal()
}

// finish ends the stream after already queued payloads are drained.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.stop:
			return
		}
	}
}
