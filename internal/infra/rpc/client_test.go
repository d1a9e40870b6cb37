package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"createfi_go/internal/domain"

	"github.com/gorilla/websocket"
)

type inbound struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers each request through handle; handle writes whatever frames it wants.
func fakeNode(t *testing.T, handle func(conn *websocket.Conn, req inbound)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req inbound
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			handle(conn, req)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func reply(conn *websocket.Conn, id uint64, result any) {
	conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func notify(conn *websocket.Conn, sub string, result any) {
	conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "subscription",
		"params":  map[string]any{"subscription": sub, "result": result},
	})
}

func dialTest(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Call(t *testing.T) {
	url := fakeNode(t, func(conn *websocket.Conn, req inbound) {
		switch req.Method {
		case MethodAccount:
			reply(conn, req.ID, map[string]any{"nonce": 1, "data": map[string]any{"free": "1000000000000"}})
		default:
			conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "Method not found"},
			})
		}
	})
	c := dialTest(t, url)
	ctx := context.Background()

	t.Run("result", func(t *testing.T) {
		var out struct {
			Nonce int `json:"nonce"`
		}
		if err := c.Call(ctx, MethodAccount, []any{"5Grw"}, &out); err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if out.Nonce != 1 {
			t.Errorf("nonce = %d", out.Nonce)
		}
	})

	t.Run("rpc error", func(t *testing.T) {
		err := c.Call(ctx, "nope", nil, nil)
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			t.Fatalf("expected *Error, got %v", err)
		}
		if rpcErr.Code != -32601 {
			t.Errorf("code = %d", rpcErr.Code)
		}
	})
}

func TestClient_CallContextTimeout(t *testing.T) {
	url := fakeNode(t, func(conn *websocket.Conn, req inbound) {
		// never answers
	})
	c := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Call(ctx, MethodAccount, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_SubscribeKeepsOrder(t *testing.T) {
	url := fakeNode(t, func(conn *websocket.Conn, req inbound) {
		if req.Method != MethodSubmitAndWatch {
			reply(conn, req.ID, true)
			return
		}
		// First notification races ahead of the subscription id.
		notify(conn, "sub-1", "ready")
		reply(conn, req.ID, "sub-1")
		notify(conn, "sub-1", map[string]any{"inBlock": "0xaa"})
		notify(conn, "sub-1", map[string]any{"finalized": "0xaa"})
	})
	c := dialTest(t, url)

	sub, err := c.Subscribe(context.Background(), MethodSubmitAndWatch, MethodUnwatch, []any{"0x00"})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	want := []domain.TxStatusKind{domain.TxReady, domain.TxInBlock, domain.TxFinalized}
	for i, kind := range want {
		select {
		case raw := <-sub.C():
			st, err := DecodeTxStatus(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if st.Kind != kind {
				t.Errorf("update %d = %s, want %s", i, st.Kind, kind)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for update %d", i)
		}
	}
}

func TestClient_ServerGoneClosesEverything(t *testing.T) {
	url := fakeNode(t, func(conn *websocket.Conn, req inbound) {
		reply(conn, req.ID, "sub-9")
		conn.Close()
	})
	c := dialTest(t, url)

	sub, err := c.Subscribe(context.Background(), MethodSubscribeEvents, MethodUnsubscribeEvent, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after server went away")
	}

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed subscription")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}

	if err := c.Call(context.Background(), MethodAccount, nil, nil); err == nil {
		t.Error("expected error after connection loss")
	}
}

func TestDecodeTxStatus(t *testing.T) {
	tests := []struct {
		raw    string
		kind   domain.TxStatusKind
		hash   string
		reason string
	}{
		{`"ready"`, domain.TxReady, "", ""},
		{`"future"`, domain.TxFuture, "", ""},
		{`{"broadcast":["peer1"]}`, domain.TxBroadcast, "", ""},
		{`{"inBlock":"0x01"}`, domain.TxInBlock, "0x01", ""},
		{`{"finalized":"0x01"}`, domain.TxFinalized, "0x01", ""},
		{`"dropped"`, domain.TxDropped, "", ""},
		{`{"invalid":"InsufficientCollateral"}`, domain.TxInvalid, "", "InsufficientCollateral"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			st, err := DecodeTxStatus(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if st.Kind != tt.kind || st.BlockHash != tt.hash || st.Reason != tt.reason {
				t.Errorf("got %+v", st)
			}
		})
	}

	if _, err := DecodeTxStatus(json.RawMessage(`{"a":1,"b":2}`)); err == nil {
		t.Error("expected error for multi-key status")
	}
	if _, err := DecodeTxStatus(json.RawMessage(`42`)); err == nil {
		t.Error("expected error for numeric status")
	}
}
