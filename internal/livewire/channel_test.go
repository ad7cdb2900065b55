package livewire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
)

var upgrader = websocket.Upgrader{}

// startChannelServer runs a test backend serving /ws/admin. Each
// accepted connection is handed to serve; the returned counter tracks
// how many connections were ever accepted.
func startChannelServer(t *testing.T, serve func(conn *websocket.Conn, connNum int32)) (wsBase string, connCount *int32) {
	t.Helper()

	var count int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/admin", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&count, 1)
		serve(conn, n)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), &count
}

func shortDelay() func() time.Duration {
	return func() time.Duration { return minReconnectDelay }
}

// holdOpen keeps a test connection alive until the client side drops.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestChannel_DeliversChatFrames(t *testing.T) {
	wsBase, _ := startChannelServer(t, func(conn *websocket.Conn, _ int32) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"agent_name":"User","message":"hello"}`))
		holdOpen(conn)
	})

	dialer := NewDialer(wsBase, WithReconnectDelay(shortDelay()))
	ch, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ch.Close()

	select {
	case frame := <-ch.Frames():
		if frame.Kind != domain.FrameChat {
			t.Fatalf("Kind = %v, want FrameChat", frame.Kind)
		}
		if frame.Message.Content != "hello" {
			t.Errorf("Content = %q", frame.Message.Content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestChannel_KeepAliveAndMalformedAreDropped(t *testing.T) {
	wsBase, _ := startChannelServer(t, func(conn *websocket.Conn, _ int32) {
		conn.WriteMessage(websocket.TextMessage, []byte("ping"))
		conn.WriteMessage(websocket.TextMessage, []byte("{definitely not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"agent_name":"AI","message":"after the noise"}`))
		holdOpen(conn)
	})

	dialer := NewDialer(wsBase, WithReconnectDelay(shortDelay()))
	ch, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ch.Close()

	// The first delivered frame must be the chat message: the sentinel
	// and the malformed payload are dropped without state changes.
	select {
	case frame := <-ch.Frames():
		if frame.Message.Content != "after the noise" {
			t.Errorf("Content = %q, want the post-noise message", frame.Message.Content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestChannel_ReconnectsAfterUnsolicitedClose(t *testing.T) {
	wsBase, connCount := startChannelServer(t, func(conn *websocket.Conn, n int32) {
		if n == 1 {
			conn.Close()
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"agent_name":"AI","message":"back"}`))
		holdOpen(conn)
	})

	dialer := NewDialer(wsBase, WithReconnectDelay(shortDelay()))
	ch, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ch.Close()

	select {
	case frame := <-ch.Frames():
		if frame.Message.Content != "back" {
			t.Errorf("Content = %q, want message from second connection", frame.Message.Content)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	if got := atomic.LoadInt32(connCount); got < 2 {
		t.Errorf("connections = %d, want at least 2", got)
	}
}

func TestChannel_CloseSuppressesReconnect(t *testing.T) {
	wsBase, connCount := startChannelServer(t, func(conn *websocket.Conn, _ int32) {
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	dialer := NewDialer(wsBase, WithReconnectDelay(shortDelay()))
	ch, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Wait until connected, then close deliberately.
	waitForConns(t, connCount, 1)
	ch.Close()

	// Well past the retry delay: no new connection may appear.
	time.Sleep(4 * minReconnectDelay)
	if got := atomic.LoadInt32(connCount); got != 1 {
		t.Errorf("connections after close = %d, want 1 (no reconnect)", got)
	}
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	wsBase, _ := startChannelServer(t, func(conn *websocket.Conn, _ int32) {
		holdOpen(conn)
	})

	dialer := NewDialer(wsBase, WithReconnectDelay(shortDelay()))
	ch, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ch.Close()
	ch.Close()
}

func TestChannel_StateTransitions(t *testing.T) {
	wsBase, _ := startChannelServer(t, func(conn *websocket.Conn, _ int32) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	dialer := NewDialer(wsBase, WithReconnectDelay(shortDelay()))
	ch, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ch.Close()

	deadline := time.After(5 * time.Second)
	var seen []domain.ConnectionState
	for {
		select {
		case state := <-ch.States():
			seen = append(seen, state)
			if state == domain.ConnStateOpen {
				if seen[0] != domain.ConnStateConnecting {
					t.Errorf("first state = %v, want connecting", seen[0])
				}
				return
			}
		case <-deadline:
			t.Fatalf("never reached open; saw %v", seen)
		}
	}
}

func TestDialer_OnePerSessionID(t *testing.T) {
	wsBase, _ := startChannelServer(t, func(conn *websocket.Conn, _ int32) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	dialer := NewDialer(wsBase, WithReconnectDelay(shortDelay()))
	first, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	second, err := dialer.Open(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer second.Close()

	// Reopening a live key must tear the previous channel down rather
	// than leaking it: its frame stream ends.
	select {
	case _, ok := <-first.Frames():
		if ok {
			t.Error("first channel delivered a frame after being superseded")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first channel was not closed on reopen")
	}

	// Tearing down the superseded channel must not evict its
	// replacement from the dialer's tracking.
	dialer.mu.Lock()
	tracked := dialer.active["session-1"]
	dialer.mu.Unlock()
	if tracked != second {
		t.Error("dialer no longer tracks the replacement channel")
	}
}

func TestDialer_OpenValidatesSessionID(t *testing.T) {
	dialer := NewDialer("ws://localhost:0")
	if _, err := dialer.Open(context.Background(), ""); !domain.IsValidation(err) {
		t.Errorf("Open(\"\") error = %v, want validation error", err)
	}
}

func waitForConns(t *testing.T, count *int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(count) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never reached %d connections", want)
}
