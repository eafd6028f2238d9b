package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/creds"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func testWSProvider(token string) *creds.Provider {
	return creds.NewProvider(creds.Static{"session_token": token}, "session_token")
}

// startEchoServer runs a WebSocket endpoint driven by handler. The handler
// owns the accepted connection for the lifetime of the test.
func startEchoServer(t *testing.T, handler func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		handler(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return wsURL(srv.URL)
}

func TestStartDeliversInboundEvents(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	url := startEchoServer(t, func(ctx context.Context, c *websocket.Conn) {
		frame := serverFrame{Event: EventMessageReceived, Data: json.RawMessage(`{"messageId":1}`)}
		if err := wsjson.Write(ctx, c, frame); err != nil {
			return
		}
		select {
		case <-hold:
		case <-ctx.Done():
		}
	})

	w := NewWS(url, testWSProvider("tok"), zerolog.Nop())
	received := make(chan json.RawMessage, 1)
	w.On(EventMessageReceived, func(data json.RawMessage) {
		received <- data
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop(context.Background())

	select {
	case data := <-received:
		if !strings.Contains(string(data), `"messageId":1`) {
			t.Fatalf("unexpected payload %s", data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("inbound event never delivered")
	}
	if w.State() != StateConnected {
		t.Fatalf("expected connected, got %v", w.State())
	}
}

func TestInvokeSendsEnvelopeFrame(t *testing.T) {
	frames := make(chan map[string]any, 1)
	hold := make(chan struct{})
	defer close(hold)

	url := startEchoServer(t, func(ctx context.Context, c *websocket.Conn) {
		var frame map[string]any
		if err := wsjson.Read(ctx, c, &frame); err != nil {
			return
		}
		frames <- frame
		select {
		case <-hold:
		case <-ctx.Done():
		}
	})

	w := NewWS(url, testWSProvider("tok"), zerolog.Nop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop(context.Background())

	err := w.Invoke(context.Background(), MethodJoinRoom, map[string]int64{"roomId": 7})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	select {
	case frame := <-frames:
		if frame["method"] != MethodJoinRoom {
			t.Fatalf("wrong method %v", frame["method"])
		}
		data, ok := frame["data"].(map[string]any)
		if !ok || data["roomId"] != float64(7) {
			t.Fatalf("wrong payload %v", frame["data"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("invocation never reached the server")
	}
}

func TestDialCarriesAuthorizationHeader(t *testing.T) {
	headers := make(chan string, 1)
	hold := make(chan struct{})
	defer close(hold)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		select {
		case <-hold:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	w := NewWS(wsURL(srv.URL), testWSProvider("dial-token"), zerolog.Nop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop(context.Background())

	select {
	case got := <-headers:
		if got != "Bearer dial-token" {
			t.Fatalf("wrong auth header %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw the dial")
	}
}

func TestInvokeWhileDisconnected(t *testing.T) {
	w := NewWS("ws://127.0.0.1:0", testWSProvider("tok"), zerolog.Nop())
	err := w.Invoke(context.Background(), MethodStartTyping, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestStartAfterStopFails(t *testing.T) {
	w := NewWS("ws://127.0.0.1:0", testWSProvider("tok"), zerolog.Nop())
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	url := startEchoServer(t, func(ctx context.Context, c *websocket.Conn) {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	})

	w := NewWS(url, testWSProvider("tok"), zerolog.Nop())
	var mu sync.Mutex
	var seen []State
	w.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 3 || seen[0] != StateConnecting || seen[1] != StateConnected || seen[len(seen)-1] != StateDisconnected {
		t.Fatalf("unexpected transitions %v", seen)
	}
}

func TestStartFailsWhenEndpointUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	w := NewWS("ws://127.0.0.1:1", testWSProvider("tok"), zerolog.Nop())
	if err := w.Start(ctx); err == nil {
		t.Fatal("expected dial failure")
	}
	if w.State() != StateDisconnected {
		t.Fatalf("failed start left state %v", w.State())
	}
}

func TestStateChangeFansOutToAllSubscribers(t *testing.T) {
	w := NewWS("ws://127.0.0.1:0", testWSProvider("tok"), zerolog.Nop())

	var a, b []State
	w.OnStateChange(func(s State) { a = append(a, s) })
	w.OnStateChange(func(s State) { b = append(b, s) })

	w.setState(StateConnecting)
	w.setState(StateConnected)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("fan-out missed a subscriber: a=%v b=%v", a, b)
	}
	if a[0] != StateConnecting || a[1] != StateConnected {
		t.Fatalf("wrong transitions %v", a)
	}

	// Re-asserting the current state is not a transition.
	w.setState(StateConnected)
	if len(a) != 2 {
		t.Fatalf("duplicate state notified: %v", a)
	}
}

func TestReconnectorBackoffGrows(t *testing.T) {
	rc := reconnector{baseDelay: 100 * time.Millisecond, maxDelay: time.Second}

	first := rc.nextDelay()
	second := rc.nextDelay()
	third := rc.nextDelay()
	if first >= second || second >= third {
		t.Fatalf("backoff not growing: %v %v %v", first, second, third)
	}

	for i := 0; i < 10; i++ {
		rc.nextDelay()
	}
	if got := rc.nextDelay(); got != time.Second {
		t.Fatalf("expected cap at maxDelay, got %v", got)
	}
}

func TestReconnectorAttemptBudget(t *testing.T) {
	rc := reconnector{baseDelay: time.Millisecond, maxDelay: time.Millisecond, maxAttempts: 2}

	if !rc.shouldReconnect() {
		t.Fatal("fresh reconnector refused first attempt")
	}
	rc.nextDelay()
	rc.nextDelay()
	if rc.shouldReconnect() {
		t.Fatal("budget not enforced")
	}
}

func TestReconnectorResetsAfterHealthyConnection(t *testing.T) {
	rc := reconnector{baseDelay: 100 * time.Millisecond, maxDelay: time.Second, maxAttempts: 10}
	for i := 0; i < 5; i++ {
		rc.nextDelay()
	}

	// A connection that stayed up past the healthy window resets the count.
	rc.connectedAt = time.Now().Add(-2 * time.Minute)
	if got := rc.nextDelay(); got > 200*time.Millisecond {
		t.Fatalf("attempt count not reset, delay %v", got)
	}
}
