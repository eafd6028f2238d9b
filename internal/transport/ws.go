package transport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/creds"
	"github.com/vovakirdan/examchat/internal/observability"
)

// ErrNotConnected is returned by Invoke while the channel is down.
var ErrNotConnected = errors.New("transport not connected")

// ErrStopped is returned by Start after an explicit Stop.
var ErrStopped = errors.New("transport stopped")

// WS is a WebSocket Transport speaking JSON envelope frames. It reconnects
// on its own with exponential backoff and re-delivers inbound events to the
// handlers registered before Start.
type WS struct {
	id    string
	url   string
	creds *creds.Provider
	log   zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string][]Handler
	stateFns []func(State)

	state   atomic.Int32
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	rc reconnector
}

// NewWS builds a WebSocket transport for the given endpoint. The credential
// provider is consulted on every dial, including reconnects, so a token
// refreshed mid-session is picked up automatically.
func NewWS(url string, provider *creds.Provider, logger zerolog.Logger) *WS {
	id := uuid.NewString()
	return &WS{
		id:       id,
		url:      url,
		creds:    provider,
		log:      logger.With().Str("conn_id", id[:8]).Logger(),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
		rc: reconnector{
			baseDelay:   time.Second,
			maxDelay:    30 * time.Second,
			maxAttempts: 10,
		},
	}
}

// On registers a handler for an inbound event name.
func (w *WS) On(event string, h Handler) {
	w.mu.Lock()
	w.handlers[event] = append(w.handlers[event], h)
	w.mu.Unlock()
}

// OnStateChange registers a callback for coarse state transitions.
func (w *WS) OnStateChange(fn func(State)) {
	w.mu.Lock()
	w.stateFns = append(w.stateFns, fn)
	w.mu.Unlock()
}

// State returns the current coarse state.
func (w *WS) State() State {
	return State(w.state.Load())
}

// Start dials the endpoint and begins the read loop. The connection outlives
// the Start context; only Stop tears it down.
func (w *WS) Start(ctx context.Context) error {
	if w.stopped.Load() {
		return ErrStopped
	}

	w.setState(StateConnecting)
	conn, err := w.dial(ctx)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", w.url, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.conn = conn
	w.cancel = cancel
	w.mu.Unlock()

	w.rc.markConnected()
	w.setState(StateConnected)
	w.log.Debug().Str("url", w.url).Msg("transport connected")

	go w.run(runCtx, conn)
	return nil
}

// Stop closes the connection and stops reconnecting.
func (w *WS) Stop(ctx context.Context) error {
	if w.stopped.Swap(true) {
		return nil
	}

	w.mu.Lock()
	cancel := w.cancel
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}

	if cancel != nil {
		select {
		case <-w.done:
		case <-ctx.Done():
		}
	}
	w.setState(StateDisconnected)
	return nil
}

// Invoke sends a named invocation over the live connection.
func (w *WS) Invoke(ctx context.Context, method string, data any) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil || w.State() != StateConnected {
		return ErrNotConnected
	}
	if err := wsjson.Write(ctx, conn, clientFrame{Method: method, Data: data}); err != nil {
		return fmt.Errorf("invoke %s: %w", method, err)
	}
	return nil
}

func (w *WS) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if token, ok := w.creds.Token(); ok {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{HTTPHeader: header})
	return conn, err
}

// run reads frames until the connection dies, then reconnects until either
// success, Stop, or the attempt budget runs out.
func (w *WS) run(ctx context.Context, conn *websocket.Conn) {
	defer close(w.done)

	for {
		err := w.readLoop(ctx, conn)
		if ctx.Err() != nil || w.stopped.Load() {
			return
		}
		w.log.Warn().Err(err).Msg("transport read failed, reconnecting")

		next, ok := w.reconnect(ctx)
		if !ok {
			w.setState(StateDisconnected)
			return
		}
		conn = next
	}
}

func (w *WS) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var frame serverFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		w.dispatch(frame)
	}
}

func (w *WS) dispatch(frame serverFrame) {
	w.mu.Lock()
	handlers := append([]Handler(nil), w.handlers[frame.Event]...)
	w.mu.Unlock()

	for _, h := range handlers {
		h(frame.Data)
	}
}

func (w *WS) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	w.setState(StateReconnecting)

	for w.rc.shouldReconnect() {
		delay := w.rc.nextDelay()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, false
		}

		observability.IncReconnectAttempt()
		conn, err := w.dial(ctx)
		if err != nil {
			w.log.Warn().Err(err).Dur("delay", delay).Msg("reconnect attempt failed")
			continue
		}

		w.mu.Lock()
		w.conn = conn
		w.mu.Unlock()

		w.rc.markConnected()
		w.setState(StateConnected)
		w.log.Info().Msg("transport reconnected")
		return conn, true
	}

	w.log.Error().Msg("transport gave up reconnecting")
	return nil, false
}

func (w *WS) setState(s State) {
	if State(w.state.Swap(int32(s))) == s {
		return
	}
	observability.SetConnected(s == StateConnected)

	w.mu.Lock()
	fns := append(make([]func(State), 0, len(w.stateFns)), w.stateFns...)
	w.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// reconnector tracks backoff between reconnect attempts. The attempt count
// resets after a connection that stayed healthy for a minute.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > time.Minute {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}
