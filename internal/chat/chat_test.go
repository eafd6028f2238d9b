package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/examchat/internal/transport"
)

// fakeAPI substitutes the REST surface. Unset hooks succeed with zero values.
type fakeAPI struct {
	listRooms     func(page, pageSize int) ([]ChatRoom, error)
	roomHistory   func(roomID int64, page, pageSize int) (*HistoryPage, error)
	sendMessage   func(roomID int64, draft MessageDraft) (*ChatMessage, error)
	joinRoom      func(roomID int64) error
	supportRoom   func() (*ChatRoom, error)
	privateRoom   func(targetUserID int64) (*ChatRoom, error)
	notifications func() ([]NotificationItem, error)
}

func (f *fakeAPI) ListRooms(_ context.Context, page, pageSize int) ([]ChatRoom, error) {
	if f.listRooms != nil {
		return f.listRooms(page, pageSize)
	}
	return nil, nil
}

func (f *fakeAPI) RoomHistory(_ context.Context, roomID int64, page, pageSize int) (*HistoryPage, error) {
	if f.roomHistory != nil {
		return f.roomHistory(roomID, page, pageSize)
	}
	return &HistoryPage{Messages: []ChatMessage{}}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, roomID int64, draft MessageDraft) (*ChatMessage, error) {
	if f.sendMessage != nil {
		return f.sendMessage(roomID, draft)
	}
	return &ChatMessage{ID: 1, RoomID: roomID, Content: draft.Content}, nil
}

func (f *fakeAPI) JoinRoom(_ context.Context, roomID int64) error {
	if f.joinRoom != nil {
		return f.joinRoom(roomID)
	}
	return nil
}

func (f *fakeAPI) SupportRoom(_ context.Context) (*ChatRoom, error) {
	if f.supportRoom != nil {
		return f.supportRoom()
	}
	return &ChatRoom{ID: 900, Type: RoomTypeSupport, Name: "Support"}, nil
}

func (f *fakeAPI) PrivateRoom(_ context.Context, targetUserID int64) (*ChatRoom, error) {
	if f.privateRoom != nil {
		return f.privateRoom(targetUserID)
	}
	return &ChatRoom{ID: 1000 + targetUserID, Type: RoomTypePrivate}, nil
}

func (f *fakeAPI) Notifications(_ context.Context) ([]NotificationItem, error) {
	if f.notifications != nil {
		return f.notifications()
	}
	return nil, nil
}

// fakeCache is an in-memory Cache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, key, value string) {
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
}

// fakeInvoker records live invocations.
type fakeInvoker struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeInvoker) Invoke(_ context.Context, method string, _ any) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()
	return f.err
}

func (f *fakeInvoker) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeTransport is a controllable Transport for connection manager tests.
type fakeTransport struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	blocked  chan struct{}
	handlers map[string][]transport.Handler
	state    transport.State
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]transport.Handler)}
}

func (t *fakeTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	t.starts++
	blocked := t.blocked
	t.mu.Unlock()

	if blocked != nil {
		select {
		case <-blocked:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.startErr != nil {
		return t.startErr
	}

	t.mu.Lock()
	t.state = transport.StateConnected
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Stop(context.Context) error {
	t.mu.Lock()
	t.stops++
	t.state = transport.StateDisconnected
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Invoke(context.Context, string, any) error { return nil }

func (t *fakeTransport) On(event string, h transport.Handler) {
	t.mu.Lock()
	t.handlers[event] = append(t.handlers[event], h)
	t.mu.Unlock()
}

func (t *fakeTransport) OnStateChange(func(transport.State)) {}

func (t *fakeTransport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// emit delivers an inbound event to the registered handlers, as the read
// loop of a real transport would.
func (t *fakeTransport) emit(tb testing.TB, event string, payload any) {
	tb.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		tb.Fatalf("marshal %s payload: %v", event, err)
	}
	t.mu.Lock()
	handlers := append([]transport.Handler(nil), t.handlers[event]...)
	t.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (t *fakeTransport) startCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}

func (t *fakeTransport) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

var testBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testMsg(id, roomID int64, offset time.Duration) ChatMessage {
	return ChatMessage{
		ID:         id,
		RoomID:     roomID,
		SenderID:   7,
		SenderName: "alice",
		Content:    "hello",
		Type:       MessageTypeText,
		SentAt:     testBase.Add(offset),
	}
}
