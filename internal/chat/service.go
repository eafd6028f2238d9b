package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/cache"
	"github.com/vovakirdan/examchat/internal/creds"
	"github.com/vovakirdan/examchat/internal/transport"
)

const (
	defaultTypingDebounce = 2 * time.Second
	defaultTypingTTL      = 3 * time.Second
)

// typingEvent is the wire payload of typing signals.
type typingEvent struct {
	RoomID   int64  `json:"roomId"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// Options configures a Service.
type Options struct {
	API            API
	Cache          Cache
	Creds          *creds.Provider
	NewTransport   func() transport.Transport
	TypingDebounce time.Duration
	TypingTTL      time.Duration
	Logger         *zerolog.Logger
}

// Service is the always-available chat facade the rest of the application
// depends on. Every UI surface shares the one service instance; the service
// shares one live connection, one message store, and one notification
// stream between them.
type Service struct {
	log           zerolog.Logger
	cache         Cache
	api           API
	registry      *Registry
	manager       *Manager
	rooms         *Rooms
	store         *Store
	typing        *Typing
	notifications *Notifications

	mu          sync.Mutex
	stateSubs   []stateSub
	nextStateID uint64
}

type stateSub struct {
	id uint64
	fn func(transport.State)
}

// NewService wires the sync core together.
func NewService(opts Options) *Service {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.TypingDebounce == 0 {
		opts.TypingDebounce = defaultTypingDebounce
	}
	if opts.TypingTTL == 0 {
		opts.TypingTTL = defaultTypingTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}

	s := &Service{
		log:      logger,
		cache:    opts.Cache,
		api:      opts.API,
		registry: NewRegistry(logger.With().Str("component", "dispatch").Logger()),
	}

	s.manager = NewManager(opts.Creds, opts.NewTransport, s.bind,
		logger.With().Str("component", "conn").Logger())
	s.store = NewStore(opts.API, opts.Cache,
		logger.With().Str("component", "store").Logger())
	s.typing = NewTyping(s.manager, opts.TypingDebounce, opts.TypingTTL,
		logger.With().Str("component", "typing").Logger())
	s.notifications = NewNotifications(opts.API, opts.Cache,
		logger.With().Str("component", "notify").Logger())
	s.rooms = NewRooms(opts.API, s.manager,
		logger.With().Str("component", "rooms").Logger())

	// The store, typing coordinator, and aggregator are themselves ordinary
	// subscribers of the dispatch registry.
	s.registry.OnMessageReceived(s.store.Apply)
	s.registry.OnUserTyping(func(roomID, userID int64, userName string, typing bool) {
		s.typing.HandleRemote(roomID, userID, userName, typing)
	})
	s.registry.OnNotificationReceived(s.notifications.Apply)

	return s
}

// bind registers inbound-event decoding on a fresh transport before the
// connection manager starts it.
func (s *Service) bind(t transport.Transport) {
	t.On(transport.EventMessageReceived, func(data json.RawMessage) {
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn().Err(err).Msg("malformed message event")
			return
		}
		s.registry.EmitMessage(msg)
	})
	t.On(transport.EventUserStartedTyping, func(data json.RawMessage) {
		var ev typingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("malformed typing event")
			return
		}
		s.registry.EmitTyping(ev.RoomID, ev.UserID, ev.UserName, true)
	})
	t.On(transport.EventUserStoppedTyping, func(data json.RawMessage) {
		var ev typingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("malformed typing event")
			return
		}
		s.registry.EmitTyping(ev.RoomID, ev.UserID, ev.UserName, false)
	})
	t.On(transport.EventNotificationReceived, func(data json.RawMessage) {
		var item NotificationItem
		if err := json.Unmarshal(data, &item); err != nil {
			s.log.Warn().Err(err).Msg("malformed notification event")
			return
		}
		s.registry.EmitNotification(item)
	})
	t.OnStateChange(s.emitState)
}

// Connect ensures the shared live connection is up (best effort).
func (s *Service) Connect(ctx context.Context) error {
	return s.manager.Connect(ctx)
}

// Disconnect tears the shared connection down.
func (s *Service) Disconnect(ctx context.Context) error {
	return s.manager.Disconnect(ctx)
}

// Connected reports whether the live connection is up.
func (s *Service) Connected() bool { return s.manager.Connected() }

// State returns the coarse connection state.
func (s *Service) State() transport.State { return s.manager.State() }

// NewSession creates a room session for one UI surface.
func (s *Service) NewSession(name string) *Session { return s.rooms.NewSession(name) }

// History enters a room: cache-seeded paint, then authoritative REST
// history. See Store.Enter.
func (s *Service) History(ctx context.Context, roomID int64, page, pageSize int) (*HistoryPage, error) {
	return s.store.Enter(ctx, roomID, page, pageSize)
}

// CloseRoom releases a session's current room and drops its view.
func (s *Service) CloseRoom(ctx context.Context, session *Session) {
	room := session.Current()
	session.LeaveCurrent(ctx)
	if room != nil {
		s.store.Leave(room.ID)
	}
}

// Send posts a draft to a room, then stops the local typing signal.
func (s *Service) Send(ctx context.Context, roomID int64, draft MessageDraft) (*ChatMessage, error) {
	msg, err := s.store.Send(ctx, roomID, draft)
	if err != nil {
		return nil, err
	}
	s.typing.Stop(ctx, roomID)
	return msg, nil
}

// Keystroke reports local input activity in a room.
func (s *Service) Keystroke(ctx context.Context, roomID int64) {
	s.typing.Keystroke(ctx, roomID)
}

// TypistsIn returns the room's active remote typists.
func (s *Service) TypistsIn(roomID int64) []Typist { return s.typing.Active(roomID) }

// ListRooms returns a page of rooms visible to the current user.
func (s *Service) ListRooms(ctx context.Context, page, pageSize int) ([]ChatRoom, error) {
	return s.api.ListRooms(ctx, page, pageSize)
}

// Messages returns the current ordered view of a room.
func (s *Service) Messages(roomID int64) []ChatMessage { return s.store.Snapshot(roomID) }

// LoadNotifications fetches and merges the notification stream.
func (s *Service) LoadNotifications(ctx context.Context) []NotificationItem {
	return s.notifications.Load(ctx)
}

// Notifications returns the current notification list.
func (s *Service) Notifications() []NotificationItem { return s.notifications.Items() }

// NotificationsUnread reports whether unseen notifications are pending.
func (s *Service) NotificationsUnread() bool { return s.notifications.Unread() }

// MarkNotificationsSeen clears the unread indicator.
func (s *Service) MarkNotificationsSeen() { s.notifications.MarkSeen() }

// OnMessageReceived subscribes to inbound messages.
func (s *Service) OnMessageReceived(fn MessageHandler) func() {
	return s.registry.OnMessageReceived(fn)
}

// OnUserTyping subscribes to raw typing signals.
func (s *Service) OnUserTyping(fn TypingHandler) func() {
	return s.registry.OnUserTyping(fn)
}

// OnNotificationReceived subscribes to inbound notifications.
func (s *Service) OnNotificationReceived(fn NotificationHandler) func() {
	return s.registry.OnNotificationReceived(fn)
}

// SubscribeRoom registers a render callback for a room's message view.
func (s *Service) SubscribeRoom(roomID int64, fn func([]ChatMessage)) func() {
	return s.store.Subscribe(roomID, fn)
}

// SubscribeTyping registers a callback for typist-set changes.
func (s *Service) SubscribeTyping(fn func(roomID int64, typists []Typist)) func() {
	return s.typing.Subscribe(fn)
}

// SubscribeNotifications registers a callback for notification changes.
func (s *Service) SubscribeNotifications(fn func([]NotificationItem, bool)) func() {
	return s.notifications.Subscribe(fn)
}

// OnStateChange subscribes to coarse connection-state transitions.
func (s *Service) OnStateChange(fn func(transport.State)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextStateID++
	id := s.nextStateID
	s.stateSubs = append(s.stateSubs, stateSub{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.stateSubs {
			if sub.id == id {
				s.stateSubs = append(s.stateSubs[:i], s.stateSubs[i+1:]...)
				return
			}
		}
	}
}

// WidgetOpen reads the persisted floating-widget open/closed UI state.
func (s *Service) WidgetOpen(ctx context.Context) bool {
	raw, ok := s.cache.Get(ctx, cache.WidgetOpenKey)
	if !ok {
		return false
	}
	open, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return open
}

// SetWidgetOpen persists the floating-widget open/closed UI state.
func (s *Service) SetWidgetOpen(ctx context.Context, open bool) {
	s.cache.Set(ctx, cache.WidgetOpenKey, fmt.Sprintf("%t", open))
}

func (s *Service) emitState(state transport.State) {
	s.mu.Lock()
	subs := append([]stateSub(nil), s.stateSubs...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(state)
	}
}
