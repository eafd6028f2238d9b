package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// MessageHandler consumes an inbound chat message.
type MessageHandler func(msg ChatMessage)

// TypingHandler consumes a raw typing signal. typing is true for a start
// signal and false for a stop signal.
type TypingHandler func(roomID, userID int64, userName string, typing bool)

// NotificationHandler consumes an inbound notification.
type NotificationHandler func(item NotificationItem)

type messageSub struct {
	id uint64
	fn MessageHandler
}

type typingSub struct {
	id uint64
	fn TypingHandler
}

type notificationSub struct {
	id uint64
	fn NotificationHandler
}

// Registry fans inbound events out to any number of independent
// subscribers. Dispatch is synchronous and follows registration order; a
// panicking listener is isolated so the remaining listeners still run.
// The registry knows nothing about rooms; subscribers filter themselves.
type Registry struct {
	log zerolog.Logger

	mu            sync.Mutex
	nextID        uint64
	messages      []messageSub
	typing        []typingSub
	notifications []notificationSub
}

// NewRegistry builds an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{log: logger}
}

// OnMessageReceived subscribes to inbound messages. The returned function
// removes exactly this subscription and is safe to call more than once.
func (r *Registry) OnMessageReceived(fn MessageHandler) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.messages = append(r.messages, messageSub{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.messages {
			if sub.id == id {
				r.messages = append(r.messages[:i], r.messages[i+1:]...)
				return
			}
		}
	}
}

// OnUserTyping subscribes to raw typing signals.
func (r *Registry) OnUserTyping(fn TypingHandler) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.typing = append(r.typing, typingSub{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.typing {
			if sub.id == id {
				r.typing = append(r.typing[:i], r.typing[i+1:]...)
				return
			}
		}
	}
}

// OnNotificationReceived subscribes to inbound notifications.
func (r *Registry) OnNotificationReceived(fn NotificationHandler) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.notifications = append(r.notifications, notificationSub{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.notifications {
			if sub.id == id {
				r.notifications = append(r.notifications[:i], r.notifications[i+1:]...)
				return
			}
		}
	}
}

// EmitMessage dispatches a message to all subscribers in registration order.
func (r *Registry) EmitMessage(msg ChatMessage) {
	r.mu.Lock()
	subs := append([]messageSub(nil), r.messages...)
	r.mu.Unlock()

	for _, sub := range subs {
		r.safeCall(func() { sub.fn(msg) })
	}
}

// EmitTyping dispatches a typing signal to all subscribers.
func (r *Registry) EmitTyping(roomID, userID int64, userName string, typing bool) {
	r.mu.Lock()
	subs := append([]typingSub(nil), r.typing...)
	r.mu.Unlock()

	for _, sub := range subs {
		r.safeCall(func() { sub.fn(roomID, userID, userName, typing) })
	}
}

// EmitNotification dispatches a notification to all subscribers.
func (r *Registry) EmitNotification(item NotificationItem) {
	r.mu.Lock()
	subs := append([]notificationSub(nil), r.notifications...)
	r.mu.Unlock()

	for _, sub := range subs {
		r.safeCall(func() { sub.fn(item) })
	}
}

func (r *Registry) safeCall(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("event listener panicked")
		}
	}()
	fn()
}
