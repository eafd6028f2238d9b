// Package cache provides the local persisted key-value cache the sync core
// seeds room views and notifications from. Implementations swallow their
// own failures: a broken cache reads as empty and writes are fire-and-forget.
package cache

import (
	"context"
	"fmt"
)

// Well-known cache keys. Message history is namespaced per room; the
// notification list and widget UI state are global.
const (
	NotificationsKey = "chat_notifications"
	WidgetOpenKey    = "chat_widget_open"
)

// MessagesKey returns the cache key holding a room's message history.
func MessagesKey(roomID int64) string {
	return fmt.Sprintf("chat_messages_%d", roomID)
}

// Noop is a cache that stores nothing, for hosts that opt out of caching.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) (string, bool) { return "", false }

// Set discards the value.
func (Noop) Set(context.Context, string, string) {}
