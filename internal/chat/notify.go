package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/cache"
)

// notificationLimit caps the persisted notification list at the most
// recent entries.
const notificationLimit = 200

// Notifications aggregates the room-independent notification stream: one
// REST fetch on load merged with the persisted cache, push-delivered items
// prepended afterwards. The unread flag is raised by pushes and cleared
// only by explicit user interaction, never by time.
type Notifications struct {
	api   API
	cache Cache
	log   zerolog.Logger

	mu        sync.Mutex
	items     []NotificationItem
	unread    bool
	subs      []notifyViewSub
	nextSubID uint64
}

type notifyViewSub struct {
	id uint64
	fn func(items []NotificationItem, unread bool)
}

// NewNotifications builds a notification aggregator.
func NewNotifications(api API, c Cache, logger zerolog.Logger) *Notifications {
	return &Notifications{api: api, cache: c, log: logger}
}

// Load fetches current notifications and merges them with the cached set by
// NotificationId, fetched entries winning on conflict. A failed fetch
// degrades to the cached set without error.
func (n *Notifications) Load(ctx context.Context) []NotificationItem {
	cached := n.readCache(ctx)

	fetched, err := n.api.Notifications(ctx)
	if err != nil {
		n.log.Warn().Err(err).Msg("notification fetch failed, serving cached set")
		fetched = nil
	}

	merged := mergeNotifications(cached, fetched)

	n.mu.Lock()
	n.items = merged
	snap := append([]NotificationItem(nil), merged...)
	unread := n.unread
	subs := append([]notifyViewSub(nil), n.subs...)
	n.mu.Unlock()

	n.persist(ctx, snap)
	for _, sub := range subs {
		sub.fn(snap, unread)
	}
	return snap
}

// Apply prepends one push-delivered notification and raises the unread flag.
func (n *Notifications) Apply(item NotificationItem) {
	n.mu.Lock()
	items := make([]NotificationItem, 0, len(n.items)+1)
	items = append(items, item)
	for _, existing := range n.items {
		if existing.ID != item.ID {
			items = append(items, existing)
		}
	}
	if len(items) > notificationLimit {
		items = items[:notificationLimit]
	}
	n.items = items
	n.unread = true
	snap := append([]NotificationItem(nil), items...)
	subs := append([]notifyViewSub(nil), n.subs...)
	n.mu.Unlock()

	n.persist(context.Background(), snap)
	for _, sub := range subs {
		sub.fn(snap, true)
	}
}

// MarkSeen clears the unread flag; called when the user opens the
// notification surface.
func (n *Notifications) MarkSeen() {
	n.mu.Lock()
	n.unread = false
	snap := append([]NotificationItem(nil), n.items...)
	subs := append([]notifyViewSub(nil), n.subs...)
	n.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap, false)
	}
}

// Unread reports whether unseen notifications are pending.
func (n *Notifications) Unread() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unread
}

// Items returns a copy of the current notification list.
func (n *Notifications) Items() []NotificationItem {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationItem(nil), n.items...)
}

// Subscribe registers a callback for list or unread-flag changes.
func (n *Notifications) Subscribe(fn func(items []NotificationItem, unread bool)) (unsubscribe func()) {
	n.mu.Lock()
	n.nextSubID++
	id := n.nextSubID
	n.subs = append(n.subs, notifyViewSub{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, sub := range n.subs {
			if sub.id == id {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

func (n *Notifications) readCache(ctx context.Context) []NotificationItem {
	raw, ok := n.cache.Get(ctx, cache.NotificationsKey)
	if !ok {
		return nil
	}
	var items []NotificationItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		n.log.Warn().Err(err).Msg("corrupt notification cache entry")
		return nil
	}
	return items
}

func (n *Notifications) persist(ctx context.Context, items []NotificationItem) {
	data, err := json.Marshal(items)
	if err != nil {
		n.log.Warn().Err(err).Msg("marshal notification cache entry")
		return
	}
	n.cache.Set(ctx, cache.NotificationsKey, string(data))
}

// mergeNotifications unions both sets by NotificationId with fetched taking
// precedence, ordered newest first and truncated to the limit.
func mergeNotifications(cached, fetched []NotificationItem) []NotificationItem {
	byID := make(map[int64]NotificationItem, len(cached)+len(fetched))
	for _, item := range cached {
		byID[item.ID] = item
	}
	for _, item := range fetched {
		byID[item.ID] = item
	}

	merged := make([]NotificationItem, 0, len(byID))
	for _, item := range byID {
		merged = append(merged, item)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID > merged[j].ID
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > notificationLimit {
		merged = merged[:notificationLimit]
	}
	return merged
}
