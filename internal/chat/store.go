package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/cache"
	"github.com/vovakirdan/examchat/internal/observability"
)

// Store merges REST-fetched history, push-delivered messages, and the
// persisted local cache into one de-duplicated, sentAt-ordered view per
// room. The server-assigned messageId is the sole de-dup key; sent messages
// are not inserted optimistically, they arrive through the same push path
// as everyone else's.
type Store struct {
	api   API
	cache Cache
	log   zerolog.Logger

	mu        sync.Mutex
	rooms     map[int64]*roomView
	epochSeq  uint64
	synthID   int64
	nextSubID uint64
}

type roomView struct {
	// epoch tags in-flight fetches; a response whose epoch no longer matches
	// was issued before the room was left or re-entered and is discarded.
	// Values come from the store-wide sequence, so a room left and re-entered
	// while a fetch is in flight never reuses the epoch that fetch captured.
	epoch   uint64
	msgs    []ChatMessage
	ids     map[int64]struct{}
	subs    []viewSub
	total   int
	hasNext bool
}

type viewSub struct {
	id uint64
	fn func(snapshot []ChatMessage)
}

// NewStore builds a message synchronization store.
func NewStore(api API, c Cache, logger zerolog.Logger) *Store {
	return &Store{
		api:   api,
		cache: c,
		log:   logger,
		rooms: make(map[int64]*roomView),
	}
}

// Enter seeds the room view from the local cache for instant paint, then
// fetches authoritative REST history and replaces the view with the
// de-duplicated server set. When the fetch fails but the cache had content,
// the cached view stands and no error is reported (degraded REST-less mode).
func (s *Store) Enter(ctx context.Context, roomID int64, page, pageSize int) (*HistoryPage, error) {
	s.mu.Lock()
	view := s.ensureLocked(roomID)
	s.epochSeq++
	view.epoch = s.epochSeq
	epoch := view.epoch
	s.mu.Unlock()

	seeded := s.seedFromCache(ctx, roomID, epoch)

	fetched, err := s.api.RoomHistory(ctx, roomID, page, pageSize)
	if err != nil {
		if seeded {
			s.log.Warn().Err(err).Int64("room_id", roomID).Msg("history fetch failed, serving cached view")
			return s.historyPage(roomID), nil
		}
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	msgs := dedupSort(fetched.Messages)

	// Re-check room identity: the surface may have left or re-entered the
	// room while the fetch was in flight.
	s.mu.Lock()
	view, ok := s.rooms[roomID]
	if !ok || view.epoch != epoch {
		s.mu.Unlock()
		observability.IncStaleFetch()
		s.log.Debug().Int64("room_id", roomID).Msg("discarding stale history response")
		return &HistoryPage{
			Room:          fetched.Room,
			Messages:      msgs,
			TotalMessages: fetched.TotalMessages,
			Page:          fetched.Page,
			PageSize:      fetched.PageSize,
			HasNextPage:   fetched.HasNextPage,
		}, nil
	}

	// Server history is authoritative: replace, don't append.
	view.msgs = msgs
	view.ids = idSet(msgs)
	view.total = fetched.TotalMessages
	view.hasNext = fetched.HasNextPage
	snap := snapshot(view.msgs)
	subs := append([]viewSub(nil), view.subs...)
	s.mu.Unlock()

	observability.AddMessagesMerged(len(msgs))
	s.persist(ctx, roomID, snap)
	notify(subs, snap)

	return &HistoryPage{
		Room:          fetched.Room,
		Messages:      snap,
		TotalMessages: fetched.TotalMessages,
		Page:          fetched.Page,
		PageSize:      fetched.PageSize,
		HasNextPage:   fetched.HasNextPage,
	}, nil
}

// Leave drops the room view. A history fetch still in flight for the room
// captured an epoch no future view can be assigned, so it cannot touch
// whatever room is current next, even the same room re-entered.
func (s *Store) Leave(roomID int64) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

// Apply merges one push-delivered message into its room's view. Deliveries
// for rooms no surface has entered are ignored; duplicates of an already
// known messageId are dropped.
func (s *Store) Apply(msg ChatMessage) {
	if msg.ID <= 0 {
		s.log.Debug().Int64("room_id", msg.RoomID).Msg("dropping pushed message without server id")
		return
	}

	s.mu.Lock()
	view, ok := s.rooms[msg.RoomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, dup := view.ids[msg.ID]; dup {
		s.mu.Unlock()
		observability.IncDuplicateMessage()
		return
	}
	view.msgs = insertSorted(view.msgs, msg)
	view.ids[msg.ID] = struct{}{}
	view.total++
	snap := snapshot(view.msgs)
	subs := append([]viewSub(nil), view.subs...)
	s.mu.Unlock()

	observability.AddMessagesMerged(1)
	s.persist(context.Background(), msg.RoomID, snap)
	notify(subs, snap)
}

// Send posts a draft via REST. The stored copy is returned to the caller but
// never inserted here: the authoritative copy arrives through the push path
// and is de-duplicated like any other delivery. On failure a synthetic
// system message with a client-generated non-positive id is surfaced in the
// view and the error is returned so the caller can refill the compose box.
func (s *Store) Send(ctx context.Context, roomID int64, draft MessageDraft) (*ChatMessage, error) {
	if draft.Type == "" {
		draft.Type = MessageTypeText
	}

	msg, err := s.api.SendMessage(ctx, roomID, draft)
	if err != nil {
		observability.IncSendFailure()
		s.insertSynthetic(roomID, "could not send, please retry")
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// Subscribe registers a render callback for a room's view. The callback
// receives immutable snapshots; the returned function removes exactly this
// subscription.
func (s *Store) Subscribe(roomID int64, fn func(snapshot []ChatMessage)) (unsubscribe func()) {
	s.mu.Lock()
	view := s.ensureLocked(roomID)
	s.nextSubID++
	id := s.nextSubID
	view.subs = append(view.subs, viewSub{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		view, ok := s.rooms[roomID]
		if !ok {
			return
		}
		for i, sub := range view.subs {
			if sub.id == id {
				view.subs = append(view.subs[:i], view.subs[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the room's current ordered view.
func (s *Store) Snapshot(roomID int64) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return snapshot(view.msgs)
}

func (s *Store) historyPage(roomID int64) *HistoryPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.rooms[roomID]
	if !ok {
		return &HistoryPage{Messages: []ChatMessage{}}
	}
	return &HistoryPage{
		Messages:      snapshot(view.msgs),
		TotalMessages: view.total,
		HasNextPage:   view.hasNext,
	}
}

// seedFromCache paints the view from the persisted cache, if any. Reports
// whether anything was applied.
func (s *Store) seedFromCache(ctx context.Context, roomID int64, epoch uint64) bool {
	raw, ok := s.cache.Get(ctx, cache.MessagesKey(roomID))
	observability.CacheRead(ok)
	if !ok {
		return false
	}

	var msgs []ChatMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		// Corrupt cache entries behave like misses.
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("corrupt message cache entry")
		return false
	}
	msgs = dedupSort(msgs)
	if len(msgs) == 0 {
		return false
	}

	s.mu.Lock()
	view, ok := s.rooms[roomID]
	if !ok || view.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	view.msgs = msgs
	view.ids = idSet(msgs)
	snap := snapshot(view.msgs)
	subs := append([]viewSub(nil), view.subs...)
	s.mu.Unlock()

	notify(subs, snap)
	return true
}

func (s *Store) insertSynthetic(roomID int64, content string) {
	s.mu.Lock()
	view, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.synthID--
	msg := ChatMessage{
		ID:      s.synthID,
		RoomID:  roomID,
		Type:    MessageTypeSystem,
		Content: content,
		SentAt:  now(),
	}
	view.msgs = append(view.msgs, msg)
	snap := snapshot(view.msgs)
	subs := append([]viewSub(nil), view.subs...)
	s.mu.Unlock()

	notify(subs, snap)
}

// persist writes the view back to the cache, dropping synthetic entries so
// local error placeholders never resurface after a reload.
func (s *Store) persist(ctx context.Context, roomID int64, snap []ChatMessage) {
	durable := make([]ChatMessage, 0, len(snap))
	for _, m := range snap {
		if m.ID > 0 {
			durable = append(durable, m)
		}
	}
	data, err := json.Marshal(durable)
	if err != nil {
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("marshal message cache entry")
		return
	}
	s.cache.Set(ctx, cache.MessagesKey(roomID), string(data))
}

func (s *Store) ensureLocked(roomID int64) *roomView {
	view, ok := s.rooms[roomID]
	if !ok {
		view = &roomView{ids: make(map[int64]struct{})}
		s.rooms[roomID] = view
	}
	return view
}

func notify(subs []viewSub, snap []ChatMessage) {
	for _, sub := range subs {
		sub.fn(snap)
	}
}

func snapshot(msgs []ChatMessage) []ChatMessage {
	return append([]ChatMessage(nil), msgs...)
}

func idSet(msgs []ChatMessage) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if m.ID > 0 {
			ids[m.ID] = struct{}{}
		}
	}
	return ids
}

// dedupSort drops repeated messageIds (the later delivery wins) and orders
// by ascending sentAt. Neither the cache nor the server set is trusted to
// arrive sorted.
func dedupSort(in []ChatMessage) []ChatMessage {
	seen := make(map[int64]int, len(in))
	out := make([]ChatMessage, 0, len(in))
	for _, m := range in {
		if m.ID > 0 {
			if at, ok := seen[m.ID]; ok {
				out[at] = m
				continue
			}
			seen[m.ID] = len(out)
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

// insertSorted places m at its sentAt position, after any equal timestamps.
func insertSorted(msgs []ChatMessage, m ChatMessage) []ChatMessage {
	at := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].SentAt.After(m.SentAt)
	})
	msgs = append(msgs, ChatMessage{})
	copy(msgs[at+1:], msgs[at:])
	msgs[at] = m
	return msgs
}
