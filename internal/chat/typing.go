package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/observability"
	"github.com/vovakirdan/examchat/internal/transport"
)

// Typing coordinates typing indicators in both directions. Locally it sends
// a start signal on every keystroke and a debounced stop after inactivity
// (one timer per room, reset per keystroke). Remotely it keeps a per-room
// set of active typists, each expiring on a display TTL unless refreshed.
type Typing struct {
	conn     invoker
	log      zerolog.Logger
	debounce time.Duration
	ttl      time.Duration

	mu         sync.Mutex
	stopTimers map[int64]*time.Timer
	remote     map[int64]map[int64]*remoteTypist
	subs       []typingViewSub
	nextSubID  uint64
}

type remoteTypist struct {
	name  string
	timer *time.Timer
}

type typingViewSub struct {
	id uint64
	fn func(roomID int64, typists []Typist)
}

// NewTyping builds a typing coordinator with the given local debounce and
// remote display TTL.
func NewTyping(conn invoker, debounce, ttl time.Duration, logger zerolog.Logger) *Typing {
	return &Typing{
		conn:       conn,
		log:        logger,
		debounce:   debounce,
		ttl:        ttl,
		stopTimers: make(map[int64]*time.Timer),
		remote:     make(map[int64]map[int64]*remoteTypist),
	}
}

// Keystroke reports local input activity in a room. Every call sends a
// start signal; the stop signal goes out on its own after the debounce
// window passes without another keystroke.
func (t *Typing) Keystroke(ctx context.Context, roomID int64) {
	t.mu.Lock()
	if timer, ok := t.stopTimers[roomID]; ok {
		timer.Reset(t.debounce)
	} else {
		t.stopTimers[roomID] = time.AfterFunc(t.debounce, func() {
			t.Stop(context.Background(), roomID)
		})
	}
	t.mu.Unlock()

	if err := t.conn.Invoke(ctx, transport.MethodStartTyping, roomRef{RoomID: roomID}); err != nil {
		t.log.Debug().Err(err).Int64("room_id", roomID).Msg("start typing signal failed")
	}
}

// Stop cancels the pending debounce and sends a stop signal immediately,
// e.g. right after a message is sent.
func (t *Typing) Stop(ctx context.Context, roomID int64) {
	t.mu.Lock()
	timer, ok := t.stopTimers[roomID]
	if ok {
		timer.Stop()
		delete(t.stopTimers, roomID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	if err := t.conn.Invoke(ctx, transport.MethodStopTyping, roomRef{RoomID: roomID}); err != nil {
		t.log.Debug().Err(err).Int64("room_id", roomID).Msg("stop typing signal failed")
	}
}

// HandleRemote consumes a remote typing signal. Starts are idempotent and
// refresh the TTL; a stop for an unknown typist (including one arriving
// before its delayed start) is a no-op.
func (t *Typing) HandleRemote(roomID, userID int64, userName string, typing bool) {
	t.mu.Lock()
	if typing {
		room, ok := t.remote[roomID]
		if !ok {
			room = make(map[int64]*remoteTypist)
			t.remote[roomID] = room
		}
		if existing, ok := room[userID]; ok {
			existing.name = userName
			existing.timer.Reset(t.ttl)
		} else {
			room[userID] = &remoteTypist{
				name: userName,
				timer: time.AfterFunc(t.ttl, func() {
					t.expire(roomID, userID)
				}),
			}
		}
	} else {
		t.removeLocked(roomID, userID)
	}
	typists := t.activeLocked(roomID)
	subs := append([]typingViewSub(nil), t.subs...)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.fn(roomID, typists)
	}
}

// Active returns the room's current typists, ordered by name.
func (t *Typing) Active(roomID int64) []Typist {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(roomID)
}

// Subscribe registers a callback invoked whenever a room's typist set
// changes. The returned function removes the subscription.
func (t *Typing) Subscribe(fn func(roomID int64, typists []Typist)) (unsubscribe func()) {
	t.mu.Lock()
	t.nextSubID++
	id := t.nextSubID
	t.subs = append(t.subs, typingViewSub{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, sub := range t.subs {
			if sub.id == id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// expire removes a typist whose TTL ran out without a refresh.
func (t *Typing) expire(roomID, userID int64) {
	t.mu.Lock()
	room, ok := t.remote[roomID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, ok := room[userID]; !ok {
		t.mu.Unlock()
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(t.remote, roomID)
	}
	typists := t.activeLocked(roomID)
	subs := append([]typingViewSub(nil), t.subs...)
	t.mu.Unlock()

	observability.IncTypingExpired()
	for _, sub := range subs {
		sub.fn(roomID, typists)
	}
}

func (t *Typing) removeLocked(roomID, userID int64) {
	room, ok := t.remote[roomID]
	if !ok {
		return
	}
	if typist, ok := room[userID]; ok {
		typist.timer.Stop()
		delete(room, userID)
	}
	if len(room) == 0 {
		delete(t.remote, roomID)
	}
}

func (t *Typing) activeLocked(roomID int64) []Typist {
	room := t.remote[roomID]
	typists := make([]Typist, 0, len(room))
	for userID, typist := range room {
		typists = append(typists, Typist{UserID: userID, Name: typist.name})
	}
	sort.Slice(typists, func(i, j int) bool {
		return typists[i].Name < typists[j].Name
	})
	return typists
}
