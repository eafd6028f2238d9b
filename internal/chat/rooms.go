package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/transport"
)

// invoker sends best-effort invocations over the live connection.
type invoker interface {
	Invoke(ctx context.Context, method string, data any) error
}

// roomRef is the payload of room-scoped invocations.
type roomRef struct {
	RoomID int64 `json:"roomId"`
}

// Rooms joins and leaves chat rooms. Joining has two legs: the REST join is
// the authoritative one ("already joined" counts as success), the live
// invocation only subscribes this connection to pushes and may fail without
// failing the join.
type Rooms struct {
	api  API
	conn invoker
	log  zerolog.Logger
}

// NewRooms builds the room controller.
func NewRooms(api API, conn invoker, logger zerolog.Logger) *Rooms {
	return &Rooms{api: api, conn: conn, log: logger}
}

// Join performs both join legs for roomID.
func (r *Rooms) Join(ctx context.Context, roomID int64) error {
	if err := r.api.JoinRoom(ctx, roomID); err != nil && !alreadyJoined(err) {
		return fmt.Errorf("join room %d: %w", roomID, err)
	}
	if err := r.conn.Invoke(ctx, transport.MethodJoinRoom, roomRef{RoomID: roomID}); err != nil {
		// History fetch still works over REST; pushes catch up on reconnect.
		r.log.Warn().Err(err).Int64("room_id", roomID).Msg("live join failed")
	}
	return nil
}

// Leave unsubscribes the live connection from roomID.
func (r *Rooms) Leave(ctx context.Context, roomID int64) {
	if err := r.conn.Invoke(ctx, transport.MethodLeaveRoom, roomRef{RoomID: roomID}); err != nil {
		r.log.Debug().Err(err).Int64("room_id", roomID).Msg("live leave failed")
	}
}

// NewSession creates an independent surface-scoped session. Each UI surface
// (widget, full page) owns exactly one.
func (r *Rooms) NewSession(name string) *Session {
	return &Session{
		id:    uuid.NewString(),
		name:  name,
		rooms: r,
	}
}

// statusCoder is implemented by REST errors carrying an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// alreadyJoined reports whether err is the idempotent-join rejection.
func alreadyJoined(err error) bool {
	var coded statusCoder
	return errors.As(err, &coded) && coded.StatusCode() == http.StatusBadRequest
}

// Session tracks the single current room of one UI surface. Retargeting
// clears the held room before resolving the next one, so a concurrent read
// can never observe the old room as current while the switch is in flight.
type Session struct {
	id    string
	name  string
	rooms *Rooms

	mu      sync.Mutex
	current *ChatRoom
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Current returns a copy of the session's current room, or nil.
func (s *Session) Current() *ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	room := *s.current
	return &room
}

// JoinRoom makes roomID the session's current room.
func (s *Session) JoinRoom(ctx context.Context, room ChatRoom) error {
	prev := s.release()
	if prev != nil && prev.ID != room.ID {
		s.rooms.Leave(ctx, prev.ID)
	}
	if err := s.rooms.Join(ctx, room.ID); err != nil {
		return err
	}
	s.set(&room)
	return nil
}

// SwitchToSupport retargets the session to the caller's support room.
// Repeated calls resolve to the same room; the server owns that idempotence.
func (s *Session) SwitchToSupport(ctx context.Context) (*ChatRoom, error) {
	return s.retarget(ctx, func() (*ChatRoom, error) {
		return s.rooms.api.SupportRoom(ctx)
	})
}

// SwitchToPrivate retargets the session to the private room with targetUserID.
func (s *Session) SwitchToPrivate(ctx context.Context, targetUserID int64) (*ChatRoom, error) {
	return s.retarget(ctx, func() (*ChatRoom, error) {
		return s.rooms.api.PrivateRoom(ctx, targetUserID)
	})
}

// LeaveCurrent releases the current room, if any.
func (s *Session) LeaveCurrent(ctx context.Context) {
	if prev := s.release(); prev != nil {
		s.rooms.Leave(ctx, prev.ID)
	}
}

func (s *Session) retarget(ctx context.Context, resolve func() (*ChatRoom, error)) (*ChatRoom, error) {
	// Null the held room before resolving: the next read of Current must not
	// see the old room while the new one is still being looked up.
	prev := s.release()
	if prev != nil {
		s.rooms.Leave(ctx, prev.ID)
	}

	room, err := resolve()
	if err != nil {
		return nil, err
	}
	if err := s.rooms.Join(ctx, room.ID); err != nil {
		return nil, err
	}
	s.set(room)
	return room, nil
}

func (s *Session) release() *ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = nil
	return prev
}

func (s *Session) set(room *ChatRoom) {
	s.mu.Lock()
	s.current = room
	s.mu.Unlock()
}
