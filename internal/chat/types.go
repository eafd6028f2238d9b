// Package chat implements the real-time chat synchronization core: one
// shared connection to the messaging backend, reconciled with REST history
// and a persisted local cache, fanned out to any number of independently
// mounted surfaces.
package chat

import (
	"context"
	"time"
)

// now is a hook for tests that pin timestamps.
var now = time.Now

// MessageType classifies chat message content.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// RoomType classifies chat rooms.
type RoomType string

const (
	RoomTypeGeneral RoomType = "general"
	RoomTypeCourse  RoomType = "course"
	RoomTypeExam    RoomType = "exam"
	RoomTypePrivate RoomType = "private"
	RoomTypeSupport RoomType = "support"
)

// ChatMessage is a message as delivered by the server. The server-assigned
// ID is the sole de-duplication key; locally synthesized messages carry a
// non-positive ID and are never matched against future arrivals.
type ChatMessage struct {
	ID             int64         `json:"messageId"`
	RoomID         int64         `json:"roomId"`
	SenderID       int64         `json:"senderId"`
	SenderName     string        `json:"senderName"`
	SenderAvatar   string        `json:"senderAvatar,omitempty"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"messageType"`
	AttachmentURL  string        `json:"attachmentUrl,omitempty"`
	AttachmentName string        `json:"attachmentName,omitempty"`
	ReplyToID      int64         `json:"replyToMessageId,omitempty"`
	ReplyTo        *ReplyPreview `json:"replyTo,omitempty"`
	SentAt         time.Time     `json:"sentAt"`
	IsEdited       bool          `json:"isEdited,omitempty"`
	EditedAt       *time.Time    `json:"editedAt,omitempty"`
}

// ReplyPreview is the embedded snapshot of a replied-to message.
type ReplyPreview struct {
	ID         int64  `json:"messageId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

// ChatRoom is a conversation channel with stable identity and membership.
type ChatRoom struct {
	ID          int64        `json:"roomId"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Type        RoomType     `json:"roomType"`
	CreatedBy   int64        `json:"createdBy"`
	CreatorName string       `json:"creatorName,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	IsActive    bool         `json:"isActive"`
	MemberCount int          `json:"memberCount"`
	LastMessage *ChatMessage `json:"lastMessage,omitempty"`
}

// MessageDraft is the client-side payload of a send call.
type MessageDraft struct {
	Content        string      `json:"content"`
	Type           MessageType `json:"messageType"`
	AttachmentURL  string      `json:"attachmentUrl,omitempty"`
	AttachmentName string      `json:"attachmentName,omitempty"`
	ReplyToID      int64       `json:"replyToMessageId,omitempty"`
}

// HistoryPage is one page of a room's REST-fetched message history.
type HistoryPage struct {
	Room          *ChatRoom     `json:"room,omitempty"`
	Messages      []ChatMessage `json:"messages"`
	TotalMessages int           `json:"totalMessages"`
	Page          int           `json:"page"`
	PageSize      int           `json:"pageSize"`
	HasNextPage   bool          `json:"hasNextPage"`
}

// NotificationItem is a room-independent cross-cutting notification.
type NotificationItem struct {
	ID        int64     `json:"notificationId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}

// Typist identifies a user currently typing in a room.
type Typist struct {
	UserID int64
	Name   string
}

// API is the REST surface the core consumes. Implemented by rest.Client;
// tests substitute fakes.
type API interface {
	// ListRooms returns a page of rooms visible to the current user.
	ListRooms(ctx context.Context, page, pageSize int) ([]ChatRoom, error)

	// RoomHistory returns one page of a room's message history.
	RoomHistory(ctx context.Context, roomID int64, page, pageSize int) (*HistoryPage, error)

	// SendMessage posts a new message to a room and returns the stored copy.
	SendMessage(ctx context.Context, roomID int64, draft MessageDraft) (*ChatMessage, error)

	// JoinRoom registers the current user as a room member.
	JoinRoom(ctx context.Context, roomID int64) error

	// SupportRoom resolves the caller's support room, creating it on first use.
	SupportRoom(ctx context.Context) (*ChatRoom, error)

	// PrivateRoom resolves the private room with target, creating it on first use.
	PrivateRoom(ctx context.Context, targetUserID int64) (*ChatRoom, error)

	// Notifications returns the current user's notifications.
	Notifications(ctx context.Context) ([]NotificationItem, error)
}

// Cache is the local persisted cache contract. Read and write failures are
// the implementation's problem to swallow: a broken cache behaves like an
// empty one and must never fail a caller.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}
