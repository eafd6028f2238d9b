// Package rest is the thin JSON client for the chat endpoints of the exam
// platform API. It injects the session credential, surfaces structured HTTP
// errors, and tolerates loosely shaped payloads; everything above that is
// the sync core's business.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/chat"
	"github.com/vovakirdan/examchat/internal/creds"
)

// APIError is a non-2xx response with whatever message the server attached.
type APIError struct {
	Status  int
	Message string
}

// StatusCode returns the HTTP status of the failed request.
func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Client talks to the chat REST API.
type Client struct {
	base  string
	http  *http.Client
	creds *creds.Provider
	log   zerolog.Logger
}

// NewClient builds a client for the API rooted at baseURL.
func NewClient(baseURL string, provider *creds.Provider, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		http:  &http.Client{Timeout: timeout},
		creds: provider,
		log:   logger,
	}
}

// ListRooms returns a page of rooms visible to the current user.
func (c *Client) ListRooms(ctx context.Context, page, pageSize int) ([]chat.ChatRoom, error) {
	var rooms []chat.ChatRoom
	if err := c.do(ctx, http.MethodGet, "/rooms", pageQuery(page, pageSize), nil, &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// RoomHistory returns one page of a room's message history. Unexpected
// payload shapes degrade to an empty page rather than an error.
func (c *Client) RoomHistory(ctx context.Context, roomID int64, page, pageSize int) (*chat.HistoryPage, error) {
	var raw json.RawMessage
	path := "/rooms/" + strconv.FormatInt(roomID, 10)
	if err := c.do(ctx, http.MethodGet, path, pageQuery(page, pageSize), nil, &raw); err != nil {
		return nil, fmt.Errorf("room history: %w", err)
	}
	return sniffHistory(raw, page, pageSize, c.log), nil
}

// SendMessage posts a new message to a room and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, roomID int64, draft chat.MessageDraft) (*chat.ChatMessage, error) {
	var msg chat.ChatMessage
	path := "/rooms/" + strconv.FormatInt(roomID, 10)
	if err := c.do(ctx, http.MethodPost, path, nil, draft, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

// JoinRoom registers the current user as a room member.
func (c *Client) JoinRoom(ctx context.Context, roomID int64) error {
	path := "/rooms/" + strconv.FormatInt(roomID, 10) + "/join"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

// SupportRoom resolves the caller's support room, creating it on first use.
func (c *Client) SupportRoom(ctx context.Context) (*chat.ChatRoom, error) {
	var room chat.ChatRoom
	if err := c.do(ctx, http.MethodPost, "/rooms/support", nil, nil, &room); err != nil {
		return nil, fmt.Errorf("support room: %w", err)
	}
	return &room, nil
}

// PrivateRoom resolves the private room with target, creating it on first use.
func (c *Client) PrivateRoom(ctx context.Context, targetUserID int64) (*chat.ChatRoom, error) {
	var room chat.ChatRoom
	path := "/rooms/private/" + strconv.FormatInt(targetUserID, 10)
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &room); err != nil {
		return nil, fmt.Errorf("private room: %w", err)
	}
	return &room, nil
}

// Notifications returns the current user's notifications.
func (c *Client) Notifications(ctx context.Context) ([]chat.NotificationItem, error) {
	var items []chat.NotificationItem
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, nil, &items); err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := c.creds.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: sniffErrorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func pageQuery(page, pageSize int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	return q
}

// sniffErrorMessage pulls a human-readable message out of an error payload
// without assuming a casing convention.
func sniffErrorMessage(data []byte) string {
	var payload struct {
		Message    string `json:"message"`
		MessageAlt string `json:"Message"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.MessageAlt != "":
		return payload.MessageAlt
	default:
		return payload.Error
	}
}

// sniffHistory decodes a history payload, tolerating either messages/Messages
// casing and falling back to an empty page on anything unrecognizable.
func sniffHistory(raw json.RawMessage, page, pageSize int, logger zerolog.Logger) *chat.HistoryPage {
	empty := &chat.HistoryPage{Messages: []chat.ChatMessage{}, Page: page, PageSize: pageSize}
	if len(raw) == 0 {
		return empty
	}

	var payload struct {
		chat.HistoryPage
		MessagesAlt []chat.ChatMessage `json:"Messages"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn().Err(err).Msg("unexpected history payload, treating as empty")
		return empty
	}

	hp := payload.HistoryPage
	if hp.Messages == nil {
		hp.Messages = payload.MessagesAlt
	}
	if hp.Messages == nil {
		hp.Messages = []chat.ChatMessage{}
	}
	if hp.Page == 0 {
		hp.Page = page
	}
	if hp.PageSize == 0 {
		hp.PageSize = pageSize
	}
	return &hp
}
