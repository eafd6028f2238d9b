package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/examchat/internal/chat"
	"github.com/vovakirdan/examchat/internal/creds"
)

func testClient(t *testing.T, router *gin.Engine) *Client {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	provider := creds.NewProvider(creds.Static{"session_token": "test-token"}, "session_token")
	return NewClient(srv.URL, provider, 5*time.Second, zerolog.Nop())
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestAuthorizationHeaderInjected(t *testing.T) {
	router := newRouter()
	var gotAuth string
	router.GET("/rooms", func(c *gin.Context) {
		gotAuth = c.GetHeader("Authorization")
		c.JSON(http.StatusOK, []chat.ChatRoom{})
	})

	client := testClient(t, router)
	_, err := client.ListRooms(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestListRoomsPassesPagination(t *testing.T) {
	router := newRouter()
	router.GET("/rooms", func(c *gin.Context) {
		assert.Equal(t, "2", c.Query("page"))
		assert.Equal(t, "25", c.Query("pageSize"))
		c.JSON(http.StatusOK, []chat.ChatRoom{
			{ID: 1, Name: "Algebra", Type: chat.RoomTypeCourse},
			{ID: 2, Name: "Support", Type: chat.RoomTypeSupport},
		})
	})

	client := testClient(t, router)
	rooms, err := client.ListRooms(context.Background(), 2, 25)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, chat.RoomTypeCourse, rooms[0].Type)
}

func TestRoomHistoryDecodesWirePayload(t *testing.T) {
	router := newRouter()
	router.GET("/rooms/7", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"messages": []gin.H{
				{"messageId": 1, "roomId": 7, "content": "hi", "sentAt": "2026-03-10T12:00:00Z"},
			},
			"totalMessages": 40,
			"hasNextPage":   true,
		})
	})

	client := testClient(t, router)
	page, err := client.RoomHistory(context.Background(), 7, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, int64(1), page.Messages[0].ID)
	assert.Equal(t, 40, page.TotalMessages)
	assert.True(t, page.HasNextPage)
}

func TestRoomHistoryToleratesUppercaseMessages(t *testing.T) {
	router := newRouter()
	router.GET("/rooms/7", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"Messages": []gin.H{
				{"messageId": 3, "roomId": 7, "content": "legacy shape"},
			},
		})
	})

	client := testClient(t, router)
	page, err := client.RoomHistory(context.Background(), 7, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, int64(3), page.Messages[0].ID)
}

func TestRoomHistoryDegradesOnUnexpectedShape(t *testing.T) {
	router := newRouter()
	router.GET("/rooms/7", func(c *gin.Context) {
		c.JSON(http.StatusOK, []int{1, 2, 3})
	})

	client := testClient(t, router)
	page, err := client.RoomHistory(context.Background(), 7, 2, 30)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 30, page.PageSize)
}

func TestSendMessageRoundTrip(t *testing.T) {
	router := newRouter()
	router.POST("/rooms/7", func(c *gin.Context) {
		var draft chat.MessageDraft
		require.NoError(t, c.ShouldBindJSON(&draft))
		assert.Equal(t, "hello", draft.Content)
		c.JSON(http.StatusCreated, chat.ChatMessage{ID: 11, RoomID: 7, Content: draft.Content})
	})

	client := testClient(t, router)
	msg, err := client.SendMessage(context.Background(), 7, chat.MessageDraft{Content: "hello", Type: chat.MessageTypeText})
	require.NoError(t, err)
	assert.Equal(t, int64(11), msg.ID)
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	router := newRouter()
	router.POST("/rooms/7/join", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "already a member"})
	})

	client := testClient(t, router)
	err := client.JoinRoom(context.Background(), 7)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	assert.Contains(t, apiErr.Error(), "already a member")
}

func TestErrorMessageSniffedAcrossCasings(t *testing.T) {
	cases := []struct {
		name string
		body gin.H
		want string
	}{
		{"lowercase message", gin.H{"message": "nope"}, "nope"},
		{"uppercase message", gin.H{"Message": "Nope"}, "Nope"},
		{"error key", gin.H{"error": "denied"}, "denied"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter()
			router.GET("/notifications", func(c *gin.Context) {
				c.JSON(http.StatusForbidden, tc.body)
			})

			client := testClient(t, router)
			_, err := client.Notifications(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSupportRoomResolved(t *testing.T) {
	router := newRouter()
	router.POST("/rooms/support", func(c *gin.Context) {
		c.JSON(http.StatusOK, chat.ChatRoom{ID: 900, Type: chat.RoomTypeSupport, Name: "Support"})
	})

	client := testClient(t, router)
	room, err := client.SupportRoom(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chat.RoomTypeSupport, room.Type)
}

func TestPrivateRoomTargetsUser(t *testing.T) {
	router := newRouter()
	router.POST("/rooms/private/42", func(c *gin.Context) {
		c.JSON(http.StatusOK, chat.ChatRoom{ID: 1042, Type: chat.RoomTypePrivate})
	})

	client := testClient(t, router)
	room, err := client.PrivateRoom(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1042), room.ID)
}

func TestNoAuthorizationHeaderWithoutToken(t *testing.T) {
	router := newRouter()
	var gotAuth string
	router.GET("/notifications", func(c *gin.Context) {
		gotAuth = c.GetHeader("Authorization")
		c.JSON(http.StatusOK, []chat.NotificationItem{})
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	provider := creds.NewProvider(creds.Static{}, "session_token")
	client := NewClient(srv.URL, provider, 5*time.Second, zerolog.Nop())

	_, err := client.Notifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}
