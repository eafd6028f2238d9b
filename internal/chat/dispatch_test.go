package chat

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDispatchFollowsRegistrationOrder(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	var order []string
	r.OnMessageReceived(func(ChatMessage) { order = append(order, "first") })
	r.OnMessageReceived(func(ChatMessage) { order = append(order, "second") })
	r.OnMessageReceived(func(ChatMessage) { order = append(order, "third") })

	r.EmitMessage(testMsg(1, 1, 0))
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("wrong dispatch order: %v", order)
	}
}

func TestUnsubscribeRemovesExactlyOneListener(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	var a, b int
	unsubA := r.OnMessageReceived(func(ChatMessage) { a++ })
	r.OnMessageReceived(func(ChatMessage) { b++ })

	r.EmitMessage(testMsg(1, 1, 0))
	unsubA()
	unsubA() // second call must be harmless
	r.EmitMessage(testMsg(2, 1, 0))

	if a != 1 {
		t.Fatalf("unsubscribed listener ran %d times", a)
	}
	if b != 2 {
		t.Fatalf("surviving listener ran %d times", b)
	}
}

func TestPanickingListenerDoesNotStopDispatch(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	reached := false
	r.OnMessageReceived(func(ChatMessage) { panic("listener bug") })
	r.OnMessageReceived(func(ChatMessage) { reached = true })

	r.EmitMessage(testMsg(1, 1, 0))
	if !reached {
		t.Fatal("panic in one listener starved the rest")
	}
}

func TestTypingAndNotificationDispatch(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	var typingCalls int
	r.OnUserTyping(func(roomID, userID int64, userName string, typing bool) {
		typingCalls++
		if roomID != 1 || userID != 7 || userName != "alice" || !typing {
			t.Errorf("wrong typing payload: %d %d %q %v", roomID, userID, userName, typing)
		}
	})
	r.EmitTyping(1, 7, "alice", true)
	if typingCalls != 1 {
		t.Fatalf("typing dispatched %d times", typingCalls)
	}

	var got NotificationItem
	unsub := r.OnNotificationReceived(func(item NotificationItem) { got = item })
	r.EmitNotification(NotificationItem{ID: 5, Title: "Exam graded"})
	if got.ID != 5 {
		t.Fatalf("notification not dispatched: %+v", got)
	}

	unsub()
	r.EmitNotification(NotificationItem{ID: 6})
	if got.ID != 5 {
		t.Fatal("unsubscribed notification listener still invoked")
	}
}
