package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/examchat/internal/app"
	"github.com/vovakirdan/examchat/internal/chat"
	"github.com/vovakirdan/examchat/internal/transport"
)

func runCmd(state *cliState) *cobra.Command {
	var (
		roomID       int64
		support      bool
		targetUserID int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyTokenFlag(cmd, &state.cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(state.cfg, state.log)
			if err != nil {
				return err
			}
			defer application.Close()
			svc := application.Service()

			if err := svc.Connect(ctx); err != nil {
				state.log.Warn().Err(err).Msg("live connection unavailable, continuing REST-only")
			}

			session := svc.NewSession("cli")
			room, err := resolveRoom(ctx, svc, session, roomID, support, targetUserID)
			if err != nil {
				return err
			}
			defer svc.CloseRoom(context.Background(), session)

			page, err := svc.History(ctx, room.ID, 1, state.cfg.PageSize)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			for _, msg := range page.Messages {
				printMessage(msg)
			}

			unsubMsg := svc.OnMessageReceived(func(msg chat.ChatMessage) {
				if msg.RoomID == room.ID {
					printMessage(msg)
				}
			})
			defer unsubMsg()

			unsubTyping := svc.SubscribeTyping(func(typingRoom int64, typists []chat.Typist) {
				if typingRoom != room.ID || len(typists) == 0 {
					return
				}
				names := make([]string, 0, len(typists))
				for _, t := range typists {
					names = append(names, t.Name)
				}
				fmt.Printf("-- %s typing...\n", strings.Join(names, ", "))
			})
			defer unsubTyping()

			unsubNotify := svc.OnNotificationReceived(func(item chat.NotificationItem) {
				fmt.Printf("** %s: %s\n", item.Title, item.Message)
			})
			defer unsubNotify()

			unsubState := svc.OnStateChange(func(s transport.State) {
				fmt.Printf("-- connection %s\n", s)
			})
			defer unsubState()

			fmt.Printf("Joined %s (room %d). Type to send, /quit to exit.\n", room.Name, room.ID)
			repl(ctx, svc, room.ID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&roomID, "room", 0, "room id to join")
	cmd.Flags().BoolVar(&support, "support", false, "join your support room")
	cmd.Flags().Int64Var(&targetUserID, "user", 0, "open a private room with this user id")
	return cmd
}

func resolveRoom(ctx context.Context, svc *chat.Service, session *chat.Session, roomID int64, support bool, targetUserID int64) (*chat.ChatRoom, error) {
	switch {
	case support:
		return session.SwitchToSupport(ctx)
	case targetUserID != 0:
		return session.SwitchToPrivate(ctx, targetUserID)
	case roomID != 0:
		room := chat.ChatRoom{ID: roomID, Name: fmt.Sprintf("room %d", roomID)}
		if err := session.JoinRoom(ctx, room); err != nil {
			return nil, err
		}
		return session.Current(), nil
	default:
		return session.SwitchToSupport(ctx)
	}
}

// repl reads lines from stdin and sends them until EOF, /quit, or signal.
func repl(ctx context.Context, svc *chat.Service, roomID int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			svc.Keystroke(ctx, roomID)
			if _, err := svc.Send(ctx, roomID, chat.MessageDraft{Content: line}); err != nil {
				fmt.Printf("!! send failed, draft kept: %s\n", line)
			}
		}
	}
}

func printMessage(msg chat.ChatMessage) {
	stamp := msg.SentAt.Format("15:04:05")
	switch msg.Type {
	case chat.MessageTypeSystem:
		fmt.Printf("[%s] * %s\n", stamp, msg.Content)
	default:
		fmt.Printf("[%s] %s: %s\n", stamp, msg.SenderName, msg.Content)
	}
}
