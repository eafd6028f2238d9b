package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/examchat/internal/app"
)

func notificationsCmd(state *cliState) *cobra.Command {
	var ack bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications",
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

			items := svc.LoadNotifications(ctx)
			for _, item := range items {
				marker := " "
				if !item.IsRead {
					marker = "*"
				}
				fmt.Printf("%s %s  %s: %s\n",
					marker, item.CreatedAt.Format("2006-01-02 15:04"), item.Title, item.Message)
			}
			if len(items) == 0 {
				fmt.Println("no notifications")
			}
			if ack {
				svc.MarkNotificationsSeen()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ack, "ack", false, "clear the unread indicator")
	return cmd
}
