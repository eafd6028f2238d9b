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

func roomsCmd(state *cliState) *cobra.Command {
	var (
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List chat rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyTokenFlag(cmd, &state.cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(state.cfg, state.log)
			if err != nil {
				return err
			}
			defer application.Close()

			rooms, err := application.Service().ListRooms(ctx, page, pageSize)
			if err != nil {
				return err
			}
			for _, room := range rooms {
				preview := ""
				if room.LastMessage != nil {
					preview = fmt.Sprintf(" | %s: %s", room.LastMessage.SenderName, room.LastMessage.Content)
				}
				fmt.Printf("%6d  %-8s  %-24s %3d members%s\n",
					room.ID, room.Type, room.Name, room.MemberCount, preview)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "rooms per page")
	return cmd
}
