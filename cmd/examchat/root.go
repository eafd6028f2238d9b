package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/examchat/internal/config"
	"github.com/vovakirdan/examchat/internal/log"
)

// cliState carries config and logger resolved in the root pre-run into
// subcommands.
type cliState struct {
	cfg config.Config
	log *zerolog.Logger
}

func rootCmd() *cobra.Command {
	state := &cliState{}
	var configPath string

	cmd := &cobra.Command{
		Use:           "examchat",
		Short:         "Headless client for the exam platform chat",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bootstrap := log.New("info")
			cfg, path, err := config.Load(bootstrap, configPath)
			if err != nil {
				return err
			}
			state.cfg = cfg
			state.log = log.New(cfg.LogLevel)
			state.log.Debug().Str("config", path).Msg("configuration loaded")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	cmd.PersistentFlags().String("token", "", "session token (overrides config)")

	cmd.AddCommand(runCmd(state))
	cmd.AddCommand(roomsCmd(state))
	cmd.AddCommand(notificationsCmd(state))
	return cmd
}

// applyTokenFlag folds the --token override into config before app wiring.
func applyTokenFlag(cmd *cobra.Command, cfg *config.Config) {
	if token, err := cmd.Flags().GetString("token"); err == nil && token != "" {
		cfg.Token = token
	}
}
