package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus/internal/logger"
	"github.com/portunus-id/portunus/internal/settings"
)

type app struct {
	configFile string
	settings   *settings.Settings
	log        *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "portunus",
		Short:         "Identity and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "path to a settings file (default: ./portunus.yaml or /etc/portunus/portunus.yaml)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		s, err := settings.Load(a.configFile)
		if err != nil {
			return err
		}
		log, err := logger.Init(logger.Config{Level: s.LogLevel, Dev: s.Debug, File: s.LogFile})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		a.settings, a.log = s, log
		return nil
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if a.log != nil {
			_ = a.log.Sync()
		}
	}

	cmd.AddCommand(
		newServeCmd(a),
		newUsersCmd(a),
	)
	return cmd
}
