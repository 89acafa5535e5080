// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the hostlink command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hostlink/hostlink/pkg/config"
	"github.com/hostlink/hostlink/pkg/logger"
)

// NewRootCmd creates the root command for the hostlink CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "hostlink",
		DisableAutoGenTag: true,
		Short:             "hostlink discovers, attaches to, and scripts local and remote processes",
		Long: `hostlink is a control-plane daemon and CLI for dynamic process instrumentation.
It discovers attachable targets across the local system, tethered mobile devices, and
configured remote hosts, and exposes a session-oriented attach/script API over each.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("error displaying help: %v", err)
			}
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.Load()
			return logger.Initialize(cfg.Debug)
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("data-dir", "", "Override the loader callback data directory")
	rootCmd.PersistentFlags().Bool("forward", true, "Re-export attached agent sessions over loopback TCP")
	rootCmd.PersistentFlags().StringSlice("remotes", nil, "Remote host:port addresses to discover via the TCP backend")

	bindPFlag(rootCmd, config.KeyDebug, "debug")
	bindPFlag(rootCmd, config.KeyDataDir, "data-dir")
	bindPFlag(rootCmd, config.KeyForward, "forward")
	bindPFlag(rootCmd, config.KeyRemotes, "remotes")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPSCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func bindPFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		logger.Errorf("error binding %s flag: %v", flag, err)
	}
}
