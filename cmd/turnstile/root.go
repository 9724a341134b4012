// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/turnstile-auth/turnstile/internal/config"
	"github.com/turnstile-auth/turnstile/internal/xdg"
)

// configEnv names the config file when --config is not given.
const configEnv = "TURNSTILE_CONFIG"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Turnstile CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turnstile",
		Short: "Turnstile - session-based authentication service",
		Long: `Turnstile serves credential and Google sign-in, email verification,
password reset and sliding sessions over a JSON HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $"+configEnv+" or the XDG config file)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := cmd.Root().Version
			if v == "" {
				v = version
			}
			cmd.Println("turnstile " + v)
			return nil
		},
	}
}

// configPath returns --config, then $TURNSTILE_CONFIG, then the XDG config
// file when one exists.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return xdg.FindConfig()
}

// loadConfig loads and validates the full configuration.
func loadConfig(fs *pflag.FlagSet) (config.Config, error) {
	return config.Load(configPath(), fs)
}
