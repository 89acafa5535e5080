// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config resolves runtime configuration from the CLI flags the
// root command binds into viper. Environment variables are not read.
package config

import (
	"github.com/spf13/viper"
)

// Viper keys the persistent flags are bound to.
const (
	KeyDebug   = "debug"
	KeyDataDir = "data_dir"
	KeyForward = "forward"
	KeyRemotes = "remotes"
)

// Config is the resolved runtime configuration for one CLI invocation.
type Config struct {
	// Debug enables development-mode structured logging.
	Debug bool
	// DataDir overrides the XDG data directory the loader callback socket
	// is created under. Empty means use the platform default.
	DataDir string
	// Forward controls whether attached agent sessions are re-exported
	// over loopback TCP.
	Forward bool
	// Remotes is the set of host:port addresses the TCP backend dials.
	Remotes []string
}

// Load reads the resolved configuration out of viper after flags have
// been bound. Call this once persistent flags have been parsed.
func Load() Config {
	return Config{
		Debug:   viper.GetBool(KeyDebug),
		DataDir: viper.GetString(KeyDataDir),
		Forward: viper.GetBool(KeyForward),
		Remotes: viper.GetStringSlice(KeyRemotes),
	}
}
