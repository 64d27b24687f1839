// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/blinklabs-io/payfile/config"
	"github.com/spf13/cobra"
)

// GlobalFlags holds the flags shared by the payfile binaries
type GlobalFlags struct {
	ConfigFile string
	Network    string
	Debug      bool
}

// Register adds the global flags to cmd and its subcommands
func (f *GlobalFlags) Register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(
		&f.ConfigFile,
		"config",
		"",
		"path to TOML config file",
	)
	flags.StringVar(
		&f.Network,
		"network",
		"mainnet",
		"currency network (mainnet, testnet or regtest)",
	)
	flags.BoolVar(&f.Debug, "debug", false, "enable debug logging")
}

// LoadConfig loads the config file and applies any global flags given on the
// command line over it
func (f *GlobalFlags) LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("network") {
		cfg.Network = f.Network
	}
	if flags.Changed("debug") {
		cfg.Debug = f.Debug
	}
	return cfg, nil
}

// NewLogger returns a text logger writing to stderr
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(
		slog.NewTextHandler(
			os.Stderr,
			&slog.HandlerOptions{Level: level},
		),
	)
}

// Execute runs cmd and exits with status 1 if it fails
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}
