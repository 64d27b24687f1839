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

package main

import (
	"time"

	"github.com/blinklabs-io/payfile/cmd/common"
	"github.com/blinklabs-io/payfile/config"
	"github.com/blinklabs-io/payfile/wallet"
	"github.com/spf13/cobra"
)

type clientFlags struct {
	common.GlobalFlags
	server        string
	wallet        string
	settleTimeout time.Duration
}

func main() {
	f := &clientFlags{}
	rootCmd := &cobra.Command{
		Use:           "payfile-client",
		Short:         "Download files from a payfile server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f.Register(rootCmd)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&f.server, "server", "", "server address in host[:port] format")
	flags.StringVar(&f.wallet, "wallet", "", "path to the wallet")
	flags.DurationVar(
		&f.settleTimeout,
		"settle-timeout",
		0,
		"how long to wait for the payment channel to settle on exit",
	)
	rootCmd.AddCommand(
		newLsCommand(f),
		newGetCommand(f),
		newSettleCommand(f),
		common.NewWalletCommand(func(cmd *cobra.Command) (*wallet.Wallet, error) {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return nil, err
			}
			return wallet.Open(cfg.Client.Wallet)
		}),
	)
	common.Execute(rootCmd)
}

// loadConfig applies the flags given on the command line over the config
// file
func (f *clientFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := f.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Client.Server = f.server
	}
	if flags.Changed("wallet") {
		cfg.Client.Wallet = f.wallet
	}
	if flags.Changed("settle-timeout") {
		cfg.Client.SettleTimeout = f.settleTimeout
	}
	return cfg, nil
}
