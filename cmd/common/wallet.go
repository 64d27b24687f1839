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
	"io"
	"strconv"

	"github.com/blinklabs-io/payfile/wallet"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
)

// NewWalletCommand returns the "wallet" command, which shows the balance and
// channels of the wallet returned by openWallet
func NewWalletCommand(openWallet func(cmd *cobra.Command) (*wallet.Wallet, error)) *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Show the wallet balance and open payment channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer w.Close()
			return PrintWallet(cmd.OutOrStdout(), w)
		},
	}
	depositCmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Add funds (in satoshis) to the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount: %s", args[0])
			}
			w, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Deposit(btcutil.Amount(amount)); err != nil {
				return err
			}
			return PrintWallet(cmd.OutOrStdout(), w)
		},
	}
	walletCmd.AddCommand(depositCmd)
	return walletCmd
}

// PrintWallet writes the balance and channel records of w
func PrintWallet(out io.Writer, w *wallet.Wallet) error {
	balance, err := w.Balance()
	if err != nil {
		return err
	}
	channels, err := w.Channels()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wallet: %s\n", w.Path())
	fmt.Fprintf(out, "Balance: %s\n", balance)
	for _, rec := range channels {
		fmt.Fprintf(out, "  %s\n", rec)
	}
	return nil
}
