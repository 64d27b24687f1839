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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/blinklabs-io/payfile/client"
	"github.com/blinklabs-io/payfile/cmd/common"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/blinklabs-io/payfile/wallet"
	"github.com/spf13/cobra"
)

// session is a connection to the server with the wallet that pays for it
type session struct {
	client *client.Client
	wallet *wallet.Wallet
}

func (f *clientFlags) connect(ctx context.Context, cmd *cobra.Command, opts ...client.ClientOptionFunc) (*session, error) {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	logger := common.NewLogger(cfg.Debug)
	w, err := wallet.Open(cfg.Client.Wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet: %w", err)
	}
	options := []client.ClientOptionFunc{
		client.WithNetwork(cfg.NetworkValue()),
		client.WithWallet(w),
		client.WithPaymentChannel(
			paychan.NewWalletClient(w, paychan.WithClientLogger(logger)),
		),
		client.WithLogger(logger),
		client.WithSettleTimeout(cfg.Client.SettleTimeout),
	}
	c, err := client.Dial(ctx, cfg.Client.Server, append(options, opts...)...)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	logger.Debug("connected", "server", cfg.Client.Server)
	return &session{client: c, wallet: w}, nil
}

// close disconnects, settling any open channel, and prints the balance left
func (s *session) close(cmd *cobra.Command) error {
	// Close always returns nil
	_ = s.client.Close()
	balance, err := s.wallet.Balance()
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Balance: %s\n", balance)
	}
	if closeErr := s.wallet.Close(); err == nil {
		err = closeErr
	}
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
}

func newLsCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the files offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			s, err := f.connect(ctx, cmd)
			if err != nil {
				return err
			}
			files, err := s.client.QueryFiles(ctx)
			if err != nil {
				return errors.Join(err, s.close(cmd))
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No files available")
			}
			for _, file := range files {
				fmt.Fprintln(out, file.String())
			}
			return s.close(cmd)
		},
	}
}

func newGetCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <handle> <dir>",
		Short: "Download a file into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid file handle: %s", args[0])
			}
			dir := args[1]
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("not a directory: %s", dir)
			}
			ctx, stop := signalContext()
			defer stop()
			out := cmd.OutOrStdout()
			s, err := f.connect(
				ctx,
				cmd,
				client.WithProgressFunc(func(file *client.File, bytesDownloaded int64) {
					fmt.Fprintf(
						out,
						"\r%s: %d/%d bytes",
						file.FileName,
						bytesDownloaded,
						file.Size,
					)
				}),
			)
			if err != nil {
				return err
			}
			if err := download(ctx, s, handle, dir, out); err != nil {
				return errors.Join(err, s.close(cmd))
			}
			return s.close(cmd)
		},
	}
}

func download(ctx context.Context, s *session, handle int, dir string, out io.Writer) error {
	files, err := s.client.QueryFiles(ctx)
	if err != nil {
		return err
	}
	var file *client.File
	for _, tmpFile := range files {
		if tmpFile.Handle == handle {
			file = tmpFile
			break
		}
	}
	if file == nil {
		return fmt.Errorf("%w: %d", client.ErrUnknownFile, handle)
	}
	fmt.Fprintf(out, "Downloading %s for %s\n", file.FileName, file.Price())
	path := filepath.Join(dir, filepath.Base(file.FileName))
	sink, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.client.DownloadFile(ctx, file, sink); err != nil {
		// The sink stays open if the download never started
		_ = sink.Close()
		_ = os.Remove(path)
		return err
	}
	fmt.Fprintf(out, "\nSaved %s\n", path)
	return nil
}

func newSettleCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Settle the payment channel with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			s, err := f.connect(ctx, cmd)
			if err != nil {
				return err
			}
			if err := s.client.SettlePaymentChannel(ctx); err != nil {
				return errors.Join(err, s.close(cmd))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Payment channel settled")
			return s.close(cmd)
		},
	}
}
