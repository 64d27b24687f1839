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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blinklabs-io/payfile/cmd/common"
	"github.com/blinklabs-io/payfile/config"
	"github.com/blinklabs-io/payfile/manifest"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/blinklabs-io/payfile/server"
	"github.com/blinklabs-io/payfile/wallet"
	"github.com/spf13/cobra"
)

type serverFlags struct {
	common.GlobalFlags
	dir         string
	listen      string
	port        int
	price       int64
	chunkSize   uint32
	wallet      string
	maxSessions int64
}

func main() {
	f := &serverFlags{}
	rootCmd := &cobra.Command{
		Use:           "payfile-server",
		Short:         "Serve the files in a directory for payment",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	f.Register(rootCmd)
	flags := rootCmd.Flags()
	flags.StringVar(&f.dir, "dir", "", "directory of files to serve")
	flags.StringVar(&f.listen, "listen", "", "address to listen on (default all)")
	flags.IntVar(&f.port, "port", 0, "TCP port to listen on")
	flags.Int64Var(&f.price, "price", 0, "price per chunk in satoshis")
	flags.Uint32Var(&f.chunkSize, "chunk-size", 0, "chunk size in bytes")
	flags.Int64Var(&f.maxSessions, "max-sessions", 0, "maximum concurrent sessions")
	rootCmd.PersistentFlags().StringVar(
		&f.wallet,
		"wallet",
		"",
		"path to the wallet that receives payments",
	)
	rootCmd.AddCommand(
		common.NewWalletCommand(func(cmd *cobra.Command) (*wallet.Wallet, error) {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return nil, err
			}
			return wallet.Open(cfg.Server.Wallet)
		}),
	)
	common.Execute(rootCmd)
}

// loadConfig applies the flags given on the command line over the config
// file
func (f *serverFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := f.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Server.Dir = f.dir
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = f.listen
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("price") {
		cfg.Server.Price = f.price
	}
	if flags.Changed("chunk-size") {
		cfg.Server.ChunkSize = f.chunkSize
	}
	if flags.Changed("max-sessions") {
		cfg.Server.MaxSessions = f.maxSessions
	}
	if flags.Changed("wallet") {
		cfg.Server.Wallet = f.wallet
	}
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	logger := common.NewLogger(cfg.Debug)
	m, err := manifest.Build(
		cfg.Server.Dir,
		cfg.Server.PricePerChunk(),
		cfg.Server.ChunkSize,
	)
	if err != nil {
		return fmt.Errorf("failed to build manifest: %w", err)
	}
	w, err := wallet.Open(cfg.Server.Wallet)
	if err != nil {
		return fmt.Errorf("failed to open wallet: %w", err)
	}
	defer w.Close()
	s, err := server.New(
		server.WithManifest(m),
		server.WithNetwork(cfg.NetworkValue()),
		server.WithListenAddress(cfg.Server.ListenAddress()),
		server.WithLogger(logger),
		server.WithMaxSessions(cfg.Server.MaxSessions),
		server.WithMaxChunksPerRequest(cfg.Server.MaxChunksPerRequest),
		server.WithPaymentChannelFactory(
			paychan.NewServerFactory(
				w,
				paychan.WithChannelLifetime(cfg.Server.ChannelLifetime),
				paychan.WithServerLogger(logger),
			),
		),
		server.WithSessionClosedFunc(func(info server.SessionInfo) {
			logger.Info(
				"session summary",
				"session_id", info.Id.String(),
				"remote_addr", info.RemoteAddr,
				"requests", info.Requests,
				"chunks", info.ChunksServed,
				"unspent", info.Balance.String(),
			)
		}),
	)
	if err != nil {
		return err
	}
	for _, file := range m.Files() {
		logger.Info(
			"serving file",
			"handle", file.Handle,
			"name", file.FileName,
			"size", file.Size,
			"description", file.Description,
		)
	}
	if err := s.Start(); err != nil {
		return err
	}
	logger.Info(
		"server started",
		"address", s.Addr().String(),
		"network", cfg.NetworkValue().String(),
		"price", cfg.Server.PricePerChunk().String(),
		"chunk_size", cfg.Server.ChunkSize,
	)
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")
	if err := s.Stop(); err != nil {
		return err
	}
	balance, err := w.Balance()
	if err != nil {
		return err
	}
	logger.Info("wallet balance", "balance", balance.String())
	return nil
}
