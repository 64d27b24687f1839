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

package client_test

import (
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/client"
	"github.com/blinklabs-io/payfile/internal/test"
	"github.com/blinklabs-io/payfile/manifest"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/blinklabs-io/payfile/protocol"
	"github.com/blinklabs-io/payfile/server"
	"github.com/blinklabs-io/payfile/wallet"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type testNetwork struct {
	t            *testing.T
	server       *server.Server
	serverWallet *wallet.Wallet
	clientWallet *wallet.Wallet
	infoChan     chan server.SessionInfo
	content      []byte
}

// newTestNetwork runs a real server over loopback TCP serving a single file
func newTestNetwork(
	t *testing.T,
	size int,
	chunkSize uint32,
	price btcutil.Amount,
	clientBalance btcutil.Amount,
) *testNetwork {
	logger := slog.New(slog.DiscardHandler)
	dir := t.TempDir()
	tn := &testNetwork{
		t:        t,
		infoChan: make(chan server.SessionInfo, 10),
		content:  test.WriteRandomFile(t, dir, "a.bin", size),
	}
	m, err := manifest.Build(dir, price, chunkSize)
	require.NoError(t, err)
	tn.serverWallet, err = wallet.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	tn.clientWallet, err = wallet.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	if clientBalance > 0 {
		require.NoError(t, tn.clientWallet.Deposit(clientBalance))
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tn.server, err = server.New(
		server.WithManifest(m),
		server.WithNetwork(payfile.NetworkRegtest),
		server.WithListener(listener),
		server.WithLogger(logger),
		server.WithPaymentChannelFactory(
			paychan.NewServerFactory(
				tn.serverWallet,
				paychan.WithServerLogger(logger),
			),
		),
		server.WithSessionClosedFunc(func(info server.SessionInfo) {
			tn.infoChan <- info
		}),
	)
	require.NoError(t, err)
	require.NoError(t, tn.server.Start())
	return tn
}

func (tn *testNetwork) dial(opts ...client.ClientOptionFunc) *client.Client {
	logger := slog.New(slog.DiscardHandler)
	options := []client.ClientOptionFunc{
		client.WithNetwork(payfile.NetworkRegtest),
		client.WithWallet(tn.clientWallet),
		client.WithPaymentChannel(
			paychan.NewWalletClient(
				tn.clientWallet,
				paychan.WithClientLogger(logger),
			),
		),
		client.WithLogger(logger),
	}
	c, err := client.Dial(
		testContext(tn.t),
		tn.server.Addr().String(),
		append(options, opts...)...,
	)
	require.NoError(tn.t, err)
	return c
}

func (tn *testNetwork) sessionInfo() server.SessionInfo {
	select {
	case info := <-tn.infoChan:
		return info
	case <-time.After(testTimeout):
		tn.t.Fatal("timed out waiting for session to close")
	}
	return server.SessionInfo{}
}

func (tn *testNetwork) close() {
	require.NoError(tn.t, tn.server.Stop())
	require.NoError(tn.t, tn.serverWallet.Close())
	require.NoError(tn.t, tn.clientWallet.Close())
}

func walletBalance(t *testing.T, w *wallet.Wallet) btcutil.Amount {
	balance, err := w.Balance()
	require.NoError(t, err)
	return balance
}

func TestEndToEndPaidDownload(t *testing.T) {
	defer goleak.VerifyNone(t)
	tn := newTestNetwork(t, 150_000, 50_000, 100, 100_000)
	defer tn.close()
	var chunks int
	c := tn.dial(
		client.WithProgressFunc(func(_ *client.File, _ int64) {
			chunks++
		}),
	)
	ctx := testContext(t)
	files, err := c.QueryFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, btcutil.Amount(300), files[0].Price())
	sink := &testSink{}
	require.NoError(t, c.DownloadFile(ctx, files[0], sink))
	assert.Equal(t, tn.content, sink.Bytes())
	assert.Equal(t, 3, chunks)
	// The channel holds the unspent part of the balance less the fee
	assert.Equal(t, btcutil.Amount(10_000), walletBalance(t, tn.clientWallet))
	remaining, err := c.RemainingBalance()
	require.NoError(t, err)
	assert.Equal(t, btcutil.Amount(99_700), remaining)
	assert.Greater(t, c.ChannelExpiry(), time.Duration(0))
	// Closing the session settles the channel before disconnecting
	require.NoError(t, c.Close())
	info := tn.sessionInfo()
	assert.NoError(t, info.Err)
	assert.Equal(t, 3, info.Requests)
	assert.Equal(t, 3, info.ChunksServed)
	assert.Equal(t, btcutil.Amount(0), info.Balance)
	assert.Equal(t, btcutil.Amount(99_700), walletBalance(t, tn.clientWallet))
	assert.Equal(t, btcutil.Amount(300), walletBalance(t, tn.serverWallet))
	channels, err := tn.clientWallet.Channels()
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestEndToEndInsufficientFunds(t *testing.T) {
	defer goleak.VerifyNone(t)
	tn := newTestNetwork(t, 1000, 50_000, 1_000_000, 10)
	defer tn.close()
	c := tn.dial()
	ctx := testContext(t)
	files, err := c.QueryFiles(ctx)
	require.NoError(t, err)
	err = c.DownloadFile(ctx, files[0], &testSink{})
	assert.ErrorIs(t, err, client.ErrInsufficientFunds)
	require.NoError(t, c.Close())
	info := tn.sessionInfo()
	assert.Equal(t, 0, info.Requests)
	assert.Equal(t, btcutil.Amount(10), walletBalance(t, tn.clientWallet))
	assert.Equal(t, btcutil.Amount(0), walletBalance(t, tn.serverWallet))
}

func TestEndToEndChannelValueRejected(t *testing.T) {
	defer goleak.VerifyNone(t)
	// The server wants 5 chunks worth of channel value
	tn := newTestNetwork(t, 1000, 50_000, 10_000, 25_000)
	defer tn.close()
	c := tn.dial()
	ctx := testContext(t)
	files, err := c.QueryFiles(ctx)
	require.NoError(t, err)
	sink := &testSink{}
	err = c.DownloadFile(ctx, files[0], sink)
	assert.ErrorIs(t, err, client.ErrInsufficientFunds)
	assert.True(t, sink.Closed())
	require.NoError(t, c.Close())
	tn.sessionInfo()
	assert.Equal(t, btcutil.Amount(25_000), walletBalance(t, tn.clientWallet))
}

func TestEndToEndSettle(t *testing.T) {
	defer goleak.VerifyNone(t)
	tn := newTestNetwork(t, 120_000, 50_000, 100, 100_000)
	defer tn.close()
	c := tn.dial()
	ctx := testContext(t)
	// Settling without a channel negotiates one first
	require.NoError(t, c.SettlePaymentChannel(ctx))
	assert.False(t, c.SettleActive())
	assert.Equal(t, btcutil.Amount(100_000), walletBalance(t, tn.clientWallet))
	files, err := c.QueryFiles(ctx)
	require.NoError(t, err)
	require.NoError(t, c.DownloadFile(ctx, files[0], &testSink{}))
	require.NoError(t, c.SettlePaymentChannel(ctx))
	assert.Equal(t, btcutil.Amount(99_700), walletBalance(t, tn.clientWallet))
	assert.Equal(t, btcutil.Amount(300), walletBalance(t, tn.serverWallet))
	assert.Equal(t, time.Duration(0), c.ChannelExpiry())
	// A second download opens a new channel
	require.NoError(t, c.DownloadFile(ctx, files[0], &testSink{}))
	require.NoError(t, c.Close())
	tn.sessionInfo()
	assert.Equal(t, btcutil.Amount(99_400), walletBalance(t, tn.clientWallet))
	assert.Equal(t, btcutil.Amount(600), walletBalance(t, tn.serverWallet))
}

func TestEndToEndNetworkMismatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	tn := newTestNetwork(t, 1000, 50_000, 100, 0)
	defer tn.close()
	c := tn.dial(client.WithNetwork(payfile.NetworkTestnet))
	_, err := c.QueryFiles(testContext(t))
	assert.ErrorIs(t, err, protocol.NewError(protocol.ErrorCodeNetworkMismatch, ""))
	select {
	case <-c.DoneChan():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for session to close")
	}
	require.NoError(t, c.Close())
	info := tn.sessionInfo()
	assert.Error(t, info.Err)
}

// pipe serves a client over an in-memory connection. Closing the returned
// server end drops the transport without a protocol goodbye.
func (tn *testNetwork) pipe(channel paychan.Client) (*client.Client, net.Conn, <-chan error) {
	serverConn, clientConn := net.Pipe()
	errChan := make(chan error, 1)
	go func() {
		errChan <- tn.server.ServeConn(serverConn)
	}()
	c, err := client.New(
		client.WithConnection(clientConn),
		client.WithServerAddress("pipe.example.com:18754"),
		client.WithNetwork(payfile.NetworkRegtest),
		client.WithWallet(tn.clientWallet),
		client.WithPaymentChannel(channel),
		client.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(tn.t, err)
	return c, serverConn, errChan
}

func waitDone(t *testing.T, c *client.Client) {
	select {
	case <-c.DoneChan():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for session to close")
	}
}

func TestEndToEndServerStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	tn := newTestNetwork(t, 150_000, 50_000, 100, 100_000)
	defer tn.close()
	c := tn.dial()
	ctx := testContext(t)
	files, err := c.QueryFiles(ctx)
	require.NoError(t, err)
	require.NoError(t, c.DownloadFile(ctx, files[0], &testSink{}))
	// The server settles the channel with the client before hanging up
	require.NoError(t, tn.server.Stop())
	waitDone(t, c)
	info := tn.sessionInfo()
	assert.NoError(t, info.Err)
	assert.Equal(t, btcutil.Amount(99_700), walletBalance(t, tn.clientWallet))
	assert.Equal(t, btcutil.Amount(300), walletBalance(t, tn.serverWallet))
	remaining, err := c.RemainingBalance()
	require.NoError(t, err)
	assert.Equal(t, btcutil.Amount(99_700), remaining)
	channels, err := tn.clientWallet.Channels()
	require.NoError(t, err)
	assert.Empty(t, channels)
	require.NoError(t, c.Close())
}

func TestEndToEndConnectionLost(t *testing.T) {
	defer goleak.VerifyNone(t)
	tn := newTestNetwork(t, 150_000, 50_000, 100, 100_000)
	defer tn.close()
	channel := paychan.NewWalletClient(
		tn.clientWallet,
		paychan.WithClientLogger(slog.New(slog.DiscardHandler)),
	)
	c, serverConn, errChan := tn.pipe(channel)
	ctx := testContext(t)
	files, err := c.QueryFiles(ctx)
	require.NoError(t, err)
	require.NoError(t, c.DownloadFile(ctx, files[0], &testSink{}))
	// Drop the transport with the channel still open
	require.NoError(t, serverConn.Close())
	waitDone(t, c)
	<-errChan
	tn.sessionInfo()
	// The client settles at the last payment
	assert.Equal(t, btcutil.Amount(99_700), walletBalance(t, tn.clientWallet))
	assert.Equal(t, btcutil.Amount(0), channel.BalanceWithCounterparty(c.Counterparty()))
	channels, err := tn.clientWallet.Channels()
	require.NoError(t, err)
	assert.Empty(t, channels)
	require.NoError(t, c.Close())

	// The same adapter opens a new channel on the next connection
	c, _, errChan = tn.pipe(channel)
	files, err = c.QueryFiles(ctx)
	require.NoError(t, err)
	sink := &testSink{}
	require.NoError(t, c.DownloadFile(ctx, files[0], sink))
	assert.Equal(t, tn.content, sink.Bytes())
	require.NoError(t, c.Close())
	assert.NoError(t, <-errChan)
	tn.sessionInfo()
	assert.Equal(t, btcutil.Amount(99_400), walletBalance(t, tn.clientWallet))
	assert.Equal(t, btcutil.Amount(600), walletBalance(t, tn.serverWallet))
}
