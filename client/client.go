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

// Package client implements the payfile client session.
//
// A Client owns a single goroutine that handles every inbound frame, every
// payment channel callback and every API call in turn. Public methods place
// requests on that goroutine's queue and wait for the result, so only one of
// QueryFiles, DownloadFile and SettlePaymentChannel can be pending at a time.
package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/frame"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/blinklabs-io/payfile/protocol"
	"github.com/btcsuite/btcd/btcutil"
)

// DefaultSettleTimeout is how long Close waits for a payment channel to settle
const DefaultSettleTimeout = 10 * time.Second

// Wallet provides the spendable balance
type Wallet interface {
	Balance() (btcutil.Amount, error)
}

// ProgressFunc is called from the session goroutine after each chunk is
// written. It must not block.
type ProgressFunc func(file *File, bytesDownloaded int64)

// Client is a session with a payfile server
type Client struct {
	netConn       net.Conn
	conn          *frame.Conn
	network       payfile.Network
	userAgent     string
	serverAddress string
	counterparty  paychan.Counterparty
	paychan       paychan.Client
	wallet        Wallet
	logger        *slog.Logger
	settleTimeout time.Duration
	progressFunc  ProgressFunc
	queueMutex    sync.Mutex
	queue         []func()
	queueClosed   bool
	queueSignal   chan struct{}
	closeChan     chan struct{}
	doneChan      chan struct{}
	waitGroup     sync.WaitGroup
	onceClose     sync.Once
	activeOp      atomic.Uint32
	// Everything below is only touched by the session goroutine
	state          protocol.State
	pending        *operation
	files          []*File
	channel        *paychan.Handle
	channelReady   bool
	closeWhenReady bool
	requiredValue  btcutil.Amount
	closing        bool
	shutdownErr    error
	closeWaiters   []chan struct{}
	staleResponses map[int]int
	staleManifests int
}

// New returns a new Client using the connection specified with
// WithConnection
func New(options ...ClientOptionFunc) (*Client, error) {
	c := &Client{
		network:        payfile.NetworkMainnet,
		userAgent:      payfile.UserAgent(),
		settleTimeout:  DefaultSettleTimeout,
		queueSignal:    make(chan struct{}, 1),
		closeChan:      make(chan struct{}),
		doneChan:       make(chan struct{}),
		state:          protocol.StateIdle,
		staleResponses: make(map[int]int),
	}
	for _, option := range options {
		option(c)
	}
	if c.netConn == nil {
		return nil, errors.New("client: no connection specified")
	}
	if !c.network.Valid() {
		return nil, errors.New("client: invalid network")
	}
	if c.serverAddress == "" && c.netConn.RemoteAddr() != nil {
		c.serverAddress = c.netConn.RemoteAddr().String()
	}
	c.counterparty = paychan.CounterpartyId(c.serverAddress)
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(
		"component", "client",
		"server", c.serverAddress,
	)
	c.conn = frame.NewConn(c.netConn, frame.MaxServerFrameLength)
	c.conn.Start()
	c.waitGroup.Add(1)
	go c.actorLoop()
	return c, nil
}

// Dial connects to a server and returns a new Client. The default port is
// used when the address has none.
func Dial(ctx context.Context, address string, options ...ClientOptionFunc) (*Client, error) {
	address = withDefaultPort(address)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	opts := make([]ClientOptionFunc, 0, len(options)+2)
	opts = append(opts, WithServerAddress(address))
	opts = append(opts, options...)
	opts = append(opts, WithConnection(conn))
	c, err := New(opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(payfile.DefaultPort))
}

// Counterparty returns the payment channel counterparty id of the server
func (c *Client) Counterparty() paychan.Counterparty {
	return c.counterparty
}

// QueryFiles asks the server for its manifest. The returned files are used
// for downloads until the next query.
func (c *Client) QueryFiles(ctx context.Context) ([]*File, error) {
	op := newOperation(operationQuery)
	if err := c.start(func() error { return c.beginQuery(op) }); err != nil {
		return nil, err
	}
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	return op.files, nil
}

// DownloadFile downloads file into sink, paying for each chunk before it is
// requested. The sink is closed when the download completes, fails or is
// cancelled, and is left open if the download cannot start.
func (c *Client) DownloadFile(ctx context.Context, file *File, sink io.WriteCloser) error {
	if file == nil {
		return errors.New("client: no file specified")
	}
	if sink == nil {
		return errors.New("client: no sink specified")
	}
	op := newOperation(operationDownload)
	if err := c.start(func() error { return c.beginDownload(op, file, sink) }); err != nil {
		return err
	}
	return c.wait(ctx, op)
}

// SettlePaymentChannel closes the payment channel with the server and waits
// for the server to confirm. A channel is negotiated first if none is open.
func (c *Client) SettlePaymentChannel(ctx context.Context) error {
	op := newOperation(operationSettle)
	if err := c.start(func() error { return c.beginSettle(op) }); err != nil {
		return err
	}
	return c.wait(ctx, op)
}

// RemainingBalance returns the wallet balance plus the value still refundable
// from the channel with the server
func (c *Client) RemainingBalance() (btcutil.Amount, error) {
	var balance btcutil.Amount
	if c.wallet != nil {
		walletBalance, err := c.wallet.Balance()
		if err != nil {
			return 0, err
		}
		balance = walletBalance
	}
	if c.paychan != nil {
		balance += c.paychan.BalanceWithCounterparty(c.counterparty)
	}
	return balance, nil
}

// ChannelExpiry returns the time left before the channel with the server
// expires, or 0 if there is none
func (c *Client) ChannelExpiry() time.Duration {
	if c.paychan == nil {
		return 0
	}
	return c.paychan.SecondsUntilExpiry(c.counterparty)
}

// QueryActive returns whether a QueryFiles call is pending
func (c *Client) QueryActive() bool {
	return operationKind(c.activeOp.Load()) == operationQuery
}

// DownloadActive returns whether a DownloadFile call is pending
func (c *Client) DownloadActive() bool {
	return operationKind(c.activeOp.Load()) == operationDownload
}

// SettleActive returns whether a SettlePaymentChannel call is pending
func (c *Client) SettleActive() bool {
	return operationKind(c.activeOp.Load()) == operationSettle
}

// DoneChan returns a channel that is closed when the session ends
func (c *Client) DoneChan() <-chan struct{} {
	return c.doneChan
}

// Close ends the session. An open payment channel is closed first and Close
// waits up to the settle timeout for the server to confirm before closing
// the connection. Pending operations fail with ErrClosed.
func (c *Client) Close() error {
	c.onceClose.Do(func() {
		settled := make(chan struct{})
		if err := c.enqueue(func() { c.beginClose(settled) }); err == nil {
			timer := time.NewTimer(c.settleTimeout)
			select {
			case <-settled:
			case <-c.doneChan:
			case <-timer.C:
				c.logger.Warn("timed out waiting for payment channel to settle")
			}
			timer.Stop()
		}
		close(c.closeChan)
		// Errors closing the socket don't matter during teardown
		_ = c.conn.Stop()
		c.waitGroup.Wait()
	})
	return nil
}

// start runs fn on the session goroutine and returns its result
func (c *Client) start(fn func() error) error {
	errChan := make(chan error, 1)
	if err := c.enqueue(func() { errChan <- fn() }); err != nil {
		return err
	}
	return <-errChan
}

// wait returns the result of a started operation. Cancelling ctx cancels the
// operation.
func (c *Client) wait(ctx context.Context, op *operation) error {
	select {
	case err := <-op.resultChan:
		return err
	case <-ctx.Done():
	}
	// Session teardown completes the operation if the cancel can't be queued
	_ = c.enqueue(func() { c.cancelOperation(op, ctx.Err()) })
	return <-op.resultChan
}

// enqueue adds fn to the session goroutine's queue. Queued functions always
// run, even when the session is shutting down.
func (c *Client) enqueue(fn func()) error {
	c.queueMutex.Lock()
	if c.queueClosed {
		c.queueMutex.Unlock()
		return ErrClosed
	}
	c.queue = append(c.queue, fn)
	c.queueMutex.Unlock()
	select {
	case c.queueSignal <- struct{}{}:
	default:
	}
	return nil
}

func (c *Client) send(msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.conn.Send(data)
}
