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

package paychan

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/payfile/protocol"
	"github.com/blinklabs-io/payfile/wallet"
	"github.com/btcsuite/btcd/btcutil"
)

type clientState uint8

const (
	clientStateOpening clientState = iota
	clientStateAccepting
	clientStateOpen
	clientStateClosing
)

type clientChannel struct {
	handle    Handle
	callbacks Callbacks
	state     clientState
	paid      btcutil.Amount
	expiry    time.Time
}

// WalletClient is a Client that locks channel value in a wallet. It performs
// the accounting of a payment channel without any on-chain transactions.
type WalletClient struct {
	wallet   *wallet.Wallet
	logger   *slog.Logger
	mutex    sync.Mutex
	channels map[Counterparty]*clientChannel
	nonce    uint64
}

type ClientOptionFunc func(*WalletClient)

// WithClientLogger specifies the logger to use
func WithClientLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *WalletClient) {
		c.logger = logger
	}
}

func NewWalletClient(w *wallet.Wallet, opts ...ClientOptionFunc) *WalletClient {
	c := &WalletClient{
		wallet:   w,
		channels: make(map[Counterparty]*clientChannel),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Open locks value from the wallet and starts negotiating a channel with the
// counterparty. ReadyFunc is called once the server accepts the channel.
func (c *WalletClient) Open(
	counterparty Counterparty,
	value btcutil.Amount,
	callbacks Callbacks,
) (*Handle, error) {
	if value <= 0 {
		return nil, fmt.Errorf("%w: channel value %s", ErrInsufficientValue, value)
	}
	c.mutex.Lock()
	if _, ok := c.channels[counterparty]; ok {
		c.mutex.Unlock()
		return nil, ErrChannelExists
	}
	// A record left behind by an earlier process is settled at its last payment
	if rec, err := c.wallet.Channel(counterparty); err == nil {
		refund, err := c.wallet.SettleChannel(counterparty, rec.Paid)
		if err != nil {
			c.mutex.Unlock()
			return nil, err
		}
		c.logger.Info(
			"settled stale payment channel",
			"component", "paychan",
			"counterparty", counterparty.String(),
			"paid", rec.Paid.String(),
			"refund", refund.String(),
		)
	}
	err := c.wallet.OpenChannel(
		wallet.ChannelRecord{
			Counterparty: counterparty,
			Value:        value,
		},
	)
	if err != nil {
		c.mutex.Unlock()
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientValue, err)
		}
		return nil, err
	}
	c.nonce++
	ch := &clientChannel{
		handle: Handle{
			Counterparty: counterparty,
			Value:        value,
			Nonce:        c.nonce,
		},
		callbacks: callbacks,
		state:     clientStateOpening,
	}
	c.channels[counterparty] = ch
	c.mutex.Unlock()
	c.logger.Debug(
		"opening payment channel",
		"component", "paychan",
		"counterparty", counterparty.String(),
		"value", value.String(),
	)
	if err := c.send(ch, NewMsgOpen(value)); err != nil {
		c.mutex.Lock()
		delete(c.channels, counterparty)
		c.mutex.Unlock()
		_, _ = c.wallet.SettleChannel(counterparty, 0)
		return nil, err
	}
	h := ch.handle
	return &h, nil
}

// Increment pays amount over the channel
func (c *WalletClient) Increment(h *Handle, amount btcutil.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	c.mutex.Lock()
	ch, err := c.lookup(h)
	if err != nil {
		c.mutex.Unlock()
		return err
	}
	if ch.state != clientStateOpen {
		c.mutex.Unlock()
		return ErrChannelNotOpen
	}
	paid := ch.paid + amount
	if paid > ch.handle.Value {
		c.mutex.Unlock()
		return fmt.Errorf(
			"%w: paying %s would exceed channel value %s",
			ErrInsufficientValue,
			paid,
			ch.handle.Value,
		)
	}
	if err := c.wallet.UpdateChannel(h.Counterparty, paid); err != nil {
		c.mutex.Unlock()
		return err
	}
	ch.paid = paid
	c.mutex.Unlock()
	return c.send(ch, NewMsgUpdate(paid))
}

// Close asks the server to settle the channel. ClosedFunc is called with
// CloseReasonClientRequested once the server confirms.
func (c *WalletClient) Close(h *Handle) error {
	c.mutex.Lock()
	ch, err := c.lookup(h)
	if err != nil {
		c.mutex.Unlock()
		return err
	}
	if ch.state == clientStateClosing {
		c.mutex.Unlock()
		return nil
	}
	ch.state = clientStateClosing
	paid := ch.paid
	c.mutex.Unlock()
	return c.send(ch, NewMsgClose(paid))
}

// DeliverIncoming processes channel bytes received from the server
func (c *WalletClient) DeliverIncoming(h *Handle, data []byte) error {
	c.mutex.Lock()
	ch, err := c.lookup(h)
	if err != nil {
		c.mutex.Unlock()
		return err
	}
	var after func()
	msg, err := decodeMessage(data)
	if err == nil {
		after, err = c.handleMessage(ch, msg)
	}
	if err != nil && after == nil {
		after = c.abort(ch, CloseReasonRemoteSentInvalidMessage)
	}
	c.mutex.Unlock()
	if after != nil {
		after()
	}
	return err
}

// ConnectionClosed settles the channel at the last payment and calls
// ClosedFunc with CloseReasonConnectionClosed
func (c *WalletClient) ConnectionClosed(h *Handle) error {
	c.mutex.Lock()
	ch, err := c.lookup(h)
	if err != nil {
		c.mutex.Unlock()
		return err
	}
	c.finish(ch, ch.paid)
	c.mutex.Unlock()
	c.closed(ch, CloseReasonConnectionClosed)
	return nil
}

// BalanceWithCounterparty returns the unpaid value of the channel with a
// counterparty, which is returned to the wallet when the channel settles
func (c *WalletClient) BalanceWithCounterparty(id Counterparty) btcutil.Amount {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ch, ok := c.channels[id]; ok {
		return ch.handle.Value - ch.paid
	}
	if rec, err := c.wallet.Channel(id); err == nil {
		return rec.Refundable()
	}
	return 0
}

// SecondsUntilExpiry returns the time left before the channel with a
// counterparty expires, truncated to whole seconds
func (c *WalletClient) SecondsUntilExpiry(id Counterparty) time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var expiry time.Time
	if ch, ok := c.channels[id]; ok {
		expiry = ch.expiry
	} else if rec, err := c.wallet.Channel(id); err == nil && rec.Expiry > 0 {
		expiry = rec.ExpiresAt()
	}
	if expiry.IsZero() {
		return 0
	}
	remaining := time.Until(expiry).Truncate(time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *WalletClient) lookup(h *Handle) (*clientChannel, error) {
	if h == nil {
		return nil, ErrChannelNotFound
	}
	ch, ok := c.channels[h.Counterparty]
	if !ok || ch.handle.Nonce != h.Nonce {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

// handleMessage is called with the mutex held. The returned function runs
// after the mutex is released.
func (c *WalletClient) handleMessage(ch *clientChannel, msg protocol.Message) (func(), error) {
	switch m := msg.(type) {
	case *MsgInitiate:
		if ch.state != clientStateOpening {
			return nil, fmt.Errorf("%w: unexpected Initiate", ErrInvalidMessage)
		}
		if m.MinValue > ch.handle.Value {
			c.finish(ch, 0)
			return func() {
				_ = c.send(ch, NewMsgReject(CloseReasonServerRequestedTooMuchValue, 0))
				if ch.callbacks.ValueRejectedFunc != nil {
					ch.callbacks.ValueRejectedFunc(m.MinValue)
				}
				c.closed(ch, CloseReasonServerRequestedTooMuchValue)
			}, nil
		}
		ch.expiry = time.Unix(m.Expiry, 0)
		if err := c.wallet.SetChannelExpiry(ch.handle.Counterparty, ch.expiry); err != nil {
			return nil, err
		}
		ch.state = clientStateAccepting
		return func() {
			_ = c.send(ch, NewMsgAccept())
		}, nil
	case *MsgOpened:
		if ch.state != clientStateAccepting {
			return nil, fmt.Errorf("%w: unexpected Opened", ErrInvalidMessage)
		}
		ch.state = clientStateOpen
		return func() {
			if ch.callbacks.ReadyFunc != nil {
				ch.callbacks.ReadyFunc()
			}
		}, nil
	case *MsgClosed:
		reason := CloseReasonServerRequested
		if ch.state == clientStateClosing {
			reason = CloseReasonClientRequested
		}
		c.finish(ch, c.settleAmount(ch, m.Paid))
		return func() {
			c.closed(ch, reason)
		}, nil
	case *MsgReject:
		reason := ParseCloseReason(m.Reason)
		c.finish(ch, c.settleAmount(ch, m.Paid))
		return func() {
			c.closed(ch, reason)
		}, nil
	}
	return nil, fmt.Errorf("%w: unexpected message type %d", ErrInvalidMessage, msg.Type())
}

// settleAmount bounds the amount claimed by the server to what was paid
func (c *WalletClient) settleAmount(ch *clientChannel, claimed btcutil.Amount) btcutil.Amount {
	if claimed < 0 || claimed > ch.paid {
		c.logger.Warn(
			"server claimed a settlement amount that was never paid",
			"component", "paychan",
			"counterparty", ch.handle.Counterparty.String(),
			"claimed", claimed.String(),
			"paid", ch.paid.String(),
		)
		return ch.paid
	}
	return claimed
}

// abort is called with the mutex held
func (c *WalletClient) abort(ch *clientChannel, reason CloseReason) func() {
	paid := ch.paid
	c.finish(ch, paid)
	return func() {
		_ = c.send(ch, NewMsgReject(reason, paid))
		c.closed(ch, reason)
	}
}

// finish is called with the mutex held
func (c *WalletClient) finish(ch *clientChannel, paid btcutil.Amount) {
	delete(c.channels, ch.handle.Counterparty)
	refund, err := c.wallet.SettleChannel(ch.handle.Counterparty, paid)
	if err != nil {
		c.logger.Error(
			"failed to settle payment channel",
			"component", "paychan",
			"counterparty", ch.handle.Counterparty.String(),
			"error", err,
		)
		return
	}
	c.logger.Info(
		"payment channel settled",
		"component", "paychan",
		"counterparty", ch.handle.Counterparty.String(),
		"paid", paid.String(),
		"refund", refund.String(),
	)
}

func (c *WalletClient) closed(ch *clientChannel, reason CloseReason) {
	if ch.callbacks.ClosedFunc != nil {
		ch.callbacks.ClosedFunc(reason)
	}
}

func (c *WalletClient) send(ch *clientChannel, msg protocol.Message) error {
	if ch.callbacks.SendFunc == nil {
		return nil
	}
	return ch.callbacks.SendFunc(encodeMessage(msg))
}
