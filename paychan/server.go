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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/payfile/protocol"
	"github.com/blinklabs-io/payfile/wallet"
	"github.com/btcsuite/btcd/btcutil"
)

// DefaultChannelLifetime is the channel expiry offered by a server
const DefaultChannelLifetime = 24 * time.Hour

type serverState uint8

const (
	serverStateNew serverState = iota
	serverStateInitiated
	serverStateOpen
	serverStateClosed
)

type walletServerChannel struct {
	config   ServerConfig
	wallet   *wallet.Wallet
	lifetime time.Duration
	logger   *slog.Logger
	mutex    sync.Mutex
	state    serverState
	value    btcutil.Amount
	paid     btcutil.Amount
}

type serverFactoryOptions struct {
	lifetime time.Duration
	logger   *slog.Logger
}

type ServerOptionFunc func(*serverFactoryOptions)

// WithChannelLifetime specifies the channel expiry offered to clients
func WithChannelLifetime(lifetime time.Duration) ServerOptionFunc {
	return func(o *serverFactoryOptions) {
		o.lifetime = lifetime
	}
}

// WithServerLogger specifies the logger to use
func WithServerLogger(logger *slog.Logger) ServerOptionFunc {
	return func(o *serverFactoryOptions) {
		o.logger = logger
	}
}

// NewServerFactory returns a ServerFactory whose channels credit the amount
// paid to w when they settle. A nil wallet discards settled amounts.
func NewServerFactory(w *wallet.Wallet, opts ...ServerOptionFunc) ServerFactory {
	o := serverFactoryOptions{
		lifetime: DefaultChannelLifetime,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return func(cfg ServerConfig) ServerChannel {
		return &walletServerChannel{
			config:   cfg,
			wallet:   w,
			lifetime: o.lifetime,
			logger:   o.logger,
		}
	}
}

// Receive processes channel bytes received from the client
func (s *walletServerChannel) Receive(data []byte) error {
	s.mutex.Lock()
	if s.state == serverStateClosed {
		s.mutex.Unlock()
		return ErrChannelNotOpen
	}
	var after func() error
	msg, err := decodeMessage(data)
	if err == nil {
		after, err = s.handleMessage(msg)
	}
	if err != nil && after == nil {
		after = s.abort(CloseReasonRemoteSentInvalidMessage)
	}
	s.mutex.Unlock()
	if after != nil {
		if afterErr := after(); afterErr != nil && err == nil {
			err = afterErr
		}
	}
	return err
}

// Close settles the channel for the amount paid so far and tells the client
func (s *walletServerChannel) Close() error {
	s.mutex.Lock()
	if s.state == serverStateClosed {
		s.mutex.Unlock()
		return nil
	}
	notify := s.state != serverStateNew
	paid := s.settle()
	s.mutex.Unlock()
	if notify {
		_ = s.send(NewMsgClosed(paid))
	}
	s.closed(CloseReasonServerRequested)
	return nil
}

// handleMessage is called with the mutex held. The returned function runs
// after the mutex is released.
func (s *walletServerChannel) handleMessage(msg protocol.Message) (func() error, error) {
	switch m := msg.(type) {
	case *MsgOpen:
		if s.state != serverStateNew || m.Value <= 0 {
			return nil, fmt.Errorf("%w: unexpected Open", ErrInvalidMessage)
		}
		s.value = m.Value
		s.state = serverStateInitiated
		expiry := time.Now().Add(s.lifetime).Unix()
		minValue := s.config.MinValue
		return func() error {
			return s.send(NewMsgInitiate(minValue, expiry))
		}, nil
	case *MsgAccept:
		if s.state != serverStateInitiated {
			return nil, fmt.Errorf("%w: unexpected Accept", ErrInvalidMessage)
		}
		if s.value < s.config.MinValue {
			return s.abort(CloseReasonServerRequestedTooMuchValue), nil
		}
		s.state = serverStateOpen
		s.logger.Debug(
			"payment channel open",
			"component", "paychan",
			"value", s.value.String(),
		)
		return func() error {
			return s.send(NewMsgOpened())
		}, nil
	case *MsgUpdate:
		if s.state != serverStateOpen {
			return nil, fmt.Errorf("%w: payment on channel that is not open", ErrInvalidMessage)
		}
		if m.Paid < s.paid || m.Paid > s.value {
			return nil, fmt.Errorf(
				"%w: paid amount %s outside [%s, %s]",
				ErrInvalidMessage,
				m.Paid,
				s.paid,
				s.value,
			)
		}
		delta := m.Paid - s.paid
		s.paid = m.Paid
		if delta == 0 || s.config.BalanceIncreasedFunc == nil {
			return nil, nil
		}
		return func() error {
			return s.config.BalanceIncreasedFunc(delta)
		}, nil
	case *MsgClose:
		paid := s.settle()
		return func() error {
			err := s.send(NewMsgClosed(paid))
			s.closed(CloseReasonClientRequested)
			return err
		}, nil
	case *MsgReject:
		reason := ParseCloseReason(m.Reason)
		s.settle()
		return func() error {
			s.closed(reason)
			return nil
		}, nil
	}
	return nil, fmt.Errorf("%w: unexpected message type %d", ErrInvalidMessage, msg.Type())
}

// abort is called with the mutex held
func (s *walletServerChannel) abort(reason CloseReason) func() error {
	paid := s.settle()
	return func() error {
		_ = s.send(NewMsgReject(reason, paid))
		s.closed(reason)
		return nil
	}
}

// settle is called with the mutex held. It returns the amount settled.
func (s *walletServerChannel) settle() btcutil.Amount {
	s.state = serverStateClosed
	paid := s.paid
	if paid > 0 && s.wallet != nil {
		if err := s.wallet.Deposit(paid); err != nil {
			s.logger.Error(
				"failed to credit settled payment channel",
				"component", "paychan",
				"paid", paid.String(),
				"error", err,
			)
			return paid
		}
	}
	s.logger.Info(
		"payment channel settled",
		"component", "paychan",
		"value", s.value.String(),
		"paid", paid.String(),
	)
	return paid
}

func (s *walletServerChannel) closed(reason CloseReason) {
	if s.config.ClosedFunc != nil {
		s.config.ClosedFunc(reason)
	}
}

func (s *walletServerChannel) send(msg protocol.Message) error {
	if s.config.SendFunc == nil {
		return nil
	}
	return s.config.SendFunc(encodeMessage(msg))
}
