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

// Package paychan defines the payment channel adapter used by payfile clients
// and servers, along with a reference implementation backed by the simulated
// wallet.
//
// Channel messages are opaque to the payfile protocol. They travel inside
// Payment frames and are handed to the adapter unchanged.
package paychan

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInsufficientValue = errors.New("paychan: insufficient channel value")
	ErrChannelExists     = errors.New("paychan: channel already open with counterparty")
	ErrChannelNotFound   = errors.New("paychan: channel not found")
	ErrChannelNotOpen    = errors.New("paychan: channel is not open")
	ErrInvalidAmount     = errors.New("paychan: invalid amount")
	ErrInvalidMessage    = errors.New("paychan: invalid channel message")
)

// Counterparty identifies the remote end of a channel
type Counterparty [32]byte

// CounterpartyId derives the id of a server from its "host:port" address
func CounterpartyId(hostPort string) Counterparty {
	return Counterparty(blake2b.Sum256([]byte(hostPort)))
}

func (c Counterparty) String() string {
	return hex.EncodeToString(c[:])
}

// CloseReason describes why a channel closed
type CloseReason uint8

const (
	CloseReasonClientRequested CloseReason = iota
	CloseReasonServerRequested
	CloseReasonServerRequestedTooMuchValue
	CloseReasonRemoteSentInvalidMessage
	CloseReasonRemoteSentError
	CloseReasonConnectionClosed
)

var closeReasonNames = map[CloseReason]string{
	CloseReasonClientRequested:             "CLIENT_REQUESTED_CLOSE",
	CloseReasonServerRequested:             "SERVER_REQUESTED_CLOSE",
	CloseReasonServerRequestedTooMuchValue: "SERVER_REQUESTED_TOO_MUCH_VALUE",
	CloseReasonRemoteSentInvalidMessage:    "REMOTE_SENT_INVALID_MESSAGE",
	CloseReasonRemoteSentError:             "REMOTE_SENT_ERROR",
	CloseReasonConnectionClosed:            "CONNECTION_CLOSED",
}

func (r CloseReason) String() string {
	if name, ok := closeReasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseCloseReason maps a close reason name to a CloseReason. Unknown names map
// to CloseReasonRemoteSentError.
func ParseCloseReason(name string) CloseReason {
	for reason, reasonName := range closeReasonNames {
		if reasonName == name {
			return reason
		}
	}
	return CloseReasonRemoteSentError
}

// Callbacks are invoked by a Client as a channel progresses
type Callbacks struct {
	// SendFunc delivers channel bytes to the server
	SendFunc func([]byte) error
	// ReadyFunc is called once the channel can carry payments
	ReadyFunc func()
	// ClosedFunc is called once when the channel closes for any reason
	ClosedFunc func(CloseReason)
	// ValueRejectedFunc is called before ClosedFunc when the server demands a
	// larger channel value than was offered
	ValueRejectedFunc func(required btcutil.Amount)
}

// Handle refers to a channel opened by a Client
type Handle struct {
	Counterparty Counterparty
	Value        btcutil.Amount
	// Nonce distinguishes successive channels with the same counterparty
	Nonce uint64
}

// Client is the client side of the payment channel adapter
type Client interface {
	Open(counterparty Counterparty, value btcutil.Amount, callbacks Callbacks) (*Handle, error)
	Increment(h *Handle, amount btcutil.Amount) error
	Close(h *Handle) error
	DeliverIncoming(h *Handle, data []byte) error
	// ConnectionClosed settles a channel whose transport is gone at the
	// amount paid so far
	ConnectionClosed(h *Handle) error
	BalanceWithCounterparty(id Counterparty) btcutil.Amount
	SecondsUntilExpiry(id Counterparty) time.Duration
}

// ServerConfig configures a server side channel
type ServerConfig struct {
	// MinValue is the smallest channel value the server accepts
	MinValue btcutil.Amount
	// SendFunc delivers channel bytes to the client
	SendFunc func([]byte) error
	// BalanceIncreasedFunc is called with the amount of each payment. An error
	// is returned from ServerChannel.Receive.
	BalanceIncreasedFunc func(amount btcutil.Amount) error
	// ClosedFunc is called once when the channel closes for any reason
	ClosedFunc func(CloseReason)
}

// ServerChannel is the server side of one channel
type ServerChannel interface {
	Receive(data []byte) error
	Close() error
}

// ServerFactory creates a server side channel
type ServerFactory func(ServerConfig) ServerChannel
