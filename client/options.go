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

package client

import (
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/paychan"
)

// ClientOptionFunc is a type that represents functions that modify the Client config
type ClientOptionFunc func(*Client)

// WithConnection specifies an existing connection to use. If none is provided, the Dial() function can be
// used to create one
func WithConnection(conn net.Conn) ClientOptionFunc {
	return func(c *Client) {
		c.netConn = conn
	}
}

// WithNetwork specifies the currency network the client declares when
// querying files
func WithNetwork(network payfile.Network) ClientOptionFunc {
	return func(c *Client) {
		c.network = network
	}
}

// WithPaymentChannel specifies the payment channel client used to pay for
// chunks
func WithPaymentChannel(pc paychan.Client) ClientOptionFunc {
	return func(c *Client) {
		c.paychan = pc
	}
}

// WithWallet specifies where the spendable balance is read from
func WithWallet(wallet Wallet) ClientOptionFunc {
	return func(c *Client) {
		c.wallet = wallet
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent specifies the user agent sent when querying files
func WithUserAgent(userAgent string) ClientOptionFunc {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithServerAddress specifies the server address used to identify the
// payment channel counterparty. It defaults to the remote address of the
// connection.
func WithServerAddress(address string) ClientOptionFunc {
	return func(c *Client) {
		c.serverAddress = address
	}
}

// WithSettleTimeout specifies how long Close waits for the server to confirm
// the payment channel closure
func WithSettleTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.settleTimeout = timeout
	}
}

// WithProgressFunc specifies a function that is called after each chunk of
// a download is written
func WithProgressFunc(progressFunc ProgressFunc) ClientOptionFunc {
	return func(c *Client) {
		c.progressFunc = progressFunc
	}
}
