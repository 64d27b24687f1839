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

import "errors"

var (
	// ErrInsufficientFunds is returned when the wallet can't pay for a
	// download or the server demands a larger channel than the wallet holds
	ErrInsufficientFunds = errors.New("client: insufficient funds")
	// ErrOperationInProgress is returned when an operation is started while
	// another is pending
	ErrOperationInProgress = errors.New("client: another operation is in progress")
	// ErrAlreadyDownloading is returned when the file is already being
	// downloaded
	ErrAlreadyDownloading = errors.New("client: file is already being downloaded")
	// ErrChannelClosed is returned when the payment channel closes while an
	// operation depends on it
	ErrChannelClosed = errors.New("client: payment channel closed")
	// ErrProtocolViolation is returned when the server sends something the
	// session does not expect. The session is closed.
	ErrProtocolViolation = errors.New("client: protocol violation")
	ErrNotQueried        = errors.New("client: files have not been queried")
	ErrUnknownFile       = errors.New("client: file is not in the current manifest")
	ErrNoPaymentChannel  = errors.New("client: no payment channel client configured")
	ErrClosed            = errors.New("client: session closed")
)
