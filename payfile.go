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

// Package payfile holds the constants and currency network definitions shared
// by the payfile client and server.
//
// A payfile server offers the files in a directory over TCP. Clients list the
// files, then download them one chunk at a time, paying for each chunk through
// a payment channel opened with the server.
package payfile

import "github.com/btcsuite/btcd/btcutil"

const (
	// DefaultPort is the TCP port used by both client and server
	DefaultPort = 18754

	// DefaultChunkSize is the number of file bytes carried by one Data frame
	DefaultChunkSize uint32 = 1024 * 50

	// DefaultPricePerChunk is the price charged for each chunk by default
	DefaultPricePerChunk btcutil.Amount = 100

	// MinAcceptedChunks is the number of chunks a new payment channel must be
	// able to pay for before the server accepts it
	MinAcceptedChunks = 5

	// Version is reported in the client user agent
	Version = "1.0"
)

// UserAgent returns the user agent string sent by clients
func UserAgent() string {
	return "payfile/" + Version
}
