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

// Package protocol defines the payfile message set, the session state maps
// and the protocol error taxonomy shared by the client and server.
package protocol

import (
	"fmt"
	"math"

	"github.com/blinklabs-io/payfile/cbor"
)

const ProtocolName = "payfile"

// DecodeMessage decodes a frame payload into a typed message, using the
// leading list item as the message type
func DecodeMessage(data []byte) (Message, error) {
	msgType, err := cbor.DecodeIdFromList(data)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w",
			ProtocolName,
			ErrInvalidMessage,
			err,
		)
	}
	if msgType > math.MaxUint8 {
		return nil, fmt.Errorf(
			"%s: %w: %d",
			ProtocolName,
			ErrUnknownMessageType,
			msgType,
		)
	}
	// #nosec G115 -- checked above
	return NewMsgFromCbor(uint(msgType), data)
}

// EncodeMessage returns the frame payload for a message
func EncodeMessage(msg Message) ([]byte, error) {
	data, err := cbor.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("%s: encode error: %w", ProtocolName, err)
	}
	return data, nil
}
