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

	"github.com/blinklabs-io/payfile/cbor"
	"github.com/blinklabs-io/payfile/protocol"
	"github.com/btcsuite/btcd/btcutil"
)

// Channel message types
const (
	MessageTypeOpen     = 0
	MessageTypeInitiate = 1
	MessageTypeAccept   = 2
	MessageTypeOpened   = 3
	MessageTypeUpdate   = 4
	MessageTypeClose    = 5
	MessageTypeClosed   = 6
	MessageTypeReject   = 7
)

func decodeMessage(data []byte) (protocol.Message, error) {
	msgType, err := cbor.DecodeIdFromList(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msgType < 0 {
		return nil, ErrInvalidMessage
	}
	return NewMsgFromCbor(uint(msgType), data)
}

func encodeMessage(msg protocol.Message) []byte {
	// Channel messages only contain integers and strings
	data, _ := cbor.Encode(msg)
	return data
}

// NewMsgFromCbor parses a channel message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeOpen:
		ret = &MsgOpen{}
	case MessageTypeInitiate:
		ret = &MsgInitiate{}
	case MessageTypeAccept:
		ret = &MsgAccept{}
	case MessageTypeOpened:
		ret = &MsgOpened{}
	case MessageTypeUpdate:
		ret = &MsgUpdate{}
	case MessageTypeClose:
		ret = &MsgClose{}
	case MessageTypeClosed:
		ret = &MsgClosed{}
	case MessageTypeReject:
		ret = &MsgReject{}
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidMessage, msgType)
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	ret.SetCbor(data)
	return ret, nil
}

// MsgOpen offers a channel of the given value
type MsgOpen struct {
	protocol.MessageBase
	Value btcutil.Amount
}

func NewMsgOpen(value btcutil.Amount) *MsgOpen {
	return &MsgOpen{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeOpen},
		Value:       value,
	}
}

// MsgInitiate carries the server's terms
type MsgInitiate struct {
	protocol.MessageBase
	MinValue btcutil.Amount
	Expiry   int64
}

func NewMsgInitiate(minValue btcutil.Amount, expiry int64) *MsgInitiate {
	return &MsgInitiate{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeInitiate},
		MinValue:    minValue,
		Expiry:      expiry,
	}
}

// MsgAccept accepts the server's terms
type MsgAccept struct {
	protocol.MessageBase
}

func NewMsgAccept() *MsgAccept {
	return &MsgAccept{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeAccept},
	}
}

// MsgOpened confirms that the channel is open
type MsgOpened struct {
	protocol.MessageBase
}

func NewMsgOpened() *MsgOpened {
	return &MsgOpened{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeOpened},
	}
}

// MsgUpdate carries the total amount paid so far
type MsgUpdate struct {
	protocol.MessageBase
	Paid btcutil.Amount
}

func NewMsgUpdate(paid btcutil.Amount) *MsgUpdate {
	return &MsgUpdate{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeUpdate},
		Paid:        paid,
	}
}

// MsgClose asks the server to settle the channel
type MsgClose struct {
	protocol.MessageBase
	Paid btcutil.Amount
}

func NewMsgClose(paid btcutil.Amount) *MsgClose {
	return &MsgClose{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeClose},
		Paid:        paid,
	}
}

// MsgClosed reports that the server settled the channel for the given amount
type MsgClosed struct {
	protocol.MessageBase
	Paid btcutil.Amount
}

func NewMsgClosed(paid btcutil.Amount) *MsgClosed {
	return &MsgClosed{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeClosed},
		Paid:        paid,
	}
}

// MsgReject aborts the channel. Paid is the amount the sender settles for.
type MsgReject struct {
	protocol.MessageBase
	Reason string
	Paid   btcutil.Amount
}

func NewMsgReject(reason CloseReason, paid btcutil.Amount) *MsgReject {
	return &MsgReject{
		MessageBase: protocol.MessageBase{MessageType: MessageTypeReject},
		Reason:      reason.String(),
		Paid:        paid,
	}
}
