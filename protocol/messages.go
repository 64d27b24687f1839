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

package protocol

import (
	"fmt"

	"github.com/blinklabs-io/payfile/cbor"
	"github.com/btcsuite/btcd/btcutil"
)

// Message types
const (
	MessageTypeQueryFiles    = 0
	MessageTypeManifest      = 1
	MessageTypeDownloadChunk = 2
	MessageTypeData          = 3
	MessageTypePayment       = 4
	MessageTypeError         = 5
)

var messageTypeNames = map[uint8]string{
	MessageTypeQueryFiles:    "QueryFiles",
	MessageTypeManifest:      "Manifest",
	MessageTypeDownloadChunk: "DownloadChunk",
	MessageTypeData:          "Data",
	MessageTypePayment:       "Payment",
	MessageTypeError:         "Error",
}

// MessageTypeName returns a readable name for a message type
func MessageTypeName(msgType uint8) string {
	if name, ok := messageTypeNames[msgType]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", msgType)
}

// NewMsgFromCbor parses a message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (Message, error) {
	var ret Message
	switch msgType {
	case MessageTypeQueryFiles:
		ret = &MsgQueryFiles{}
	case MessageTypeManifest:
		ret = &MsgManifest{}
	case MessageTypeDownloadChunk:
		ret = &MsgDownloadChunk{}
	case MessageTypeData:
		ret = &MsgData{}
	case MessageTypePayment:
		ret = &MsgPayment{}
	case MessageTypeError:
		ret = &MsgError{}
	default:
		return nil, fmt.Errorf(
			"%s: %w: %d",
			ProtocolName,
			ErrUnknownMessageType,
			msgType,
		)
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	// Store the raw message CBOR
	ret.SetCbor(data)
	return ret, nil
}

// FileDescriptor describes a single file offered by a server
type FileDescriptor struct {
	cbor.StructAsArray
	Handle        int
	FileName      string
	Description   string
	Size          int64
	PricePerChunk btcutil.Amount
}

type MsgQueryFiles struct {
	MessageBase
	UserAgent string
	NetworkId string
}

func NewMsgQueryFiles(userAgent string, networkId string) *MsgQueryFiles {
	m := &MsgQueryFiles{
		MessageBase: MessageBase{
			MessageType: MessageTypeQueryFiles,
		},
		UserAgent: userAgent,
		NetworkId: networkId,
	}
	return m
}

type MsgManifest struct {
	MessageBase
	Files     []FileDescriptor
	ChunkSize uint32
}

func NewMsgManifest(files []FileDescriptor, chunkSize uint32) *MsgManifest {
	if files == nil {
		files = []FileDescriptor{}
	}
	m := &MsgManifest{
		MessageBase: MessageBase{
			MessageType: MessageTypeManifest,
		},
		Files:     files,
		ChunkSize: chunkSize,
	}
	return m
}

type MsgDownloadChunk struct {
	MessageBase
	Handle    int
	ChunkId   int64
	NumChunks int
}

func NewMsgDownloadChunk(handle int, chunkId int64, numChunks int) *MsgDownloadChunk {
	m := &MsgDownloadChunk{
		MessageBase: MessageBase{
			MessageType: MessageTypeDownloadChunk,
		},
		Handle:    handle,
		ChunkId:   chunkId,
		NumChunks: numChunks,
	}
	return m
}

type MsgData struct {
	MessageBase
	Handle  int
	ChunkId int64
	Data    []byte
}

func NewMsgData(handle int, chunkId int64, data []byte) *MsgData {
	if data == nil {
		data = []byte{}
	}
	m := &MsgData{
		MessageBase: MessageBase{
			MessageType: MessageTypeData,
		},
		Handle:  handle,
		ChunkId: chunkId,
		Data:    data,
	}
	return m
}

// MsgPayment carries opaque payment channel bytes in either direction
type MsgPayment struct {
	MessageBase
	Payload []byte
}

func NewMsgPayment(payload []byte) *MsgPayment {
	if payload == nil {
		payload = []byte{}
	}
	m := &MsgPayment{
		MessageBase: MessageBase{
			MessageType: MessageTypePayment,
		},
		Payload: payload,
	}
	return m
}

type MsgError struct {
	MessageBase
	Code        string
	Explanation string
}

func NewMsgError(code ErrorCode, explanation string) *MsgError {
	m := &MsgError{
		MessageBase: MessageBase{
			MessageType: MessageTypeError,
		},
		Code:        code.String(),
		Explanation: explanation,
	}
	return m
}

// Err converts the message into an *Error. Unrecognized codes become
// ErrorCodeGeneric.
func (m *MsgError) Err() *Error {
	return NewError(ParseErrorCode(m.Code), m.Explanation)
}
