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
	"encoding/hex"
	"errors"
	"reflect"
	"testing"

	"github.com/blinklabs-io/payfile/cbor"
)

type testDefinition struct {
	CborHex     string
	Message     Message
	MessageType uint
}

var tests = []testDefinition{
	{
		CborHex:     "83006b70617966696c652f312e30706f72672e626974636f696e2e74657374",
		Message:     NewMsgQueryFiles("payfile/1.0", "org.bitcoin.test"),
		MessageType: MessageTypeQueryFiles,
	},
	{
		CborHex: "830181850065612e7478747819746578742f706c61696e3b20636861727365743d7574662d381a000249f0186419c800",
		Message: NewMsgManifest(
			[]FileDescriptor{
				{
					Handle:        0,
					FileName:      "a.txt",
					Description:   "text/plain; charset=utf-8",
					Size:          150000,
					PricePerChunk: 100,
				},
			},
			51200,
		),
		MessageType: MessageTypeManifest,
	},
	{
		CborHex:     "83018019c800",
		Message:     NewMsgManifest(nil, 51200),
		MessageType: MessageTypeManifest,
	},
	{
		CborHex:     "8402030701",
		Message:     NewMsgDownloadChunk(3, 7, 1),
		MessageType: MessageTypeDownloadChunk,
	},
	{
		CborHex:     "8402000020",
		Message:     NewMsgDownloadChunk(0, 0, -1),
		MessageType: MessageTypeDownloadChunk,
	},
	{
		CborHex:     "8403030743616263",
		Message:     NewMsgData(3, 7, []byte("abc")),
		MessageType: MessageTypeData,
	},
	{
		CborHex:     "8204420102",
		Message:     NewMsgPayment([]byte{0x01, 0x02}),
		MessageType: MessageTypePayment,
	},
	{
		CborHex:     "8305704e4554574f524b5f4d49534d4154434863626164",
		Message:     NewMsgError(ErrorCodeNetworkMismatch, "bad"),
		MessageType: MessageTypeError,
	},
}

func TestDecode(t *testing.T) {
	for _, test := range tests {
		cborData, err := hex.DecodeString(test.CborHex)
		if err != nil {
			t.Fatalf("failed to decode CBOR hex: %s", err)
		}
		msg, err := NewMsgFromCbor(test.MessageType, cborData)
		if err != nil {
			t.Fatalf("failed to decode CBOR: %s", err)
		}
		// Set the raw CBOR so the comparison should succeed
		test.Message.SetCbor(cborData)
		if !reflect.DeepEqual(msg, test.Message) {
			t.Fatalf(
				"CBOR did not decode to expected message object\n  got: %#v\n  wanted: %#v",
				msg,
				test.Message,
			)
		}
		test.Message.SetCbor(nil)
	}
}

func TestEncode(t *testing.T) {
	for _, test := range tests {
		cborData, err := cbor.Encode(test.Message)
		if err != nil {
			t.Fatalf("failed to encode message to CBOR: %s", err)
		}
		cborHex := hex.EncodeToString(cborData)
		if cborHex != test.CborHex {
			t.Fatalf(
				"message did not encode to expected CBOR\n  got: %s\n  wanted: %s",
				cborHex,
				test.CborHex,
			)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	for _, test := range tests {
		cborData, err := hex.DecodeString(test.CborHex)
		if err != nil {
			t.Fatalf("failed to decode CBOR hex: %s", err)
		}
		msg, err := DecodeMessage(cborData)
		if err != nil {
			t.Fatalf("failed to decode message: %s", err)
		}
		if uint(msg.Type()) != test.MessageType {
			t.Fatalf(
				"decoded message has wrong type: got %d, wanted %d",
				msg.Type(),
				test.MessageType,
			)
		}
	}
}

func TestDecodeMessageUnknownType(t *testing.T) {
	// [9, 1]
	cborData, _ := hex.DecodeString("820901")
	_, err := DecodeMessage(cborData)
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expected unknown message type error, got: %v", err)
	}
}

func TestDecodeMessageNotAList(t *testing.T) {
	// "abc"
	cborData, _ := hex.DecodeString("63616263")
	_, err := DecodeMessage(cborData)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected invalid message error, got: %v", err)
	}
}

func TestDecodeMessageWrongFields(t *testing.T) {
	// [2, "x", 0, 1]: handle is not numeric
	cborData, _ := hex.DecodeString("8402617800" + "01")
	if _, err := DecodeMessage(cborData); err == nil {
		t.Fatalf("expected decode error for malformed DownloadChunk")
	}
}
