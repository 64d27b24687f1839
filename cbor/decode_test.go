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

package cbor_test

import (
	"encoding/hex"
	"reflect"
	"testing"

	"github.com/blinklabs-io/payfile/cbor"
)

type decodeTestDefinition struct {
	CborHex   string
	Object    any
	BytesRead int
}

var decodeTests = []decodeTestDefinition{
	// Simple list of numbers
	{
		CborHex: "83010203",
		Object:  []any{uint64(1), uint64(2), uint64(3)},
	},
	// Multiple CBOR objects
	{
		CborHex:   "81018102",
		Object:    []any{uint64(1)},
		BytesRead: 2,
	},
}

func TestDecode(t *testing.T) {
	for _, test := range decodeTests {
		cborData, err := hex.DecodeString(test.CborHex)
		if err != nil {
			t.Fatalf("failed to decode CBOR hex: %s", err)
		}
		var dest any
		bytesRead, err := cbor.Decode(cborData, &dest)
		if err != nil {
			t.Fatalf("failed to decode CBOR: %s", err)
		}
		if test.BytesRead > 0 {
			if bytesRead != test.BytesRead {
				t.Fatalf(
					"expected to read %d bytes, read %d instead",
					test.BytesRead,
					bytesRead,
				)
			}
		}
		if !reflect.DeepEqual(dest, test.Object) {
			t.Fatalf(
				"CBOR did not decode to expected object\n  got: %#v\n  wanted: %#v",
				dest,
				test.Object,
			)
		}
	}
}

type decodeIdTestDefinition struct {
	CborHex     string
	Id          int
	ExpectError bool
}

var decodeIdTests = []decodeIdTestDefinition{
	// [3, h'00']
	{CborHex: "82034100", Id: 3},
	// [24, 1] needs a full decode since 24 does not fit in the simple range
	{CborHex: "82181801", Id: 24},
	// Empty list
	{CborHex: "80", ExpectError: true},
	// Not a list
	{CborHex: "01", ExpectError: true},
	// First item is not numeric
	{CborHex: "8261610a", ExpectError: true},
}

func TestDecodeIdFromList(t *testing.T) {
	for _, test := range decodeIdTests {
		cborData, err := hex.DecodeString(test.CborHex)
		if err != nil {
			t.Fatalf("failed to decode CBOR hex: %s", err)
		}
		id, err := cbor.DecodeIdFromList(cborData)
		if test.ExpectError {
			if err == nil {
				t.Fatalf("%s: expected error, got id %d", test.CborHex, id)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", test.CborHex, err)
		}
		if id != test.Id {
			t.Fatalf("%s: expected id %d, got %d", test.CborHex, test.Id, id)
		}
	}
}

func TestEncodeRoundTripAsArray(t *testing.T) {
	type testMsg struct {
		cbor.StructAsArray
		Type  uint8
		Name  string
		Count uint32
	}
	src := testMsg{Type: 2, Name: "abc", Count: 7}
	data, err := cbor.Encode(&src)
	if err != nil {
		t.Fatalf("unexpected encode error: %s", err)
	}
	if hex.EncodeToString(data) != "83026361626307" {
		t.Fatalf("unexpected CBOR: %x", data)
	}
	var dest testMsg
	if _, err := cbor.Decode(data, &dest); err != nil {
		t.Fatalf("unexpected decode error: %s", err)
	}
	if dest.Type != src.Type || dest.Name != src.Name || dest.Count != src.Count {
		t.Fatalf("round trip mismatch: got %#v, wanted %#v", dest, src)
	}
}
