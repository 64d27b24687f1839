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

package frame_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/blinklabs-io/payfile/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, frame.WriteFrame(&buf, []byte("hello")))
	assert.Equal(
		t,
		[]byte{0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'},
		buf.Bytes(),
	)
}

func TestReadFrame(t *testing.T) {
	tests := []struct {
		name      string
		input     []byte
		maxLength uint32
		expected  []byte
		expectErr error
	}{
		{
			name:      "valid frame",
			input:     []byte{0, 0, 0, 3, 'a', 'b', 'c'},
			maxLength: frame.MaxClientFrameLength,
			expected:  []byte("abc"),
		},
		{
			name:      "empty frame",
			input:     []byte{0, 0, 0, 0},
			maxLength: frame.MaxClientFrameLength,
			expected:  []byte{},
		},
		{
			name:      "negative length",
			input:     []byte{0xff, 0xff, 0xff, 0xff},
			maxLength: frame.MaxServerFrameLength,
			expectErr: frame.ErrNegativeLength,
		},
		{
			name:      "exceeds client limit",
			input:     []byte{0x00, 0x01, 0x00, 0x01},
			maxLength: frame.MaxClientFrameLength,
			expectErr: frame.ErrFrameTooLarge,
		},
		{
			name:      "exceeds server limit",
			input:     []byte{0x00, 0x10, 0x00, 0x01},
			maxLength: frame.MaxServerFrameLength,
			expectErr: frame.ErrFrameTooLarge,
		},
		{
			name:      "truncated payload",
			input:     []byte{0, 0, 0, 5, 'a', 'b'},
			maxLength: frame.MaxClientFrameLength,
			expectErr: io.ErrUnexpectedEOF,
		},
		{
			name:      "no data",
			input:     []byte{},
			maxLength: frame.MaxClientFrameLength,
			expectErr: io.EOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := frame.ReadFrame(bytes.NewReader(tt.input), tt.maxLength)
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.True(
					t,
					errors.Is(err, tt.expectErr),
					"expected %v, got %v",
					tt.expectErr,
					err,
				)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, payload)
		})
	}
}

func TestReadFrameLimitBoundary(t *testing.T) {
	payload := make([]byte, frame.MaxClientFrameLength)
	var buf bytes.Buffer
	require.NoError(t, frame.WriteFrame(&buf, payload))
	got, err := frame.ReadFrame(&buf, frame.MaxClientFrameLength)
	require.NoError(t, err)
	assert.Len(t, got, int(frame.MaxClientFrameLength))
}

func TestReadFrameDoesNotConsumeOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, frame.HeaderLength)
	binary.BigEndian.PutUint32(header, frame.MaxClientFrameLength+1)
	buf.Write(header)
	buf.WriteString("trailing")
	_, err := frame.ReadFrame(&buf, frame.MaxClientFrameLength)
	require.Error(t, err)
	assert.True(t, frame.IsFramingError(err))
	assert.Equal(t, "trailing", buf.String())
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	messages := [][]byte{[]byte("one"), []byte("two"), {}, []byte("four")}
	for _, msg := range messages {
		require.NoError(t, frame.WriteFrame(&buf, msg))
	}
	for _, msg := range messages {
		got, err := frame.ReadFrame(&buf, frame.MaxClientFrameLength)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
	_, err := frame.ReadFrame(&buf, frame.MaxClientFrameLength)
	assert.ErrorIs(t, err, io.EOF)
}
