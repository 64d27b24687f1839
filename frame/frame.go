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

// Package frame implements the length-prefixed message envelope used on a
// payfile connection: a 4-byte big-endian length followed by that many bytes
// of payload.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderLength is the size of the length prefix
	HeaderLength = 4

	// MaxClientFrameLength is the largest frame a server accepts from a client.
	// Clients only send small control messages.
	MaxClientFrameLength uint32 = 64 * 1024

	// MaxServerFrameLength is the largest frame a client accepts from a server.
	// Server frames carry file data.
	MaxServerFrameLength uint32 = 1024 * 1024
)

var (
	ErrNegativeLength = errors.New("frame: negative length")
	ErrFrameTooLarge  = errors.New("frame: length exceeds limit")
)

// WriteFrame writes payload to w preceded by its length. The header and
// payload are written with a single call so that concurrent writers that
// serialize on WriteFrame never interleave partial frames.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxInt32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, HeaderLength+len(payload))
	// #nosec G115 -- length is bounded above
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderLength:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads a single frame from r and returns its payload. A length that
// is negative when read as a signed 32-bit value, or larger than maxLength, is
// a fatal framing error and nothing past the header is consumed.
func ReadFrame(r io.Reader, maxLength uint32) ([]byte, error) {
	var header [HeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	// #nosec G115 -- the wire length is defined as a signed 32-bit value
	length := int32(binary.BigEndian.Uint32(header[:]))
	if length < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeLength, length)
	}
	if uint32(length) > maxLength {
		return nil, fmt.Errorf(
			"%w: %d bytes (max %d)",
			ErrFrameTooLarge,
			length,
			maxLength,
		)
	}
	payload := make([]byte, length)
	// We use ReadFull because it guarantees to read the expected number of bytes or
	// return an error
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// IsFramingError returns whether err is a fatal framing violation rather
// than a transport error
func IsFramingError(err error) bool {
	return errors.Is(err, ErrNegativeLength) || errors.Is(err, ErrFrameTooLarge)
}
