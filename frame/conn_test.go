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
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/payfile/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestConnSendRecv(t *testing.T) {
	defer goleak.VerifyNone(t)
	left, right := net.Pipe()
	a := frame.NewConn(left, frame.MaxClientFrameLength)
	b := frame.NewConn(right, frame.MaxClientFrameLength)
	a.Start()
	b.Start()
	defer func() {
		_ = a.Stop()
		_ = b.Stop()
	}()

	go func() {
		_ = a.Send([]byte("ping"))
	}()
	select {
	case payload := <-b.RecvChan():
		assert.Equal(t, []byte("ping"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive frame within timeout")
	}
}

func TestConnRemoteClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	left, right := net.Pipe()
	c := frame.NewConn(left, frame.MaxClientFrameLength)
	c.Start()
	defer func() {
		_ = c.Stop()
	}()
	require.NoError(t, right.Close())
	select {
	case err := <-c.ErrorChan():
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive error within timeout")
	}
	// The receive channel is closed once the read loop exits
	select {
	case _, ok := <-c.RecvChan():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("receive channel was not closed")
	}
}

func TestConnOversizedFrame(t *testing.T) {
	defer goleak.VerifyNone(t)
	left, right := net.Pipe()
	c := frame.NewConn(left, frame.MaxClientFrameLength)
	c.Start()
	defer func() {
		_ = c.Stop()
		_ = right.Close()
	}()
	go func() {
		header := make([]byte, frame.HeaderLength)
		binary.BigEndian.PutUint32(header, frame.MaxClientFrameLength+1)
		_, _ = right.Write(header)
	}()
	select {
	case err := <-c.ErrorChan():
		assert.True(t, frame.IsFramingError(err))
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive error within timeout")
	}
}

func TestConnSendAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	left, right := net.Pipe()
	defer right.Close()
	c := frame.NewConn(left, frame.MaxClientFrameLength)
	c.Start()
	require.NoError(t, c.Stop())
	// Stopping twice is harmless
	require.NoError(t, c.Stop())
	assert.ErrorIs(t, c.Send([]byte("late")), frame.ErrConnClosed)
	// No error is reported for a local stop
	select {
	case err := <-c.ErrorChan():
		t.Fatalf("unexpected error after stop: %v", err)
	default:
	}
}
