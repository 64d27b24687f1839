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

package frame

import (
	"errors"
	"io"
	"net"
	"sync"
)

var ErrConnClosed = errors.New("frame: connection closed")

// Conn wraps a net.Conn with a receive goroutine that delivers whole frames
// and a mutex that serializes outbound frames
type Conn struct {
	conn      net.Conn
	maxLength uint32
	sendMutex sync.Mutex
	recvChan  chan []byte
	errorChan chan error
	doneChan  chan struct{}
	waitGroup sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

// NewConn returns a new Conn that rejects inbound frames larger than maxLength.
// Start must be called before frames are delivered.
func NewConn(conn net.Conn, maxLength uint32) *Conn {
	return &Conn{
		conn:      conn,
		maxLength: maxLength,
		recvChan:  make(chan []byte, 10),
		errorChan: make(chan error, 1),
		doneChan:  make(chan struct{}),
	}
}

// Start starts the receive goroutine
func (c *Conn) Start() {
	c.onceStart.Do(func() {
		c.waitGroup.Add(1)
		go c.readLoop()
	})
}

// Stop closes the underlying connection and waits for the receive goroutine
// to exit. It is safe to call more than once.
func (c *Conn) Stop() error {
	var err error
	c.onceStop.Do(func() {
		close(c.doneChan)
		err = c.conn.Close()
		c.waitGroup.Wait()
	})
	return err
}

// RecvChan returns the channel of inbound frame payloads. It is closed when
// the receive goroutine exits.
func (c *Conn) RecvChan() <-chan []byte {
	return c.recvChan
}

// ErrorChan returns a channel that receives the error that ended the receive
// goroutine. Errors are not reported after Stop. A clean remote close is
// reported as io.EOF.
func (c *Conn) ErrorChan() <-chan error {
	return c.errorChan
}

// DoneChan returns a channel that is closed when Stop is called
func (c *Conn) DoneChan() <-chan struct{} {
	return c.doneChan
}

// RemoteAddr returns the address of the remote end of the connection
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes payload as a single frame
func (c *Conn) Send(payload []byte) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	select {
	case <-c.doneChan:
		return ErrConnClosed
	default:
	}
	return WriteFrame(c.conn, payload)
}

func (c *Conn) sendError(err error) {
	// Immediately return if we're already shutting down
	select {
	case <-c.doneChan:
		return
	default:
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	select {
	case c.errorChan <- err:
	default:
	}
}

func (c *Conn) readLoop() {
	defer c.waitGroup.Done()
	defer close(c.recvChan)
	for {
		payload, err := ReadFrame(c.conn, c.maxLength)
		if err != nil {
			c.sendError(err)
			return
		}
		select {
		case <-c.doneChan:
			return
		case c.recvChan <- payload:
		}
	}
}
