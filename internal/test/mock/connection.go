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

// Package mock provides a scripted payfile server for client tests
package mock

import (
	"fmt"
	"net"
	"reflect"
	"sync"
	"time"

	"github.com/blinklabs-io/payfile/frame"
	"github.com/blinklabs-io/payfile/protocol"
)

// Connection mocks a payfile server connection. The client uses it as a
// net.Conn while a goroutine plays back the conversation on the other end.
type Connection struct {
	mockConn     net.Conn
	conn         net.Conn
	conversation []ConversationEntry
	frameConn    *frame.Conn
	errorChan    chan error
	doneChan     chan struct{}
	waitGroup    sync.WaitGroup
	onceClose    sync.Once
}

// NewConnection returns a new Connection with the provided conversation entries
func NewConnection(conversation []ConversationEntry) *Connection {
	c := &Connection{
		conversation: conversation,
		errorChan:    make(chan error, 1),
		doneChan:     make(chan struct{}),
	}
	c.conn, c.mockConn = net.Pipe()
	// Read frames from the mocked side of the connection
	c.frameConn = frame.NewConn(c.mockConn, frame.MaxClientFrameLength)
	c.frameConn.Start()
	// Start async conversation handler
	c.waitGroup.Add(1)
	go c.asyncLoop()
	return c
}

// ErrorChan returns a channel that receives the first conversation mismatch
func (c *Connection) ErrorChan() <-chan error {
	return c.errorChan
}

// Read provides a proxy to the client-side connection's Read function. This is needed to satisfy the net.Conn interface
func (c *Connection) Read(b []byte) (n int, err error) {
	return c.conn.Read(b)
}

// Write provides a proxy to the client-side connection's Write function. This is needed to satisfy the net.Conn interface
func (c *Connection) Write(b []byte) (n int, err error) {
	return c.conn.Write(b)
}

// Close closes both sides of the connection and waits for the conversation
// handler to exit. This is needed to satisfy the net.Conn interface
func (c *Connection) Close() error {
	var err error
	c.onceClose.Do(func() {
		close(c.doneChan)
		err = c.conn.Close()
		_ = c.frameConn.Stop()
		c.waitGroup.Wait()
	})
	return err
}

// LocalAddr provides a proxy to the client-side connection's LocalAddr function. This is needed to satisfy the net.Conn interface
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr provides a proxy to the client-side connection's RemoteAddr function. This is needed to satisfy the net.Conn interface
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline provides a proxy to the client-side connection's SetDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline provides a proxy to the client-side connection's SetReadDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline provides a proxy to the client-side connection's SetWriteDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *Connection) sendError(err error) {
	// Mismatches after Close are expected
	select {
	case <-c.doneChan:
		return
	default:
	}
	select {
	case c.errorChan <- err:
	default:
	}
}

func (c *Connection) asyncLoop() {
	defer c.waitGroup.Done()
	for _, entry := range c.conversation {
		switch entry.Type {
		case EntryTypeInput:
			if err := c.processInputEntry(entry); err != nil {
				c.sendError(err)
				return
			}
		case EntryTypeOutput:
			if err := c.processOutputEntry(entry); err != nil {
				c.sendError(fmt.Errorf("output error: %w", err))
				return
			}
		case EntryTypeClose:
			_ = c.frameConn.Stop()
			return
		default:
			c.sendError(
				fmt.Errorf(
					"unknown conversation entry type: %d: %#v",
					entry.Type,
					entry,
				),
			)
			return
		}
	}
	// Anything received after the end of the conversation is unexpected
	for payload := range c.frameConn.RecvChan() {
		c.sendError(fmt.Errorf("unexpected message after end of conversation: %x", payload))
	}
}

func (c *Connection) processInputEntry(entry ConversationEntry) error {
	// Wait for a frame from the client
	payload, ok := <-c.frameConn.RecvChan()
	if !ok {
		return fmt.Errorf("connection closed while waiting for input: %#v", entry)
	}
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	if entry.InputMessage != nil {
		msg.SetCbor(nil)
		if !reflect.DeepEqual(msg, entry.InputMessage) {
			return fmt.Errorf(
				"parsed message does not match expected value: got %#v, expected %#v",
				msg,
				entry.InputMessage,
			)
		}
		return nil
	}
	if entry.InputMessageType != msg.Type() {
		return fmt.Errorf(
			"input message is not of expected type: expected %d, got %d",
			entry.InputMessageType,
			msg.Type(),
		)
	}
	return nil
}

func (c *Connection) processOutputEntry(entry ConversationEntry) error {
	if entry.WaitChan != nil {
		select {
		case <-entry.WaitChan:
		case <-c.doneChan:
			return nil
		}
	}
	for _, msg := range entry.OutputMessages {
		// Get raw CBOR from message
		data := msg.Cbor()
		// If message has no raw CBOR, encode the message
		if data == nil {
			var err error
			data, err = protocol.EncodeMessage(msg)
			if err != nil {
				return err
			}
		}
		if err := c.frameConn.Send(data); err != nil {
			return err
		}
	}
	for _, data := range entry.OutputFrames {
		if err := c.frameConn.Send(data); err != nil {
			return err
		}
	}
	return nil
}
