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

package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/frame"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/blinklabs-io/payfile/protocol"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
)

// session serves a single client connection
type session struct {
	id           uuid.UUID
	server       *Server
	conn         *frame.Conn
	remoteAddr   string
	logger       *slog.Logger
	state        protocol.State
	ledger       ledger
	channel      paychan.ServerChannel
	channelMutex sync.Mutex
	requests     int
	chunksServed int
	stopChan     chan struct{}
	onceStop     sync.Once
}

func newSession(s *Server, conn net.Conn) *session {
	sess := &session{
		id:         uuid.New(),
		server:     s,
		conn:       frame.NewConn(conn, frame.MaxClientFrameLength),
		remoteAddr: remoteAddrString(conn),
		state:      protocol.StateAwaitingMessage,
		stopChan:   make(chan struct{}),
	}
	sess.logger = s.logger.With(
		"component", "server",
		"session_id", sess.id.String(),
		"remote_addr", sess.remoteAddr,
	)
	return sess
}

func remoteAddrString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Stop asks the session to end. The run loop settles the payment channel
// before it closes the connection.
func (s *session) Stop() {
	s.onceStop.Do(func() {
		close(s.stopChan)
	})
}

func (s *session) info(err error) SessionInfo {
	return SessionInfo{
		Id:           s.id,
		RemoteAddr:   s.remoteAddr,
		Balance:      s.ledger.Balance(),
		Requests:     s.requests,
		ChunksServed: s.chunksServed,
		Err:          err,
	}
}

// run processes messages until the connection fails or a message can't be
// handled. A nil return means the client closed the connection or the
// server stopped the session.
func (s *session) run() error {
	s.logger.Debug("session started")
	s.conn.Start()
	var err error
	for err == nil {
		select {
		case <-s.stopChan:
			err = errSessionStopped
		case <-s.conn.DoneChan():
			err = errSessionStopped
		case payload, ok := <-s.conn.RecvChan():
			if !ok {
				select {
				case err = <-s.conn.ErrorChan():
				default:
					err = errSessionStopped
				}
				break
			}
			err = s.handlePayload(payload)
		}
	}
	s.close(err)
	if errors.Is(err, io.EOF) || errors.Is(err, errSessionStopped) {
		err = nil
	}
	return err
}

var errSessionStopped = errors.New("session stopped")

// handlePayload decodes and dispatches one message. Any returned error ends
// the session.
func (s *session) handlePayload(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.sendError(fmt.Errorf("panic: %v", r))
		}
	}()
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownMessageType) {
			return s.sendError(protocol.NewGenericError("Unknown message"))
		}
		return s.sendError(protocol.NewGenericError("Malformed message: %s", err))
	}
	newState, ok := protocol.ServerStateMap.Transition(s.state, msg.Type())
	if !ok {
		return s.sendError(protocol.NewGenericError("Unknown message"))
	}
	s.state = newState
	s.logger.Debug(
		"received message",
		"type", protocol.MessageTypeName(msg.Type()),
	)
	switch m := msg.(type) {
	case *protocol.MsgQueryFiles:
		err = s.handleQueryFiles(m)
	case *protocol.MsgDownloadChunk:
		err = s.handleDownloadChunk(m)
	case *protocol.MsgPayment:
		err = s.handlePayment(m)
	default:
		err = protocol.NewGenericError("Unknown message")
	}
	if err != nil {
		return s.sendError(err)
	}
	s.state = protocol.StateAwaitingMessage
	return nil
}

func (s *session) handleQueryFiles(msg *protocol.MsgQueryFiles) error {
	network := s.server.network
	if msg.NetworkId != network.Id {
		return protocol.NewError(
			protocol.ErrorCodeNetworkMismatch,
			fmt.Sprintf(
				"Client is using '%s' and server is '%s'",
				msg.NetworkId,
				network.Id,
			),
		)
	}
	s.logger.Debug(
		"sending manifest",
		"user_agent", msg.UserAgent,
		"files", s.server.manifest.Len(),
	)
	return s.send(s.server.manifest.Message())
}

func (s *session) handlePayment(msg *protocol.MsgPayment) error {
	channel := s.paymentChannel()
	if err := channel.Receive(msg.Payload); err != nil {
		if errors.Is(err, ErrNonPositiveCredit) {
			return err
		}
		// The channel reports its own failures to the client
		s.logger.Warn("payment channel error", "error", err)
	}
	return nil
}

// paymentChannel returns the session's channel, creating it on first use
func (s *session) paymentChannel() paychan.ServerChannel {
	s.channelMutex.Lock()
	defer s.channelMutex.Unlock()
	if s.channel != nil {
		return s.channel
	}
	var channel paychan.ServerChannel
	channel = s.server.channelFactory(
		paychan.ServerConfig{
			MinValue: s.server.manifest.PricePerChunk() * payfile.MinAcceptedChunks,
			SendFunc: func(data []byte) error {
				return s.send(protocol.NewMsgPayment(data))
			},
			BalanceIncreasedFunc: func(amount btcutil.Amount) error {
				if err := s.ledger.Credit(amount); err != nil {
					return err
				}
				s.logger.Debug(
					"payment received",
					"amount", amount,
					"balance", s.ledger.Balance(),
				)
				return nil
			},
			ClosedFunc: func(reason paychan.CloseReason) {
				s.logger.Debug("payment channel closed", "reason", reason.String())
				s.channelMutex.Lock()
				if s.channel == channel {
					s.channel = nil
				}
				s.channelMutex.Unlock()
			},
		},
	)
	s.channel = channel
	return channel
}

func (s *session) handleDownloadChunk(msg *protocol.MsgDownloadChunk) error {
	s.requests++
	entry, ok := s.server.manifest.Lookup(msg.Handle)
	if !ok {
		return protocol.NewGenericError(
			"DOWNLOAD_CHUNK specified invalid file handle %d",
			msg.Handle,
		)
	}
	if msg.NumChunks < 1 {
		return protocol.NewGenericError("DOWNLOAD_CHUNK: num_chunks must be >= 1")
	}
	if msg.NumChunks > s.server.maxChunksPerRequest {
		return protocol.NewGenericError(
			"DOWNLOAD_CHUNK: num_chunks must be <= %d",
			s.server.maxChunksPerRequest,
		)
	}
	if msg.ChunkId < 0 {
		return protocol.NewGenericError("DOWNLOAD_CHUNK: chunk_id must be >= 0")
	}
	price := entry.PricePerChunk
	if price > 0 && !s.ledger.CanAfford(price, msg.NumChunks) {
		return protocol.NewGenericError("Insufficient payment received for requested amount of data")
	}
	chunkSize := s.server.manifest.ChunkSize()
	for i := 0; i < msg.NumChunks; i++ {
		data, err := entry.ReadChunk(msg.ChunkId+int64(i), chunkSize)
		if err != nil {
			return protocol.NewGenericError("Error reading from disk: %s", err)
		}
		// Every reply carries the requested starting chunk id
		if err := s.send(protocol.NewMsgData(msg.Handle, msg.ChunkId, data)); err != nil {
			return err
		}
		s.chunksServed++
	}
	if err := s.ledger.Debit(price, msg.NumChunks); err != nil {
		return err
	}
	s.logger.Debug(
		"served chunks",
		"handle", msg.Handle,
		"chunk_id", msg.ChunkId,
		"num_chunks", msg.NumChunks,
		"balance", s.ledger.Balance(),
	)
	return nil
}

func (s *session) send(msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

// sendError reports err to the client and returns it. Errors without a
// protocol error code are sent as internal errors. Transport failures are
// returned without a reply.
func (s *session) sendError(err error) error {
	if errors.Is(err, frame.ErrConnClosed) || frame.IsFramingError(err) {
		return err
	}
	var protoErr *protocol.Error
	if !errors.As(err, &protoErr) {
		protoErr = protocol.NewError(
			protocol.ErrorCodeInternalError,
			fmt.Sprintf("Internal server error: %s", err),
		)
	}
	s.logger.Debug(
		"sending error",
		"code", protoErr.Code.String(),
		"explanation", protoErr.Explanation,
	)
	// Best effort, the session is closing anyway
	_ = s.send(protoErr.Message())
	return protoErr
}

// close ends the payment channel before the transport so a settlement
// message can still reach the client
func (s *session) close(err error) {
	s.state = protocol.StateClosed
	s.channelMutex.Lock()
	channel := s.channel
	s.channelMutex.Unlock()
	if channel != nil {
		if closeErr := channel.Close(); closeErr != nil {
			s.logger.Debug("failed to close payment channel", "error", closeErr)
		}
	}
	_ = s.conn.Stop()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, errSessionStopped) {
		s.logger.Info("session closed", "error", err)
		return
	}
	s.logger.Debug("session closed")
}
