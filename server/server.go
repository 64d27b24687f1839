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

// Package server implements the payfile server. Each accepted connection runs
// a session that answers file queries and serves chunks against the balance
// paid through the session's payment channel.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/manifest"
	"github.com/blinklabs-io/payfile/paychan"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxSessions         = 64
	DefaultMaxChunksPerRequest = 1024
)

var ErrServerStopped = errors.New("server: stopped")

// SessionInfo describes a finished session
type SessionInfo struct {
	Id           uuid.UUID
	RemoteAddr   string
	Balance      btcutil.Amount
	Requests     int
	ChunksServed int
	Err          error
}

// SessionClosedFunc is called when a session ends
type SessionClosedFunc func(SessionInfo)

// Server accepts payfile connections
type Server struct {
	manifest            *manifest.Manifest
	network             payfile.Network
	listenAddress       string
	listener            net.Listener
	channelFactory      paychan.ServerFactory
	logger              *slog.Logger
	maxSessions         int64
	maxChunksPerRequest int
	sessionClosedFunc   SessionClosedFunc
	sessions            *sessionManager
	sem                 *semaphore.Weighted
	ctx                 context.Context
	cancel              context.CancelFunc
	waitGroup           sync.WaitGroup
	// stopMutex orders session registration against Stop
	stopMutex           sync.Mutex
	onceStart           sync.Once
	onceStop            sync.Once
}

// New returns a new Server with the specified options. A manifest is
// required.
func New(options ...ServerOptionFunc) (*Server, error) {
	s := &Server{
		network:             payfile.NetworkMainnet,
		listenAddress:       ":" + strconv.Itoa(payfile.DefaultPort),
		maxSessions:         DefaultMaxSessions,
		maxChunksPerRequest: DefaultMaxChunksPerRequest,
		sessions:            newSessionManager(),
	}
	for _, option := range options {
		option(s)
	}
	if s.manifest == nil {
		return nil, errors.New("server: no manifest specified")
	}
	if !s.network.Valid() {
		return nil, errors.New("server: invalid network")
	}
	if s.maxSessions < 1 {
		return nil, fmt.Errorf("server: invalid max sessions: %d", s.maxSessions)
	}
	if s.maxChunksPerRequest < 1 {
		return nil, fmt.Errorf("server: invalid max chunks per request: %d", s.maxChunksPerRequest)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.channelFactory == nil {
		s.channelFactory = paychan.NewServerFactory(
			nil,
			paychan.WithServerLogger(s.logger),
		)
	}
	s.sem = semaphore.NewWeighted(s.maxSessions)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start starts listening for connections, if no listener was provided, and
// starts the accept loop
func (s *Server) Start() error {
	var err error
	s.onceStart.Do(func() {
		s.stopMutex.Lock()
		defer s.stopMutex.Unlock()
		if s.ctx.Err() != nil {
			err = ErrServerStopped
			return
		}
		if s.listener == nil {
			s.listener, err = net.Listen("tcp", s.listenAddress)
			if err != nil {
				return
			}
		}
		s.logger.Info(
			"listening for connections",
			"component", "server",
			"address", s.listener.Addr().String(),
			"network", s.network.Name,
			"files", s.manifest.Len(),
		)
		s.waitGroup.Add(1)
		go s.acceptLoop()
	})
	return err
}

// Addr returns the listening address, or nil if the server is not started
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SessionCount returns the number of live sessions
func (s *Server) SessionCount() int {
	return s.sessions.Len()
}

// Stop closes the listener and all sessions and waits for them to finish
func (s *Server) Stop() error {
	var err error
	s.onceStop.Do(func() {
		s.stopMutex.Lock()
		s.cancel()
		s.stopMutex.Unlock()
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.sessions.StopAll()
		s.waitGroup.Wait()
		s.logger.Debug("server stopped", "component", "server")
	})
	return err
}

// ServeConn runs a session on an existing connection and returns when the
// session ends. The session counts against the session limit.
func (s *Server) ServeConn(conn net.Conn) error {
	if s.ctx.Err() != nil {
		conn.Close()
		return ErrServerStopped
	}
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		conn.Close()
		return ErrServerStopped
	}
	defer s.sem.Release(1)
	return s.runSession(conn)
}

func (s *Server) acceptLoop() {
	defer s.waitGroup.Done()
	for {
		// Wait for a free session slot before accepting
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			s.sem.Release(1)
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn(
				"failed to accept connection",
				"component", "server",
				"error", err,
			)
			continue
		}
		s.waitGroup.Add(1)
		go func() {
			defer s.waitGroup.Done()
			defer s.sem.Release(1)
			_ = s.runSession(conn)
		}()
	}
}

func (s *Server) runSession(conn net.Conn) error {
	s.stopMutex.Lock()
	if s.ctx.Err() != nil {
		s.stopMutex.Unlock()
		conn.Close()
		return ErrServerStopped
	}
	s.waitGroup.Add(1)
	sess := newSession(s, conn)
	s.sessions.AddSession(sess)
	s.stopMutex.Unlock()
	defer s.waitGroup.Done()
	defer s.sessions.RemoveSession(sess.id)
	err := sess.run()
	if s.sessionClosedFunc != nil {
		s.sessionClosedFunc(sess.info(err))
	}
	return err
}
