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
	"log/slog"
	"net"

	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/manifest"
	"github.com/blinklabs-io/payfile/paychan"
)

// ServerOptionFunc is a type that represents functions that modify the Server config
type ServerOptionFunc func(*Server)

// WithManifest specifies the files to serve
func WithManifest(m *manifest.Manifest) ServerOptionFunc {
	return func(s *Server) {
		s.manifest = m
	}
}

// WithNetwork specifies the currency network. Clients on other networks are
// refused.
func WithNetwork(network payfile.Network) ServerOptionFunc {
	return func(s *Server) {
		s.network = network
	}
}

// WithListenAddress specifies the address to listen on. The default is to
// listen on DefaultPort on all interfaces.
func WithListenAddress(address string) ServerOptionFunc {
	return func(s *Server) {
		s.listenAddress = address
	}
}

// WithListener specifies an existing listener to accept connections from
func WithListener(listener net.Listener) ServerOptionFunc {
	return func(s *Server) {
		s.listener = listener
	}
}

// WithPaymentChannelFactory specifies how server side payment channels are
// created
func WithPaymentChannelFactory(factory paychan.ServerFactory) ServerOptionFunc {
	return func(s *Server) {
		s.channelFactory = factory
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ServerOptionFunc {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxSessions specifies the maximum number of concurrent sessions
func WithMaxSessions(maxSessions int64) ServerOptionFunc {
	return func(s *Server) {
		s.maxSessions = maxSessions
	}
}

// WithMaxChunksPerRequest specifies the largest chunk count accepted in a
// single DownloadChunk request
func WithMaxChunksPerRequest(maxChunks int) ServerOptionFunc {
	return func(s *Server) {
		s.maxChunksPerRequest = maxChunks
	}
}

// WithSessionClosedFunc specifies a function to call when a session ends
func WithSessionClosedFunc(sessionClosedFunc SessionClosedFunc) ServerOptionFunc {
	return func(s *Server) {
		s.sessionClosedFunc = sessionClosedFunc
	}
}
