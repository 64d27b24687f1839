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
	"sync"

	"github.com/google/uuid"
)

// sessionManager tracks the live sessions of a server
type sessionManager struct {
	sessions      map[uuid.UUID]*session
	sessionsMutex sync.Mutex
}

func newSessionManager() *sessionManager {
	return &sessionManager{
		sessions: make(map[uuid.UUID]*session),
	}
}

func (m *sessionManager) AddSession(s *session) {
	m.sessionsMutex.Lock()
	m.sessions[s.id] = s
	m.sessionsMutex.Unlock()
}

func (m *sessionManager) RemoveSession(id uuid.UUID) {
	m.sessionsMutex.Lock()
	delete(m.sessions, id)
	m.sessionsMutex.Unlock()
}

func (m *sessionManager) Len() int {
	m.sessionsMutex.Lock()
	defer m.sessionsMutex.Unlock()
	return len(m.sessions)
}

// StopAll stops every session. Sessions remove themselves as they exit.
func (m *sessionManager) StopAll() {
	m.sessionsMutex.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessionsMutex.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}
