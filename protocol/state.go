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

package protocol

type State struct {
	Id   uint
	Name string
}

func NewState(id uint, name string) State {
	return State{
		Id:   id,
		Name: name,
	}
}

func (s State) String() string {
	return s.Name
}

type StateTransition struct {
	MsgType  uint8
	NewState State
}

type StateMapEntry struct {
	Transitions []StateTransition
}

type StateMap map[State]StateMapEntry

// Transition returns the state that follows receipt of a message of the
// given type in the given state. The second return value is false if the
// message is not allowed in that state.
func (s StateMap) Transition(state State, msgType uint8) (State, bool) {
	entry, ok := s[state]
	if !ok {
		return State{}, false
	}
	for _, t := range entry.Transitions {
		if t.MsgType == msgType {
			return t.NewState, true
		}
	}
	return State{}, false
}

// Server session states
var (
	StateAwaitingMessage = NewState(1, "AwaitingMessage")
	StateDispatch        = NewState(2, "Dispatch")
	StateClosed          = NewState(3, "Closed")
)

// ServerStateMap lists the messages a server session accepts from a client
var ServerStateMap = StateMap{
	StateAwaitingMessage: StateMapEntry{
		Transitions: []StateTransition{
			{
				MsgType:  MessageTypeQueryFiles,
				NewState: StateDispatch,
			},
			{
				MsgType:  MessageTypeDownloadChunk,
				NewState: StateDispatch,
			},
			{
				MsgType:  MessageTypePayment,
				NewState: StateDispatch,
			},
		},
	},
	// Nothing is read while a message is handled or after the session closes
	StateDispatch: StateMapEntry{},
	StateClosed:   StateMapEntry{},
}

// Client session states
var (
	StateIdle          = NewState(10, "Idle")
	StateQueryInFlight = NewState(11, "QueryInFlight")
	StatePaymentInit   = NewState(12, "PaymentInit")
	StateDownloading   = NewState(13, "Downloading")
	StateSettling      = NewState(14, "Settling")
)

// ClientStateMap lists the messages a client session accepts from a server
// while in each state. Payment and Error frames are accepted at any time.
var ClientStateMap = StateMap{
	StateIdle: StateMapEntry{
		Transitions: []StateTransition{
			{
				MsgType:  MessageTypePayment,
				NewState: StateIdle,
			},
			{
				MsgType:  MessageTypeError,
				NewState: StateIdle,
			},
		},
	},
	StateQueryInFlight: StateMapEntry{
		Transitions: []StateTransition{
			{
				MsgType:  MessageTypeManifest,
				NewState: StateIdle,
			},
			{
				MsgType:  MessageTypePayment,
				NewState: StateQueryInFlight,
			},
			{
				MsgType:  MessageTypeError,
				NewState: StateIdle,
			},
		},
	},
	StatePaymentInit: StateMapEntry{
		Transitions: []StateTransition{
			{
				MsgType:  MessageTypePayment,
				NewState: StatePaymentInit,
			},
			{
				MsgType:  MessageTypeError,
				NewState: StateIdle,
			},
		},
	},
	StateDownloading: StateMapEntry{
		Transitions: []StateTransition{
			{
				MsgType:  MessageTypeData,
				NewState: StateDownloading,
			},
			{
				MsgType:  MessageTypePayment,
				NewState: StateDownloading,
			},
			{
				MsgType:  MessageTypeError,
				NewState: StateIdle,
			},
		},
	},
	StateSettling: StateMapEntry{
		Transitions: []StateTransition{
			{
				MsgType:  MessageTypePayment,
				NewState: StateSettling,
			},
			{
				MsgType:  MessageTypeError,
				NewState: StateIdle,
			},
		},
	},
}
