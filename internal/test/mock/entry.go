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

package mock

import (
	"github.com/blinklabs-io/payfile"
	"github.com/blinklabs-io/payfile/protocol"
)

type EntryType int

const (
	EntryTypeNone   EntryType = 0
	EntryTypeInput  EntryType = 1
	EntryTypeOutput EntryType = 2
	EntryTypeClose  EntryType = 3
)

// ConversationEntry is one step of a mocked server conversation
type ConversationEntry struct {
	Type EntryType
	// InputMessage is compared with the received message when set. Otherwise
	// only InputMessageType is checked.
	InputMessage     protocol.Message
	InputMessageType uint8
	// OutputMessages are sent as one frame each
	OutputMessages []protocol.Message
	// OutputFrames are sent verbatim after OutputMessages
	OutputFrames [][]byte
	// WaitChan holds back an output entry until it is closed
	WaitChan <-chan struct{}
}

// ConversationEntryQueryFiles is a pre-defined conversation entry that matches
// a query from a client on the mock network
var ConversationEntryQueryFiles = ConversationEntry{
	Type:         EntryTypeInput,
	InputMessage: protocol.NewMsgQueryFiles(payfile.UserAgent(), MockNetwork.Id),
}

// ConversationEntryClose closes the mocked server side of the connection
var ConversationEntryClose = ConversationEntry{
	Type: EntryTypeClose,
}

// MockNetwork is the network expected by the pre-defined entries
var MockNetwork = payfile.NetworkRegtest

// InputEntry returns an entry that expects msg from the client
func InputEntry(msg protocol.Message) ConversationEntry {
	return ConversationEntry{
		Type:         EntryTypeInput,
		InputMessage: msg,
	}
}

// OutputEntry returns an entry that sends msgs to the client
func OutputEntry(msgs ...protocol.Message) ConversationEntry {
	return ConversationEntry{
		Type:           EntryTypeOutput,
		OutputMessages: msgs,
	}
}
