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

package protocol_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/blinklabs-io/payfile/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeNames(t *testing.T) {
	assert.Equal(t, "GENERIC", protocol.ErrorCodeGeneric.String())
	assert.Equal(t, "NETWORK_MISMATCH", protocol.ErrorCodeNetworkMismatch.String())
	assert.Equal(t, "INTERNAL_ERROR", protocol.ErrorCodeInternalError.String())
	assert.Equal(t, "ErrorCode(42)", protocol.ErrorCode(42).String())
}

func TestParseErrorCode(t *testing.T) {
	assert.Equal(t, protocol.ErrorCodeNetworkMismatch, protocol.ParseErrorCode("NETWORK_MISMATCH"))
	assert.Equal(t, protocol.ErrorCodeInternalError, protocol.ParseErrorCode("INTERNAL_ERROR"))
	assert.Equal(t, protocol.ErrorCodeGeneric, protocol.ParseErrorCode("GENERIC"))
	// Unknown codes from a newer peer fall back to generic
	assert.Equal(t, protocol.ErrorCodeGeneric, protocol.ParseErrorCode("SOMETHING_NEW"))
	assert.Equal(t, protocol.ErrorCodeGeneric, protocol.ParseErrorCode(""))
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf(
		"download failed: %w",
		protocol.NewGenericError("DOWNLOAD_CHUNK specified invalid file handle %d", 9),
	)
	var protoErr *protocol.Error
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, protocol.ErrorCodeGeneric, protoErr.Code)
	assert.Equal(t, "DOWNLOAD_CHUNK specified invalid file handle 9", protoErr.Explanation)
	// Matching on code alone
	assert.ErrorIs(t, err, &protocol.Error{Code: protocol.ErrorCodeGeneric})
	assert.NotErrorIs(t, err, &protocol.Error{Code: protocol.ErrorCodeNetworkMismatch})
	assert.Contains(t, err.Error(), "GENERIC")
}

func TestErrorMessageRoundTrip(t *testing.T) {
	orig := protocol.NewError(protocol.ErrorCodeInternalError, "Internal server error: boom")
	msg := orig.Message()
	assert.Equal(t, "INTERNAL_ERROR", msg.Code)
	assert.Equal(t, orig, msg.Err())
}

func TestStateMapTransition(t *testing.T) {
	next, ok := protocol.ServerStateMap.Transition(
		protocol.StateAwaitingMessage,
		protocol.MessageTypeDownloadChunk,
	)
	require.True(t, ok)
	assert.Equal(t, protocol.StateDispatch, next)
	// Servers never accept server-originated messages
	_, ok = protocol.ServerStateMap.Transition(
		protocol.StateAwaitingMessage,
		protocol.MessageTypeData,
	)
	assert.False(t, ok)
	// A manifest is only valid while a query is in flight
	_, ok = protocol.ClientStateMap.Transition(
		protocol.StateIdle,
		protocol.MessageTypeManifest,
	)
	assert.False(t, ok)
	next, ok = protocol.ClientStateMap.Transition(
		protocol.StateQueryInFlight,
		protocol.MessageTypeManifest,
	)
	require.True(t, ok)
	assert.Equal(t, protocol.StateIdle, next)
	_, ok = protocol.ClientStateMap.Transition(
		protocol.StateQueryInFlight,
		protocol.MessageTypeData,
	)
	assert.False(t, ok)
	// A closed session accepts nothing
	_, ok = protocol.ServerStateMap.Transition(
		protocol.StateClosed,
		protocol.MessageTypeQueryFiles,
	)
	assert.False(t, ok)
}
