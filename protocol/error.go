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

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidMessage     = errors.New("invalid message")
)

// ErrorCode identifies the class of a protocol error. It travels on the wire
// as its name.
type ErrorCode uint8

const (
	ErrorCodeGeneric ErrorCode = iota
	ErrorCodeNetworkMismatch
	ErrorCodeInternalError
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeGeneric:         "GENERIC",
	ErrorCodeNetworkMismatch: "NETWORK_MISMATCH",
	ErrorCodeInternalError:   "INTERNAL_ERROR",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// ParseErrorCode maps a wire error code name to an ErrorCode. Names that are
// not recognized map to ErrorCodeGeneric.
func ParseErrorCode(name string) ErrorCode {
	for code, codeName := range errorCodeNames {
		if codeName == name {
			return code
		}
	}
	return ErrorCodeGeneric
}

// Error is a protocol level error reported by a server session
type Error struct {
	Code        ErrorCode
	Explanation string
}

func NewError(code ErrorCode, explanation string) *Error {
	return &Error{
		Code:        code,
		Explanation: explanation,
	}
}

func NewGenericError(format string, args ...any) *Error {
	return NewError(ErrorCodeGeneric, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e.Explanation == "" {
		return "protocol error: " + e.Code.String()
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Code, e.Explanation)
}

// Is reports a match against another *Error with the same code, so callers
// can test for a class of error with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Explanation == "" || t.Explanation == e.Explanation)
}

// Message returns the wire representation of the error
func (e *Error) Message() *MsgError {
	return NewMsgError(e.Code, e.Explanation)
}
