// MIT License
//
// Copyright (c) 2026 Tessera Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned when a frame's declared body length does
	// not match the received bytes or the frame is otherwise truncated.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrCorruptFrame is returned when the checksum trailer does not match
	// the frame contents.
	ErrCorruptFrame = errors.New("corrupt frame")
	// ErrUnsupportedVersion is returned when the frame header carries a
	// protocol version this codec does not implement.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// UnknownOpCodeError is returned when a frame carries an opcode outside
// the protocol. Raw preserves the offending header bytes for diagnostics.
type UnknownOpCodeError struct {
	Code uint8
	Raw  []byte
}

func (e *UnknownOpCodeError) Error() string {
	return fmt.Sprintf("unknown opcode %#x", e.Code)
}

// Server error codes reported in ERROR frames.
const (
	// ErrCodeServer is an unexpected server-side failure.
	ErrCodeServer int32 = 0x0000
	// ErrCodeUnavailable means too few live replicas for the consistency level.
	ErrCodeUnavailable int32 = 0x1000
	// ErrCodeOverloaded means the coordinator shed the request under load.
	ErrCodeOverloaded int32 = 0x1001
	// ErrCodeBootstrapping means the coordinator is still joining the cluster.
	ErrCodeBootstrapping int32 = 0x1002
	// ErrCodeWriteTimeout is a coordinator-observed write timeout.
	ErrCodeWriteTimeout int32 = 0x1100
	// ErrCodeReadTimeout is a coordinator-observed read timeout.
	ErrCodeReadTimeout int32 = 0x1200
	// ErrCodeSyntax means the query could not be parsed.
	ErrCodeSyntax int32 = 0x2000
	// ErrCodeUnauthorized means the user may not perform the operation.
	ErrCodeUnauthorized int32 = 0x2100
	// ErrCodeInvalid means the query is syntactically correct but invalid.
	ErrCodeInvalid int32 = 0x2200
	// ErrCodeConfig means the query is invalid because of a config issue.
	ErrCodeConfig int32 = 0x2300
	// ErrCodeAlreadyExists means the schema object already exists.
	ErrCodeAlreadyExists int32 = 0x2400
	// ErrCodeUnprepared means the prepared statement id is unknown to the server.
	ErrCodeUnprepared int32 = 0x2500
)

// ServerError is an application-level error reported by the server in an
// ERROR frame. It is never retried transparently unless Retryable reports
// true.
type ServerError struct {
	Code    int32
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %#x: %s", e.Code, e.Message)
}

// Retryable reports whether retrying the request elsewhere can change the
// outcome. Only transient coordinator states qualify; everything the
// server says about the request itself is final.
func (e *ServerError) Retryable() bool {
	return e.Code == ErrCodeOverloaded || e.Code == ErrCodeBootstrapping
}
