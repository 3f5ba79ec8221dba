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

// OpCode identifies the kind of payload a frame carries.
type OpCode uint8

const (
	// OpError is a server-reported error for a request.
	OpError OpCode = 0x00
	// OpStartup initializes a connection after the options exchange.
	OpStartup OpCode = 0x01
	// OpReady acknowledges a successful startup.
	OpReady OpCode = 0x02
	// OpAuthenticate asks the client to authenticate.
	OpAuthenticate OpCode = 0x03
	// OpOptions asks the server which options it supports.
	OpOptions OpCode = 0x05
	// OpSupported carries the server's supported options.
	OpSupported OpCode = 0x06
	// OpQuery executes a query.
	OpQuery OpCode = 0x07
	// OpResult carries the outcome of a query, prepare or execute.
	OpResult OpCode = 0x08
	// OpPrepare prepares a statement for later execution.
	OpPrepare OpCode = 0x09
	// OpExecute executes a prepared statement.
	OpExecute OpCode = 0x0A
	// OpRegister subscribes this connection to server push events.
	OpRegister OpCode = 0x0B
	// OpEvent is a server push notification on the event stream.
	OpEvent OpCode = 0x0C
	// OpBatch executes a batch of statements.
	OpBatch OpCode = 0x0D
	// OpAuthChallenge continues a SASL exchange.
	OpAuthChallenge OpCode = 0x0E
	// OpAuthResponse answers an authentication challenge.
	OpAuthResponse OpCode = 0x0F
	// OpAuthSuccess concludes a successful SASL exchange.
	OpAuthSuccess OpCode = 0x10
)

var opcodeNames = map[OpCode]string{
	OpError:         "ERROR",
	OpStartup:       "STARTUP",
	OpReady:         "READY",
	OpAuthenticate:  "AUTHENTICATE",
	OpOptions:       "OPTIONS",
	OpSupported:     "SUPPORTED",
	OpQuery:         "QUERY",
	OpResult:        "RESULT",
	OpPrepare:       "PREPARE",
	OpExecute:       "EXECUTE",
	OpRegister:      "REGISTER",
	OpEvent:         "EVENT",
	OpBatch:         "BATCH",
	OpAuthChallenge: "AUTH_CHALLENGE",
	OpAuthResponse:  "AUTH_RESPONSE",
	OpAuthSuccess:   "AUTH_SUCCESS",
}

// Valid reports whether the opcode is part of the protocol.
func (o OpCode) Valid() bool {
	_, ok := opcodeNames[o]
	return ok
}

// String returns the protocol name of the opcode.
func (o OpCode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}
