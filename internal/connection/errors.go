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

package connection

import "errors"

var (
	// ErrStreamsExhausted is returned when every stream id of a connection
	// is awaiting a response. It signals backpressure to the caller; the
	// connection itself is healthy.
	ErrStreamsExhausted = errors.New("streams exhausted")
	// ErrProtocolDesync is returned when the server answers on a stream id
	// with no pending request. The connection is no longer trustworthy and
	// is torn down.
	ErrProtocolDesync = errors.New("protocol desync")
	// ErrConnectionLost is the terminal error delivered to every request
	// pending on a connection when its transport fails.
	ErrConnectionLost = errors.New("connection lost")
	// ErrAuthenticationFailed is returned when startup authentication is
	// rejected or credentials are missing.
	ErrAuthenticationFailed = errors.New("authentication failed")
)
