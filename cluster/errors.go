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

package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tessera-io/tessera/internal/connection"
	"github.com/tessera-io/tessera/internal/future"
	"github.com/tessera-io/tessera/internal/pool"
	"github.com/tessera-io/tessera/protocol"
)

// The internal failure kinds, re-exported so callers can classify with
// errors.Is without importing internal packages.
var (
	// ErrNodeUnavailable means a node had no healthy connection.
	ErrNodeUnavailable = pool.ErrNodeUnavailable
	// ErrConnectionLost means the transport failed mid-request.
	ErrConnectionLost = connection.ErrConnectionLost
	// ErrStreamsExhausted means every stream id on a connection was in
	// flight.
	ErrStreamsExhausted = connection.ErrStreamsExhausted
	// ErrProtocolDesync means client and server disagreed on in-flight
	// streams.
	ErrProtocolDesync = connection.ErrProtocolDesync
)

// ErrClusterStopped is returned once Stop has been called.
var ErrClusterStopped = errors.New("cluster is stopped")

// ErrNoTopology is returned when the cluster has no known nodes to route
// to. Seed the cluster or wait for the topology feed.
var ErrNoTopology = errors.New("no topology: cluster has no known nodes")

// Attempt records one failed replica attempt.
type Attempt struct {
	Node string
	Err  error
}

// RequestFailedError is the terminal error of Execute: every attempted
// replica failed. It carries the per-attempt causes so a caller can tell
// an unreachable cluster apart from a rejected request.
type RequestFailedError struct {
	Attempts []Attempt
}

func (e *RequestFailedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "request failed after %d attempt(s)", len(e.Attempts))
	for _, attempt := range e.Attempts {
		fmt.Fprintf(&sb, "; %s: %v", attempt.Node, attempt.Err)
	}
	return sb.String()
}

// Unwrap exposes the attempt causes to errors.Is and errors.As.
func (e *RequestFailedError) Unwrap() []error {
	causes := make([]error, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		causes = append(causes, attempt.Err)
	}
	return causes
}

// retryable reports whether a failed attempt may succeed against another
// replica. Server-reported errors are only retried when the server itself
// was the bottleneck.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNodeUnavailable),
		errors.Is(err, ErrConnectionLost),
		errors.Is(err, ErrStreamsExhausted),
		errors.Is(err, future.ErrFutureTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var serverErr *protocol.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Retryable()
	}
	return false
}
