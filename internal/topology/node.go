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

package topology

import (
	"github.com/google/uuid"

	"github.com/tessera-io/tessera/internal/ring"
)

// NodeState is the liveness state of a cluster node.
type NodeState int

const (
	// NodeUp means the node serves requests.
	NodeUp NodeState = iota
	// NodeDown means the node is unreachable; it stays on the ring as a
	// last-resort fallback.
	NodeDown
	// NodeBeingReplaced means the node is being swapped out by an operator.
	NodeBeingReplaced
)

var nodeStateNames = map[NodeState]string{
	NodeUp:            "up",
	NodeDown:          "down",
	NodeBeingReplaced: "being-replaced",
}

// String returns the text form of the state.
func (s NodeState) String() string {
	if name, ok := nodeStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Node is one member of the cluster as the driver sees it. Nodes are
// owned by the topology store; everything else handles copies.
type Node struct {
	ID         string
	Addr       string
	Datacenter string
	Rack       string
	State      NodeState
	Tokens     []ring.Token
}

// nodeIDNamespace scopes the deterministic host ids derived from
// addresses, so two drivers watching the same cluster agree on them.
var nodeIDNamespace = uuid.MustParse("8e0c1b5e-52f4-46e5-b35c-7baf8b2d4c10")

// NodeIDForAddr derives a stable host id from a node address. Push events
// identify nodes by address only; the derived id keeps ring boundaries
// identical across driver instances.
func NodeIDForAddr(addr string) string {
	return uuid.NewSHA1(nodeIDNamespace, []byte(addr)).String()
}
