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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tessera-io/tessera/internal/ring"
)

// Snapshot is an immutable point-in-time view of the cluster: the node set
// plus the ring built from it. Snapshots are replaced wholesale, never
// mutated, so a holder keeps a fully consistent view for as long as it
// wants regardless of concurrent membership changes.
type Snapshot struct {
	version           uint64
	replicationFactor int
	nodes             map[string]Node
	ring              *ring.Ring
}

// emptySnapshot is what Current returns before any membership is known.
var emptySnapshot = &Snapshot{
	replicationFactor: 1,
	nodes:             map[string]Node{},
	ring:              ring.Build(nil),
}

// Version returns the monotonically increasing snapshot version.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// ReplicationFactor returns the replication factor the ring was built for.
func (s *Snapshot) ReplicationFactor() int {
	return s.replicationFactor
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id string) (Node, bool) {
	node, ok := s.nodes[id]
	return node, ok
}

// NodeByAddr returns the node listening on addr.
func (s *Snapshot) NodeByAddr(addr string) (Node, bool) {
	for _, node := range s.nodes {
		if node.Addr == addr {
			return node, true
		}
	}
	return Node{}, false
}

// Nodes returns all nodes ordered by id.
func (s *Snapshot) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeIDs returns the ids of all known nodes.
func (s *Snapshot) NodeIDs() mapset.Set[string] {
	ids := mapset.NewThreadUnsafeSet[string]()
	for id := range s.nodes {
		ids.Add(id)
	}
	return ids
}

// Ring returns the token ring of this snapshot.
func (s *Snapshot) Ring() *ring.Ring {
	return s.ring
}

// Replicas returns the ordered replica nodes for a token: clockwise walk,
// distinct nodes, down nodes demoted to the tail.
func (s *Snapshot) Replicas(token ring.Token) []Node {
	ids := s.ring.ReplicasFor(token, s.replicationFactor, func(id string) bool {
		node, ok := s.nodes[id]
		return ok && node.State != NodeUp
	})
	replicas := make([]Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := s.nodes[id]; ok {
			replicas = append(replicas, node)
		}
	}
	return replicas
}
