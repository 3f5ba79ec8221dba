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

// Package ring maps tokens onto the ordered set of nodes owning them. The
// ring covers the whole signed 64-bit token space with no gaps: the first
// entry whose boundary is at or above a token owns it, wrapping from the
// maximum token back to the minimum.
package ring

import (
	"fmt"
	"sort"

	"github.com/tessera-io/tessera/hash"
)

// Token places a partition on the ring.
type Token int64

// Partitioner derives tokens from partition keys. Identical key bytes
// always yield the identical token for a fixed hashing strategy.
type Partitioner struct {
	hasher hash.Hasher
}

// NewPartitioner creates a Partitioner over the given hashing strategy.
func NewPartitioner(hasher hash.Hasher) Partitioner {
	return Partitioner{hasher: hasher}
}

// TokenFor computes the token of a partition key.
func (p Partitioner) TokenFor(partitionKey []byte) Token {
	return Token(int64(p.hasher.HashCode(partitionKey)))
}

// Name returns the identifier of the underlying hashing strategy.
func (p Partitioner) Name() string {
	return p.hasher.Name()
}

// TokensFor derives the virtual-node boundaries a node introduces on the
// ring. Boundaries depend only on the node id and the strategy, so every
// driver instance rebuilds an identical ring from the same membership.
func TokensFor(hasher hash.Hasher, nodeID string, count int) []Token {
	tokens := make([]Token, 0, count)
	for i := 0; i < count; i++ {
		tokens = append(tokens, Token(int64(hasher.HashCode(fmt.Appendf(nil, "%s:%d", nodeID, i)))))
	}
	return tokens
}

// Entry is one (boundary, owner) pair on the ring.
type Entry struct {
	Token  Token
	NodeID string
}

// Ring is an immutable, sorted sequence of entries. Build once, share
// freely; lookups never mutate.
type Ring struct {
	entries []Entry
}

// Build constructs a ring from entries. Entries are sorted ascending by
// boundary; equal boundaries order by node id so rebuilds are stable.
// Building is O(n log n), lookups O(log n).
func Build(entries []Entry) *Ring {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Token == sorted[j].Token {
			return sorted[i].NodeID < sorted[j].NodeID
		}
		return sorted[i].Token < sorted[j].Token
	})
	return &Ring{entries: sorted}
}

// Len returns the number of ring entries.
func (r *Ring) Len() int {
	return len(r.entries)
}

// primaryIndex returns the index of the first entry with boundary >= token,
// wrapping to the first entry past the maximum boundary.
func (r *Ring) primaryIndex(token Token) int {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Token >= token
	})
	if i == len(r.entries) {
		return 0
	}
	return i
}

// PrimaryFor returns the node id owning the token. The second return is
// false for an empty ring.
func (r *Ring) PrimaryFor(token Token) (string, bool) {
	if len(r.entries) == 0 {
		return "", false
	}
	return r.entries[r.primaryIndex(token)].NodeID, true
}

// ReplicasFor walks the ring clockwise from the token's primary owner and
// collects up to replicationFactor distinct nodes. A factor beyond the
// number of distinct nodes caps at the node count. Nodes reported down by
// isDown are demoted to the tail of the returned order rather than
// excluded: the caller decides whether to skip or retry them.
func (r *Ring) ReplicasFor(token Token, replicationFactor int, isDown func(nodeID string) bool) []string {
	if len(r.entries) == 0 || replicationFactor <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, replicationFactor)
	var up, down []string

	start := r.primaryIndex(token)
	for i := 0; i < len(r.entries) && len(seen) < replicationFactor; i++ {
		entry := r.entries[(start+i)%len(r.entries)]
		if _, dup := seen[entry.NodeID]; dup {
			continue
		}
		seen[entry.NodeID] = struct{}{}
		if isDown != nil && isDown(entry.NodeID) {
			down = append(down, entry.NodeID)
			continue
		}
		up = append(up, entry.NodeID)
	}
	return append(up, down...)
}
