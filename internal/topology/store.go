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

// Package topology holds the driver's view of cluster membership. The
// current view is an immutable Snapshot swapped atomically on every
// membership event; readers never block and never observe a half-built
// ring.
package topology

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/tessera-io/tessera/hash"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/log"
	"github.com/tessera-io/tessera/protocol"
)

// EventKind discriminates membership events.
type EventKind int

const (
	// EventNodeJoined adds a node to the view.
	EventNodeJoined EventKind = iota
	// EventNodeLeft removes a node from the view.
	EventNodeLeft
	// EventNodeUp marks a node reachable.
	EventNodeUp
	// EventNodeDown marks a node unreachable.
	EventNodeDown
	// EventTokensChanged replaces a node's ring boundaries.
	EventTokensChanged
)

// Event is one membership change. Node is set for joins; NodeID for the
// rest; Tokens only for EventTokensChanged.
type Event struct {
	Kind   EventKind
	Node   Node
	NodeID string
	Tokens []ring.Token
}

// TranslateEvent converts a server push notification into a membership
// event. It reports false for events the store does not consume, such as
// schema changes.
func TranslateEvent(pushed protocol.Event) (Event, bool) {
	id := NodeIDForAddr(pushed.Addr)
	switch {
	case pushed.Type == protocol.EventTopologyChange && pushed.Change == protocol.ChangeNewNode:
		return Event{Kind: EventNodeJoined, Node: Node{ID: id, Addr: pushed.Addr}}, true
	case pushed.Type == protocol.EventTopologyChange && pushed.Change == protocol.ChangeRemovedNode:
		return Event{Kind: EventNodeLeft, NodeID: id}, true
	case pushed.Type == protocol.EventStatusChange && pushed.Change == protocol.ChangeUp:
		return Event{Kind: EventNodeUp, NodeID: id}, true
	case pushed.Type == protocol.EventStatusChange && pushed.Change == protocol.ChangeDown:
		return Event{Kind: EventNodeDown, NodeID: id}, true
	default:
		return Event{}, false
	}
}

// Store publishes the current Snapshot. Apply serializes writers; Current
// is a single atomic load on the read path.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	hasher  hash.Hasher
	vnodes  int
	logger  log.Logger
	version atomic.Uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHasher sets the hashing strategy used to derive virtual-node
// boundaries for nodes that announce no tokens.
func WithHasher(hasher hash.Hasher) StoreOption {
	return func(s *Store) { s.hasher = hasher }
}

// WithVirtualNodes sets how many ring boundaries each node introduces.
func WithVirtualNodes(count int) StoreOption {
	return func(s *Store) {
		if count > 0 {
			s.vnodes = count
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger log.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	store := &Store{
		hasher: hash.DefaultHasher(),
		vnodes: 16,
		logger: log.DiscardLogger,
	}
	for _, opt := range opts {
		opt(store)
	}
	store.current.Store(emptySnapshot)
	return store
}

// Current returns the latest fully-formed snapshot. It never blocks.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Seed replaces the membership wholesale from a list of nodes and a
// replication factor. It backs the out-of-band administrative surface;
// the push-notification feed goes through Apply.
func (s *Store) Seed(nodes []Node, replicationFactor int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replicationFactor < 1 {
		replicationFactor = s.Current().ReplicationFactor()
	}

	next := make(map[string]Node, len(nodes))
	for _, node := range nodes {
		if node.ID == "" {
			node.ID = NodeIDForAddr(node.Addr)
		}
		if len(node.Tokens) == 0 {
			node.Tokens = ring.TokensFor(s.hasher, node.ID, s.vnodes)
		}
		next[node.ID] = node
	}
	s.publish(next, replicationFactor)
	s.logger.Infof("topology seeded with %d node(s), replication factor %d", len(nodes), replicationFactor)
}

// Apply folds one membership event into a brand-new snapshot and publishes
// it. Events are applied strictly in arrival order; stale or duplicate
// events degrade to no-ops.
func (s *Store) Apply(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.Current()
	next := make(map[string]Node, len(prior.nodes)+1)
	for id, node := range prior.nodes {
		next[id] = node
	}

	switch event.Kind {
	case EventNodeJoined:
		node := event.Node
		if node.ID == "" {
			node.ID = NodeIDForAddr(node.Addr)
		}
		if existing, ok := next[node.ID]; ok && existing.State == NodeUp {
			return // already a live member
		}
		if len(node.Tokens) == 0 {
			node.Tokens = ring.TokensFor(s.hasher, node.ID, s.vnodes)
		}
		node.State = NodeUp
		next[node.ID] = node
		s.logger.Infof("node %s joined at %s", node.ID, node.Addr)

	case EventNodeLeft:
		if _, ok := next[event.NodeID]; !ok {
			return
		}
		delete(next, event.NodeID)
		s.logger.Infof("node %s left", event.NodeID)

	case EventNodeUp, EventNodeDown:
		node, ok := next[event.NodeID]
		if !ok {
			return
		}
		state := NodeUp
		if event.Kind == EventNodeDown {
			state = NodeDown
		}
		if node.State == state {
			return
		}
		node.State = state
		next[event.NodeID] = node
		s.logger.Infof("node %s marked %s", event.NodeID, state)

	case EventTokensChanged:
		node, ok := next[event.NodeID]
		if !ok {
			return
		}
		node.Tokens = append([]ring.Token(nil), event.Tokens...)
		next[event.NodeID] = node
		s.logger.Infof("node %s announced %d token(s)", event.NodeID, len(event.Tokens))

	default:
		s.logger.Warnf("ignoring membership event of unknown kind %d", event.Kind)
		return
	}

	s.publish(next, prior.replicationFactor)
}

// publish builds the ring for the node set and swaps in the new snapshot.
// Callers hold s.mu.
func (s *Store) publish(nodes map[string]Node, replicationFactor int) {
	entries := make([]ring.Entry, 0, len(nodes)*s.vnodes)
	for id, node := range nodes {
		for _, token := range node.Tokens {
			entries = append(entries, ring.Entry{Token: token, NodeID: id})
		}
	}

	s.current.Store(&Snapshot{
		version:           s.version.Inc(),
		replicationFactor: replicationFactor,
		nodes:             nodes,
		ring:              ring.Build(entries),
	})
}
