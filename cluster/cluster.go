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

// Package cluster is the caller-facing entry point of the driver. A
// Cluster routes each statement to the replicas owning its partition key,
// prefers the local datacenter, and retries transient failures against
// the next replica up to a bounded attempt count.
package cluster

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-io/tessera/internal/connection"
	"github.com/tessera-io/tessera/internal/pool"
	"github.com/tessera-io/tessera/internal/ring"
	"github.com/tessera-io/tessera/internal/topology"
	"github.com/tessera-io/tessera/protocol"
)

// Statement is one request to execute against the cluster. Key is the
// partition key routing the request; Consistency zero means the
// cluster-wide default.
type Statement struct {
	Key         []byte
	Query       string
	Values      [][]byte
	Consistency protocol.Consistency
}

// Cluster owns the topology store and one worker pool per known node.
type Cluster struct {
	cfg         config
	store       *topology.Store
	partitioner ring.Partitioner

	mu    sync.Mutex
	pools map[string]*pool.Pool

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Cluster. It knows no nodes until Seed is called or the
// topology feed delivers membership.
func New(opts ...Option) *Cluster {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	storeOpts := []topology.StoreOption{
		topology.WithHasher(cfg.hasher),
		topology.WithLogger(cfg.logger),
	}
	if cfg.virtualNodes > 0 {
		storeOpts = append(storeOpts, topology.WithVirtualNodes(cfg.virtualNodes))
	}

	return &Cluster{
		cfg:         cfg,
		store:       topology.NewStore(storeOpts...),
		partitioner: ring.NewPartitioner(cfg.hasher),
		pools:       make(map[string]*pool.Pool),
	}
}

// Topology returns the current membership snapshot.
func (c *Cluster) Topology() *topology.Snapshot {
	return c.store.Current()
}

// Seed replaces the cluster view with the given node addresses and
// replication factor, then brings up a worker pool per node. It is the
// out-of-band administrative surface; day-to-day membership changes
// arrive through the server push feed instead.
func (c *Cluster) Seed(ctx context.Context, addrs []string, replicationFactor int) error {
	if c.stopped.Load() {
		return ErrClusterStopped
	}

	nodes := make([]topology.Node, 0, len(addrs))
	for _, addr := range addrs {
		nodes = append(nodes, topology.Node{Addr: addr, State: topology.NodeUp})
	}
	c.store.Seed(nodes, replicationFactor)

	return c.reconcilePools(ctx)
}

// reconcilePools brings the pool set in line with the current snapshot:
// a pool per member, none for departed nodes. It fails only when not a
// single node could be reached.
func (c *Cluster) reconcilePools(ctx context.Context) error {
	snapshot := c.store.Current()

	member := make(map[string]struct{})
	var missing []string
	c.mu.Lock()
	for _, node := range snapshot.Nodes() {
		member[node.Addr] = struct{}{}
		if _, ok := c.pools[node.Addr]; !ok {
			missing = append(missing, node.Addr)
		}
	}
	var departed []*pool.Pool
	for addr, p := range c.pools {
		if _, ok := member[addr]; !ok {
			departed = append(departed, p)
			delete(c.pools, addr)
		}
	}
	c.mu.Unlock()

	for _, p := range departed {
		p.Stop()
	}

	eg, egCtx := errgroup.WithContext(ctx)
	errs := make([]error, len(missing))
	for i, addr := range missing {
		i, addr := i, addr
		eg.Go(func() error {
			errs[i] = c.startPool(egCtx, addr)
			return nil
		})
	}
	_ = eg.Wait()

	c.mu.Lock()
	alive := len(c.pools)
	c.mu.Unlock()
	if alive == 0 {
		return multierr.Combine(errs...)
	}
	for i, err := range errs {
		if err != nil {
			c.cfg.logger.Warnf("node %s is unreachable: %v", missing[i], err)
		}
	}
	return nil
}

// startPool dials a worker pool for one node and registers it.
func (c *Cluster) startPool(ctx context.Context, addr string) error {
	p := pool.New(addr,
		pool.WithSize(c.cfg.connectionsPerNode),
		pool.WithReconnectBackoff(c.cfg.reconnectInitial, c.cfg.reconnectMax),
		pool.WithReconnectAttempts(c.cfg.reconnectAttempts),
		pool.WithLogger(c.cfg.logger),
		pool.WithConnectionOptions(c.connectionOptions()...))

	if err := p.Start(ctx); err != nil {
		p.Stop()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		go p.Stop()
		return ErrClusterStopped
	}
	if _, ok := c.pools[addr]; ok {
		go p.Stop() // somebody else won the race for this node
		return nil
	}
	c.pools[addr] = p
	return nil
}

func (c *Cluster) connectionOptions() []connection.Option {
	opts := []connection.Option{
		connection.WithDialTimeout(c.cfg.dialTimeout),
		connection.WithLogger(c.cfg.logger),
		connection.WithEventSink(c.handleServerEvent),
	}
	if c.cfg.compression != "" {
		opts = append(opts, connection.WithCompression(c.cfg.compression))
	}
	if c.cfg.checksum {
		opts = append(opts, connection.WithChecksum())
	}
	if c.cfg.username != "" {
		opts = append(opts, connection.WithCredentials(c.cfg.username, c.cfg.password))
	}
	return opts
}

// Execute routes one statement: compute the token, walk the replicas of
// the current snapshot in order, and return the first successful result.
// Transient failures move on to the next replica up to the attempt bound;
// errors the server reported about the request itself surface
// immediately.
func (c *Cluster) Execute(ctx context.Context, stmt Statement) (protocol.Result, error) {
	if c.stopped.Load() {
		return protocol.Result{}, ErrClusterStopped
	}

	if c.cfg.requestTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.requestTimeout)
			defer cancel()
		}
	}

	consistency := stmt.Consistency
	if consistency == protocol.ConsistencyAny {
		consistency = c.cfg.defaultConsistency
	}
	body := protocol.BuildQuery(stmt.Query, consistency, stmt.Values)

	token := c.partitioner.TokenFor(stmt.Key)
	replicas := c.orderReplicas(c.store.Current().Replicas(token))
	if len(replicas) == 0 {
		return protocol.Result{}, ErrNoTopology
	}

	var attempts []Attempt
	for _, node := range replicas {
		if len(attempts) >= c.cfg.maxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Node: node.Addr, Err: err})
			break
		}

		frame, err := c.dispatch(ctx, node.Addr, body)
		if err == nil {
			return protocol.ParseResult(frame.Body)
		}
		if !retryable(err) {
			return protocol.Result{}, err
		}
		c.cfg.logger.Warnf("attempt against %s failed, trying next replica: %v", node.Addr, err)
		attempts = append(attempts, Attempt{Node: node.Addr, Err: err})
	}
	return protocol.Result{}, &RequestFailedError{Attempts: attempts}
}

// orderReplicas moves local-datacenter replicas to the front, keeping the
// ring order within each group.
func (c *Cluster) orderReplicas(replicas []topology.Node) []topology.Node {
	if c.cfg.localDatacenter == "" {
		return replicas
	}
	ordered := make([]topology.Node, 0, len(replicas))
	var remote []topology.Node
	for _, node := range replicas {
		if node.Datacenter == c.cfg.localDatacenter {
			ordered = append(ordered, node)
		} else {
			remote = append(remote, node)
		}
	}
	return append(ordered, remote...)
}

func (c *Cluster) dispatch(ctx context.Context, addr string, body []byte) (protocol.Frame, error) {
	c.mu.Lock()
	p, ok := c.pools[addr]
	c.mu.Unlock()
	if !ok {
		return protocol.Frame{}, ErrNodeUnavailable
	}
	return p.Dispatch(ctx, protocol.OpQuery, body)
}

// handleServerEvent folds one server push notification into the topology
// and adjusts the pool set. It runs on a connection's read path, so pool
// work that blocks is handed off.
func (c *Cluster) handleServerEvent(pushed protocol.Event) {
	event, ok := topology.TranslateEvent(pushed)
	if !ok || c.stopped.Load() {
		return
	}
	c.store.Apply(event)

	switch event.Kind {
	case topology.EventNodeJoined:
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.startPool(context.Background(), pushed.Addr); err != nil {
				c.cfg.logger.Warnf("new node %s is unreachable: %v", pushed.Addr, err)
			}
		}()

	case topology.EventNodeLeft:
		c.mu.Lock()
		p, ok := c.pools[pushed.Addr]
		delete(c.pools, pushed.Addr)
		c.mu.Unlock()
		if ok {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				p.Stop()
			}()
		}

	case topology.EventNodeDown:
		if p := c.poolFor(pushed.Addr); p != nil {
			p.Suspend()
		}

	case topology.EventNodeUp:
		if p := c.poolFor(pushed.Addr); p != nil {
			p.Resume()
		}
	}
}

func (c *Cluster) poolFor(addr string) *pool.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pools[addr]
}

// Stop tears down every pool and waits for background work to finish.
func (c *Cluster) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	pools := make([]*pool.Pool, 0, len(c.pools))
	for addr, p := range c.pools {
		pools = append(pools, p)
		delete(c.pools, addr)
	}
	c.mu.Unlock()

	for _, p := range pools {
		p.Stop()
	}
	c.wg.Wait()
	c.cfg.logger.Info("cluster stopped")
}
