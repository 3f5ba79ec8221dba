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

// Package pool maintains a fixed-size set of connections to one node and
// load-balances dispatches across them. Lost connections are replaced in
// the background with jittered exponential backoff while traffic keeps
// flowing over the survivors.
package pool

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-io/tessera/internal/connection"
	"github.com/tessera-io/tessera/internal/future"
	"github.com/tessera-io/tessera/log"
	"github.com/tessera-io/tessera/protocol"
)

// Pool owns the connections to a single node.
type Pool struct {
	addr              string
	size              int
	connOpts          []connection.Option
	backoffInitial    time.Duration
	backoffMax        time.Duration
	reconnectAttempts int
	logger            log.Logger

	mu    sync.Mutex
	conns []*connection.Conn

	rr        atomic.Uint64
	stopped   atomic.Bool
	suspended atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithSize sets how many connections the pool keeps to its node.
func WithSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithConnectionOptions sets the options applied to every dialed
// connection.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(p *Pool) { p.connOpts = opts }
}

// WithReconnectBackoff bounds the delay between reconnection attempts.
func WithReconnectBackoff(initial, max time.Duration) Option {
	return func(p *Pool) {
		p.backoffInitial = initial
		p.backoffMax = max
	}
}

// WithReconnectAttempts bounds how many times a lost connection is
// redialed before its slot is given up.
func WithReconnectAttempts(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.reconnectAttempts = n
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger log.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New creates a pool for the node at addr. No connection is dialed until
// Start.
func New(addr string, opts ...Option) *Pool {
	p := &Pool{
		addr:              addr,
		size:              2,
		backoffInitial:    100 * time.Millisecond,
		backoffMax:        10 * time.Second,
		reconnectAttempts: 10,
		logger:            log.DiscardLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.conns = make([]*connection.Conn, p.size)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Addr returns the node address this pool serves.
func (p *Pool) Addr() string {
	return p.addr
}

// Start dials every connection slot concurrently. It fails only when not
// a single connection could be established; partially filled pools start
// serving and keep redialing the empty slots in the background.
func (p *Pool) Start(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	errs := make([]error, p.size)
	for i := 0; i < p.size; i++ {
		i := i
		eg.Go(func() error {
			errs[i] = p.dialSlot(egCtx, i)
			return nil
		})
	}
	_ = eg.Wait()

	if p.Healthy() == 0 {
		return multierr.Combine(errs...)
	}
	for i, err := range errs {
		if err != nil {
			p.logger.Warnf("pool %s: slot %d failed to dial, redialing in background: %v", p.addr, i, err)
			p.scheduleReconnect(i)
		}
	}
	return nil
}

// Dispatch sends one request over the least loaded healthy connection and
// waits for its response. Dead connections encountered along the way are
// skipped; with no healthy connection left it fails with
// ErrNodeUnavailable so the dispatcher can move on to the next replica.
func (p *Pool) Dispatch(ctx context.Context, opcode protocol.OpCode, body []byte) (protocol.Frame, error) {
	if p.stopped.Load() {
		return protocol.Frame{}, ErrPoolStopped
	}

	tried := make(map[*connection.Conn]struct{}, p.size)
	backpressured := false
	for {
		conn := p.pick(tried)
		if conn == nil {
			break
		}
		tried[conn] = struct{}{}

		pending, err := conn.Send(opcode, body)
		switch {
		case err == nil:
			return p.await(ctx, pending)
		case errors.Is(err, connection.ErrStreamsExhausted):
			backpressured = true
		case errors.Is(err, connection.ErrConnectionLost):
			// the connection died under us; its slot is already being
			// replaced, move on
		default:
			return protocol.Frame{}, err
		}
	}

	if backpressured {
		return protocol.Frame{}, connection.ErrStreamsExhausted
	}
	return protocol.Frame{}, ErrNodeUnavailable
}

func (p *Pool) await(ctx context.Context, pending *future.Future[protocol.Frame]) (protocol.Frame, error) {
	frame, err := pending.Await(ctx)
	if err != nil {
		return protocol.Frame{}, err
	}
	return frame, nil
}

// pick returns the healthy connection with the fewest in-flight requests,
// breaking ties round-robin. Connections in tried are skipped.
func (p *Pool) pick(tried map[*connection.Conn]struct{}) *connection.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []*connection.Conn
	leastPending := math.MaxInt
	for _, conn := range p.conns {
		if conn == nil || conn.State() != connection.StateReady {
			continue
		}
		if _, skip := tried[conn]; skip {
			continue
		}
		switch pending := conn.Pending(); {
		case pending < leastPending:
			leastPending = pending
			candidates = append(candidates[:0], conn)
		case pending == leastPending:
			candidates = append(candidates, conn)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[p.rr.Inc()%uint64(len(candidates))]
}

// Healthy returns the number of connections currently serving requests.
func (p *Pool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	healthy := 0
	for _, conn := range p.conns {
		if conn != nil && conn.State() == connection.StateReady {
			healthy++
		}
	}
	return healthy
}

// Suspend drains the pool: every connection is closed and no redialing
// happens until Resume. Used when the topology marks the node Down.
func (p *Pool) Suspend() {
	if !p.suspended.CompareAndSwap(false, true) {
		return
	}
	p.logger.Infof("pool %s: node marked down, draining connections", p.addr)
	p.closeAll()
}

// Resume lifts a Suspend and redials every empty slot.
func (p *Pool) Resume() {
	if !p.suspended.CompareAndSwap(true, false) {
		return
	}
	p.logger.Infof("pool %s: node back up, redialing", p.addr)
	p.mu.Lock()
	empty := make([]int, 0, p.size)
	for i, conn := range p.conns {
		if conn == nil {
			empty = append(empty, i)
		}
	}
	p.mu.Unlock()
	for _, i := range empty {
		p.scheduleReconnect(i)
	}
}

// Stop tears the pool down for good and waits for the background redial
// tasks to finish.
func (p *Pool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.closeAll()
	p.wg.Wait()
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	conns := make([]*connection.Conn, 0, p.size)
	for i, conn := range p.conns {
		if conn != nil {
			conns = append(conns, conn)
			p.conns[i] = nil
		}
	}
	p.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// dialSlot establishes the connection for one slot and installs it.
func (p *Pool) dialSlot(ctx context.Context, slot int) error {
	opts := make([]connection.Option, 0, len(p.connOpts)+1)
	opts = append(opts, p.connOpts...)
	opts = append(opts, connection.WithOnClose(func(cause error) {
		p.handleLoss(slot, cause)
	}))

	conn, err := connection.Dial(ctx, p.addr, opts...)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.stopped.Load() || p.suspended.Load() {
		p.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	p.conns[slot] = conn
	p.mu.Unlock()

	// the connection may have died between Dial returning and the install;
	// re-run the loss path so the slot does not silently hold a corpse
	if conn.State() == connection.StateClosed {
		p.handleLoss(slot, connection.ErrConnectionLost)
	}
	return nil
}

// handleLoss clears a dead connection's slot and kicks off its
// replacement.
func (p *Pool) handleLoss(slot int, cause error) {
	p.mu.Lock()
	conn := p.conns[slot]
	if conn == nil || conn.State() != connection.StateClosed {
		p.mu.Unlock()
		return
	}
	p.conns[slot] = nil
	p.mu.Unlock()

	if p.stopped.Load() || p.suspended.Load() {
		return
	}
	p.logger.Warnf("pool %s: connection lost (%v), redialing slot %d", p.addr, cause, slot)
	p.scheduleReconnect(slot)
}

// scheduleReconnect redials one slot in the background with jittered
// exponential backoff.
func (p *Pool) scheduleReconnect(slot int) {
	if p.stopped.Load() {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		retrier := retry.NewRetrier(p.reconnectAttempts, p.backoffInitial, p.backoffMax)
		err := retrier.RunContext(p.ctx, func(ctx context.Context) error {
			return p.dialSlot(ctx, slot)
		})
		if err != nil && p.ctx.Err() == nil {
			p.logger.Errorf("pool %s: giving up on slot %d: %v", p.addr, slot, err)
		}
	}()
}
