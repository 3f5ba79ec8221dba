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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tessera-io/tessera/internal/mockserver"
	"github.com/tessera-io/tessera/internal/topology"
	"github.com/tessera-io/tessera/log"
	"github.com/tessera-io/tessera/protocol"
)

func newTestCluster(t *testing.T, opts ...Option) *Cluster {
	t.Helper()
	opts = append([]Option{
		WithLogger(log.DiscardLogger),
		WithReconnectBackoff(10*time.Millisecond, 50*time.Millisecond),
		WithReconnectAttempts(2),
		WithDialTimeout(time.Second),
	}, opts...)
	c := New(opts...)
	t.Cleanup(c.Stop)
	return c
}

func TestExecuteRoutesToReplica(t *testing.T) {
	server, err := mockserver.Start()
	require.NoError(t, err)
	defer server.Close()

	c := newTestCluster(t)
	require.NoError(t, c.Seed(context.Background(), []string{server.Addr()}, 1))
	require.Len(t, c.Topology().Nodes(), 1)

	result, err := c.Execute(context.Background(), Statement{
		Key:    []byte("user:42"),
		Query:  "SELECT * FROM ks.users WHERE id = ?",
		Values: [][]byte{[]byte("42")},
	})
	require.NoError(t, err)
	require.Equal(t, protocol.ResultRows, result.Kind)
}

func TestExecuteWithoutTopology(t *testing.T) {
	c := newTestCluster(t)
	_, err := c.Execute(context.Background(), Statement{Key: []byte("k"), Query: "SELECT 1"})
	require.ErrorIs(t, err, ErrNoTopology)
}

func TestSeedFailsWhenNoNodeReachable(t *testing.T) {
	c := newTestCluster(t)
	err := c.Seed(context.Background(), []string{"127.0.0.1:1"}, 1)
	require.Error(t, err)
}

func TestExecuteFailsOverWhenNodeDiesMidFlight(t *testing.T) {
	hold := make(chan struct{})
	type node struct {
		server *mockserver.Server
		park   *atomic.Bool
		hits   *atomic.Int64
	}
	nodes := make(map[string]*node, 2)
	for _i := 0; _i < 2; _i++ {
		park := atomic.NewBool(false)
		hits := atomic.NewInt64(0)
		server, err := mockserver.Start(mockserver.WithHandler(func(frame protocol.Frame) (protocol.OpCode, []byte) {
			hits.Inc()
			if park.Load() {
				<-hold
			}
			return mockserver.EchoHandler(frame)
		}))
		require.NoError(t, err)
		defer server.Close()
		nodes[server.Addr()] = &node{server: server, park: park, hits: hits}
	}
	defer close(hold)

	addrs := make([]string, 0, 2)
	for addr := range nodes {
		addrs = append(addrs, addr)
	}

	c := newTestCluster(t)
	require.NoError(t, c.Seed(context.Background(), addrs, 2))

	// park whichever node owns the key so its in-flight request can be
	// killed mid-request
	key := []byte("doomed-partition")
	replicas := c.Topology().Replicas(c.partitioner.TokenFor(key))
	require.Len(t, replicas, 2)
	first := nodes[replicas[0].Addr]
	first.park.Store(true)

	done := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), Statement{Key: key, Query: "SELECT 1"})
		done <- err
	}()

	require.Eventually(t, func() bool { return first.hits.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	first.server.DropConnections()

	// the dying connection fails the in-flight attempt and the dispatcher
	// lands the retry on the second replica
	require.NoError(t, <-done)
	require.GreaterOrEqual(t, nodes[replicas[1].Addr].hits.Load(), int64(1))
}

func TestExecuteSurfacesServerErrorWithoutRetry(t *testing.T) {
	hits := atomic.NewInt64(0)
	server, err := mockserver.Start(mockserver.WithHandler(func(frame protocol.Frame) (protocol.OpCode, []byte) {
		hits.Inc()
		body := protocol.AppendInt(nil, protocol.ErrCodeSyntax)
		return protocol.OpError, protocol.AppendString(body, "line 1: no viable alternative")
	}))
	require.NoError(t, err)
	defer server.Close()

	c := newTestCluster(t, WithMaxAttempts(5))
	require.NoError(t, c.Seed(context.Background(), []string{server.Addr()}, 1))

	_, err = c.Execute(context.Background(), Statement{Key: []byte("k"), Query: "SELEC 1"})
	var serverErr *protocol.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, protocol.ErrCodeSyntax, serverErr.Code)
	require.Equal(t, int64(1), hits.Load())
}

func TestExecuteRetriesOverloadedReplicas(t *testing.T) {
	overloaded := func(frame protocol.Frame) (protocol.OpCode, []byte) {
		body := protocol.AppendInt(nil, protocol.ErrCodeOverloaded)
		return protocol.OpError, protocol.AppendString(body, "commitlog behind")
	}

	addrs := make([]string, 0, 2)
	for _i := 0; _i < 2; _i++ {
		server, err := mockserver.Start(mockserver.WithHandler(overloaded))
		require.NoError(t, err)
		defer server.Close()
		addrs = append(addrs, server.Addr())
	}

	c := newTestCluster(t)
	require.NoError(t, c.Seed(context.Background(), addrs, 2))

	_, err := c.Execute(context.Background(), Statement{Key: []byte("k"), Query: "SELECT 1"})

	var failed *RequestFailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Attempts, 2)
	for _, attempt := range failed.Attempts {
		var serverErr *protocol.ServerError
		require.ErrorAs(t, attempt.Err, &serverErr)
		require.Equal(t, protocol.ErrCodeOverloaded, serverErr.Code)
	}
}

func TestExecuteFailsWhenClusterUnreachable(t *testing.T) {
	server, err := mockserver.Start()
	require.NoError(t, err)

	c := newTestCluster(t)
	require.NoError(t, c.Seed(context.Background(), []string{server.Addr()}, 1))

	server.Close()
	pool := c.poolFor(server.Addr())
	require.NotNil(t, pool)
	require.Eventually(t, func() bool { return pool.Healthy() == 0 }, 3*time.Second, 10*time.Millisecond)

	_, err = c.Execute(context.Background(), Statement{Key: []byte("k"), Query: "SELECT 1"})
	require.ErrorIs(t, err, ErrNodeUnavailable)
	var failed *RequestFailedError
	require.ErrorAs(t, err, &failed)
}

func TestTopologyEventsDriveThePoolSet(t *testing.T) {
	seed, err := mockserver.Start()
	require.NoError(t, err)
	defer seed.Close()
	joiner, err := mockserver.Start()
	require.NoError(t, err)
	defer joiner.Close()

	c := newTestCluster(t)
	require.NoError(t, c.Seed(context.Background(), []string{seed.Addr()}, 2))

	t.Run("new node event brings up a pool", func(t *testing.T) {
		seed.PushEvent(protocol.Event{
			Type:   protocol.EventTopologyChange,
			Change: protocol.ChangeNewNode,
			Addr:   joiner.Addr(),
		})
		require.Eventually(t, func() bool {
			p := c.poolFor(joiner.Addr())
			return p != nil && p.Healthy() > 0
		}, 3*time.Second, 10*time.Millisecond)
		require.Len(t, c.Topology().Nodes(), 2)
	})

	t.Run("down event drains the pool", func(t *testing.T) {
		seed.PushEvent(protocol.Event{
			Type:   protocol.EventStatusChange,
			Change: protocol.ChangeDown,
			Addr:   joiner.Addr(),
		})
		require.Eventually(t, func() bool {
			return c.poolFor(joiner.Addr()).Healthy() == 0
		}, 3*time.Second, 10*time.Millisecond)

		node, ok := c.Topology().NodeByAddr(joiner.Addr())
		require.True(t, ok)
		require.Equal(t, topology.NodeDown, node.State)
	})

	t.Run("up event revives the pool", func(t *testing.T) {
		seed.PushEvent(protocol.Event{
			Type:   protocol.EventStatusChange,
			Change: protocol.ChangeUp,
			Addr:   joiner.Addr(),
		})
		require.Eventually(t, func() bool {
			return c.poolFor(joiner.Addr()).Healthy() > 0
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("removed node event retires the pool", func(t *testing.T) {
		seed.PushEvent(protocol.Event{
			Type:   protocol.EventTopologyChange,
			Change: protocol.ChangeRemovedNode,
			Addr:   joiner.Addr(),
		})
		require.Eventually(t, func() bool {
			return c.poolFor(joiner.Addr()) == nil
		}, 3*time.Second, 10*time.Millisecond)
		require.Len(t, c.Topology().Nodes(), 1)
	})
}

func TestOrderReplicasPrefersLocalDatacenter(t *testing.T) {
	c := newTestCluster(t, WithLocalDatacenter("dc2"))

	replicas := []topology.Node{
		{ID: "a", Datacenter: "dc1"},
		{ID: "b", Datacenter: "dc2"},
		{ID: "c", Datacenter: "dc1"},
		{ID: "d", Datacenter: "dc2"},
	}
	ordered := c.orderReplicas(replicas)

	ids := make([]string, 0, len(ordered))
	for _, node := range ordered {
		ids = append(ids, node.ID)
	}
	require.Equal(t, []string{"b", "d", "a", "c"}, ids)
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"node unavailable", ErrNodeUnavailable, true},
		{"connection lost", ErrConnectionLost, true},
		{"streams exhausted", ErrStreamsExhausted, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"server overloaded", &protocol.ServerError{Code: protocol.ErrCodeOverloaded}, true},
		{"server bootstrapping", &protocol.ServerError{Code: protocol.ErrCodeBootstrapping}, true},
		{"server syntax error", &protocol.ServerError{Code: protocol.ErrCodeSyntax}, false},
		{"server unauthorized", &protocol.ServerError{Code: protocol.ErrCodeUnauthorized}, false},
		{"protocol desync", ErrProtocolDesync, false},
		{"malformed frame", protocol.ErrMalformedFrame, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.retryable, retryable(tc.err))
		})
	}
}
