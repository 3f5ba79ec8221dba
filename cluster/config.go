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
	"time"

	"github.com/tessera-io/tessera/hash"
	"github.com/tessera-io/tessera/log"
	"github.com/tessera-io/tessera/protocol"
)

type config struct {
	connectionsPerNode int
	reconnectInitial   time.Duration
	reconnectMax       time.Duration
	reconnectAttempts  int
	dialTimeout        time.Duration
	requestTimeout     time.Duration
	maxAttempts        int
	defaultConsistency protocol.Consistency
	compression        string
	checksum           bool
	username           string
	password           string
	localDatacenter    string
	virtualNodes       int
	hasher             hash.Hasher
	logger             log.Logger
}

func defaultConfig() config {
	return config{
		connectionsPerNode: 2,
		reconnectInitial:   100 * time.Millisecond,
		reconnectMax:       10 * time.Second,
		reconnectAttempts:  10,
		dialTimeout:        5 * time.Second,
		maxAttempts:        3,
		defaultConsistency: protocol.ConsistencyQuorum,
		hasher:             hash.DefaultHasher(),
		logger:             log.DefaultLogger,
	}
}

// Option configures a Cluster.
type Option func(*config)

// WithConnectionsPerNode sets how many connections each node pool keeps.
func WithConnectionsPerNode(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.connectionsPerNode = n
		}
	}
}

// WithReconnectBackoff bounds the delay between reconnection attempts of
// the node pools.
func WithReconnectBackoff(initial, max time.Duration) Option {
	return func(c *config) {
		c.reconnectInitial = initial
		c.reconnectMax = max
	}
}

// WithReconnectAttempts bounds how many times a lost connection is
// redialed.
func WithReconnectAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.reconnectAttempts = n
		}
	}
}

// WithDialTimeout sets the per-connection dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithRequestTimeout sets a default deadline applied to Execute calls
// whose context carries none.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) { c.requestTimeout = d }
}

// WithMaxAttempts bounds how many replicas Execute tries before giving
// up with RequestFailedError.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithDefaultConsistency sets the consistency level used by statements
// that do not carry their own.
func WithDefaultConsistency(consistency protocol.Consistency) Option {
	return func(c *config) { c.defaultConsistency = consistency }
}

// WithCompression sets the preferred compression algorithm, used when the
// servers advertise it.
func WithCompression(algorithm string) Option {
	return func(c *config) { c.compression = algorithm }
}

// WithChecksum enables the CRC-32 frame trailer on every connection.
func WithChecksum() Option {
	return func(c *config) { c.checksum = true }
}

// WithCredentials sets the credentials presented when servers demand
// authentication.
func WithCredentials(username, password string) Option {
	return func(c *config) {
		c.username = username
		c.password = password
	}
}

// WithLocalDatacenter makes Execute prefer replicas in the given
// datacenter before reaching across.
func WithLocalDatacenter(datacenter string) Option {
	return func(c *config) { c.localDatacenter = datacenter }
}

// WithVirtualNodes sets how many ring boundaries each node introduces.
func WithVirtualNodes(count int) Option {
	return func(c *config) {
		if count > 0 {
			c.virtualNodes = count
		}
	}
}

// WithHasher sets the hashing strategy shared by the partitioner and the
// ring builder.
func WithHasher(hasher hash.Hasher) Option {
	return func(c *config) { c.hasher = hasher }
}

// WithLogger sets the cluster logger, propagated to pools and
// connections.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}
