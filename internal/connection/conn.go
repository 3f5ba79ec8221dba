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

// Package connection owns one physical transport link to one node. A
// connection multiplexes many concurrent requests over the link: each
// request borrows a stream id, registers a single-assignment slot, and the
// read loop resolves slots as responses arrive, in whatever order the
// server produces them.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tessera-io/tessera/internal/future"
	"github.com/tessera-io/tessera/log"
	"github.com/tessera-io/tessera/protocol"
)

// State is the lifecycle state of a connection.
type State int32

const (
	// StateReady means the connection serves requests.
	StateReady State = iota
	// StateClosed means the transport is gone and every pending request
	// has been failed.
	StateClosed
)

// Config collects the dial-time settings of a connection.
type config struct {
	compression string
	checksum    bool
	username    string
	password    string
	dialTimeout time.Duration
	keepAlive   time.Duration
	maxStreams  int
	logger      log.Logger
	eventSink   func(protocol.Event)
	onClose     func(cause error)
}

// Option configures a connection before dialing.
type Option func(*config)

// WithCompression sets the preferred compression algorithm. The algorithm
// is only used when the server advertises it; otherwise the connection
// stays uncompressed.
func WithCompression(algorithm string) Option {
	return func(c *config) { c.compression = algorithm }
}

// WithChecksum enables the CRC-32 frame trailer on this connection.
func WithChecksum() Option {
	return func(c *config) { c.checksum = true }
}

// WithCredentials sets the credentials presented when the server demands
// authentication.
func WithCredentials(username, password string) Option {
	return func(c *config) {
		c.username = username
		c.password = password
	}
}

// WithDialTimeout sets the timeout for establishing the TCP connection.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithLogger sets the connection logger.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithEventSink registers a consumer for server push events. Setting a
// sink makes the connection REGISTER for topology and status changes
// during startup.
func WithEventSink(sink func(protocol.Event)) Option {
	return func(c *config) { c.eventSink = sink }
}

// WithOnClose registers a callback invoked once when the connection
// transitions to Closed, with the cause.
func WithOnClose(onClose func(cause error)) Option {
	return func(c *config) { c.onClose = onClose }
}

// WithMaxStreams bounds the stream id space. The protocol maximum is also
// the default; tests shrink it to exercise exhaustion.
func WithMaxStreams(n int) Option {
	return func(c *config) {
		if n > 0 && n <= int(protocol.MaxStreamID)+1 {
			c.maxStreams = n
		}
	}
}

// Conn is one live connection to one node.
type Conn struct {
	addr  string
	sock  net.Conn
	codec *protocol.Codec
	cfg   config

	state atomic.Int32

	mu      sync.Mutex
	streams *streamAllocator
	pending map[int16]*future.Future[protocol.Frame]

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial establishes a connection to addr and negotiates options, startup
// and, when demanded, authentication. On return the connection is Ready.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	cfg := config{
		dialTimeout: 5 * time.Second,
		keepAlive:   15 * time.Second,
		maxStreams:  int(protocol.MaxStreamID) + 1,
		logger:      log.DiscardLogger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialer := net.Dialer{Timeout: cfg.dialTimeout, KeepAlive: cfg.keepAlive}
	sock, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	conn := &Conn{
		addr:    addr,
		sock:    sock,
		cfg:     cfg,
		streams: newStreamAllocator(cfg.maxStreams),
		pending: make(map[int16]*future.Future[protocol.Frame]),
		done:    make(chan struct{}),
	}

	if err := conn.negotiate(); err != nil {
		_ = sock.Close()
		return nil, err
	}

	go conn.readLoop()
	cfg.logger.Infof("connection to %s ready, compression=%s", addr, conn.codec.Compression())
	return conn, nil
}

// negotiate runs the synchronous startup sequence: OPTIONS/SUPPORTED to
// pick a mutual compression algorithm, then STARTUP, then authentication
// if the server asks, then event registration. The startup exchange is
// never compressed; the negotiated codec takes over afterwards.
func (c *Conn) negotiate() error {
	plain, err := protocol.NewCodec()
	if err != nil {
		return err
	}

	supported, err := c.exchange(plain, protocol.OpOptions, 0, nil)
	if err != nil {
		return err
	}
	if supported.Header.OpCode != protocol.OpSupported {
		return fmt.Errorf("%w: expected SUPPORTED, got %s", protocol.ErrMalformedFrame, supported.Header.OpCode)
	}

	algorithm, err := c.chooseCompression(supported.Body)
	if err != nil {
		return err
	}

	ready, err := c.exchange(plain, protocol.OpStartup, 0, protocol.BuildStartup(algorithm))
	if err != nil {
		return err
	}

	codecOpts := []protocol.CodecOption{protocol.WithCompression(algorithm)}
	if c.cfg.checksum {
		codecOpts = append(codecOpts, protocol.WithChecksum())
	}
	if c.codec, err = protocol.NewCodec(codecOpts...); err != nil {
		return err
	}

	switch ready.Header.OpCode {
	case protocol.OpReady:
	case protocol.OpAuthenticate:
		if err := c.authenticate(); err != nil {
			return err
		}
	case protocol.OpError:
		serverErr, perr := protocol.ParseServerError(ready.Body)
		if perr != nil {
			return perr
		}
		return serverErr
	default:
		return fmt.Errorf("%w: unexpected %s during startup", protocol.ErrMalformedFrame, ready.Header.OpCode)
	}

	if c.cfg.eventSink != nil {
		return c.register()
	}
	return nil
}

// chooseCompression picks the algorithm to use from the server's SUPPORTED
// body and the local preference. No mutual algorithm means no compression.
func (c *Conn) chooseCompression(supportedBody []byte) (string, error) {
	options, err := protocol.NewReader(supportedBody).ReadStringMultiMap()
	if err != nil {
		return "", err
	}

	serverAlgorithms := make(map[string]struct{})
	for _, name := range options["COMPRESSION"] {
		serverAlgorithms[name] = struct{}{}
	}

	if c.cfg.compression != "" && c.cfg.compression != "none" {
		if _, ok := serverAlgorithms[c.cfg.compression]; ok {
			return c.cfg.compression, nil
		}
		c.cfg.logger.Warnf("server does not support %q compression, continuing uncompressed", c.cfg.compression)
	}
	return "", nil
}

// authenticate answers an AUTHENTICATE challenge with the configured
// credentials.
func (c *Conn) authenticate() error {
	if c.cfg.username == "" {
		return fmt.Errorf("%w: server demands authentication and no credentials are configured", ErrAuthenticationFailed)
	}

	body := protocol.BuildAuthResponse(c.cfg.username, c.cfg.password)
	response, err := c.exchange(c.codec, protocol.OpAuthResponse, 0, body)
	if err != nil {
		return err
	}

	switch response.Header.OpCode {
	case protocol.OpAuthSuccess:
		return nil
	case protocol.OpError:
		serverErr, perr := protocol.ParseServerError(response.Body)
		if perr != nil {
			return perr
		}
		return errors.Join(ErrAuthenticationFailed, serverErr)
	default:
		return fmt.Errorf("%w: unexpected %s during authentication", protocol.ErrMalformedFrame, response.Header.OpCode)
	}
}

// register subscribes this connection to topology and status push events.
func (c *Conn) register() error {
	body := protocol.BuildRegister([]string{protocol.EventTopologyChange, protocol.EventStatusChange})
	response, err := c.exchange(c.codec, protocol.OpRegister, 0, body)
	if err != nil {
		return err
	}
	if response.Header.OpCode != protocol.OpReady {
		return fmt.Errorf("%w: expected READY after REGISTER, got %s", protocol.ErrMalformedFrame, response.Header.OpCode)
	}
	return nil
}

// exchange writes one request and synchronously reads one response. Only
// valid before the read loop starts.
func (c *Conn) exchange(codec *protocol.Codec, opcode protocol.OpCode, stream int16, body []byte) (protocol.Frame, error) {
	raw, err := codec.Encode(opcode, stream, body)
	if err != nil {
		return protocol.Frame{}, err
	}
	if _, err := c.sock.Write(raw); err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	response, err := codec.ReadRaw(c.sock)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return codec.Decode(response)
}

// Addr returns the remote address.
func (c *Conn) Addr() string {
	return c.addr
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Pending returns the number of requests awaiting responses. The pool uses
// it for least-pending balancing.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams.inUse()
}

// Send encodes and writes one request and returns the pending-response
// handle. It fails fast with ErrStreamsExhausted when every stream id is
// in flight, and with ErrConnectionLost when the connection is closed.
//
// The stream id is released only when the read loop delivers the matching
// response or the connection dies; a caller abandoning the returned future
// does not free the id, because the server may still answer on it.
func (c *Conn) Send(opcode protocol.OpCode, body []byte) (*future.Future[protocol.Frame], error) {
	// the state check shares c.mu with teardown's pending-map swap: a slot
	// registered while the state is Ready is guaranteed to be in the map
	// teardown fails, never parked in a fresh one
	c.mu.Lock()
	if c.State() != StateReady {
		c.mu.Unlock()
		return nil, ErrConnectionLost
	}
	stream, ok := c.streams.acquire()
	if !ok {
		c.mu.Unlock()
		return nil, ErrStreamsExhausted
	}
	pending := future.New[protocol.Frame]()
	c.pending[stream] = pending
	c.mu.Unlock()

	raw, err := c.codec.Encode(opcode, stream, body)
	if err != nil {
		// encoding failed before any bytes hit the wire; the id is safe to reuse
		c.mu.Lock()
		delete(c.pending, stream)
		c.streams.release(stream)
		c.mu.Unlock()
		return nil, err
	}

	c.writeMu.Lock()
	_, err = c.sock.Write(raw)
	c.writeMu.Unlock()
	if err != nil {
		cause := fmt.Errorf("%w: write: %v", ErrConnectionLost, err)
		c.teardown(cause)
		// a concurrent teardown may already have consumed closeOnce; Fail
		// is idempotent, so resolving the slot here is always safe
		pending.Fail(cause)
	}
	return pending, nil
}

// readLoop continuously decodes incoming frames and resolves pending
// slots. It is the only reader of the socket after startup.
func (c *Conn) readLoop() {
	for {
		raw, err := c.codec.ReadRaw(c.sock)
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			// either the transport died or the codec rejected the header;
			// both poison the connection
			c.teardown(err)
			return
		}

		frame, err := c.codec.Decode(raw)
		if err != nil {
			// codec-level failures mean we can no longer trust frame
			// boundaries on this transport
			c.teardown(err)
			return
		}

		if frame.Header.Stream == protocol.EventStreamID {
			c.handleEvent(frame)
			continue
		}

		c.mu.Lock()
		pending, ok := c.pending[frame.Header.Stream]
		if ok {
			delete(c.pending, frame.Header.Stream)
			c.streams.release(frame.Header.Stream)
		}
		c.mu.Unlock()

		if !ok {
			c.teardown(fmt.Errorf("%w: response on idle stream %d", ErrProtocolDesync, frame.Header.Stream))
			return
		}

		if frame.Header.OpCode == protocol.OpError {
			if serverErr, perr := protocol.ParseServerError(frame.Body); perr == nil {
				pending.Fail(serverErr)
			} else {
				pending.Fail(perr)
			}
			continue
		}
		pending.Complete(frame)
	}
}

// handleEvent forwards a server push notification to the event sink.
func (c *Conn) handleEvent(frame protocol.Frame) {
	if frame.Header.OpCode != protocol.OpEvent || c.cfg.eventSink == nil {
		return
	}
	event, err := protocol.ParseEvent(frame.Body)
	if err != nil {
		c.cfg.logger.Warnf("dropping undecodable push event from %s: %v", c.addr, err)
		return
	}
	c.cfg.eventSink(event)
}

// teardown moves the connection to Closed exactly once: the socket is
// closed, every pending request fails with the cause, and the owner is
// notified.
func (c *Conn) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		_ = c.sock.Close()

		c.mu.Lock()
		abandoned := c.pending
		c.pending = make(map[int16]*future.Future[protocol.Frame])
		c.mu.Unlock()

		if !errors.Is(cause, ErrConnectionLost) {
			cause = errors.Join(ErrConnectionLost, cause)
		}
		for _, pending := range abandoned {
			pending.Fail(cause)
		}

		close(c.done)
		if len(abandoned) > 0 {
			c.cfg.logger.Warnf("connection to %s lost with %d request(s) in flight: %v", c.addr, len(abandoned), cause)
		}
		if c.cfg.onClose != nil {
			c.cfg.onClose(cause)
		}
	})
}

// Close tears the connection down deliberately. Pending requests fail with
// ErrConnectionLost.
func (c *Conn) Close() error {
	c.teardown(ErrConnectionLost)
	return nil
}

// Done returns a channel closed when the connection reaches Closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
