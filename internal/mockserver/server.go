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

// Package mockserver is an in-process node speaking the wire protocol. It
// exists for tests: it negotiates options, startup and authentication like
// a real node, answers queries through a pluggable handler, and can push
// events or drop its connections on command.
package mockserver

import (
	"bytes"
	"errors"
	"net"
	"sync"

	"github.com/tessera-io/tessera/internal/compression"
	"github.com/tessera-io/tessera/log"
	"github.com/tessera-io/tessera/protocol"
)

// Handler produces the response opcode and body for one request frame.
type Handler func(frame protocol.Frame) (protocol.OpCode, []byte)

// EchoHandler answers every QUERY with a RESULT rows frame carrying the
// request body back, which lets tests assert end-to-end payload fidelity.
func EchoHandler(frame protocol.Frame) (protocol.OpCode, []byte) {
	body := protocol.AppendInt(nil, int32(protocol.ResultRows))
	return protocol.OpResult, append(body, frame.Body...)
}

// Server is one fake node.
type Server struct {
	listener net.Listener
	logger   log.Logger
	handler  Handler
	checksum bool
	username string
	password string

	mu     sync.Mutex
	conns  map[net.Conn]*protocol.Codec
	closed bool
	wg     sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHandler replaces the default echo handler.
func WithHandler(handler Handler) ServerOption {
	return func(s *Server) { s.handler = handler }
}

// WithChecksum makes the server expect and emit checksummed frames.
func WithChecksum() ServerOption {
	return func(s *Server) { s.checksum = true }
}

// WithCredentials makes the server demand authentication.
func WithCredentials(username, password string) ServerOption {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// WithLogger sets the server logger.
func WithLogger(logger log.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// Start listens on a random loopback port and begins accepting.
func Start(opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	server := &Server{
		listener: listener,
		logger:   log.DiscardLogger,
		handler:  EchoHandler,
		conns:    make(map[net.Conn]*protocol.Codec),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.wg.Add(1)
	go server.acceptLoop()
	return server, nil
}

// Addr returns the address clients should dial.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting and closes every live connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	_ = s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
}

// DropConnections abruptly closes every live connection, simulating a node
// failing mid-flight. The listener keeps accepting.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// PushEvent sends a server push notification on the reserved event stream
// of every live connection.
func (s *Server) PushEvent(event protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, codec := range s.conns {
		raw, err := codec.EncodeResponse(protocol.OpEvent, protocol.EventStreamID, protocol.BuildEvent(event))
		if err != nil {
			continue
		}
		_, _ = conn.Write(raw)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

// serve negotiates one connection and then answers requests until the
// transport goes away.
func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer s.forget(conn)

	codec, err := s.negotiate(conn)
	if err != nil {
		s.logger.Debugf("mock node handshake failed: %v", err)
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = codec
	s.mu.Unlock()

	for {
		raw, err := codec.ReadRaw(conn)
		if err != nil {
			return
		}
		frame, err := codec.Decode(raw)
		if err != nil {
			return
		}

		opcode, body := s.route(frame)
		response, err := codec.EncodeResponse(opcode, frame.Header.Stream, body)
		if err != nil {
			return
		}
		if _, err := conn.Write(response); err != nil {
			return
		}
	}
}

// route answers protocol housekeeping itself and delegates the rest to the
// handler.
func (s *Server) route(frame protocol.Frame) (protocol.OpCode, []byte) {
	switch frame.Header.OpCode {
	case protocol.OpRegister:
		return protocol.OpReady, nil
	default:
		return s.handler(frame)
	}
}

// negotiate runs the server side of the startup sequence with a plain
// codec, then returns the codec matching what the client picked.
func (s *Server) negotiate(conn net.Conn) (*protocol.Codec, error) {
	plain, err := protocol.NewCodec()
	if err != nil {
		return nil, err
	}

	// OPTIONS -> SUPPORTED
	frame, err := s.read(plain, conn)
	if err != nil {
		return nil, err
	}
	supported := protocol.AppendShort(nil, 2)
	supported = protocol.AppendString(supported, "COMPRESSION")
	supported = protocol.AppendStringList(supported, compression.SupportedAlgorithms())
	supported = protocol.AppendString(supported, "CQL_VERSION")
	supported = protocol.AppendStringList(supported, []string{"3.0.0"})
	if err := s.write(plain, conn, protocol.OpSupported, frame.Header.Stream, supported); err != nil {
		return nil, err
	}

	// STARTUP carries the chosen algorithm
	frame, err = s.read(plain, conn)
	if err != nil {
		return nil, err
	}
	startupOptions := map[string]string{}
	reader := protocol.NewReader(frame.Body)
	if count, err := reader.ReadShort(); err == nil {
		for i := uint16(0); i < count; i++ {
			key, kerr := reader.ReadString()
			value, verr := reader.ReadString()
			if kerr != nil || verr != nil {
				break
			}
			startupOptions[key] = value
		}
	}

	codecOpts := []protocol.CodecOption{protocol.WithCompression(startupOptions["COMPRESSION"])}
	if s.checksum {
		codecOpts = append(codecOpts, protocol.WithChecksum())
	}
	codec, err := protocol.NewCodec(codecOpts...)
	if err != nil {
		return nil, err
	}

	if s.username == "" {
		return codec, s.write(plain, conn, protocol.OpReady, frame.Header.Stream, nil)
	}

	// demand authentication before going ready
	authenticate := protocol.AppendString(nil, "org.apache.cassandra.auth.PasswordAuthenticator")
	if err := s.write(plain, conn, protocol.OpAuthenticate, frame.Header.Stream, authenticate); err != nil {
		return nil, err
	}

	frame, err = s.read(codec, conn)
	if err != nil {
		return nil, err
	}
	token, err := protocol.NewReader(frame.Body).ReadBytes()
	if err != nil {
		return nil, err
	}
	expected := append(append([]byte{0}, s.username...), append([]byte{0}, s.password...)...)
	if !bytes.Equal(token, expected) {
		body := protocol.AppendInt(nil, protocol.ErrCodeUnauthorized)
		body = protocol.AppendString(body, "bad credentials")
		_ = s.write(codec, conn, protocol.OpError, frame.Header.Stream, body)
		return nil, errors.New("rejected credentials")
	}
	return codec, s.write(codec, conn, protocol.OpAuthSuccess, frame.Header.Stream, protocol.AppendBytes(nil, nil))
}

func (s *Server) read(codec *protocol.Codec, conn net.Conn) (protocol.Frame, error) {
	raw, err := codec.ReadRaw(conn)
	if err != nil {
		return protocol.Frame{}, err
	}
	return codec.Decode(raw)
}

func (s *Server) write(codec *protocol.Codec, conn net.Conn, opcode protocol.OpCode, stream int16, body []byte) error {
	raw, err := codec.EncodeResponse(opcode, stream, body)
	if err != nil {
		return err
	}
	_, err = conn.Write(raw)
	return err
}

func (s *Server) forget(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}
