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

package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessera-io/tessera/internal/future"
	"github.com/tessera-io/tessera/internal/mockserver"
	"github.com/tessera-io/tessera/protocol"
)

func dialTest(t *testing.T, server *mockserver.Server, opts ...Option) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), server.Addr(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDialAndQuery(t *testing.T) {
	// fresh connection: OPTIONS/SUPPORTED, STARTUP/READY, then a query on
	// stream 0 coming back as a RESULT rows frame with the original payload
	server, err := mockserver.Start()
	require.NoError(t, err)
	defer server.Close()

	conn := dialTest(t, server)
	require.Equal(t, StateReady, conn.State())

	body := protocol.BuildQuery("SELECT * FROM ks.t WHERE pk = ?", protocol.ConsistencyOne, [][]byte{[]byte("k")})
	pending, err := conn.Send(protocol.OpQuery, body)
	require.NoError(t, err)

	frame, err := pending.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, protocol.OpResult, frame.Header.OpCode)

	result, err := protocol.ParseResult(frame.Body)
	require.NoError(t, err)
	require.Equal(t, protocol.ResultRows, result.Kind)
	require.Equal(t, body, result.Payload)
}

func TestDialWithCompressionAndChecksum(t *testing.T) {
	server, err := mockserver.Start(mockserver.WithChecksum())
	require.NoError(t, err)
	defer server.Close()

	conn := dialTest(t, server, WithCompression("zstd"), WithChecksum())

	// large enough to cross the compression threshold both ways
	query := protocol.BuildQuery("SELECT a, b, c, d, e, f, g FROM keyspace_with_a_long_name.table_with_a_long_name WHERE partition_key = ? AND clustering_key = ?", protocol.ConsistencyQuorum, nil)
	pending, err := conn.Send(protocol.OpQuery, query)
	require.NoError(t, err)

	frame, err := pending.Await(context.Background())
	require.NoError(t, err)

	result, err := protocol.ParseResult(frame.Body)
	require.NoError(t, err)
	require.Equal(t, query, result.Payload)
}

func TestDialWithAuthentication(t *testing.T) {
	server, err := mockserver.Start(mockserver.WithCredentials("cassandra", "secret"))
	require.NoError(t, err)
	defer server.Close()

	t.Run("correct credentials", func(t *testing.T) {
		conn := dialTest(t, server, WithCredentials("cassandra", "secret"))
		require.Equal(t, StateReady, conn.State())
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := Dial(context.Background(), server.Addr())
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("wrong credentials", func(t *testing.T) {
		_, err := Dial(context.Background(), server.Addr(), WithCredentials("cassandra", "nope"))
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})
}

func TestConcurrentStreamsStaySeparate(t *testing.T) {
	// many concurrent senders on one connection: every caller gets exactly
	// its own payload back, which fails if stream ids are ever shared
	server, err := mockserver.Start()
	require.NoError(t, err)
	defer server.Close()

	conn := dialTest(t, server)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := protocol.BuildQuery("SELECT ?", protocol.ConsistencyOne, [][]byte{{byte(i)}})
			pending, err := conn.Send(protocol.OpQuery, body)
			require.NoError(t, err)

			frame, err := pending.Await(context.Background())
			require.NoError(t, err)

			result, err := protocol.ParseResult(frame.Body)
			require.NoError(t, err)
			require.Equal(t, body, result.Payload)
		}(i)
	}
	wg.Wait()
	require.Zero(t, conn.Pending())
}

func TestStreamsExhaustedFailsFast(t *testing.T) {
	park := make(chan struct{})
	server, err := mockserver.Start(mockserver.WithHandler(func(frame protocol.Frame) (protocol.OpCode, []byte) {
		<-park // keep every stream busy
		return protocol.OpResult, protocol.AppendInt(nil, int32(protocol.ResultVoid))
	}))
	require.NoError(t, err)
	defer server.Close()
	defer close(park)

	conn := dialTest(t, server, WithMaxStreams(4))

	for _i := 0; _i < 4; _i++ {
		_, err := conn.Send(protocol.OpQuery, nil)
		require.NoError(t, err)
	}

	start := time.Now()
	_, err = conn.Send(protocol.OpQuery, nil)
	require.ErrorIs(t, err, ErrStreamsExhausted)
	require.Less(t, time.Since(start), time.Second)
}

func TestServerErrorResolvesSlot(t *testing.T) {
	server, err := mockserver.Start(mockserver.WithHandler(func(frame protocol.Frame) (protocol.OpCode, []byte) {
		body := protocol.AppendInt(nil, protocol.ErrCodeSyntax)
		return protocol.OpError, protocol.AppendString(body, "no viable alternative")
	}))
	require.NoError(t, err)
	defer server.Close()

	conn := dialTest(t, server)

	pending, err := conn.Send(protocol.OpQuery, []byte("bogus"))
	require.NoError(t, err)

	_, err = pending.Await(context.Background())
	var serverErr *protocol.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, protocol.ErrCodeSyntax, serverErr.Code)
	require.Zero(t, conn.Pending()) // the stream id came back
}

func TestConnectionLostFailsAllPending(t *testing.T) {
	park := make(chan struct{})
	server, err := mockserver.Start(mockserver.WithHandler(func(frame protocol.Frame) (protocol.OpCode, []byte) {
		<-park
		return protocol.OpResult, protocol.AppendInt(nil, int32(protocol.ResultVoid))
	}))
	require.NoError(t, err)
	defer server.Close()
	defer close(park)

	var closeCause error
	closed := make(chan struct{})
	conn := dialTest(t, server, WithOnClose(func(cause error) {
		closeCause = cause
		close(closed)
	}))

	var pendings []*future.Future[protocol.Frame]
	for _i := 0; _i < 8; _i++ {
		pending, err := conn.Send(protocol.OpQuery, nil)
		require.NoError(t, err)
		pendings = append(pendings, pending)
	}

	server.DropConnections()

	for _, pending := range pendings {
		_, err := pending.Await(context.Background())
		require.ErrorIs(t, err, ErrConnectionLost)
	}

	<-closed
	require.ErrorIs(t, closeCause, ErrConnectionLost)
	require.Equal(t, StateClosed, conn.State())

	// sending on a dead connection fails immediately
	_, err = conn.Send(protocol.OpQuery, nil)
	require.ErrorIs(t, err, ErrConnectionLost)
}

func TestSendRacingTeardownResolvesEveryHandle(t *testing.T) {
	server, err := mockserver.Start()
	require.NoError(t, err)
	defer server.Close()

	conn := dialTest(t, server)

	var mu sync.Mutex
	var handles []*future.Future[protocol.Frame]
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _i := 0; _i < 8; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				pending, err := conn.Send(protocol.OpQuery, nil)
				if err != nil {
					return
				}
				mu.Lock()
				handles = append(handles, pending)
				mu.Unlock()
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	server.DropConnections()
	<-conn.Done()
	close(stop)
	wg.Wait()

	// every handle Send returned must reach exactly one terminal outcome,
	// even for sends that raced the teardown
	require.NotEmpty(t, handles)
	for _, pending := range handles {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := pending.Await(ctx)
		cancel()
		require.NotErrorIs(t, err, future.ErrFutureTimeout, "a pending handle was never resolved after teardown")
	}
}

func TestClientTimeoutKeepsStreamRegistered(t *testing.T) {
	release := make(chan struct{})
	server, err := mockserver.Start(mockserver.WithHandler(func(frame protocol.Frame) (protocol.OpCode, []byte) {
		<-release
		return protocol.OpResult, protocol.AppendInt(nil, int32(protocol.ResultVoid))
	}))
	require.NoError(t, err)
	defer server.Close()

	conn := dialTest(t, server)

	pending, err := conn.Send(protocol.OpQuery, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pending.Await(ctx)
	require.Error(t, err)

	// the caller gave up but the stream id must stay in flight until the
	// server actually answers
	require.Equal(t, 1, conn.Pending())
	require.Equal(t, StateReady, conn.State())

	close(release)
	require.Eventually(t, func() bool { return conn.Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServerPushEventsReachSink(t *testing.T) {
	server, err := mockserver.Start()
	require.NoError(t, err)
	defer server.Close()

	events := make(chan protocol.Event, 1)
	conn := dialTest(t, server, WithEventSink(func(event protocol.Event) {
		events <- event
	}))
	require.Equal(t, StateReady, conn.State())

	server.PushEvent(protocol.Event{
		Type:   protocol.EventStatusChange,
		Change: protocol.ChangeDown,
		Addr:   "10.0.0.7:9042",
	})

	select {
	case event := <-events:
		require.Equal(t, protocol.EventStatusChange, event.Type)
		require.Equal(t, protocol.ChangeDown, event.Change)
		require.Equal(t, "10.0.0.7:9042", event.Addr)
	case <-time.After(2 * time.Second):
		t.Fatal("push event never reached the sink")
	}
}
