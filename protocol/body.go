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

package protocol

import (
	"fmt"
)

// Option keys exchanged in the STARTUP body.
const (
	startupKeyCQLVersion  = "CQL_VERSION"
	startupKeyCompression = "COMPRESSION"
	startupCQLVersion     = "3.0.0"
)

// Query flag bits in the QUERY body.
const (
	queryFlagValues uint8 = 0x01
)

// BuildStartup builds the STARTUP body. The compression entry is omitted
// when no algorithm was negotiated.
func BuildStartup(compressionAlgorithm string) []byte {
	options := map[string]string{
		startupKeyCQLVersion: startupCQLVersion,
	}
	if compressionAlgorithm != "" && compressionAlgorithm != "none" {
		options[startupKeyCompression] = compressionAlgorithm
	}
	return AppendStringMap(nil, options)
}

// BuildAuthResponse builds an AUTH_RESPONSE body carrying plain-text
// credentials in the SASL PLAIN exchange shape.
func BuildAuthResponse(username, password string) []byte {
	token := make([]byte, 0, len(username)+len(password)+2)
	token = append(token, 0)
	token = append(token, username...)
	token = append(token, 0)
	token = append(token, password...)
	return AppendBytes(nil, token)
}

// BuildRegister builds the REGISTER body subscribing to the given server
// event types.
func BuildRegister(eventTypes []string) []byte {
	return AppendStringList(nil, eventTypes)
}

// BuildQuery builds a QUERY body: the query string, the consistency level,
// and optional positional values.
func BuildQuery(query string, consistency Consistency, values [][]byte) []byte {
	body := AppendLongString(nil, query)
	body = AppendShort(body, uint16(consistency))

	var flags uint8
	if len(values) > 0 {
		flags |= queryFlagValues
	}
	body = append(body, flags)

	if len(values) > 0 {
		body = AppendShort(body, uint16(len(values)))
		for _, v := range values {
			body = AppendBytes(body, v)
		}
	}
	return body
}

// ResultKind discriminates RESULT bodies.
type ResultKind int32

const (
	// ResultVoid is a result carrying nothing.
	ResultVoid ResultKind = 0x0001
	// ResultRows is a result carrying a row set.
	ResultRows ResultKind = 0x0002
	// ResultSetKeyspace acknowledges a USE statement.
	ResultSetKeyspace ResultKind = 0x0003
	// ResultPrepared carries a prepared statement id.
	ResultPrepared ResultKind = 0x0004
	// ResultSchemaChange signals a schema alteration.
	ResultSchemaChange ResultKind = 0x0005
)

// Result is a parsed RESULT body. Payload is the kind-specific remainder,
// left opaque: row deserialization needs schema metadata, which is owned
// by a collaborator outside this driver core.
type Result struct {
	Kind    ResultKind
	Payload []byte
}

// ParseResult parses a RESULT body.
func ParseResult(body []byte) (Result, error) {
	reader := NewReader(body)
	kind, err := reader.ReadInt()
	if err != nil {
		return Result{}, err
	}
	switch ResultKind(kind) {
	case ResultVoid, ResultRows, ResultSetKeyspace, ResultPrepared, ResultSchemaChange:
	default:
		return Result{}, fmt.Errorf("%w: result kind %#x", ErrMalformedFrame, kind)
	}
	payload := make([]byte, reader.Remaining())
	copy(payload, body[len(body)-reader.Remaining():])
	return Result{Kind: ResultKind(kind), Payload: payload}, nil
}

// ParseServerError parses an ERROR body.
func ParseServerError(body []byte) (*ServerError, error) {
	reader := NewReader(body)
	code, err := reader.ReadInt()
	if err != nil {
		return nil, err
	}
	message, err := reader.ReadString()
	if err != nil {
		return nil, err
	}
	return &ServerError{Code: code, Message: message}, nil
}

// Server push event types carried in EVENT frames.
const (
	// EventTopologyChange signals a node joining or leaving the cluster.
	EventTopologyChange = "TOPOLOGY_CHANGE"
	// EventStatusChange signals a node going up or down.
	EventStatusChange = "STATUS_CHANGE"
	// EventSchemaChange signals a schema alteration.
	EventSchemaChange = "SCHEMA_CHANGE"
)

// Topology and status change kinds.
const (
	// ChangeNewNode is a TOPOLOGY_CHANGE for a node joining.
	ChangeNewNode = "NEW_NODE"
	// ChangeRemovedNode is a TOPOLOGY_CHANGE for a node leaving.
	ChangeRemovedNode = "REMOVED_NODE"
	// ChangeUp is a STATUS_CHANGE for a node coming back.
	ChangeUp = "UP"
	// ChangeDown is a STATUS_CHANGE for a node going away.
	ChangeDown = "DOWN"
)

// Event is a parsed server push notification from the reserved event
// stream. Addr is empty for schema change events.
type Event struct {
	Type   string
	Change string
	Addr   string
}

// ParseEvent parses an EVENT body. Schema change payloads are not
// decoded beyond the change kind: the driver routes on topology only.
func ParseEvent(body []byte) (Event, error) {
	reader := NewReader(body)
	eventType, err := reader.ReadString()
	if err != nil {
		return Event{}, err
	}

	switch eventType {
	case EventTopologyChange, EventStatusChange:
		change, err := reader.ReadString()
		if err != nil {
			return Event{}, err
		}
		addr, err := reader.ReadInet()
		if err != nil {
			return Event{}, err
		}
		return Event{Type: eventType, Change: change, Addr: addr}, nil
	case EventSchemaChange:
		change, err := reader.ReadString()
		if err != nil {
			return Event{}, err
		}
		return Event{Type: eventType, Change: change}, nil
	default:
		return Event{}, fmt.Errorf("%w: event type %q", ErrMalformedFrame, eventType)
	}
}

// BuildEvent builds an EVENT body. Servers and test doubles use it; the
// driver itself only parses events.
func BuildEvent(event Event) []byte {
	body := AppendString(nil, event.Type)
	body = AppendString(body, event.Change)
	if event.Type == EventSchemaChange {
		return body
	}
	return appendInet(body, event.Addr)
}
