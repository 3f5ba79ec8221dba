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
	"encoding/binary"
	"fmt"
)

const (
	// Version is the protocol version this codec implements.
	Version uint8 = 0x04

	// HeaderSize is the fixed size of a frame header in bytes.
	HeaderSize = 9

	// directionBit distinguishes responses (set) from requests (clear) in
	// the version byte.
	directionBit uint8 = 0x80

	// EventStreamID is the stream id the server uses for push events. It
	// never correlates to a pending request.
	EventStreamID int16 = -1

	// MaxStreamID bounds the stream id space of one connection. Stream ids
	// are signed 16-bit and the event id is reserved, leaving 0..32767.
	MaxStreamID int16 = 32767
)

// Frame header flag bits.
const (
	// FlagCompression marks a compressed frame body.
	FlagCompression uint8 = 0x01
	// FlagTracing asks the server to trace the request.
	FlagTracing uint8 = 0x02
	// FlagCustomPayload marks a frame carrying a custom payload.
	FlagCustomPayload uint8 = 0x04
	// FlagWarning marks a response carrying server warnings.
	FlagWarning uint8 = 0x08
)

// Header is the fixed-size preamble of every frame.
type Header struct {
	Version  uint8
	Flags    uint8
	Stream   int16
	OpCode   OpCode
	Length   uint32
	Response bool
}

// Compressed reports whether the body that follows is compressed.
func (h Header) Compressed() bool {
	return h.Flags&FlagCompression != 0
}

// encode appends the wire representation of the header to dst.
func (h Header) encode(dst []byte) []byte {
	version := h.Version
	if h.Response {
		version |= directionBit
	}
	dst = append(dst, version, h.Flags)
	dst = binary.BigEndian.AppendUint16(dst, uint16(h.Stream))
	dst = append(dst, byte(h.OpCode))
	return binary.BigEndian.AppendUint32(dst, h.Length)
}

// ParseHeader decodes the fixed-size frame header. It validates the
// protocol version and the opcode; the body is untouched.
func ParseHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header truncated at %d bytes", ErrMalformedFrame, len(raw))
	}

	version := raw[0] &^ directionBit
	if version != Version {
		return Header{}, fmt.Errorf("%w: version %#x", ErrUnsupportedVersion, version)
	}

	opcode := OpCode(raw[4])
	if !opcode.Valid() {
		return Header{}, &UnknownOpCodeError{Code: raw[4], Raw: raw[:HeaderSize]}
	}

	return Header{
		Version:  version,
		Flags:    raw[1],
		Stream:   int16(binary.BigEndian.Uint16(raw[2:4])),
		OpCode:   opcode,
		Length:   binary.BigEndian.Uint32(raw[5:9]),
		Response: raw[0]&directionBit != 0,
	}, nil
}
