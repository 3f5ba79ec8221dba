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

// Package protocol implements the binary wire protocol: frame headers,
// opcodes, body primitives, and the codec that turns (opcode, body) pairs
// into checksummed, optionally compressed frames and back. The codec is a
// pure transformation; it performs no I/O.
package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/tessera-io/tessera/internal/compression"
)

// minCompressSize is the body size below which compression is skipped:
// the algorithm overhead exceeds any savings on tiny payloads.
const minCompressSize = 64

// checksumSize is the size of the CRC-32 trailer in bytes.
const checksumSize = 4

// maxBodyLength caps the declared body length accepted from the wire. A
// desynced or hostile peer must not be able to demand a multi-gigabyte
// allocation with a 4-byte header field.
const maxBodyLength = 256 << 20

var checksumTable = crc32.MakeTable(crc32.Castagnoli)

// Frame is a decoded protocol frame. Body is the plaintext payload after
// any negotiated decompression.
type Frame struct {
	Header Header
	Body   []byte
}

// Codec encodes and decodes frames for one connection. Compression and
// checksumming are negotiated once at connection startup and stay fixed
// for the connection's lifetime, so a Codec is immutable after creation.
type Codec struct {
	compressor compression.Compressor
	checksum   bool
}

// CodecOption configures a Codec.
type CodecOption func(*codecConfig)

type codecConfig struct {
	algorithm string
	checksum  bool
}

// WithCompression sets the negotiated compression algorithm by name.
func WithCompression(algorithm string) CodecOption {
	return func(c *codecConfig) { c.algorithm = algorithm }
}

// WithChecksum enables the CRC-32 frame trailer.
func WithChecksum() CodecOption {
	return func(c *codecConfig) { c.checksum = true }
}

// NewCodec creates a Codec. It fails when the compression algorithm is not
// part of the supported set.
func NewCodec(opts ...CodecOption) (*Codec, error) {
	cfg := new(codecConfig)
	for _, opt := range opts {
		opt(cfg)
	}

	compressor, err := compression.ForName(cfg.algorithm)
	if err != nil {
		return nil, err
	}

	return &Codec{
		compressor: compressor,
		checksum:   cfg.checksum,
	}, nil
}

// Compression returns the name of the negotiated compression algorithm.
func (c *Codec) Compression() string {
	return c.compressor.Name()
}

// TrailerSize returns how many trailer bytes follow each frame body: the
// checksum size when checksums are negotiated, zero otherwise.
func (c *Codec) TrailerSize() int {
	if c.checksum {
		return checksumSize
	}
	return 0
}

// Encode produces the wire representation of a request frame.
func (c *Codec) Encode(opcode OpCode, stream int16, body []byte) ([]byte, error) {
	return c.encode(opcode, stream, body, false)
}

// EncodeResponse produces the wire representation of a response frame. It
// exists for servers and test doubles; drivers only send requests.
func (c *Codec) EncodeResponse(opcode OpCode, stream int16, body []byte) ([]byte, error) {
	return c.encode(opcode, stream, body, true)
}

func (c *Codec) encode(opcode OpCode, stream int16, body []byte, response bool) ([]byte, error) {
	var flags uint8
	payload := body

	if _, plain := c.compressor.(compression.None); !plain && len(body) >= minCompressSize {
		compressed, err := c.compressor.Compress(body)
		if err != nil {
			return nil, err
		}
		payload = compressed
		flags |= FlagCompression
	}

	header := Header{
		Version:  Version,
		Flags:    flags,
		Stream:   stream,
		OpCode:   opcode,
		Length:   uint32(len(payload)),
		Response: response,
	}

	out := make([]byte, 0, HeaderSize+len(payload)+checksumSize)
	out = header.encode(out)
	out = append(out, payload...)

	if c.checksum {
		out = binary.BigEndian.AppendUint32(out, crc32.Checksum(out, checksumTable))
	}
	return out, nil
}

// Decode parses a complete frame. It validates the declared body length
// against the received bytes, verifies the checksum trailer when
// negotiated, and decompresses the body when the compression flag is set.
func (c *Codec) Decode(raw []byte) (Frame, error) {
	header, err := ParseHeader(raw)
	if err != nil {
		return Frame{}, err
	}

	expected := HeaderSize + int(header.Length)
	if c.checksum {
		expected += checksumSize
	}
	if len(raw) != expected {
		return Frame{}, fmt.Errorf("%w: declared %d bytes, received %d",
			ErrMalformedFrame, expected, len(raw))
	}

	if c.checksum {
		declared := binary.BigEndian.Uint32(raw[len(raw)-checksumSize:])
		actual := crc32.Checksum(raw[:len(raw)-checksumSize], checksumTable)
		if declared != actual {
			return Frame{}, fmt.Errorf("%w: checksum %#x, expected %#x",
				ErrCorruptFrame, declared, actual)
		}
		raw = raw[:len(raw)-checksumSize]
	}

	body := raw[HeaderSize:]
	if header.Compressed() {
		if _, plain := c.compressor.(compression.None); plain {
			return Frame{}, fmt.Errorf("%w: compressed frame on a connection that negotiated no compression",
				ErrMalformedFrame)
		}
		body, err = c.compressor.Decompress(body)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
	} else {
		body = append([]byte(nil), body...)
	}

	return Frame{Header: header, Body: body}, nil
}

// ReadRaw reads exactly one frame's raw bytes from r: the fixed header,
// the declared body, and the codec's trailer. The result is ready for
// Decode. Transport errors pass through untouched so callers can tell
// connection loss apart from protocol violations.
func (c *Codec) ReadRaw(r io.Reader) ([]byte, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	header, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if header.Length > maxBodyLength {
		return nil, fmt.Errorf("%w: declared body of %d bytes exceeds the %d byte limit",
			ErrMalformedFrame, header.Length, maxBodyLength)
	}

	rest := make([]byte, int(header.Length)+c.TrailerSize())
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	return append(raw, rest...), nil
}
