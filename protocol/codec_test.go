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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	bodies := [][]byte{
		{},
		[]byte("tiny"),
		bytes.Repeat([]byte("large enough to trigger compression "), 64),
	}
	algorithms := []string{"none", "snappy", "zstd", "brotli"}

	for _, algorithm := range algorithms {
		for _, checksum := range []bool{false, true} {
			name := algorithm
			if checksum {
				name += "+checksum"
			}
			t.Run(name, func(t *testing.T) {
				opts := []CodecOption{WithCompression(algorithm)}
				if checksum {
					opts = append(opts, WithChecksum())
				}
				codec, err := NewCodec(opts...)
				require.NoError(t, err)

				for _, body := range bodies {
					raw, err := codec.Encode(OpQuery, 7, body)
					require.NoError(t, err)

					frame, err := codec.Decode(raw)
					require.NoError(t, err)
					require.Equal(t, OpQuery, frame.Header.OpCode)
					require.EqualValues(t, 7, frame.Header.Stream)
					require.False(t, frame.Header.Response)
					require.Equal(t, body, frame.Body[:len(body)])
					require.Len(t, frame.Body, len(body))
				}
			})
		}
	}
}

func TestCodecCompressionThreshold(t *testing.T) {
	codec, err := NewCodec(WithCompression("zstd"))
	require.NoError(t, err)

	t.Run("small body stays plain", func(t *testing.T) {
		raw, err := codec.Encode(OpQuery, 1, []byte("small"))
		require.NoError(t, err)
		header, err := ParseHeader(raw)
		require.NoError(t, err)
		require.False(t, header.Compressed())
	})

	t.Run("large body is compressed", func(t *testing.T) {
		body := bytes.Repeat([]byte("abcd"), 512)
		raw, err := codec.Encode(OpQuery, 1, body)
		require.NoError(t, err)
		header, err := ParseHeader(raw)
		require.NoError(t, err)
		require.True(t, header.Compressed())
		require.Less(t, int(header.Length), len(body))
	})
}

func TestCodecDeclaredLengthMismatch(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	raw, err := codec.Encode(OpQuery, 1, []byte("hello"))
	require.NoError(t, err)

	t.Run("truncated body", func(t *testing.T) {
		_, err := codec.Decode(raw[:len(raw)-2])
		require.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("trailing garbage", func(t *testing.T) {
		_, err := codec.Decode(append(append([]byte(nil), raw...), 0xde, 0xad))
		require.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := codec.Decode(raw[:4])
		require.ErrorIs(t, err, ErrMalformedFrame)
	})
}

func TestCodecChecksum(t *testing.T) {
	codec, err := NewCodec(WithChecksum())
	require.NoError(t, err)

	raw, err := codec.Encode(OpQuery, 3, []byte("checksummed payload"))
	require.NoError(t, err)

	t.Run("intact frame passes", func(t *testing.T) {
		frame, err := codec.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, []byte("checksummed payload"), frame.Body)
	})

	t.Run("flipped bit is caught", func(t *testing.T) {
		corrupted := append([]byte(nil), raw...)
		corrupted[HeaderSize+2] ^= 0x40
		_, err := codec.Decode(corrupted)
		require.ErrorIs(t, err, ErrCorruptFrame)
	})
}

func TestCodecVersionAndOpcode(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	raw, err := codec.Encode(OpQuery, 1, nil)
	require.NoError(t, err)

	t.Run("future version rejected", func(t *testing.T) {
		mutated := append([]byte(nil), raw...)
		mutated[0] = 0x66
		_, err := codec.Decode(mutated)
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("unknown opcode preserves raw bytes", func(t *testing.T) {
		mutated := append([]byte(nil), raw...)
		mutated[4] = 0xEE
		_, err := codec.Decode(mutated)

		var unknown *UnknownOpCodeError
		require.ErrorAs(t, err, &unknown)
		require.EqualValues(t, 0xEE, unknown.Code)
		require.Equal(t, mutated[:HeaderSize], unknown.Raw)
	})
}

func TestCodecRejectsUnexpectedCompressionFlag(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	raw, err := codec.Encode(OpQuery, 1, []byte("plaintext body"))
	require.NoError(t, err)

	mutated := append([]byte(nil), raw...)
	mutated[1] |= FlagCompression
	_, err = codec.Decode(mutated)
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReadRawCapsDeclaredBodyLength(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	header := Header{
		Version: Version,
		Stream:  1,
		OpCode:  OpQuery,
		Length:  maxBodyLength + 1,
	}
	_, err = codec.ReadRaw(bytes.NewReader(header.encode(nil)))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestCodecResponseDirection(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	raw, err := codec.EncodeResponse(OpResult, 9, []byte("rows"))
	require.NoError(t, err)

	frame, err := codec.Decode(raw)
	require.NoError(t, err)
	require.True(t, frame.Header.Response)
	require.Equal(t, OpResult, frame.Header.OpCode)
}

func TestCodecRejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewCodec(WithCompression("lzma"))
	require.Error(t, err)
}
