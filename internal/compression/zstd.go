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

package compression

import (
	"github.com/klauspost/compress/zstd"
)

// Zstd compresses frame bodies with Zstandard. The encoder and decoder are
// created once, validated eagerly, and reused; EncodeAll/DecodeAll are safe
// for concurrent use.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ Compressor = (*Zstd)(nil)

// NewZstd creates a Zstd compressor. It returns an error when the encoder
// or decoder configuration is rejected.
func NewZstd() (*Zstd, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(64<<20),
	)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Zstd{encoder: encoder, decoder: decoder}, nil
}

// Name implementation
func (z *Zstd) Name() string { return "zstd" }

// Compress implementation
func (z *Zstd) Compress(src []byte) ([]byte, error) {
	return z.encoder.EncodeAll(src, make([]byte, 0, len(src))), nil
}

// Decompress implementation
func (z *Zstd) Decompress(src []byte) ([]byte, error) {
	return z.decoder.DecodeAll(src, nil)
}
