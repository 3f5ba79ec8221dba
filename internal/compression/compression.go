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

// Package compression implements the frame-body compressors a connection
// may negotiate at startup. The set of algorithms is closed; negotiation
// picks one by name and the connection keeps it for its whole lifetime.
package compression

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAlgorithm is returned when the requested compression algorithm
	// is not part of the supported set.
	ErrUnknownAlgorithm = errors.New("unknown compression algorithm")
)

// Compressor compresses and decompresses frame bodies. Implementations
// must be safe for concurrent use.
type Compressor interface {
	// Name returns the algorithm identifier exchanged during startup negotiation
	Name() string
	// Compress returns the compressed representation of src
	Compress(src []byte) ([]byte, error)
	// Decompress reverses Compress
	Decompress(src []byte) ([]byte, error)
}

// ForName resolves an algorithm name to its Compressor. The empty string
// and "none" both resolve to the identity compressor.
func ForName(name string) (Compressor, error) {
	switch name {
	case "", None{}.Name():
		return None{}, nil
	case "snappy":
		return Snappy{}, nil
	case "zstd":
		return NewZstd()
	case "brotli":
		return Brotli{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// SupportedAlgorithms lists the algorithm names advertised to the server
// during the options exchange, most preferred first.
func SupportedAlgorithms() []string {
	return []string{"zstd", "snappy", "brotli"}
}

// None is the identity compressor used when no algorithm is negotiated.
type None struct{}

var _ Compressor = None{}

// Name implementation
func (None) Name() string { return "none" }

// Compress implementation
func (None) Compress(src []byte) ([]byte, error) { return src, nil }

// Decompress implementation
func (None) Decompress(src []byte) ([]byte, error) { return src, nil }
