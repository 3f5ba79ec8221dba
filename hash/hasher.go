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

package hash

import (
	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// Hasher defines the hashcode generator interface.
type Hasher interface {
	// HashCode is responsible for generating unsigned, 64-bit hash of provided byte slice
	HashCode(key []byte) uint64
	// Name returns the identifier of the hashing strategy
	Name() string
}

type xxh3Hasher struct{}

var _ Hasher = xxh3Hasher{}

// HashCode implementation
func (x xxh3Hasher) HashCode(key []byte) uint64 {
	return xxh3.Hash(key)
}

// Name implementation
func (x xxh3Hasher) Name() string {
	return "xxh3"
}

type xxhashHasher struct{}

var _ Hasher = xxhashHasher{}

// HashCode implementation
func (x xxhashHasher) HashCode(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Name implementation
func (x xxhashHasher) Name() string {
	return "xxhash64"
}

// DefaultHasher returns the default hasher
func DefaultHasher() Hasher {
	return xxh3Hasher{}
}

// XXHasher returns the xxhash64 hasher, kept for rings built by older
// versions of the driver.
func XXHasher() Hasher {
	return xxhashHasher{}
}
