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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamAllocator(t *testing.T) {
	t.Run("hands out ascending ids", func(t *testing.T) {
		alloc := newStreamAllocator(4)
		for want := int16(0); want < 4; want++ {
			id, ok := alloc.acquire()
			require.True(t, ok)
			require.Equal(t, want, id)
		}
		require.Equal(t, 4, alloc.inUse())
	})

	t.Run("exhaustion reported without blocking", func(t *testing.T) {
		alloc := newStreamAllocator(2)
		alloc.acquire()
		alloc.acquire()
		_, ok := alloc.acquire()
		require.False(t, ok)
	})

	t.Run("lowest released id is reused first", func(t *testing.T) {
		alloc := newStreamAllocator(8)
		for _i := 0; _i < 5; _i++ {
			alloc.acquire()
		}
		alloc.release(3)
		alloc.release(1)
		alloc.release(4)

		id, ok := alloc.acquire()
		require.True(t, ok)
		require.Equal(t, int16(1), id)

		id, _ = alloc.acquire()
		require.Equal(t, int16(3), id)

		id, _ = alloc.acquire()
		require.Equal(t, int16(4), id)

		// only then does the high-water mark move again
		id, _ = alloc.acquire()
		require.Equal(t, int16(5), id)
	})

	t.Run("in-use count tracks releases", func(t *testing.T) {
		alloc := newStreamAllocator(8)
		alloc.acquire()
		alloc.acquire()
		require.Equal(t, 2, alloc.inUse())
		alloc.release(0)
		require.Equal(t, 1, alloc.inUse())
	})
}
