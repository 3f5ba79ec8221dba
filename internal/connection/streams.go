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

import "container/heap"

// int16Heap is a min-heap of released stream ids.
type int16Heap []int16

func (h int16Heap) Len() int           { return len(h) }
func (h int16Heap) Less(i, j int) bool { return h[i] < h[j] }
func (h int16Heap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *int16Heap) Push(x any)        { *h = append(*h, x.(int16)) }
func (h *int16Heap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// streamAllocator hands out the lowest available stream id. Ids released
// out of order are kept in a min-heap so the lowest one is reused first.
// Not safe for concurrent use; the owning connection serializes access.
type streamAllocator struct {
	max      int32
	next     int32
	released int16Heap
}

func newStreamAllocator(max int) *streamAllocator {
	return &streamAllocator{max: int32(max)}
}

// acquire returns the lowest stream id not currently in flight. The second
// return is false when all ids are in use.
func (a *streamAllocator) acquire() (int16, bool) {
	if len(a.released) > 0 {
		return heap.Pop(&a.released).(int16), true
	}
	if a.next < a.max {
		id := int16(a.next)
		a.next++
		return id, true
	}
	return 0, false
}

// release returns a stream id to the free set.
func (a *streamAllocator) release(id int16) {
	heap.Push(&a.released, id)
}

// inUse returns how many ids are currently awaiting responses.
func (a *streamAllocator) inUse() int {
	return int(a.next) - len(a.released)
}
