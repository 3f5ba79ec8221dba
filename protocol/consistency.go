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

// Consistency is the replication acknowledgement level a request demands.
type Consistency uint16

const (
	// ConsistencyAny accepts a write once any node, including a hinted one, accepts it.
	ConsistencyAny Consistency = 0x0000
	// ConsistencyOne requires one replica acknowledgement.
	ConsistencyOne Consistency = 0x0001
	// ConsistencyTwo requires two replica acknowledgements.
	ConsistencyTwo Consistency = 0x0002
	// ConsistencyThree requires three replica acknowledgements.
	ConsistencyThree Consistency = 0x0003
	// ConsistencyQuorum requires a majority of replicas.
	ConsistencyQuorum Consistency = 0x0004
	// ConsistencyAll requires every replica.
	ConsistencyAll Consistency = 0x0005
	// ConsistencyLocalQuorum requires a majority within the local data-center.
	ConsistencyLocalQuorum Consistency = 0x0006
	// ConsistencyEachQuorum requires a majority within every data-center.
	ConsistencyEachQuorum Consistency = 0x0007
	// ConsistencyLocalOne requires one replica within the local data-center.
	ConsistencyLocalOne Consistency = 0x000A
)

var consistencyNames = map[Consistency]string{
	ConsistencyAny:         "ANY",
	ConsistencyOne:         "ONE",
	ConsistencyTwo:         "TWO",
	ConsistencyThree:       "THREE",
	ConsistencyQuorum:      "QUORUM",
	ConsistencyAll:         "ALL",
	ConsistencyLocalQuorum: "LOCAL_QUORUM",
	ConsistencyEachQuorum:  "EACH_QUORUM",
	ConsistencyLocalOne:    "LOCAL_ONE",
}

// String returns the protocol name of the consistency level.
func (c Consistency) String() string {
	if name, ok := consistencyNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
