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
	"net"
	"sort"
	"strconv"
)

// Big-endian primitive writers for frame bodies. Naming follows the wire
// protocol notions: [int] int32, [short] uint16, [string] short-prefixed,
// [long string] int-prefixed, [bytes] int-prefixed with -1 for null.

// AppendInt appends an [int].
func AppendInt(dst []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(v))
}

// AppendShort appends a [short].
func AppendShort(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

// AppendLong appends a [long].
func AppendLong(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v))
}

// AppendString appends a [string].
func AppendString(dst []byte, s string) []byte {
	dst = AppendShort(dst, uint16(len(s)))
	return append(dst, s...)
}

// AppendLongString appends a [long string].
func AppendLongString(dst []byte, s string) []byte {
	dst = AppendInt(dst, int32(len(s)))
	return append(dst, s...)
}

// AppendBytes appends a [bytes] value; nil encodes as length -1.
func AppendBytes(dst []byte, b []byte) []byte {
	if b == nil {
		return AppendInt(dst, -1)
	}
	dst = AppendInt(dst, int32(len(b)))
	return append(dst, b...)
}

// AppendStringList appends a [string list].
func AppendStringList(dst []byte, values []string) []byte {
	dst = AppendShort(dst, uint16(len(values)))
	for _, v := range values {
		dst = AppendString(dst, v)
	}
	return dst
}

// AppendStringMap appends a [string map] with deterministic key order.
func AppendStringMap(dst []byte, m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dst = AppendShort(dst, uint16(len(m)))
	for _, k := range keys {
		dst = AppendString(dst, k)
		dst = AppendString(dst, m[k])
	}
	return dst
}

// appendInet appends an [inet] from a "host:port" string. The host must be
// a literal IP address.
func appendInet(dst []byte, hostport string) []byte {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, "0"
	}
	ip := net.ParseIP(host)
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	dst = append(dst, byte(len(ip)))
	dst = append(dst, ip...)
	portNum, _ := strconv.Atoi(port)
	return AppendInt(dst, int32(portNum))
}

// Reader is a cursor over a frame body. Every read checks bounds and fails
// with ErrMalformedFrame on truncation.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a Reader over body.
func NewReader(body []byte) *Reader {
	return &Reader{buf: body}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedFrame, n, r.Remaining())
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

// ReadInt reads an [int].
func (r *Reader) ReadInt() (int32, error) {
	raw, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

// ReadShort reads a [short].
func (r *Reader) ReadShort() (uint16, error) {
	raw, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

// ReadLong reads a [long].
func (r *Reader) ReadLong() (int64, error) {
	raw, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// ReadString reads a [string].
func (r *Reader) ReadString() (string, error) {
	length, err := r.ReadShort()
	if err != nil {
		return "", err
	}
	raw, err := r.take(int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ReadLongString reads a [long string].
func (r *Reader) ReadLongString() (string, error) {
	length, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	raw, err := r.take(int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ReadBytes reads a [bytes] value; length -1 yields nil.
func (r *Reader) ReadBytes() ([]byte, error) {
	length, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	raw, err := r.take(int(length))
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, raw)
	return out, nil
}

// ReadStringList reads a [string list].
func (r *Reader) ReadStringList() ([]string, error) {
	count, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, count)
	for i := uint16(0); i < count; i++ {
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// ReadStringMultiMap reads a [string multimap], as found in SUPPORTED.
func (r *Reader) ReadStringMultiMap() (map[string][]string, error) {
	count, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, count)
	for i := uint16(0); i < count; i++ {
		key, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		values, err := r.ReadStringList()
		if err != nil {
			return nil, err
		}
		out[key] = values
	}
	return out, nil
}

// ReadInet reads an [inet]: one size byte, the address, and an [int] port.
func (r *Reader) ReadInet() (string, error) {
	size, err := r.take(1)
	if err != nil {
		return "", err
	}
	if n := size[0]; n != 4 && n != 16 {
		return "", fmt.Errorf("%w: inet address size %d", ErrMalformedFrame, n)
	}
	raw, err := r.take(int(size[0]))
	if err != nil {
		return "", err
	}
	port, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	ip := make(net.IP, len(raw))
	copy(ip, raw)
	return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port)), nil
}
