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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForName(t *testing.T) {
	t.Run("resolves every supported algorithm", func(t *testing.T) {
		for _, name := range SupportedAlgorithms() {
			compressor, err := ForName(name)
			require.NoError(t, err)
			require.Equal(t, name, compressor.Name())
		}
	})

	t.Run("empty string means identity", func(t *testing.T) {
		compressor, err := ForName("")
		require.NoError(t, err)
		require.Equal(t, "none", compressor.Name())
	})

	t.Run("unknown algorithm is rejected", func(t *testing.T) {
		_, err := ForName("lzma")
		require.ErrorIs(t, err, ErrUnknownAlgorithm)
	})
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		[]byte("SELECT * FROM ks.table WHERE pk = ?"),
		bytes.Repeat([]byte("row payload with plenty of repetition "), 128),
	}

	for _, name := range append(SupportedAlgorithms(), "none") {
		t.Run(name, func(t *testing.T) {
			compressor, err := ForName(name)
			require.NoError(t, err)

			for _, payload := range payloads {
				compressed, err := compressor.Compress(payload)
				require.NoError(t, err)

				restored, err := compressor.Decompress(compressed)
				require.NoError(t, err)
				require.Equal(t, len(payload), len(restored))
				require.True(t, bytes.Equal(payload, restored))
			}
		})
	}
}

func TestCompressionActuallyShrinks(t *testing.T) {
	payload := bytes.Repeat([]byte("aaaaaaaaaabbbbbbbbbb"), 256)
	for _, name := range SupportedAlgorithms() {
		compressor, err := ForName(name)
		require.NoError(t, err)

		compressed, err := compressor.Compress(payload)
		require.NoError(t, err)
		require.Less(t, len(compressed), len(payload), "algorithm %s", name)
	}
}

func TestSnappyRejectsGarbage(t *testing.T) {
	_, err := Snappy{}.Decompress([]byte{0xff, 0xfe, 0xfd, 0xfc})
	require.Error(t, err)
}
