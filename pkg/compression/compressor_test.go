package compression

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorsRestoreInput(t *testing.T) {
	block := bytes.Repeat([]byte("run-start:0042 value:north "), 512)

	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(fmt.Sprintf("%s/%d", alg, level), func(t *testing.T) {
				comp, err := NewCompressor(&Config{Algorithm: alg, Level: level})
				require.NoError(t, err)
				assert.Equal(t, alg, comp.Algorithm())

				packed, err := comp.Compress(block)
				require.NoError(t, err)
				if alg != None {
					assert.Less(t, len(packed), len(block))
				}

				out, err := comp.Decompress(packed)
				require.NoError(t, err)
				assert.Equal(t, block, out)
			})
		}
	}
}

func TestCompressorEmptyBlock(t *testing.T) {
	comp, err := NewCompressor(nil)
	require.NoError(t, err)
	assert.Equal(t, LZ4, comp.Algorithm())

	packed, err := comp.Compress(nil)
	require.NoError(t, err)
	out, err := comp.Decompress(packed)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	a, err = ParseAlgorithm("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	_, err = ParseAlgorithm("brotli")
	assert.Error(t, err)

	_, err = NewCompressor(&Config{Algorithm: "brotli"})
	assert.Error(t, err)
}

func TestCompressorConcurrentUse(t *testing.T) {
	comp, err := NewCompressor(&Config{Algorithm: Zstd, Level: Default})
	require.NoError(t, err)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			block := bytes.Repeat([]byte{byte(i)}, 4096)
			packed, err := comp.Compress(block)
			if err == nil {
				var out []byte
				out, err = comp.Decompress(packed)
				if err == nil && !bytes.Equal(out, block) {
					err = assert.AnError
				}
			}
			done <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}
