package backup

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hospital-backup/internal/errors"
)

func TestCompressionManager_RoundTrip(t *testing.T) {
	cm := NewCompressionManager()
	data := []byte(strings.Repeat("INSERT INTO `patients` (`id`, `name`) VALUES (1, 'Jane Doe');\n", 500))

	for _, algorithm := range []CompressionType{CompressionTypeNone, CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd} {
		t.Run(string(algorithm), func(t *testing.T) {
			compressed, stats, err := cm.Compress(data, algorithm, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), stats.OriginalSize)
			assert.Equal(t, int64(len(compressed)), stats.CompressedSize)

			if algorithm != CompressionTypeNone {
				assert.Less(t, stats.CompressionRatio, 0.5, "repetitive SQL compresses well")
			}

			restored, err := cm.Decompress(compressed, algorithm)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, restored))
		})
	}
}

func TestCompressionManager_OutOfRangeLevelFallsBack(t *testing.T) {
	cm := NewCompressionManager()
	_, stats, err := cm.Compress([]byte("abc"), CompressionTypeGzip, 99)
	require.NoError(t, err)

	c, err := cm.GetCompressor(CompressionTypeGzip)
	require.NoError(t, err)
	assert.Equal(t, c.GetDefaultLevel(), stats.Level)
}

func TestCompressionManager_Unsupported(t *testing.T) {
	_, err := NewCompressionManager().GetCompressor("BROTLI")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCompression))

	_, err = NewCompressionManager().Decompress([]byte("not gzip"), CompressionTypeGzip)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCompression))
}

func TestParseCompressionType(t *testing.T) {
	tests := map[string]CompressionType{
		"":     CompressionTypeNone,
		"none": CompressionTypeNone,
		"gzip": CompressionTypeGzip,
		" LZ4": CompressionTypeLZ4,
		"Zstd": CompressionTypeZstd,
	}
	for in, want := range tests {
		got, err := ParseCompressionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompressionType("bzip2")
	assert.Error(t, err)

	assert.Equal(t, ".zst", CompressionTypeZstd.Extension())
	assert.Equal(t, "", CompressionTypeNone.Extension())
}
