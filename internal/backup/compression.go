package backup

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"

	apperrors "hospital-backup/internal/errors"
)

// CompressionStats contains statistics about compression operations
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Level            int             `json:"level"`
	Duration         time.Duration   `json:"duration"`
}

// Compressor wraps streams for one algorithm
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	GetAlgorithm() CompressionType
	GetDefaultLevel() int
	GetMaxLevel() int
	GetMinLevel() int
}

// CompressionManager manages compression operations
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a new compression manager
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		compressors: make(map[CompressionType]Compressor),
	}

	cm.compressors[CompressionTypeGzip] = &GzipCompressor{}
	cm.compressors[CompressionTypeLZ4] = &LZ4Compressor{}
	cm.compressors[CompressionTypeZstd] = &ZstdCompressor{}

	return cm
}

// GetCompressor returns a compressor for the specified algorithm
func (cm *CompressionManager) GetCompressor(algorithm CompressionType) (Compressor, error) {
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, apperrors.NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return compressor, nil
}

// CompressStream copies src into dst through the algorithm's encoder
func (cm *CompressionManager) CompressStream(dst io.Writer, src io.Reader, algorithm CompressionType, level int) (*CompressionStats, error) {
	start := time.Now()
	out := &countingWriter{w: dst}

	if algorithm == CompressionTypeNone || algorithm == "" {
		n, err := io.Copy(out, src)
		if err != nil {
			return nil, apperrors.NewCompressionError("failed to copy data", err)
		}
		return &CompressionStats{OriginalSize: n, CompressedSize: n, CompressionRatio: 1.0, Algorithm: CompressionTypeNone}, nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, err
	}
	if level < compressor.GetMinLevel() || level > compressor.GetMaxLevel() {
		level = compressor.GetDefaultLevel()
	}

	writer, err := compressor.NewWriter(out, level)
	if err != nil {
		return nil, apperrors.NewCompressionError(fmt.Sprintf("failed to create %s writer", algorithm), err)
	}

	n, err := io.Copy(writer, src)
	if err != nil {
		writer.Close()
		return nil, apperrors.NewCompressionError(fmt.Sprintf("failed to write %s data", algorithm), err)
	}
	if err := writer.Close(); err != nil {
		return nil, apperrors.NewCompressionError(fmt.Sprintf("failed to close %s writer", algorithm), err)
	}

	return &CompressionStats{
		OriginalSize:     n,
		CompressedSize:   out.n,
		CompressionRatio: CalculateCompressionRatio(n, out.n),
		Algorithm:        algorithm,
		Level:            level,
		Duration:         time.Since(start),
	}, nil
}

// DecompressStream copies the decoded form of src into dst
func (cm *CompressionManager) DecompressStream(dst io.Writer, src io.Reader, algorithm CompressionType) (int64, error) {
	if algorithm == CompressionTypeNone || algorithm == "" {
		return io.Copy(dst, src)
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return 0, err
	}

	reader, err := compressor.NewReader(src)
	if err != nil {
		return 0, apperrors.NewCompressionError(fmt.Sprintf("failed to create %s reader", algorithm), err)
	}
	defer reader.Close()

	n, err := io.Copy(dst, reader)
	if err != nil {
		return n, apperrors.NewCompressionError(fmt.Sprintf("failed to decompress %s data", algorithm), err)
	}
	return n, nil
}

// Compress compresses an in-memory buffer
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, *CompressionStats, error) {
	var buf bytes.Buffer
	stats, err := cm.CompressStream(&buf, bytes.NewReader(data), algorithm, level)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), stats, nil
}

// Decompress decompresses an in-memory buffer
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := cm.DecompressStream(&buf, bytes.NewReader(data), algorithm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CalculateCompressionRatio calculates the compression ratio
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

// GzipCompressor implements parallel gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return pgzip.NewWriterLevel(w, level)
}

func (gc *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return pgzip.NewReader(r)
}

func (gc *GzipCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeGzip
}

func (gc *GzipCompressor) GetDefaultLevel() int {
	return pgzip.DefaultCompression
}

func (gc *GzipCompressor) GetMaxLevel() int {
	return pgzip.BestCompression
}

func (gc *GzipCompressor) GetMinLevel() int {
	return pgzip.BestSpeed
}

// LZ4Compressor implements LZ4 compression
type LZ4Compressor struct{}

func (lc *LZ4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)
	// LZ4 has limited level options - use fast or high compression
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, err
		}
	}
	return writer, nil
}

func (lc *LZ4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lc *LZ4Compressor) GetAlgorithm() CompressionType {
	return CompressionTypeLZ4
}

func (lc *LZ4Compressor) GetDefaultLevel() int {
	return 1
}

func (lc *LZ4Compressor) GetMaxLevel() int {
	return 12
}

func (lc *LZ4Compressor) GetMinLevel() int {
	return 1
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	encoderLevel := zstd.SpeedFastest
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
}

func (zc *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

func (zc *ZstdCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeZstd
}

func (zc *ZstdCompressor) GetDefaultLevel() int {
	return 3
}

func (zc *ZstdCompressor) GetMaxLevel() int {
	return 22
}

func (zc *ZstdCompressor) GetMinLevel() int {
	return 1
}
