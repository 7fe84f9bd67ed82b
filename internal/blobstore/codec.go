package blobstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression identifies the codec applied to one stored chunk.
// Values are persisted; do not renumber.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

// ErrChecksumMismatch is returned when decoded chunk bytes do not match their checksum.
var ErrChecksumMismatch = errors.New("chunk checksum mismatch")

var errIncompressible = errors.New("chunk is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("blobstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("blobstore: zstd decoder initialization failed: " + err.Error())
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a codec name. An empty name means none.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// EncodedChunk is one chunk in its persisted form.
type EncodedChunk struct {
	Size        int         `cbor:"size"`
	Compression Compression `cbor:"codec"`
	Checksum    string      `cbor:"sum"`
	Payload     []byte      `cbor:"data"`
}

// EncodeChunk checksums data and compresses it with preferred.
// Chunks that do not shrink are stored uncompressed.
func EncodeChunk(data []byte, preferred Compression) (EncodedChunk, error) {
	chunk := EncodedChunk{
		Size:        len(data),
		Compression: CompressionNone,
		Checksum:    ChunkChecksum(data),
		Payload:     data,
	}

	var (
		payload []byte
		err     error
	)
	switch preferred {
	case CompressionNone:
		return chunk, nil
	case CompressionLZ4:
		payload, err = compressLZ4(data)
	case CompressionZstd:
		payload, err = compressZstd(data)
	default:
		return EncodedChunk{}, fmt.Errorf("unsupported compression: %s", preferred)
	}
	if errors.Is(err, errIncompressible) {
		return chunk, nil
	}
	if err != nil {
		return EncodedChunk{}, err
	}
	chunk.Compression = preferred
	chunk.Payload = payload
	return chunk, nil
}

// DecodeChunk reverses EncodeChunk and verifies size and checksum.
func DecodeChunk(chunk EncodedChunk) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch chunk.Compression {
	case CompressionNone:
		data = chunk.Payload
	case CompressionLZ4:
		data, err = decompressLZ4(chunk.Payload, chunk.Size)
	case CompressionZstd:
		data, err = decompressZstd(chunk.Payload, chunk.Size)
	default:
		return nil, fmt.Errorf("unsupported compression: %s", chunk.Compression)
	}
	if err != nil {
		return nil, err
	}
	if len(data) != chunk.Size {
		return nil, fmt.Errorf("chunk size %d does not match recorded %d", len(data), chunk.Size)
	}
	if ChunkChecksum(data) != chunk.Checksum {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}

// ChunkChecksum returns the hex BLAKE3-256 digest of data.
func ChunkChecksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest accumulates the whole-blob BLAKE3 digest across chunks.
type Digest struct {
	h *blake3.Hasher
}

// NewDigest returns an empty whole-blob digest.
func NewDigest() *Digest {
	return &Digest{h: blake3.New()}
}

// Add folds the next chunk into the digest.
func (d *Digest) Add(p []byte) {
	_, _ = d.h.Write(p)
}

// Hex returns the digest of everything added so far.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errIncompressible
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return dst[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
