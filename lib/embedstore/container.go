// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package embedstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm of an artifact
// file body (1 byte in the file header). These values are format
// constants — changing them breaks existing artifact files.
type CompressionTag uint8

const (
	// CompressionNone stores the body uncompressed. Also the
	// fallback when a body turns out incompressible.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 applies LZ4 block compression. Fast default
	// for mixed content.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd applies zstd at the default level. Better
	// ratios for text-heavy bodies.
	CompressionZstd CompressionTag = 2

	// CompressionBG4LZ4 transposes 4-byte groups before LZ4. The
	// CBOR body of an artifact is dominated by its float32 vector;
	// grouping bytes by position within each float puts the highly
	// similar exponent bytes next to each other, which LZ4 then
	// collapses. The default for embedding artifacts.
	CompressionBG4LZ4 CompressionTag = 3
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionBG4LZ4:
		return "bg4_lz4"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string form,
// as written in config files.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "bg4_lz4":
		return CompressionBG4LZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// errIncompressible signals that compressed output would not be
// smaller than the input. sealBody falls back to CompressionNone.
var errIncompressible = errors.New("data did not compress")

// headerSize is 1 tag byte plus a 4-byte big-endian uncompressed
// length.
const headerSize = 5

// sealBody wraps an encoded artifact body in the container form:
// header (tag, uncompressed length) followed by the compressed body.
// When the requested algorithm cannot shrink the body, the file is
// sealed uncompressed instead.
func sealBody(body []byte, tag CompressionTag) ([]byte, error) {
	compressed, err := compressBody(body, tag)
	if errors.Is(err, errIncompressible) {
		tag = CompressionNone
		compressed = body
	} else if err != nil {
		return nil, err
	}

	sealed := make([]byte, headerSize, headerSize+len(compressed))
	sealed[0] = byte(tag)
	binary.BigEndian.PutUint32(sealed[1:5], uint32(len(body)))
	return append(sealed, compressed...), nil
}

// openBody reverses sealBody, returning the encoded artifact body.
func openBody(sealed []byte) ([]byte, error) {
	if len(sealed) < headerSize {
		return nil, fmt.Errorf("artifact file truncated: %d bytes", len(sealed))
	}
	tag := CompressionTag(sealed[0])
	uncompressedSize := int(binary.BigEndian.Uint32(sealed[1:5]))
	return decompressBody(sealed[headerSize:], tag, uncompressedSize)
}

func compressBody(body []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return body, nil
	case CompressionLZ4:
		return compressLZ4(body)
	case CompressionZstd:
		return compressZstd(body)
	case CompressionBG4LZ4:
		return compressLZ4(bg4Transpose(body))
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func decompressBody(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed body: size %d does not match header %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)
	case CompressionBG4LZ4:
		transposed, err := decompressLZ4(compressed, uncompressedSize)
		if err != nil {
			return nil, err
		}
		return bg4Untranspose(transposed), nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 when it determines the data is
	// incompressible; also reject output that is not actually
	// smaller than the input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("embedstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("embedstore: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// bg4Transpose rearranges data so that all byte-position-0 values
// come first, then all byte-position-1 values, etc., in groups of 4.
// If the input length is not a multiple of 4, trailing bytes are
// appended as-is after the transposed groups.
func bg4Transpose(data []byte) []byte {
	length := len(data)
	groupCount := length / 4
	remainder := length % 4

	output := make([]byte, length)
	for i := 0; i < groupCount; i++ {
		output[i] = data[i*4]
		output[groupCount+i] = data[i*4+1]
		output[groupCount*2+i] = data[i*4+2]
		output[groupCount*3+i] = data[i*4+3]
	}
	for i := 0; i < remainder; i++ {
		output[groupCount*4+i] = data[groupCount*4+i]
	}
	return output
}

// bg4Untranspose reverses bg4Transpose.
func bg4Untranspose(data []byte) []byte {
	length := len(data)
	groupCount := length / 4
	remainder := length % 4

	output := make([]byte, length)
	for i := 0; i < groupCount; i++ {
		output[i*4] = data[i]
		output[i*4+1] = data[groupCount+i]
		output[i*4+2] = data[groupCount*2+i]
		output[i*4+3] = data[groupCount*3+i]
	}
	for i := 0; i < remainder; i++ {
		output[groupCount*4+i] = data[groupCount*4+i]
	}
	return output
}
