// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("frame: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("frame: zstd decoder initialization failed: " + err.Error())
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. We also check whether the compressed output is
	// actually smaller than the input.
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

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// decompress reverses the compression applied by Write. The
// uncompressedSize must match the original payload length exactly —
// this is verified and a mismatch returns an error.
func decompress(encoded []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(encoded) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed frame: size %d does not match expected %d",
				len(encoded), uncompressedSize)
		}
		return encoded, nil
	case CompressionLZ4:
		return decompressLZ4(encoded, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(encoded, uncompressedSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", uint8(tag))
	}
}

// errIncompressible is returned by compression functions when the
// compressed output is not smaller than the input. The caller falls
// back to CompressionNone.
var errIncompressible = fmt.Errorf("data is incompressible")

// IsIncompressible returns true if the error indicates that data
// could not be compressed smaller than its original size.
func IsIncompressible(err error) bool {
	return err == errIncompressible
}
