// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame implements the framed binary stream carrying worker
// protocol messages over a byte pipe.
//
// Each frame is a 10-byte header followed by the payload:
//
//	[1 byte type] [1 byte compression tag]
//	[4 bytes payload length, big-endian uint32]
//	[4 bytes uncompressed length, big-endian uint32]
//	[payload]
//
// The type byte is opaque to this package; callers define their own
// frame type constants. Payloads are transparently compressed on write
// based on size (small payloads are not worth the CPU, medium ones get
// LZ4, large ones get zstd) and decompressed on read. Compression that
// fails to shrink the payload falls back to storing it uncompressed.
package frame
