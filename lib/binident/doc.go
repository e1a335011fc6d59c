// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package binident computes the BLAKE3 identity of worker binaries.
//
// A subprocess worker re-executes the binary that spawned it. When the
// binary on disk has been rebuilt between the parent starting and the
// child spawning, the two processes disagree about the wire protocol
// and the registered target constructors. The parent therefore passes
// the digest of its own image to the child, and the child refuses to
// serve when its image hashes differently.
//
// Hashing uses BLAKE3 keyed mode with a fixed domain key so binary
// identity digests can never collide with digests from other hashing
// contexts.
package binident
