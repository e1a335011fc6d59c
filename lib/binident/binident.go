// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package binident

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed digest of a binary image.
type Digest [32]byte

// binaryDomainKey is the 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same bytes produce different digests in
// different contexts. The byte values are the ASCII encoding of the
// domain name, zero-padded to 32 bytes, so the key is inspectable in
// hex dumps without sacrificing any cryptographic property.
var binaryDomainKey = [32]byte{
	'p', 'a', 'r', 'a', 'l', 'l', 'a', 'x', '.', 'w', 'o', 'r', 'k', 'e', 'r', '.',
	'b', 'i', 'n', 'a', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashFile computes the binary-domain digest of the file at path. The
// file is streamed through the hash function (via io.Copy) to keep
// memory usage constant regardless of binary size.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher, err := blake3.NewKeyed(binaryDomainKey[:])
	if err != nil {
		return Digest{}, fmt.Errorf("initializing BLAKE3 keyed hasher: %w", err)
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashExecutable computes the binary-domain digest of the currently
// running executable.
func HashExecutable() (Digest, error) {
	executable, err := os.Executable()
	if err != nil {
		return Digest{}, fmt.Errorf("resolving own executable path: %w", err)
	}
	return HashFile(executable)
}

// Format returns the hex-encoded string representation of a digest.
// This is the canonical format used in environment variables and log
// output.
func Format(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// Parse parses a hex-encoded digest string into a Digest. Returns an
// error if the string is not a valid 64-character hex encoding of 32
// bytes.
func Parse(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing binary digest: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("binary digest is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}
