// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Parallax's standard CBOR encoding
// configuration.
//
// All wire traffic between a proxy and a subprocess worker, the
// dispatcher's argument coercion, and any on-disk state go through
// this package so the encoder configuration is defined once. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
package codec
