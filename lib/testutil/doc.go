// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel helpers shared across Parallax
// tests. The helpers encapsulate the timeout safety valve pattern so
// individual tests never block forever on a stuck worker.
package testutil
