// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the standard binary entrypoint error
// handling for Parallax commands.
package process
