// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package env provides simulation environments designed to run behind
// a worker proxy. Environments expose a small stepping surface
// (Step/Render/Len/Close) whose methods and types cross the remote
// boundary cleanly: plain structs in, plain structs out.
//
// PinPad is the reference task: a tile world where the agent must
// touch a sequence of colored pads in order, with dense distance-based
// reward shaping.
package env
