// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject NewFake() and advance time
// deterministically.
package clock
