// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker provides the transports that host a remote dispatcher
// for package remote.
//
// Two isolation modes are supported:
//
//   - ModeInProc: the dispatcher runs on a dedicated goroutine; the
//     request channel provides the FIFO call-and-wait primitive.
//   - ModeSubprocess: the dispatcher runs in a re-executed copy of the
//     current binary; requests and responses travel as framed CBOR
//     messages over the child's stdin/stdout.
//
// Subprocess workers cannot ship a closure to another process, so
// constructors are selected by name from a process-wide registry
// ([Register]). Both parent and child run the same binary and the same
// registration code, which is what makes a registered constructor
// re-creatable on the far side. Binaries that spawn subprocess workers
// must call [Main] at the top of main() (after registration) so the
// child enters the serve loop instead of the normal program.
package worker
