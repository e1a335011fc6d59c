// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote implements the transparent remote-object proxy at the
// heart of Parallax.
//
// A target object (typically a simulation environment) lives inside a
// worker — a dedicated goroutine or a separate OS process — and is
// reachable only through messages. The [Proxy] presents that object to
// callers as if it were local: member access by name, call forwarding,
// a length operation. The [Step] dispatcher runs on the worker side
// and interprets one protocol message at a time against the target,
// threading the target through as explicit state.
//
// The package is organized around the protocol data flow:
//
//   - command.go: the message vocabulary shared by proxy and dispatcher
//   - dispatcher.go: the worker-side step function (reflection-based
//     member lookup, call invocation, missing-member sentinel)
//   - proxy.go: the caller-side capability cache and call forwarding
//
// The worker transport itself is deliberately outside this package:
// the proxy depends only on the [Worker] interface. Package worker
// provides the in-process and subprocess implementations.
package remote
