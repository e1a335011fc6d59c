// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/parallax-foundation/parallax/lib/binident"
	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/frame"
	"github.com/parallax-foundation/parallax/remote"
)

// Environment variables carrying the spawn parameters to the child.
const (
	// targetEnv names the registered constructor the child serves.
	// Its presence is what marks a process as a subprocess worker.
	targetEnv = "PARALLAX_WORKER_TARGET"

	// binaryEnv carries the parent executable's binident digest for
	// the stale-binary check.
	binaryEnv = "PARALLAX_WORKER_BINARY"
)

// Frame type bytes for the worker pipe protocol.
const (
	frameRequest  byte = 0x01
	frameResponse byte = 0x02

	// frameFatal carries the text of a fatal dispatcher error. It is
	// the child's last frame before exiting non-zero.
	frameFatal byte = 0x03
)

// Main is the subprocess worker entrypoint. Binaries that spawn
// subprocess workers call it at the top of main(), after target
// registration: in a worker child it serves the dispatch loop on
// stdin/stdout and exits, in a normal process it returns immediately.
func Main() {
	target := os.Getenv(targetEnv)
	if target == "" {
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("worker", target)
	if err := serveChild(target, logger); err != nil {
		logger.Error("worker serve loop failed", "error", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func serveChild(target string, logger *slog.Logger) error {
	if expected := os.Getenv(binaryEnv); expected != "" {
		want, err := binident.Parse(expected)
		if err != nil {
			return fmt.Errorf("parent binary digest: %w", err)
		}
		got, err := binident.HashExecutable()
		if err != nil {
			return fmt.Errorf("hashing own binary: %w", err)
		}
		if got != want {
			return fmt.Errorf("binary mismatch: parent spawned %s but child image is %s (rebuilt between spawn and exec?)",
				binident.Format(want)[:12], binident.Format(got)[:12])
		}
	}

	construct, ok := lookup(target)
	if !ok {
		return fmt.Errorf("target %q is not registered in this binary", target)
	}
	return Serve(os.Stdin, os.Stdout, construct, logger)
}

// Serve runs the dispatcher loop over framed CBOR messages: one
// request frame in, one response frame out, the target threading
// through as persisted state. It returns nil when the request stream
// ends cleanly (the parent closed the pipe) and an error for protocol
// violations and fatal dispatcher failures, after reporting the
// latter to the parent in a fatal frame.
//
// Serve is exported for tests and for hosting a dispatcher on a
// custom byte pipe.
func Serve(r io.Reader, w io.Writer, construct remote.Constructor, logger *slog.Logger) error {
	reader := bufio.NewReader(r)

	var state any
	defer func() {
		closer, ok := state.(io.Closer)
		if !ok {
			return
		}
		if err := closer.Close(); err != nil {
			logger.Warn("closing worker target", "error", err)
		}
	}()

	for {
		frameType, payload, err := frame.Read(reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading request frame: %w", err)
		}
		if frameType != frameRequest {
			return fmt.Errorf("unexpected frame type 0x%02x, want request", frameType)
		}

		var message remote.Message
		if err := codec.Unmarshal(payload, &message); err != nil {
			return fmt.Errorf("decoding request: %w", err)
		}

		state2, result, stepErr := remote.Step(construct, state, message)
		state = state2
		if stepErr != nil {
			if writeErr := frame.Write(w, frameFatal, []byte(stepErr.Error())); writeErr != nil {
				logger.Error("reporting fatal dispatcher error", "error", writeErr)
			}
			return fmt.Errorf("dispatcher: %w", stepErr)
		}

		encoded, err := codec.Marshal(result)
		if err != nil {
			detail := fmt.Sprintf("encoding %s %s result: %v", message.Command, message.Name, err)
			if writeErr := frame.Write(w, frameFatal, []byte(detail)); writeErr != nil {
				logger.Error("reporting fatal encoding error", "error", writeErr)
			}
			return errors.New(detail)
		}
		if err := frame.Write(w, frameResponse, encoded); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
}
