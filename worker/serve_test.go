// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"bufio"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/frame"
	"github.com/parallax-foundation/parallax/lib/testutil"
	"github.com/parallax-foundation/parallax/remote"
)

// serveHarness drives Serve over in-memory pipes the way the parent
// drives a subprocess over stdin/stdout.
type serveHarness struct {
	t         *testing.T
	requests  io.WriteCloser
	responses *bufio.Reader
	served    chan error
}

func startServe(t *testing.T, construct remote.Constructor) *serveHarness {
	t.Helper()
	requestReader, requestWriter := io.Pipe()
	responseReader, responseWriter := io.Pipe()

	served := make(chan error, 1)
	go func() {
		served <- Serve(requestReader, responseWriter, construct, discardLogger())
		responseWriter.Close()
	}()

	t.Cleanup(func() { requestWriter.Close() })
	return &serveHarness{
		t:         t,
		requests:  requestWriter,
		responses: bufio.NewReader(responseReader),
		served:    served,
	}
}

func (h *serveHarness) send(message remote.Message) {
	h.t.Helper()
	payload, err := codec.Marshal(message)
	if err != nil {
		h.t.Fatalf("encoding request: %v", err)
	}
	if err := frame.Write(h.requests, frameRequest, payload); err != nil {
		h.t.Fatalf("writing request frame: %v", err)
	}
}

func (h *serveHarness) receive() (byte, []byte) {
	h.t.Helper()
	frameType, body, err := frame.Read(h.responses)
	if err != nil {
		h.t.Fatalf("reading response frame: %v", err)
	}
	return frameType, body
}

func (h *serveHarness) roundTrip(message remote.Message) remote.Result {
	h.t.Helper()
	h.send(message)
	frameType, body := h.receive()
	if frameType != frameResponse {
		h.t.Fatalf("frame type: got 0x%02x, want response", frameType)
	}
	var result remote.Result
	if err := codec.Unmarshal(body, &result); err != nil {
		h.t.Fatalf("decoding response: %v", err)
	}
	return result
}

func TestServeRoundTrip(t *testing.T) {
	t.Parallel()
	h := startServe(t, newCounterTarget)

	result := h.roundTrip(remote.Message{Command: remote.CommandCallable, Name: "Increment"})
	if result.Value != true {
		t.Errorf("Callable Increment: got %v, want true", result.Value)
	}

	for want := 1; want <= 3; want++ {
		result = h.roundTrip(remote.Message{Command: remote.CommandCall, Name: "Increment"})
		if got := toInt(t, result.Value); got != want {
			t.Fatalf("Increment: got %d, want %d", got, want)
		}
	}

	result = h.roundTrip(remote.Message{Command: remote.CommandRead, Name: "Count"})
	if got := toInt(t, result.Value); got != 3 {
		t.Errorf("Read Count: got %d, want 3", got)
	}

	result = h.roundTrip(remote.Message{Command: remote.CommandCallable, Name: "Nothing"})
	if !result.Missing {
		t.Errorf("Callable on absent member: got %+v, want Missing", result)
	}
}

func TestServeFatalDispatcherError(t *testing.T) {
	t.Parallel()
	h := startServe(t, newCounterTarget)

	h.send(remote.Message{Command: remote.CommandCall, Name: "Explode"})
	frameType, body := h.receive()
	if frameType != frameFatal {
		t.Fatalf("frame type: got 0x%02x, want fatal", frameType)
	}
	if !strings.Contains(string(body), "target exploded") {
		t.Errorf("fatal frame body %q should carry the target's error", body)
	}

	err := testutil.RequireReceive(t, h.served, 5*time.Second, "Serve return after fatal error")
	if err == nil || !strings.Contains(err.Error(), "target exploded") {
		t.Errorf("Serve: got %v, want the dispatcher error", err)
	}
}

func TestServeCleanShutdownOnEOF(t *testing.T) {
	t.Parallel()
	h := startServe(t, newCounterTarget)

	h.roundTrip(remote.Message{Command: remote.CommandCall, Name: "Increment"})
	h.requests.Close()

	if err := testutil.RequireReceive(t, h.served, 5*time.Second, "Serve return after EOF"); err != nil {
		t.Errorf("Serve after clean EOF: got %v, want nil", err)
	}
}

func TestServeClosesTargetOnShutdown(t *testing.T) {
	t.Parallel()
	tracker := &closeTracker{done: make(chan struct{})}
	h := startServe(t, func() (any, error) { return tracker, nil })

	h.roundTrip(remote.Message{Command: remote.CommandCall, Name: "Len"})
	h.requests.Close()

	testutil.RequireClosed(t, tracker.done, 5*time.Second, "target Close on serve shutdown")
}

func TestServeRejectsUnknownFrameType(t *testing.T) {
	t.Parallel()
	h := startServe(t, newCounterTarget)

	if err := frame.Write(h.requests, 0x7f, []byte{}); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
	err := testutil.RequireReceive(t, h.served, 5*time.Second, "Serve return after bad frame")
	if err == nil || !strings.Contains(err.Error(), "unexpected frame type") {
		t.Errorf("Serve with bad frame type: got %v, want protocol error", err)
	}
}
