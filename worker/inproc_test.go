// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/parallax-foundation/parallax/lib/testutil"
	"github.com/parallax-foundation/parallax/remote"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInProcFIFOOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := newInProc(newCounterTarget, discardLogger())
	defer w.Close()

	for want := 1; want <= 10; want++ {
		result, err := w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Increment"})
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if result.Value != want {
			t.Fatalf("Increment order broken: got %v, want %d", result.Value, want)
		}
	}
}

func TestInProcConstructsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	constructions := 0
	w := newInProc(func() (any, error) {
		constructions++
		return &counterTarget{}, nil
	}, discardLogger())
	defer w.Close()

	for _, message := range []remote.Message{
		{Command: remote.CommandCallable, Name: "Increment"},
		{Command: remote.CommandCall, Name: "Increment"},
		{Command: remote.CommandRead, Name: "Count"},
	} {
		if _, err := w.Send(ctx, message); err != nil {
			t.Fatalf("Send(%v %s): %v", message.Command, message.Name, err)
		}
	}

	if constructions != 1 {
		t.Errorf("target constructed %d times, want 1", constructions)
	}
}

func TestInProcDispatcherFailureIsFatal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := newInProc(newCounterTarget, discardLogger())
	defer w.Close()

	_, err := w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Explode"})
	if err == nil || !strings.Contains(err.Error(), "target exploded") {
		t.Fatalf("Explode: got %v, want the target's error", err)
	}

	testutil.RequireClosed(t, w.done, 5*time.Second, "loop exit after fatal error")

	_, err = w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Increment"})
	if err == nil || !strings.Contains(err.Error(), "worker failed") {
		t.Errorf("Send after fatal error: got %v, want recorded failure", err)
	}
}

func TestInProcCloseThenSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := newInProc(newCounterTarget, discardLogger())

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	_, err := w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Increment"})
	if !errors.Is(err, ErrWorkerClosed) {
		t.Errorf("Send after close: got %v, want ErrWorkerClosed", err)
	}
}

func TestInProcContextCancellation(t *testing.T) {
	t.Parallel()
	w := newInProc(newCounterTarget, discardLogger())
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Increment"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send with cancelled context: got %v, want context.Canceled", err)
	}
}

// closeTracker records whether the worker closed its target on
// shutdown.
type closeTracker struct {
	done chan struct{}
}

func (c *closeTracker) Len() int { return 0 }

func (c *closeTracker) Close() error {
	close(c.done)
	return nil
}

func TestInProcClosesTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tracker := &closeTracker{done: make(chan struct{})}
	w := newInProc(func() (any, error) { return tracker, nil }, discardLogger())

	// Force construction before shutdown.
	if _, err := w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Len"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	testutil.RequireClosed(t, tracker.done, 5*time.Second, "target Close on worker shutdown")
}

func TestSpawnInProcUsesRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, err := Spawn(ctx, Options{Mode: ModeInProc, Target: "test-counter", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer w.Close()

	result, err := w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Increment"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Value != 1 {
		t.Errorf("Increment: got %v, want 1", result.Value)
	}
}

func TestSpawnRejectsUnknownTarget(t *testing.T) {
	t.Parallel()
	_, err := Spawn(context.Background(), Options{Mode: ModeInProc, Target: "no-such-target"})
	if err == nil {
		t.Fatal("Spawn with unregistered target should fail")
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]Mode{"inproc": ModeInProc, "subprocess": ModeSubprocess} {
		got, err := ParseMode(name)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseMode(%q): got %v, want %v", name, got, want)
		}
	}
	if _, err := ParseMode("threads"); err == nil {
		t.Error("ParseMode with unknown name should fail")
	}
}
