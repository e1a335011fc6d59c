// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/remote"
)

// spawnTestSubprocess re-executes the test binary as a worker child.
// TestMain registers the target and calls Main before any test runs,
// so the child lands in the serve loop. ChildArgs is emptied to keep
// the test harness flags out of the child invocation.
func spawnTestSubprocess(t *testing.T) remote.Worker {
	t.Helper()
	w, err := Spawn(context.Background(), Options{
		Mode:      ModeSubprocess,
		Target:    "test-counter",
		ChildArgs: []string{},
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestSubprocessEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	proxy := remote.NewProxy(spawnTestSubprocess(t))

	for want := 1; want <= 3; want++ {
		value, err := proxy.Call(ctx, "Increment")
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if got := toInt(t, value); got != want {
			t.Fatalf("Increment: got %d, want %d", got, want)
		}
	}

	count, err := proxy.Access(ctx, "Count")
	if err != nil {
		t.Fatalf("Access Count: %v", err)
	}
	if got := toInt(t, count); got != 3 {
		t.Errorf("Count: got %d, want 3", got)
	}

	length, err := proxy.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if length != 0 {
		t.Errorf("Len: got %d, want 0", length)
	}

	var memberErr *remote.MemberError
	if _, err := proxy.Access(ctx, "Nothing"); !errors.As(err, &memberErr) {
		t.Errorf("Access on absent member: got %v, want MemberError", err)
	}

	if err := proxy.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSubprocessFatalDispatcherError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := spawnTestSubprocess(t)

	_, err := w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Explode"})
	if err == nil || !strings.Contains(err.Error(), "target exploded") {
		t.Fatalf("Explode: got %v, want the target's error", err)
	}

	_, err = w.Send(ctx, remote.Message{Command: remote.CommandCall, Name: "Increment"})
	if err == nil || !strings.Contains(err.Error(), "worker failed") {
		t.Errorf("Send after fatal error: got %v, want recorded failure", err)
	}
}

func TestSubprocessCloseIdempotent(t *testing.T) {
	t.Parallel()
	w := spawnTestSubprocess(t)

	first := w.Close()
	if first != nil {
		t.Fatalf("Close: %v", first)
	}
	if second := w.Close(); second != first {
		t.Errorf("second Close: got %v, want same result", second)
	}

	_, err := w.Send(context.Background(), remote.Message{Command: remote.CommandCall, Name: "Increment"})
	if !errors.Is(err, ErrWorkerClosed) {
		t.Errorf("Send after close: got %v, want ErrWorkerClosed", err)
	}
}

func TestSubprocessKillAfterShutdownGrace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := clock.NewFake()
	w, err := Spawn(ctx, Options{
		Mode:          ModeSubprocess,
		Target:        "test-sleeper",
		ChildArgs:     []string{},
		Clock:         fake,
		ShutdownGrace: time.Second,
		Logger:        discardLogger(),
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Force target construction so the child's shutdown blocks inside
	// the target's Close instead of exiting on EOF.
	if _, err := w.Send(ctx, remote.Message{Command: remote.CommandCallable, Name: "Len"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- w.Close() }()

	// Close registers its grace timer on the fake clock from the other
	// goroutine; keep advancing until the timer exists and fires.
	deadline := time.After(30 * time.Second)
	for {
		fake.Advance(time.Second)
		select {
		case err := <-closed:
			if err == nil || !strings.Contains(err.Error(), "killed") {
				t.Fatalf("Close: got %v, want kill-after-grace error", err)
			}
			return
		case <-deadline:
			t.Fatal("Close did not return after advancing past the shutdown grace")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSpawnSubprocessRejectsUnregisteredTarget(t *testing.T) {
	t.Parallel()
	_, err := Spawn(context.Background(), Options{
		Mode:   ModeSubprocess,
		Target: "no-such-target",
		Logger: discardLogger(),
	})
	if err == nil {
		t.Fatal("Spawn with unregistered target should fail")
	}
}

func TestSpawnSubprocessRejectsInlineConstructor(t *testing.T) {
	t.Parallel()
	_, err := Spawn(context.Background(), Options{
		Mode:   ModeSubprocess,
		New:    newCounterTarget,
		Logger: discardLogger(),
	})
	if err == nil {
		t.Fatal("Spawn with an inline constructor should fail in subprocess mode")
	}
}
