// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/remote"
)

// Mode selects the isolation boundary between a proxy and its target.
type Mode uint8

const (
	// ModeInProc runs the dispatcher on a goroutine in this process.
	ModeInProc Mode = 1 + iota

	// ModeSubprocess runs the dispatcher in a re-executed copy of the
	// current binary, communicating over pipes.
	ModeSubprocess
)

// String returns the mode's configuration name.
func (m Mode) String() string {
	switch m {
	case ModeInProc:
		return "inproc"
	case ModeSubprocess:
		return "subprocess"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseMode parses a mode from its configuration name.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "inproc":
		return ModeInProc, nil
	case "subprocess":
		return ModeSubprocess, nil
	default:
		return 0, fmt.Errorf("unknown worker mode %q (want inproc or subprocess)", name)
	}
}

// ErrWorkerClosed is returned by Send after the worker has been
// closed.
var ErrWorkerClosed = errors.New("worker: closed")

// Options configures Spawn.
type Options struct {
	// Mode selects the isolation boundary.
	Mode Mode

	// Target names a registered constructor. Required for subprocess
	// workers; for in-process workers it is consulted only when New
	// is nil.
	Target string

	// New constructs the target directly, bypassing the registry.
	// In-process only: a closure cannot cross a process boundary.
	New remote.Constructor

	// Logger receives worker lifecycle and failure events. Defaults
	// to slog.Default().
	Logger *slog.Logger

	// Clock drives the shutdown grace timeout. Defaults to the real
	// clock.
	Clock clock.Clock

	// ShutdownGrace bounds how long Close waits for a subprocess
	// worker to exit after its stdin closes before killing it.
	// Defaults to 5 seconds.
	ShutdownGrace time.Duration

	// ChildArgs are the command-line arguments passed to the
	// re-executed child. Defaults to this process's own arguments so
	// the child reaches the same registration code. Set to an empty
	// non-nil slice to pass none.
	ChildArgs []string
}

// defaultShutdownGrace bounds Close for subprocess workers. Targets
// are expected to tear down quickly; five seconds is generous.
const defaultShutdownGrace = 5 * time.Second

// Spawn starts a dispatcher in a new execution context and returns
// the worker handle for it. The target is constructed lazily by the
// first message the dispatcher processes, not by Spawn.
func Spawn(ctx context.Context, options Options) (remote.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch options.Mode {
	case ModeInProc:
		construct := options.New
		if construct == nil {
			registered, ok := lookup(options.Target)
			if !ok {
				return nil, fmt.Errorf("worker: target %q is not registered", options.Target)
			}
			construct = registered
		}
		return newInProc(construct, logger), nil

	case ModeSubprocess:
		if options.New != nil {
			return nil, errors.New("worker: subprocess mode cannot use a direct constructor; register a target")
		}
		return spawnSubprocess(options, logger)

	default:
		return nil, fmt.Errorf("worker: unknown mode %d", uint8(options.Mode))
	}
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]remote.Constructor)
)

// Register makes a target constructor spawnable by name. Registration
// must happen before Main runs so the constructor exists in the child
// process too; registering from init functions or early in run() both
// work. Register panics on an empty name, a nil constructor, or a
// duplicate name — all three are programmer errors.
func Register(name string, construct remote.Constructor) {
	if name == "" {
		panic("worker: Register with empty target name")
	}
	if construct == nil {
		panic("worker: Register with nil constructor for " + name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic("worker: duplicate Register of target " + name)
	}
	registry[name] = construct
}

func lookup(name string) (remote.Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	construct, ok := registry[name]
	return construct, ok
}
