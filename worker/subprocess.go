// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/parallax-foundation/parallax/lib/binident"
	"github.com/parallax-foundation/parallax/lib/clock"
	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/frame"
	"github.com/parallax-foundation/parallax/remote"
)

// subprocessWorker runs the dispatcher in a re-executed copy of the
// current binary. Requests and responses are framed CBOR messages on
// the child's stdin/stdout; FIFO ordering follows from the pipe and
// the child's single serve loop.
type subprocessWorker struct {
	command *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader

	clk    clock.Clock
	grace  time.Duration
	logger *slog.Logger

	closed  bool
	failure error

	closeOnce sync.Once
	closeErr  error
}

func spawnSubprocess(options Options, logger *slog.Logger) (*subprocessWorker, error) {
	if options.Target == "" {
		return nil, errors.New("worker: subprocess mode requires a registered target name")
	}
	// The parent-side registry check catches typos at spawn time
	// instead of as a child startup failure. Parent and child run the
	// same binary, so the registries match.
	if _, ok := lookup(options.Target); !ok {
		return nil, fmt.Errorf("worker: target %q is not registered", options.Target)
	}

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving own executable: %w", err)
	}
	digest, err := binident.HashFile(executable)
	if err != nil {
		return nil, fmt.Errorf("hashing own executable: %w", err)
	}

	args := options.ChildArgs
	if args == nil {
		args = os.Args[1:]
	}

	command := exec.Command(executable, args...)
	command.Env = append(os.Environ(),
		targetEnv+"="+options.Target,
		binaryEnv+"="+binident.Format(digest),
	)
	command.Stderr = os.Stderr
	// Workers must never outlive the proxy that owns them, even when
	// the parent dies without running Close.
	command.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: unix.SIGKILL}

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating worker stdin pipe: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating worker stdout pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting worker process: %w", err)
	}

	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	grace := options.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}

	logger.Debug("spawned subprocess worker",
		"target", options.Target, "pid", command.Process.Pid)

	return &subprocessWorker{
		command: command,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdout),
		clk:     clk,
		grace:   grace,
		logger:  logger,
	}, nil
}

func (s *subprocessWorker) Send(ctx context.Context, message remote.Message) (remote.Result, error) {
	if s.closed {
		return remote.Result{}, ErrWorkerClosed
	}
	if s.failure != nil {
		return remote.Result{}, fmt.Errorf("worker failed: %w", s.failure)
	}
	// Pipes have no deadline support; the context is honored between
	// messages, not mid-flight. The reference behavior has no call
	// timeout at all.
	if err := ctx.Err(); err != nil {
		return remote.Result{}, err
	}

	payload, err := codec.Marshal(message)
	if err != nil {
		return remote.Result{}, fmt.Errorf("encoding %s %s: %w", message.Command, message.Name, err)
	}
	if err := frame.Write(s.stdin, frameRequest, payload); err != nil {
		return remote.Result{}, s.fail(fmt.Errorf("sending to worker process: %w", err))
	}

	frameType, body, err := frame.Read(s.stdout)
	if err != nil {
		return remote.Result{}, s.fail(fmt.Errorf("reading worker response: %w", err))
	}
	switch frameType {
	case frameResponse:
		var result remote.Result
		if err := codec.Unmarshal(body, &result); err != nil {
			return remote.Result{}, s.fail(fmt.Errorf("decoding worker response: %w", err))
		}
		return result, nil
	case frameFatal:
		return remote.Result{}, s.fail(fmt.Errorf("worker dispatcher failed: %s", body))
	default:
		return remote.Result{}, s.fail(fmt.Errorf("unexpected frame type 0x%02x from worker", frameType))
	}
}

// fail records the first failure; it answers this Send and every
// later one.
func (s *subprocessWorker) fail(err error) error {
	if s.failure == nil {
		s.failure = err
	}
	return err
}

// Close shuts the worker down: closing stdin ends the child's serve
// loop, which exits on its own. A child that does not exit within the
// shutdown grace is killed.
func (s *subprocessWorker) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		if err := s.stdin.Close(); err != nil {
			s.logger.Warn("closing worker stdin", "error", err)
		}

		exited := make(chan error, 1)
		go func() { exited <- s.command.Wait() }()

		select {
		case err := <-exited:
			// A non-zero exit after a recorded failure is old news:
			// the Send that observed the failure already reported it.
			if err != nil && s.failure == nil {
				s.closeErr = fmt.Errorf("worker process exited: %w", err)
			}
		case <-s.clk.After(s.grace):
			s.logger.Warn("worker did not exit within shutdown grace, killing",
				"grace", s.grace, "pid", s.command.Process.Pid)
			if err := s.command.Process.Kill(); err != nil {
				s.logger.Warn("killing worker process", "error", err)
			}
			<-exited
			s.closeErr = fmt.Errorf("worker process killed after %v shutdown grace", s.grace)
		}
	})
	return s.closeErr
}
