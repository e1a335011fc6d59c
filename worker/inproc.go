// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/parallax-foundation/parallax/remote"
)

// inProc hosts the dispatcher on a dedicated goroutine. The
// unbuffered request channel is the FIFO call-and-wait primitive:
// one message in flight, responses paired to their requests by a
// per-request reply channel.
type inProc struct {
	requests chan inProcRequest
	stop     chan struct{}
	done     chan struct{}

	closeOnce sync.Once

	failureMu sync.Mutex
	failure   error
}

type inProcRequest struct {
	message remote.Message
	reply   chan inProcResponse
}

type inProcResponse struct {
	result remote.Result
	err    error
}

func newInProc(construct remote.Constructor, logger *slog.Logger) *inProc {
	w := &inProc{
		requests: make(chan inProcRequest),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop(construct, logger)
	return w
}

// loop owns the target exclusively: it is constructed here on the
// first message and mutated only between a request and its reply.
func (w *inProc) loop(construct remote.Constructor, logger *slog.Logger) {
	defer close(w.done)

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
		select {
		case <-w.stop:
			return
		case request := <-w.requests:
			state2, result, err := remote.Step(construct, state, request.message)
			state = state2
			request.reply <- inProcResponse{result: result, err: err}
			if err != nil {
				// A dispatcher error is fatal to the loop; the
				// recorded failure answers every later Send.
				w.setFailure(err)
				logger.Error("dispatcher failed, worker stopping",
					"command", request.message.Command.String(),
					"member", request.message.Name,
					"error", err)
				return
			}
		}
	}
}

func (w *inProc) Send(ctx context.Context, message remote.Message) (remote.Result, error) {
	reply := make(chan inProcResponse, 1)
	select {
	case w.requests <- inProcRequest{message: message, reply: reply}:
	case <-w.done:
		return remote.Result{}, w.sendFailure()
	case <-ctx.Done():
		return remote.Result{}, ctx.Err()
	}

	select {
	case response := <-reply:
		if response.err != nil {
			return remote.Result{}, fmt.Errorf("dispatcher: %w", response.err)
		}
		return response.result, nil
	case <-ctx.Done():
		// The reply channel is buffered; the loop is never blocked by
		// an abandoned request.
		return remote.Result{}, ctx.Err()
	}
}

func (w *inProc) Close() error {
	w.closeOnce.Do(func() { close(w.stop) })
	<-w.done
	return nil
}

func (w *inProc) setFailure(err error) {
	w.failureMu.Lock()
	defer w.failureMu.Unlock()
	if w.failure == nil {
		w.failure = err
	}
}

// sendFailure explains why the loop is gone: a recorded dispatcher
// failure, or a plain close.
func (w *inProc) sendFailure() error {
	w.failureMu.Lock()
	defer w.failureMu.Unlock()
	if w.failure != nil {
		return fmt.Errorf("worker failed: %w", w.failure)
	}
	return ErrWorkerClosed
}
