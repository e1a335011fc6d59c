// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"unicode"
	"unicode/utf8"
)

// Worker is the transport contract the proxy depends on. A worker
// runs one dispatcher in its own execution context (goroutine or
// process) and provides a blocking call-and-wait primitive.
//
// Send delivers one message and returns the dispatcher's paired
// result. Messages from a single worker handle are processed strictly
// in the order sent; there is never more than one in-flight command
// for a given target.
type Worker interface {
	Send(ctx context.Context, message Message) (Result, error)
	Close() error
}

// MemberError reports that a member does not exist on the remote
// target. It is the proxy's only recoverable error category and plays
// the role a failed local member lookup would.
type MemberError struct {
	Name string
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("no such member %q on remote target", e.Name)
}

// ErrClosed is returned by every proxy operation after Close.
var ErrClosed = errors.New("remote: proxy is closed")

// Forwarder is a call adapter bound to one member name. Invoking it
// forwards a call to the remote target and returns the dispatcher's
// result verbatim. Forwarders are cheap and re-derived on each access;
// they remain valid for the life of the proxy.
type Forwarder func(ctx context.Context, args ...any) (any, error)

// capability is the proxy-local classification of a member name.
type capability uint8

const (
	capCallable capability = 1 + iota
	capValue
	capMissing
)

// Proxy presents a remote target as if it were local. Member access
// goes through a capability cache: the first access of a name sends
// one callable probe, every later access is served from the cache.
// The cache grows monotonically and is never invalidated — the target
// must not change shape after first use.
//
// A Proxy is not safe for concurrent use; the protocol allows only
// one in-flight command per worker.
type Proxy struct {
	worker       Worker
	capabilities map[string]capability
	closed       bool
}

// NewProxy wraps a worker in a proxy. The proxy takes ownership of
// the worker: Close tears it down.
func NewProxy(worker Worker) *Proxy {
	return &Proxy{
		worker:       worker,
		capabilities: make(map[string]capability),
	}
}

// Access resolves the named member on the remote target. For callable
// members it returns a [Forwarder]; for value members it reads and
// returns the current value. Missing members — including names that
// are not exported Go identifiers, which are rejected without
// contacting the worker — fail with a [*MemberError].
func (p *Proxy) Access(ctx context.Context, name string) (any, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if !isExportedName(name) {
		return nil, &MemberError{Name: name}
	}

	classification, ok := p.capabilities[name]
	if !ok {
		var err error
		classification, err = p.classify(ctx, name)
		if err != nil {
			return nil, err
		}
		p.capabilities[name] = classification
	}

	switch classification {
	case capCallable:
		return p.forwarder(name), nil
	case capValue:
		result, err := p.worker.Send(ctx, Message{Command: CommandRead, Name: name})
		if err != nil {
			return nil, fmt.Errorf("reading member %q: %w", name, err)
		}
		if result.Missing {
			// The member was classified as a value but has since
			// vanished. The cache keeps the stale classification; the
			// access itself fails like any other missing member.
			return nil, &MemberError{Name: name}
		}
		return result.Value, nil
	default:
		return nil, &MemberError{Name: name}
	}
}

// classify sends the one callable probe for a name.
func (p *Proxy) classify(ctx context.Context, name string) (capability, error) {
	result, err := p.worker.Send(ctx, Message{Command: CommandCallable, Name: name})
	if err != nil {
		return 0, fmt.Errorf("probing member %q: %w", name, err)
	}
	if result.Missing {
		return capMissing, nil
	}
	callable, ok := result.Value.(bool)
	if !ok {
		return 0, fmt.Errorf("callable probe for %q returned %T, want bool", name, result.Value)
	}
	if callable {
		return capCallable, nil
	}
	return capValue, nil
}

func (p *Proxy) forwarder(name string) Forwarder {
	return func(ctx context.Context, args ...any) (any, error) {
		if p.closed {
			return nil, ErrClosed
		}
		result, err := p.worker.Send(ctx, Message{Command: CommandCall, Name: name, Args: args})
		if err != nil {
			return nil, fmt.Errorf("calling %s: %w", name, err)
		}
		if result.Missing {
			return nil, &MemberError{Name: name}
		}
		return result.Value, nil
	}
}

// Call accesses the named member and invokes it with args. It fails
// with a [*MemberError] for missing members and an error for members
// that are not callable.
func (p *Proxy) Call(ctx context.Context, name string, args ...any) (any, error) {
	member, err := p.Access(ctx, name)
	if err != nil {
		return nil, err
	}
	forward, ok := member.(Forwarder)
	if !ok {
		return nil, fmt.Errorf("member %q is not callable", name)
	}
	return forward(ctx, args...)
}

// lenMember is the reserved member representing the target's element
// count. Every target is assumed to provide it.
const lenMember = "Len"

// Len returns the remote target's length. It always forwards a single
// call to the reserved Len member, bypassing the callable
// classification step entirely.
func (p *Proxy) Len(ctx context.Context) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	result, err := p.worker.Send(ctx, Message{Command: CommandCall, Name: lenMember})
	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", lenMember, err)
	}
	if result.Missing {
		return 0, fmt.Errorf("target does not provide the reserved %s member", lenMember)
	}
	length, err := asInt(result.Value)
	if err != nil {
		return 0, fmt.Errorf("%s result: %w", lenMember, err)
	}
	return length, nil
}

// Close tears down the worker and, transitively, the remote target.
// Close is idempotent; every other operation fails with [ErrClosed]
// afterwards.
func (p *Proxy) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.worker.Close()
}

// isExportedName reports whether name is an exported Go identifier.
// Unexported and underscore-prefixed names denote target internals and
// are rejected locally, without a worker round trip.
func isExportedName(name string) bool {
	first, _ := utf8.DecodeRuneInString(name)
	return first != utf8.RuneError && unicode.IsUpper(first)
}

// asInt normalizes the integer shapes a length result can arrive in.
// In-process workers deliver an int; results that crossed a process
// boundary arrive as CBOR integer types. Values that do not fit in an
// int are an error, never silently truncated.
func asInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		if v > math.MaxInt || v < math.MinInt {
			return 0, fmt.Errorf("value %d overflows int", v)
		}
		return int(v), nil
	case uint64:
		if v > math.MaxInt {
			return 0, fmt.Errorf("value %d overflows int", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("got %T, want integer", value)
	}
}
