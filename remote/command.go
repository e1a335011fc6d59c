// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import "fmt"

// Command identifies one protocol operation between a proxy and its
// worker's dispatcher. The set is closed: these three commands are the
// entire vocabulary.
type Command uint8

const (
	// CommandCallable asks whether the named member is invocable on
	// the target. Carries no arguments; the result value is a bool.
	CommandCallable Command = 1 + iota

	// CommandCall invokes the named member with the supplied
	// arguments and returns the invocation's result.
	CommandCall

	// CommandRead fetches the current value of the named member.
	// Carries no arguments.
	CommandRead
)

// String returns the wire-independent name of the command.
func (c Command) String() string {
	switch c {
	case CommandCallable:
		return "callable"
	case CommandCall:
		return "call"
	case CommandRead:
		return "read"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Message is one request from a proxy to its worker's dispatcher.
type Message struct {
	// Command selects the dispatcher behavior.
	Command Command `cbor:"command"`

	// Name is the target member the command operates on.
	Name string `cbor:"name"`

	// Args are the positional arguments for CommandCall. Must be
	// empty for CommandCallable and CommandRead.
	Args []any `cbor:"args,omitempty"`
}

// Result is the dispatcher's answer to one Message.
//
// Missing is the protocol's reserved sentinel: it is a dedicated
// field, disjoint from every legitimate member value, so "member does
// not exist" survives any transport — including ones that flatten
// results into generic CBOR values — without ever colliding with a
// genuine result.
type Result struct {
	// Missing reports that the named member does not exist on the
	// target. When set, Value is meaningless.
	Missing bool `cbor:"missing,omitempty"`

	// Value is the command's result: a bool for CommandCallable, the
	// invocation result for CommandCall, the member value for
	// CommandRead.
	Value any `cbor:"value,omitempty"`
}
