// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"errors"
	"strings"
	"testing"
)

// counter is the canonical dispatcher target: a mutable value member
// plus methods that mutate it.
type counter struct {
	Count int
}

func (c *counter) Increment() int {
	c.Count++
	return c.Count
}

func (c *counter) Add(n int) int {
	c.Count += n
	return c.Count
}

func (c *counter) Len() int { return 0 }

func (c *counter) Explode() error { return errors.New("target exploded") }

func (c *counter) Swap(n int) (int, error) {
	previous := c.Count
	c.Count = n
	return previous, nil
}

func (c *counter) Pair() (int, string) { return c.Count, "pair" }

func newCounter() (any, error) { return &counter{}, nil }

func TestStepConstructsTargetExactlyOnce(t *testing.T) {
	t.Parallel()
	constructions := 0
	construct := func() (any, error) {
		constructions++
		return &counter{}, nil
	}

	var state any
	for _, message := range []Message{
		{Command: CommandCallable, Name: "Increment"},
		{Command: CommandCall, Name: "Increment"},
		{Command: CommandRead, Name: "Count"},
	} {
		next, _, err := Step(construct, state, message)
		if err != nil {
			t.Fatalf("Step(%v %s): %v", message.Command, message.Name, err)
		}
		state = next
	}

	if constructions != 1 {
		t.Errorf("constructor ran %d times, want 1", constructions)
	}
}

func TestStepConstructorError(t *testing.T) {
	t.Parallel()
	construct := func() (any, error) { return nil, errors.New("no environment") }
	_, _, err := Step(construct, nil, Message{Command: CommandRead, Name: "Count"})
	if err == nil || !strings.Contains(err.Error(), "no environment") {
		t.Fatalf("Step with failing constructor: got %v", err)
	}
}

func TestStepCallable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		member      string
		want        bool
		wantMissing bool
	}{
		{name: "method is callable", member: "Increment", want: true},
		{name: "value field is not callable", member: "Count", want: false},
		{name: "absent member is missing", member: "Nothing", wantMissing: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, result, err := Step(newCounter, nil, Message{Command: CommandCallable, Name: test.member})
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
			if result.Missing != test.wantMissing {
				t.Fatalf("missing: got %v, want %v", result.Missing, test.wantMissing)
			}
			if !test.wantMissing && result.Value != test.want {
				t.Errorf("callable: got %v, want %v", result.Value, test.want)
			}
		})
	}
}

func TestStepCallableFuncField(t *testing.T) {
	t.Parallel()
	type hooked struct {
		Hook func() int
	}
	construct := func() (any, error) {
		return &hooked{Hook: func() int { return 42 }}, nil
	}

	state, result, err := Step(construct, nil, Message{Command: CommandCallable, Name: "Hook"})
	if err != nil {
		t.Fatalf("Step callable: %v", err)
	}
	if result.Value != true {
		t.Fatalf("func field callable: got %v, want true", result.Value)
	}

	_, result, err = Step(construct, state, Message{Command: CommandCall, Name: "Hook"})
	if err != nil {
		t.Fatalf("Step call: %v", err)
	}
	if result.Value != 42 {
		t.Errorf("func field call: got %v, want 42", result.Value)
	}
}

func TestStepCallableRejectsArguments(t *testing.T) {
	t.Parallel()
	_, _, err := Step(newCounter, nil, Message{Command: CommandCallable, Name: "Increment", Args: []any{1}})
	if err == nil {
		t.Fatal("callable probe with arguments should fail")
	}
}

func TestStepCallThreadsState(t *testing.T) {
	t.Parallel()
	var state any
	for want := 1; want <= 3; want++ {
		next, result, err := Step(newCounter, state, Message{Command: CommandCall, Name: "Increment"})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		state = next
		if result.Value != want {
			t.Errorf("Increment: got %v, want %d", result.Value, want)
		}
	}

	_, result, err := Step(newCounter, state, Message{Command: CommandRead, Name: "Count"})
	if err != nil {
		t.Fatalf("Step read: %v", err)
	}
	if result.Value != 3 {
		t.Errorf("Count after three increments: got %v, want 3", result.Value)
	}
}

func TestStepCallCoercesNumericArguments(t *testing.T) {
	t.Parallel()
	// CBOR decodes integers as int64/uint64; the dispatcher must feed
	// them to an int parameter.
	_, result, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Add", Args: []any{int64(5)}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.Value != 5 {
		t.Errorf("Add(5): got %v, want 5", result.Value)
	}
}

func TestStepCallCoercesStructArguments(t *testing.T) {
	t.Parallel()
	// Struct parameters arrive as map[string]any after crossing a
	// process boundary; coercion goes through the CBOR round trip.
	construct := func() (any, error) { return &vectorTarget{}, nil }
	arg := map[string]any{"x": int64(3), "y": int64(4)}
	_, result, err := Step(construct, nil, Message{Command: CommandCall, Name: "Magnitude", Args: []any{arg}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.Value != 25 {
		t.Errorf("Magnitude({3,4}): got %v, want 25", result.Value)
	}
}

type vectorTarget struct{}

type vectorArg struct {
	X int `cbor:"x"`
	Y int `cbor:"y"`
}

func (vectorTarget) Magnitude(v vectorArg) int { return v.X*v.X + v.Y*v.Y }

func TestStepCallArityMismatch(t *testing.T) {
	t.Parallel()
	_, _, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Add"})
	if err == nil {
		t.Fatal("Add with no arguments should fail")
	}
}

func TestStepCallMissingMember(t *testing.T) {
	t.Parallel()
	_, result, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Vanish"})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !result.Missing {
		t.Error("call of an absent member should report missing, not fail")
	}
}

func TestStepCallNonCallableMember(t *testing.T) {
	t.Parallel()
	_, _, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Count"})
	if err == nil {
		t.Fatal("calling a value member should fail")
	}
}

func TestStepCallErrorReturnIsFatal(t *testing.T) {
	t.Parallel()
	_, _, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Explode"})
	if err == nil || !strings.Contains(err.Error(), "target exploded") {
		t.Fatalf("Explode: got %v, want the target's error", err)
	}
}

func TestStepCallNilErrorIsStripped(t *testing.T) {
	t.Parallel()
	state, _, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Increment"})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	_, result, err := Step(newCounter, state, Message{Command: CommandCall, Name: "Swap", Args: []any{9}})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if result.Value != 1 {
		t.Errorf("Swap(9): got %v, want previous value 1", result.Value)
	}
}

func TestStepCallMultipleResults(t *testing.T) {
	t.Parallel()
	_, result, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Pair"})
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	values, ok := result.Value.([]any)
	if !ok || len(values) != 2 {
		t.Fatalf("Pair: got %#v, want two values", result.Value)
	}
	if values[0] != 0 || values[1] != "pair" {
		t.Errorf("Pair: got %v", values)
	}
}

func TestStepRead(t *testing.T) {
	t.Parallel()
	state, _, err := Step(newCounter, nil, Message{Command: CommandCall, Name: "Add", Args: []any{7}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, result, err := Step(newCounter, state, Message{Command: CommandRead, Name: "Count"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Value != 7 {
		t.Errorf("Count: got %v, want 7", result.Value)
	}
}

func TestStepReadMissingAndMethodNames(t *testing.T) {
	t.Parallel()
	for _, member := range []string{"Vanish", "Increment"} {
		_, result, err := Step(newCounter, nil, Message{Command: CommandRead, Name: member})
		if err != nil {
			t.Fatalf("Read %s: %v", member, err)
		}
		if !result.Missing {
			t.Errorf("Read %s: expected missing sentinel", member)
		}
	}
}

func TestStepReadRejectsArguments(t *testing.T) {
	t.Parallel()
	_, _, err := Step(newCounter, nil, Message{Command: CommandRead, Name: "Count", Args: []any{1}})
	if err == nil {
		t.Fatal("read with arguments should fail")
	}
}

func TestStepUnknownCommand(t *testing.T) {
	t.Parallel()
	_, _, err := Step(newCounter, nil, Message{Command: Command(99), Name: "Count"})
	if err == nil {
		t.Fatal("unknown command should fail")
	}
}
