// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/parallax-foundation/parallax/lib/codec"
)

// Constructor builds the target object on the worker side. It runs
// exactly once per worker lifetime, triggered by the first message the
// dispatcher processes.
type Constructor func() (any, error)

// Step executes exactly one protocol step: given the persisted target
// state (nil before construction) and a message, it returns the state
// to keep for the next step and the result to send back.
//
// Missing members are never an error: they produce a Result with
// Missing set, for every command kind. Everything else that goes wrong
// — argument arity or type mismatches, a non-nil error returned by the
// invoked method, a failing constructor — is returned as an error and
// is fatal to the worker's dispatch loop. Panics inside the target
// propagate; the dispatcher does not recover them.
//
// The target is exclusively owned by the goroutine or process running
// Step. Mutation of the target by invoked methods is expected; the
// single-in-flight ordering guarantee of the worker transport is what
// makes that safe without locking.
func Step(construct Constructor, state any, message Message) (any, Result, error) {
	if state == nil {
		built, err := construct()
		if err != nil {
			return nil, Result{}, fmt.Errorf("constructing target: %w", err)
		}
		if built == nil {
			return nil, Result{}, errors.New("target constructor returned nil")
		}
		state = built
	}

	switch message.Command {
	case CommandCallable:
		if len(message.Args) > 0 {
			return state, Result{}, fmt.Errorf("callable probe for %q carries %d arguments, want none",
				message.Name, len(message.Args))
		}
		fn, field, found := lookupMember(state, message.Name)
		if !found {
			return state, Result{Missing: true}, nil
		}
		callable := fn.IsValid() || field.Kind() == reflect.Func
		return state, Result{Value: callable}, nil

	case CommandCall:
		fn, field, found := lookupMember(state, message.Name)
		if !found {
			return state, Result{Missing: true}, nil
		}
		if !fn.IsValid() {
			if field.Kind() != reflect.Func {
				return state, Result{}, fmt.Errorf("member %q is not callable", message.Name)
			}
			fn = field
		}
		value, err := invoke(fn, message.Args)
		if err != nil {
			return state, Result{}, fmt.Errorf("calling %s: %w", message.Name, err)
		}
		return state, Result{Value: value}, nil

	case CommandRead:
		if len(message.Args) > 0 {
			return state, Result{}, fmt.Errorf("read of %q carries %d arguments, want none",
				message.Name, len(message.Args))
		}
		fn, field, found := lookupMember(state, message.Name)
		if !found || fn.IsValid() {
			// Methods have no transportable value; the proxy only
			// issues reads for members it classified as values, so a
			// method name here means the member the proxy knew about
			// is gone.
			return state, Result{Missing: true}, nil
		}
		return state, Result{Value: field.Interface()}, nil

	default:
		return state, Result{}, fmt.Errorf("unknown command %d", uint8(message.Command))
	}
}

// lookupMember resolves name on the target: an exported method (value
// or pointer receiver) or an exported struct field. Exactly one of the
// returned values is valid when found is true.
func lookupMember(target any, name string) (method, field reflect.Value, found bool) {
	value := reflect.ValueOf(target)

	if m := value.MethodByName(name); m.IsValid() {
		return m, reflect.Value{}, true
	}

	structValue := value
	if structValue.Kind() == reflect.Pointer {
		if structValue.IsNil() {
			return reflect.Value{}, reflect.Value{}, false
		}
		structValue = structValue.Elem()
	}
	if structValue.Kind() != reflect.Struct {
		return reflect.Value{}, reflect.Value{}, false
	}

	structField, ok := structValue.Type().FieldByName(name)
	if !ok || structField.PkgPath != "" {
		return reflect.Value{}, reflect.Value{}, false
	}
	return reflect.Value{}, structValue.FieldByIndex(structField.Index), true
}

// invoke calls fn with args coerced to its parameter types and
// flattens the results: a trailing error return is unwrapped (non-nil
// means the call failed), zero remaining results yield nil, one is
// returned as-is, several come back as a []any.
func invoke(fn reflect.Value, args []any) (any, error) {
	in, err := coerceArgs(fn.Type(), args)
	if err != nil {
		return nil, err
	}
	out := fn.Call(in)

	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if callErr, _ := out[n-1].Interface().(error); callErr != nil {
			return nil, callErr
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, nil
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// coerceArgs converts call arguments to fn's parameter types,
// handling variadic tails.
func coerceArgs(fnType reflect.Type, args []any) ([]reflect.Value, error) {
	numIn := fnType.NumIn()
	if fnType.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, fmt.Errorf("takes at least %d arguments, got %d", numIn-1, len(args))
		}
	} else if len(args) != numIn {
		return nil, fmt.Errorf("takes %d arguments, got %d", numIn, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var paramType reflect.Type
		if fnType.IsVariadic() && i >= numIn-1 {
			paramType = fnType.In(numIn - 1).Elem()
		} else {
			paramType = fnType.In(i)
		}
		value, err := coerce(arg, paramType)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = value
	}
	return in, nil
}

// coerce converts one argument to the parameter type. Arguments that
// crossed a process boundary arrive as generic CBOR shapes
// (map[string]any, []any, int64/uint64/float64); those are re-encoded
// and decoded into the concrete parameter type.
func coerce(arg any, to reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(to), nil
	}

	value := reflect.ValueOf(arg)
	if value.Type().AssignableTo(to) {
		return value, nil
	}
	if isNumericKind(value.Kind()) && isNumericKind(to.Kind()) {
		return value.Convert(to), nil
	}

	raw, err := codec.Marshal(arg)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot pass %T as %s: %w", arg, to, err)
	}
	target := reflect.New(to)
	if err := codec.Unmarshal(raw, target.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot pass %T as %s: %w", arg, to, err)
	}
	return target.Elem(), nil
}

func isNumericKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
