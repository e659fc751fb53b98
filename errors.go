// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"errors"
	"fmt"
	"go/token"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrCapacityExceeded    = errors.New("xcall: capacity exceeded: no free slots")
	ErrMissingFunction     = errors.New("xcall: no such function")
	ErrDuplicateIdentifier = errors.New("xcall: duplicate identifier")
	ErrTransport           = errors.New("xcall: transport failed")
	ErrClosed              = errors.New("xcall: closed")
	ErrDetached            = errors.New("xcall: resource detached")
	ErrNotCloneable        = errors.New("xcall: value cannot be copied, move it instead")
	ErrUnknownCommand      = errors.New("xcall: unknown command")
	ErrUnknownSetup        = errors.New("xcall: unknown setup")
	ErrUnknownModule       = errors.New("xcall: unknown module")
	ErrArgument            = errors.New("xcall: bad argument")
	ErrInvalidConfig       = errors.New("xcall: invalid config")
)

// Error kinds carried by an ErrorEnvelope.
const (
	KindError               = "Error"
	KindPanic               = "PanicError"
	KindMissingFunction     = "MissingFunctionError"
	KindDuplicateIdentifier = "DuplicateIdentifierError"
	KindCapacityExceeded    = "CapacityExceededError"
	KindTransport           = "TransportError"
	KindClosed              = "ClosedError"
	KindUnknownCommand      = "UnknownCommandError"
	KindUnknownSetup        = "UnknownSetupError"
	KindUnknownModule       = "UnknownModuleError"
	KindArgument            = "ArgumentError"
)

// kinds maps sentinels to their wire kinds. Order matters: the first
// sentinel found in an error chain names the kind.
var kinds = []struct {
	kind string
	err  error
}{
	{KindMissingFunction, ErrMissingFunction},
	{KindDuplicateIdentifier, ErrDuplicateIdentifier},
	{KindCapacityExceeded, ErrCapacityExceeded},
	{KindArgument, ErrArgument},
	{KindUnknownCommand, ErrUnknownCommand},
	{KindUnknownSetup, ErrUnknownSetup},
	{KindUnknownModule, ErrUnknownModule},
	{KindTransport, ErrTransport},
	{KindTransport, ErrNotCloneable},
	{KindTransport, ErrDetached},
	{KindClosed, ErrClosed},
}

func kindOf(err error) string {
	var k interface{ ErrorKind() string }
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	for _, e := range kinds {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return typeKind(err)
}

// typeKind names err by its exported concrete type, or KindError.
func typeKind(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); token.IsExported(name) {
		return name
	}
	return KindError
}

func isSentinel(err error) bool {
	if !reflect.TypeOf(err).Comparable() {
		return false
	}
	for _, e := range kinds {
		if err == e.err {
			return true
		}
	}
	return false
}

// unwrapCause returns the error err wraps. For errors joining several,
// it prefers the first one that is not a package sentinel.
func unwrapCause(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		errs := u.Unwrap()
		for _, e := range errs {
			if e != nil && !isSentinel(e) {
				return e
			}
		}
		if len(errs) > 0 {
			return errs[0]
		}
	}
	return nil
}

// ErrorEnvelope is the transportable form of a failure.
//
// Cause is either a plain value (for MissingFunctionError, the missing
// identifier) or a nested *ErrorEnvelope for wrapped errors.
type ErrorEnvelope struct {
	Kind    string   `cbor:"kind"`
	Message string   `cbor:"message"`
	Cause   any      `cbor:"cause,omitempty"`
	Trace   []string `cbor:"trace,omitempty"`
}

type envelopeWire struct {
	Kind    string          `cbor:"kind"`
	Message string          `cbor:"message"`
	Cause   cbor.RawMessage `cbor:"cause,omitempty"`
	Trace   []string        `cbor:"trace,omitempty"`
}

// UnmarshalCBOR restores a nested envelope cause as *ErrorEnvelope.
func (e *ErrorEnvelope) UnmarshalCBOR(data []byte) error {
	var w envelopeWire
	if err := decMode.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = ErrorEnvelope{Kind: w.Kind, Message: w.Message, Trace: w.Trace}
	if len(w.Cause) == 0 {
		return nil
	}
	if w.Cause[0]>>5 == 5 {
		var nested ErrorEnvelope
		if err := decMode.Unmarshal(w.Cause, &nested); err == nil && nested.Kind != "" {
			e.Cause = &nested
			return nil
		}
	}
	return decMode.Unmarshal(w.Cause, &e.Cause)
}

// Envelope converts err into its transportable form.
//
// The kind comes from an ErrorKind method when err has one, otherwise
// from the package sentinels in its chain, otherwise from the name of
// err's exported concrete type, falling back to KindError. A
// StackTrace method supplies the trace, trimmed of dispatch frames.
// A *RemoteError passes through unchanged so failures can be relayed
// across several contexts.
func Envelope(err error) *ErrorEnvelope {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RemoteError); ok {
		return re.Envelope()
	}
	env := &ErrorEnvelope{Kind: kindOf(err), Message: err.Error()}
	if c, ok := err.(interface{ Cause() any }); ok {
		env.Cause = c.Cause()
	} else if u := unwrapCause(err); u != nil {
		env.Cause = Envelope(u)
	}
	if st, ok := err.(interface{ StackTrace() []string }); ok {
		env.Trace = trimTrace(st.StackTrace())
	}
	return env
}

func missingFunction(ident string) *ErrorEnvelope {
	return &ErrorEnvelope{Kind: KindMissingFunction, Message: "No such function", Cause: ident}
}

// RemoteError is a failure reconstructed from an ErrorEnvelope on the
// calling side of a boundary.
//
// Trace holds the remote frames, a boundary marker line, and then the
// frames of the local call site.
type RemoteError struct {
	Kind    string
	Message string
	Cause   any
	Trace   []string
}

func newRemoteError(env *ErrorEnvelope) *RemoteError {
	re := &RemoteError{Kind: env.Kind, Message: env.Message, Cause: env.Cause}
	if nested, ok := env.Cause.(*ErrorEnvelope); ok {
		re.Cause = newRemoteError(nested)
	}
	if len(env.Trace) > 0 {
		re.Trace = append([]string(nil), env.Trace...)
	}
	return re
}

func (e *RemoteError) Error() string {
	if e.Kind == "" || e.Kind == KindError {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}

// Unwrap returns the remote cause when it was itself an error.
func (e *RemoteError) Unwrap() error {
	if c, ok := e.Cause.(*RemoteError); ok {
		return c
	}
	return nil
}

// Is matches the package sentinel for e's kind.
func (e *RemoteError) Is(target error) bool {
	for _, k := range kinds {
		if k.err == target && k.kind == e.Kind {
			return true
		}
	}
	return false
}

// ErrorKind returns the remote kind.
func (e *RemoteError) ErrorKind() string { return e.Kind }

// StackTrace returns the remote trace including boundary markers.
func (e *RemoteError) StackTrace() []string { return e.Trace }

// Envelope converts e back into its transportable form.
func (e *RemoteError) Envelope() *ErrorEnvelope {
	env := &ErrorEnvelope{Kind: e.Kind, Message: e.Message, Cause: e.Cause, Trace: e.Trace}
	if c, ok := e.Cause.(*RemoteError); ok {
		env.Cause = c.Envelope()
	}
	return env
}

// panicError carries a recovered panic out of a registered function.
type panicError struct {
	value any
	trace []string
}

func (e *panicError) Error() string {
	if err, ok := e.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.value)
}

func (e *panicError) Unwrap() error {
	err, _ := e.value.(error)
	return err
}

func (e *panicError) ErrorKind() string      { return KindPanic }
func (e *panicError) StackTrace() []string { return e.trace }
