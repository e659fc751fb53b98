// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/multierr"

	"code.hybscloud.com/xcall"
)

func TestEnvelopeKinds(t *testing.T) {
	for _, tc := range []struct {
		err  error
		kind string
	}{
		{errors.New("plain"), xcall.KindError},
		{fmt.Errorf("wrapped: %w", xcall.ErrDuplicateIdentifier), xcall.KindDuplicateIdentifier},
		{fmt.Errorf("%w: x", xcall.ErrNotCloneable), xcall.KindTransport},
		{xcall.ErrCapacityExceeded, xcall.KindCapacityExceeded},
		{xcall.ErrClosed, xcall.KindClosed},
		{&QuotaError{}, "QuotaError"},
		{fmt.Errorf("wrapped: %w", &QuotaError{}), xcall.KindError},
	} {
		if got := xcall.Envelope(tc.err).Kind; got != tc.kind {
			t.Errorf("Envelope(%v).Kind = %q, want %q", tc.err, got, tc.kind)
		}
	}
	if xcall.Envelope(nil) != nil {
		t.Fatal("nil error produced an envelope")
	}
}

func TestEnvelopeNestedCause(t *testing.T) {
	err := fmt.Errorf("outer: %w", errors.New("inner"))
	env := xcall.Envelope(err)
	data, merr := cbor.Marshal(env)
	if merr != nil {
		t.Fatal(merr)
	}
	var back xcall.ErrorEnvelope
	if err := cbor.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	inner, ok := back.Cause.(*xcall.ErrorEnvelope)
	if !ok {
		t.Fatalf("cause = %T, want *ErrorEnvelope", back.Cause)
	}
	if inner.Message != "inner" || back.Message != "outer: inner" {
		t.Fatalf("round trip = %+v / %+v", back, inner)
	}
}

type QuotaError struct{}

func (*QuotaError) Error() string { return "quota exhausted" }

func TestEnvelopeJoinedCause(t *testing.T) {
	env := xcall.Envelope(fmt.Errorf("%w: %w", xcall.ErrTransport, errors.New("disk gone")))
	if env.Kind != xcall.KindTransport {
		t.Fatalf("kind = %q, want %s", env.Kind, xcall.KindTransport)
	}
	cause, ok := env.Cause.(*xcall.ErrorEnvelope)
	if !ok || cause.Message != "disk gone" {
		t.Fatalf("cause = %+v, want disk gone", env.Cause)
	}

	env = xcall.Envelope(multierr.Combine(&QuotaError{}, errors.New("second")))
	cause, ok = env.Cause.(*xcall.ErrorEnvelope)
	if !ok || cause.Kind != "QuotaError" {
		t.Fatalf("multierr cause = %+v, want QuotaError", env.Cause)
	}
}

type kinded struct{}

func (kinded) Error() string     { return "custom" }
func (kinded) ErrorKind() string { return "CustomError" }

func TestRemoteErrorRelay(t *testing.T) {
	env := xcall.Envelope(fmt.Errorf("relay: %w", kinded{}))
	if env.Kind != "CustomError" {
		t.Fatalf("kind = %q, want CustomError", env.Kind)
	}

	re := &xcall.RemoteError{Kind: xcall.KindMissingFunction, Message: "No such function", Cause: "f"}
	if got := xcall.Envelope(re); got.Kind != re.Kind || got.Cause != "f" {
		t.Fatalf("relayed envelope = %+v", got)
	}
	if re.Error() != "MissingFunctionError: No such function" {
		t.Fatalf("Error() = %q", re.Error())
	}
	if !errors.Is(re, xcall.ErrMissingFunction) || errors.Is(re, xcall.ErrClosed) {
		t.Fatal("Is matches the wrong sentinel")
	}
}

func TestRemoteErrorUnwrap(t *testing.T) {
	inner := &xcall.RemoteError{Kind: xcall.KindClosed, Message: "gone"}
	outer := &xcall.RemoteError{Kind: xcall.KindError, Message: "outer", Cause: inner}
	if !errors.Is(outer, xcall.ErrClosed) {
		t.Fatal("nested remote cause not reachable")
	}
	if env := outer.Envelope(); env.Cause.(*xcall.ErrorEnvelope).Kind != xcall.KindClosed {
		t.Fatalf("nested envelope = %+v", env.Cause)
	}
}
