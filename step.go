// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Step evaluates a call protocol until the first effect suspension.
// Returns (result, nil) on completion, or (zero, suspension) if pending.
func Step[R any](protocol kont.Expr[R]) (kont.Either[error, R], *kont.Suspension[kont.Either[error, R]]) {
	wrapped := kont.ExprMap(protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	return kont.StepExpr(wrapped)
}

// Advance dispatches the suspended operation on b once.
//
// On iox.ErrWouldBlock the suspension is returned unconsumed and may be
// retried after polling. A call failure or Throw discards the suspension
// and returns Left.
func Advance[R any](ctx context.Context, b *Bridge, susp *kont.Suspension[kont.Either[error, R]]) (kont.Either[error, R], *kont.Suspension[kont.Either[error, R]], error) {
	if bop, ok := susp.Op().(bridgeDispatcher); ok {
		v, err := bop.DispatchBridge(ctx, b)
		if err != nil {
			if iox.IsWouldBlock(err) {
				var zero kont.Either[error, R]
				return zero, susp, err
			}
			susp.Discard()
			return kont.Left[error, R](err), nil, nil
		}
		result, next := susp.Resume(v)
		return result, next, nil
	}
	if eop, ok := susp.Op().(interface {
		DispatchError(ctx *kont.ErrorContext[error]) (kont.Resumed, bool)
	}); ok {
		var errCtx kont.ErrorContext[error]
		v, _ := eop.DispatchError(&errCtx)
		if errCtx.HasErr {
			susp.Discard()
			return kont.Left[error, R](errCtx.Err), nil, nil
		}
		result, next := susp.Resume(v)
		return result, next, nil
	}
	panic("xcall: unhandled effect in Advance")
}
