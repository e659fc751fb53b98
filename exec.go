// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// bridgeHandler handles bridge and error effects.
// Bridge ops wait on ErrWouldBlock via iox.Backoff; a call failure or a
// Throw short-circuits with Left.
type bridgeHandler[R any] struct {
	ctx    context.Context
	b      *Bridge
	errCtx *kont.ErrorContext[error]
}

// Dispatch implements kont.Handler. Dispatch order: Bridge → Error.
func (h bridgeHandler[R]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	if bop, ok := op.(bridgeDispatcher); ok {
		v, err := dispatchWait(h.ctx, h.b, bop)
		if err != nil {
			return kont.Left[error, R](err), false
		}
		return v, true
	}
	if eop, ok := op.(interface {
		DispatchError(ctx *kont.ErrorContext[error]) (kont.Resumed, bool)
	}); ok {
		v, _ := eop.DispatchError(h.errCtx)
		if h.errCtx.HasErr {
			return kont.Left[error, R](h.errCtx.Err), false
		}
		return v, true
	}
	panic("xcall: unhandled effect in bridgeHandler")
}

// dispatchWait retries DispatchBridge until it stops reporting
// iox.ErrWouldBlock or ctx is done.
func dispatchWait(ctx context.Context, b *Bridge, bop bridgeDispatcher) (kont.Resumed, error) {
	var bo iox.Backoff
	for {
		v, err := bop.DispatchBridge(ctx, b)
		if !iox.IsWouldBlock(err) {
			return v, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bo.Wait()
	}
}

// Exec runs a Cont-world call protocol on b.
// Returns Right with the protocol's result, or Left with the first call
// failure, Throw, or ctx error.
func Exec[R any](ctx context.Context, b *Bridge, protocol kont.Eff[R]) kont.Either[error, R] {
	wrapped := kont.Map[kont.Resumed, R, kont.Either[error, R]](protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	var errCtx kont.ErrorContext[error]
	h := bridgeHandler[R]{ctx: ctx, b: b, errCtx: &errCtx}
	return kont.Handle(wrapped, h)
}

// ExecExpr runs an Expr-world call protocol on b.
func ExecExpr[R any](ctx context.Context, b *Bridge, protocol kont.Expr[R]) kont.Either[error, R] {
	wrapped := kont.ExprMap(protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	var errCtx kont.ErrorContext[error]
	h := bridgeHandler[R]{ctx: ctx, b: b, errCtx: &errCtx}
	return kont.HandleExpr(wrapped, h)
}
