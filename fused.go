// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"code.hybscloud.com/kont"
)

// InvokeBind calls ident and passes the reply to f.
// Fuses Perform(Invoke{...}) + Bind.
func InvokeBind[B any](ident string, args []any, f func(Value) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Invoke{Ident: ident, Args: args}), f)
}

// IssueBind starts a call to ident and passes the *Pending to f.
// Fuses Perform(Issue{...}) + Bind.
func IssueBind[B any](ident string, args []any, f func(*Pending) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Issue{Ident: ident, Args: args}), f)
}

// AwaitBind waits for p and passes its reply to f.
// Fuses Perform(Await{...}) + Bind.
func AwaitBind[B any](p *Pending, f func(Value) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Await{Pending: p}), f)
}

// InvokeAs calls ident and decodes the reply into R.
// A decoding failure is thrown as the protocol's error.
func InvokeAs[R any](ident string, args ...any) kont.Eff[R] {
	return InvokeBind(ident, args, func(v Value) kont.Eff[R] {
		r, err := As[R](v)
		if err != nil {
			return kont.ThrowError[error, R](err)
		}
		return kont.Pure(r)
	})
}

// Loop runs a recursive call protocol.
// step returns Left(nextState) to continue or Right(result) to finish.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	return kont.Bind(step(initial), func(e kont.Either[S, A]) kont.Eff[A] {
		if s, ok := e.GetLeft(); ok {
			return Loop(s, step)
		}
		a, _ := e.GetRight()
		return kont.Pure(a)
	})
}

// identityResume is the identity resume function for EffectFrame construction.
func identityResume(v kont.Erased) kont.Erased { return v }

func valueBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(Value) kont.Expr[B])
	result := f(current.(Value))
	return kont.Erased(result.Value), result.Frame
}

func pendingBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(*Pending) kont.Expr[B])
	result := f(current.(*Pending))
	return kont.Erased(result.Value), result.Frame
}

// ExprInvokeBind is the Expr-world InvokeBind.
func ExprInvokeBind[B any](ident string, args []any, f func(Value) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = valueBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = Invoke{Ident: ident, Args: args}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}

// ExprIssueBind is the Expr-world IssueBind.
func ExprIssueBind[B any](ident string, args []any, f func(*Pending) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = pendingBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = Issue{Ident: ident, Args: args}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}

// ExprAwaitBind is the Expr-world AwaitBind.
func ExprAwaitBind[B any](p *Pending, f func(Value) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = valueBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = Await{Pending: p}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}
