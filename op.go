// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// bridgeDispatcher is the structural interface for bridge operations.
// DispatchBridge returns iox.ErrWouldBlock when no reply is ready yet;
// any other error is a call failure.
type bridgeDispatcher interface {
	DispatchBridge(ctx context.Context, b *Bridge) (kont.Resumed, error)
}

// Invoke is the effect operation for a remote call that resumes with
// the reply. Perform(Invoke{Ident: "f", Args: ...}) calls f and waits.
type Invoke struct {
	kont.Phantom[Value]
	Ident string
	Args  []any
}

// DispatchBridge issues the call and waits for its reply.
func (o Invoke) DispatchBridge(ctx context.Context, b *Bridge) (kont.Resumed, error) {
	v, err := b.Call(o.Ident, o.Args...).Await(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Issue is the effect operation for starting a remote call without
// waiting. Perform(Issue{Ident: "f"}) resumes with the *Pending.
type Issue struct {
	kont.Phantom[*Pending]
	Ident string
	Args  []any
}

// DispatchBridge issues the call. Never blocks on the reply.
func (o Issue) DispatchBridge(_ context.Context, b *Bridge) (kont.Resumed, error) {
	return b.Call(o.Ident, o.Args...), nil
}

// Await is the effect operation for collecting the reply of an issued
// call. Perform(Await{Pending: p}) resumes with p's result.
type Await struct {
	kont.Phantom[Value]
	Pending *Pending
}

// DispatchBridge polls the bridge once.
// Non-blocking: returns iox.ErrWouldBlock while the call is outstanding.
func (o Await) DispatchBridge(_ context.Context, b *Bridge) (kont.Resumed, error) {
	if !o.Pending.Done() {
		if err := b.Poll(); err != nil && !iox.IsWouldBlock(err) && !o.Pending.Done() {
			return nil, err
		}
		if !o.Pending.Done() {
			return nil, iox.ErrWouldBlock
		}
	}
	r, _ := o.Pending.Result()
	if v, ok := r.GetRight(); ok {
		return v, nil
	}
	err, _ := r.GetLeft()
	return nil, err
}
