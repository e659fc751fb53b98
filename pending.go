// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Pending is an issued call awaiting its reply.
//
// A Pending settles exactly once: with the reply, with a synthesized
// failure when the send fails, or with ErrClosed when the bridge closes.
type Pending struct {
	b      *Bridge
	h      Handle
	site   []string
	done   bool
	result kont.Either[error, Value]
}

// continuation is what a slot holds for one outstanding call.
type continuation struct {
	resolve func(Value)
	reject  func(error)
}

func (p *Pending) continuation() continuation {
	return continuation{resolve: p.resolve, reject: p.reject}
}

func (p *Pending) resolve(v Value) {
	if p.done {
		return
	}
	p.done = true
	p.result = kont.Right[error, Value](v)
}

// reject settles p with err. A remote failure gets the boundary marker
// and the local call site appended to its trace.
func (p *Pending) reject(err error) {
	if p.done {
		return
	}
	if re, ok := err.(*RemoteError); ok && p.b != nil {
		re.Trace = append(re.Trace, p.b.cfg.Boundary)
		re.Trace = append(re.Trace, p.site...)
	}
	p.done = true
	p.result = kont.Left[error, Value](err)
}

// Handle returns the handle the call was issued with. It is zero when
// the call failed before a handle was acquired.
func (p *Pending) Handle() Handle { return p.h }

// Done reports whether the call has settled.
func (p *Pending) Done() bool { return p.done }

// Result returns the settled outcome: Right on success, Left on failure.
// It reports false while the call is still outstanding.
func (p *Pending) Result() (kont.Either[error, Value], bool) {
	return p.result, p.done
}

// Await drives the bridge until the call settles.
//
// Cancelling ctx abandons the wait, not the call: the handle stays live
// and a later Await or Poll still settles it.
func (p *Pending) Await(ctx context.Context) (Value, error) {
	var bo iox.Backoff
	for !p.done {
		if err := ctx.Err(); err != nil {
			return Value{}, err
		}
		err := p.b.Poll()
		switch {
		case err == nil:
			bo.Reset()
		case iox.IsWouldBlock(err):
			bo.Wait()
		case !p.done:
			return Value{}, err
		}
	}
	if v, ok := p.result.GetRight(); ok {
		return v, nil
	}
	err, _ := p.result.GetLeft()
	return Value{}, err
}
