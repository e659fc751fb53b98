// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
	"go.uber.org/zap"
)

// Bridge is the coordinator side of a channel. It issues commands,
// owns the handle pool, and settles pending calls from replies.
//
// A Bridge is driven by a single goroutine; replies are only processed
// inside Poll, Await, or while a send waits for queue space.
type Bridge struct {
	port   *Port
	slots  *Slots[continuation]
	cfg    Config
	log    *zap.Logger
	closed bool
}

// NewBridge creates a bridge issuing commands on port.
func NewBridge(port *Port, opts ...Option) *Bridge {
	return newBridge(port, buildOptions(opts))
}

func newBridge(port *Port, o options) *Bridge {
	return &Bridge{
		port:  port,
		slots: NewSlots[continuation](o.cfg.Capacity),
		cfg:   o.cfg,
		log:   o.log.With(zap.Uint32("serial", port.Serial())),
	}
}

// Outstanding returns the number of calls awaiting a reply.
func (b *Bridge) Outstanding() int { return b.slots.Len() }

// Closed reports whether Close has been called.
func (b *Bridge) Closed() bool { return b.closed }

// Call invokes the function registered under ident.
//
// A Transfer argument is unwrapped in place and its resources are moved.
// Call never blocks for the reply; use Await on the result.
func (b *Bridge) Call(ident string, args ...any) *Pending {
	payload := make([]any, 0, 1+len(args))
	payload = append(payload, ident)
	payload = append(payload, args...)
	return b.issue(CommandCall, payload)
}

// Register runs the named setup in the execution context, resolving its
// imports against ".". The reply value is the registry description.
func (b *Bridge) Register(setup string) *Pending {
	return b.RegisterAt(".", setup)
}

// RegisterAt runs the named setup with imports resolved against base.
func (b *Bridge) RegisterAt(base, setup string) *Pending {
	return b.issue(CommandRegister, []any{setup, base})
}

// RegisterStub registers the named setup and wraps the returned
// description in a Stub.
func (b *Bridge) RegisterStub(ctx context.Context, setup string) (*Stub, error) {
	v, err := b.Register(setup).Await(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := v.Tree()
	if err != nil {
		return nil, err
	}
	return MakeStub(tree, b), nil
}

// Connect moves port into the execution context, which then serves it
// like its first port. No reply is expected.
func (b *Bridge) Connect(port *Port) error {
	if b.closed {
		return ErrClosed
	}
	data, moved, err := encodeRequest(Handle{}, CommandConnect, []any{Move(port)})
	if err != nil {
		return err
	}
	return b.send(data, moved)
}

// AddPort creates a channel, connects one end to the execution context,
// and returns the other for a new Bridge, typically on another goroutine.
func (b *Bridge) AddPort() (*Port, error) {
	local, remote := NewChannel(b.cfg.QueueDepth)
	if err := b.Connect(remote); err != nil {
		local.Close()
		return nil, err
	}
	return local, nil
}

// Close tells the execution context to clear its registry and close the
// channel, without waiting for the acknowledgement. Calls still pending
// are rejected with ErrClosed.
func (b *Bridge) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	h, err := b.slots.Acquire(continuation{resolve: func(Value) {}, reject: func(error) {}})
	if err != nil {
		h = Handle{}
	}
	var sendErr error
	if data, _, err := encodeRequest(h, CommandClose, nil); err != nil {
		sendErr = err
	} else {
		sendErr = b.send(data, nil)
	}
	b.failAll(ErrClosed)
	b.port.Close()
	if errors.Is(sendErr, ErrClosed) {
		return nil
	}
	return sendErr
}

// Release closes the channel without sending Close, so the execution
// context keeps its registry and its other ports. Calls still pending
// are rejected with ErrClosed.
func (b *Bridge) Release() {
	if b.closed {
		return
	}
	b.closed = true
	b.failAll(ErrClosed)
	b.port.Close()
}

// Poll processes at most one reply.
// Returns iox.ErrWouldBlock when none is queued. Once the channel is
// closed and drained every outstanding call is rejected with ErrClosed.
func (b *Bridge) Poll() error {
	m, err := b.port.Receive()
	if err != nil {
		if !iox.IsWouldBlock(err) {
			b.failAll(ErrClosed)
		}
		return err
	}
	b.onMessage(m)
	return nil
}

// drain processes every queued reply and returns how many it handled.
func (b *Bridge) drain() int {
	n := 0
	for b.Poll() == nil {
		n++
	}
	return n
}

func (b *Bridge) issue(cmd Command, payload []any) *Pending {
	p := &Pending{b: b, site: localTrace(b.cfg.TraceDepth)}
	if b.closed {
		p.reject(ErrClosed)
		return p
	}
	h, err := b.slots.Acquire(p.continuation())
	if err != nil {
		p.reject(err)
		return p
	}
	p.h = h
	data, moved, err := encodeRequest(h, cmd, payload)
	if err == nil {
		err = b.send(data, moved)
	}
	if err != nil {
		b.log.Debug("send failed", zap.Stringer("handle", h), zap.Stringer("command", cmd), zap.Error(err))
		if errors.Is(err, ErrClosed) {
			if c, ok := b.slots.Release(h); ok {
				c.reject(ErrClosed)
			}
			return p
		}
		// Settle the handle as if the peer had replied with the failure.
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		b.settle(h, Envelope(err), Value{})
	}
	return p
}

// send posts one frame, draining replies while the queue is full.
func (b *Bridge) send(data []byte, moved []Transferable) error {
	return postWait(context.Background(), b.port, data, moved, func() bool { return b.drain() > 0 })
}

func (b *Bridge) onMessage(m Message) {
	rep, err := decodeReply(m)
	if err != nil {
		b.log.Warn("malformed reply", zap.Stringer("handle", rep.handle), zap.Error(err))
		if !rep.handle.IsZero() {
			b.settle(rep.handle, Envelope(err), Value{})
		}
		return
	}
	b.settle(rep.handle, rep.err, rep.result)
}

// settle releases h and completes its continuation. A reply for a
// released or regenerated slot is dropped.
func (b *Bridge) settle(h Handle, env *ErrorEnvelope, result Value) {
	c, ok := b.slots.Release(h)
	if !ok {
		b.log.Debug("stale reply dropped", zap.Stringer("handle", h))
		return
	}
	if env != nil {
		c.reject(newRemoteError(env))
		return
	}
	c.resolve(result)
}

func (b *Bridge) failAll(err error) {
	if b.slots.Len() == 0 {
		return
	}
	b.slots.Drain(func(_ Handle, c continuation) {
		c.reject(err)
	})
}

// Call invokes ident on b, awaits the reply, and decodes it into R.
func Call[R any](ctx context.Context, b *Bridge, ident string, args ...any) (R, error) {
	v, err := b.Call(ident, args...).Await(ctx)
	if err != nil {
		var zero R
		return zero, err
	}
	return As[R](v)
}
