// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"code.hybscloud.com/iox"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runtime is the responder side of a bridge. It owns the function
// registry of one execution context and answers commands arriving on
// one or more ports.
//
// A Runtime is driven by a single goroutine through Poll or Serve.
// Registered functions run to completion on that goroutine.
type Runtime struct {
	id      uuid.UUID
	ports   []*Port
	closing []*Port
	fns     map[string]Func
	imports map[string]any
	catalog *Catalog
	cfg     Config
	log     *zap.Logger
	ctx     context.Context
}

// NewRuntime creates a runtime listening on port.
func NewRuntime(port *Port, opts ...Option) *Runtime {
	return newRuntime(port, buildOptions(opts))
}

func newRuntime(port *Port, o options) *Runtime {
	r := &Runtime{
		id:      uuid.New(),
		fns:     make(map[string]Func),
		imports: make(map[string]any),
		catalog: o.catalog,
		cfg:     o.cfg,
		ctx:     o.ctx,
	}
	r.log = o.log.With(zap.String("runtime", r.id.String()))
	if port != nil {
		r.Attach(port)
	}
	return r
}

// ID returns the runtime's instance identifier.
func (r *Runtime) ID() uuid.UUID { return r.id }

// Attach adds an inbound port. Traffic on it is handled like traffic on
// the first port.
func (r *Runtime) Attach(p *Port) {
	r.ports = append(r.ports, p)
	r.log.Debug("port attached", zap.Uint32("serial", p.Serial()), zap.Int("ports", len(r.ports)))
}

// Ports returns the number of attached ports still open or draining.
func (r *Runtime) Ports() int { return len(r.ports) }

// Len returns the number of registered functions.
func (r *Runtime) Len() int { return len(r.fns) }

// Has reports whether ident is registered.
func (r *Runtime) Has(ident string) bool {
	_, ok := r.fns[ident]
	return ok
}

// Poll handles at most one message from each attached port.
// Returns iox.ErrWouldBlock when no port had traffic and ErrClosed
// once every port has closed.
func (r *Runtime) Poll() error {
	return r.poll(r.ctx)
}

func (r *Runtime) poll(ctx context.Context) error {
	if len(r.ports) == 0 {
		return ErrClosed
	}
	progress := false
	var dead []*Port
	for _, p := range r.ports {
		m, err := p.Receive()
		if err == nil {
			r.dispatch(ctx, p, m)
			progress = true
			continue
		}
		if !iox.IsWouldBlock(err) {
			dead = append(dead, p)
		}
	}
	if len(r.closing) > 0 {
		dead = append(dead, r.closing...)
		r.closing = r.closing[:0]
	}
	if len(dead) > 0 {
		r.ports = slices.DeleteFunc(r.ports, func(p *Port) bool {
			return slices.Contains(dead, p)
		})
	}
	if progress {
		return nil
	}
	if len(r.ports) == 0 {
		return ErrClosed
	}
	return iox.ErrWouldBlock
}

// Serve polls until every port has closed, backing off while idle.
// Registered functions receive ctx. Returns nil after the last port
// closes and ctx.Err() on cancellation.
func (r *Runtime) Serve(ctx context.Context) error {
	var bo iox.Backoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.poll(ctx)
		switch {
		case err == nil:
			bo.Reset()
		case iox.IsWouldBlock(err):
			bo.Wait()
		case errors.Is(err, ErrClosed):
			return nil
		default:
			return err
		}
	}
}

// dispatch runs one command. Every failure becomes an error reply.
func (r *Runtime) dispatch(ctx context.Context, p *Port, m Message) {
	req, err := decodeRequest(m)
	if err != nil {
		r.log.Warn("malformed request", zap.Uint32("serial", p.Serial()), zap.Error(err))
		if !req.handle.IsZero() {
			r.reply(ctx, p, req.handle, nil, nil, Envelope(err))
		}
		return
	}
	r.log.Debug("command",
		zap.Uint32("serial", p.Serial()),
		zap.Stringer("handle", req.handle),
		zap.Stringer("command", req.command))

	switch req.command {
	case CommandCall:
		raw, moved, env := r.onCall(ctx, req)
		r.reply(ctx, p, req.handle, raw, moved, env)
	case CommandRegister:
		raw, moved, env := r.onRegister(ctx, req)
		r.reply(ctx, p, req.handle, raw, moved, env)
	case CommandClose:
		r.onClose(ctx, p, req)
	case CommandConnect:
		r.onConnect(p, req)
	default:
		r.reply(ctx, p, req.handle, nil, nil, Envelope(fmt.Errorf("%w: %s", ErrUnknownCommand, req.command)))
	}
}

func (r *Runtime) onCall(ctx context.Context, req request) (cbor.RawMessage, []Transferable, *ErrorEnvelope) {
	if len(req.payload) == 0 {
		return nil, nil, Envelope(fmt.Errorf("%w: call without identifier", ErrArgument))
	}
	var ident string
	if err := decMode.Unmarshal(req.payload[0], &ident); err != nil {
		return nil, nil, Envelope(fmt.Errorf("%w: identifier: %w", ErrArgument, err))
	}
	fn, ok := r.fns[ident]
	if !ok {
		return nil, nil, missingFunction(ident)
	}
	v, err := r.invoke(ctx, fn, Args{raw: req.payload[1:], moved: req.moved})
	if err != nil {
		return nil, nil, Envelope(err)
	}
	return r.result(v)
}

// invoke runs fn, converting a panic into an error.
func (r *Runtime) invoke(ctx context.Context, fn Func, args Args) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p, trace: panicTrace(r.cfg.TraceDepth)}
		}
	}()
	return fn(ctx, args)
}

func (r *Runtime) onRegister(ctx context.Context, req request) (cbor.RawMessage, []Transferable, *ErrorEnvelope) {
	var name, base string
	if len(req.payload) > 0 {
		if err := decMode.Unmarshal(req.payload[0], &name); err != nil {
			return nil, nil, Envelope(fmt.Errorf("%w: setup name: %w", ErrArgument, err))
		}
	}
	if len(req.payload) > 1 {
		if err := decMode.Unmarshal(req.payload[1], &base); err != nil {
			return nil, nil, Envelope(fmt.Errorf("%w: base path: %w", ErrArgument, err))
		}
	}
	setup, ok := r.catalog.Setup(name)
	if !ok {
		return nil, nil, Envelope(fmt.Errorf("%w: %q", ErrUnknownSetup, name))
	}
	b := newBuilder(ctx, r, base)
	desc, err := r.invoke(ctx, func(context.Context, Args) (any, error) { return setup(b) }, Args{})
	if err != nil {
		return nil, nil, Envelope(err)
	}
	raw, moved, env := r.result(desc)
	if env != nil {
		return nil, nil, env
	}
	b.commit()
	r.log.Debug("registered", zap.String("setup", name), zap.String("base", b.Base()), zap.Int("functions", len(r.fns)))
	return raw, moved, nil
}

// onClose clears the registry, acknowledges, and closes the port.
// Frames still queued behind the close are never dispatched.
func (r *Runtime) onClose(ctx context.Context, p *Port, req request) {
	clear(r.fns)
	clear(r.imports)
	r.reply(ctx, p, req.handle, nil, nil, nil)
	p.Close()
	r.closing = append(r.closing, p)
	r.log.Debug("closed", zap.Uint32("serial", p.Serial()))
}

// onConnect attaches a moved port. Connect has no reply.
func (r *Runtime) onConnect(p *Port, req request) {
	if len(req.payload) == 0 {
		r.log.Warn("connect without port", zap.Uint32("serial", p.Serial()))
		return
	}
	var np *Port
	if err := decodeInto(req.payload[0], req.moved, &np); err != nil || np == nil {
		r.log.Warn("connect without port", zap.Uint32("serial", p.Serial()), zap.Error(err))
		return
	}
	r.Attach(np)
}

// result encodes a function result, unwrapping a Transfer envelope.
func (r *Runtime) result(v any) (cbor.RawMessage, []Transferable, *ErrorEnvelope) {
	var enc encoder
	raw, err := enc.encode(v)
	if err != nil {
		return nil, nil, Envelope(err)
	}
	if err := checkAttached(enc.moves.items); err != nil {
		return nil, nil, Envelope(err)
	}
	return raw, enc.moves.items, nil
}

func (r *Runtime) reply(ctx context.Context, p *Port, h Handle, raw cbor.RawMessage, moved []Transferable, env *ErrorEnvelope) {
	if h.IsZero() {
		return
	}
	data, err := encodeReply(h, env, raw)
	if err != nil {
		// The envelope itself carried something uncopyable.
		data, err = encodeReply(h, &ErrorEnvelope{Kind: KindTransport, Message: err.Error()}, nil)
		if err != nil {
			r.log.Error("reply encoding failed", zap.Stringer("handle", h), zap.Error(err))
			return
		}
		moved = nil
	}
	if err := postWait(ctx, p, data, moved, nil); err != nil {
		if errors.Is(err, ErrClosed) {
			r.log.Debug("reply after close", zap.Stringer("handle", h))
			return
		}
		r.log.Warn("reply undeliverable",
			zap.Uint32("serial", p.Serial()),
			zap.Stringer("handle", h),
			zap.Error(err))
	}
}
