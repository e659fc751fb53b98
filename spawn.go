// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Spawn starts an execution context on its own goroutine and returns the
// bridge that drives it, the runtime, and a function waiting for the
// runtime to stop.
//
// The runtime serves until the bridge closes or ctx is cancelled. It is
// owned by its goroutine; the caller may read ID but must not Poll it.
func Spawn(ctx context.Context, opts ...Option) (*Bridge, *Runtime, func() error) {
	o := buildOptions(opts)
	local, remote := NewChannel(o.cfg.QueueDepth)
	rt := newRuntime(remote, o)
	b := newBridge(local, o)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := rt.Serve(gctx)
		rt.log.Debug("runtime stopped", zap.Error(err))
		return err
	})
	return b, rt, g.Wait
}
