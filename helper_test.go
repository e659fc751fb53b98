// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/xcall"
)

// testCatalog returns a catalog with the setups shared by the tests.
//
//	ab      registers a → 1 and b → 2
//	failing registers a, then fails
//	boom    registers boom, which returns an error
//	kaboom  registers kaboom, which panics
//	math    registers add and neg under a nested description
//	buffers registers len and echo over moved buffers
func testCatalog(tb testing.TB) *xcall.Catalog {
	tb.Helper()
	c := xcall.NewCatalog()
	must := func(err error) {
		tb.Helper()
		if err != nil {
			tb.Fatal(err)
		}
	}
	must(c.RegisterSetup("ab", func(b *xcall.Builder) (any, error) {
		return b.AddAll(map[string]xcall.Func{
			"a": xcall.Func0(func(context.Context) (int, error) { return 1, nil }),
			"b": xcall.Func0(func(context.Context) (int, error) { return 2, nil }),
		})
	}))
	must(c.RegisterSetup("failing", func(b *xcall.Builder) (any, error) {
		if _, err := b.Add("a", xcall.Func0(func(context.Context) (int, error) { return 1, nil })); err != nil {
			return nil, err
		}
		return nil, errors.New("setup failed")
	}))
	must(c.RegisterSetup("boom", func(b *xcall.Builder) (any, error) {
		return b.AddAll(map[string]xcall.Func{
			"boom": xcall.Func0(func(context.Context) (int, error) { return 0, errors.New("boom") }),
		})
	}))
	must(c.RegisterSetup("kaboom", func(b *xcall.Builder) (any, error) {
		return b.AddAll(map[string]xcall.Func{
			"kaboom": xcall.Func0(func(context.Context) (int, error) { panic("kaboom") }),
		})
	}))
	must(c.RegisterSetup("math", func(b *xcall.Builder) (any, error) {
		add, err := b.Add("math.add", xcall.Func2(func(_ context.Context, x, y int) (int, error) { return x + y, nil }))
		if err != nil {
			return nil, err
		}
		neg, err := b.Add("math.neg", xcall.Func1(func(_ context.Context, x int) (int, error) { return -x, nil }))
		if err != nil {
			return nil, err
		}
		return xcall.Tree{
			"add": add,
			"ops": xcall.Tree{"neg": neg},
		}, nil
	}))
	must(c.RegisterSetup("buffers", func(b *xcall.Builder) (any, error) {
		return b.AddAll(map[string]xcall.Func{
			"len": xcall.Func1(func(_ context.Context, buf *xcall.Buffer) (int, error) {
				return buf.Len(), nil
			}),
			"echo": xcall.Func1(func(_ context.Context, buf *xcall.Buffer) (xcall.Transfer, error) {
				return xcall.Move(buf), nil
			}),
		})
	}))
	return c
}

// newPair connects a bridge and a runtime over a fresh channel. Both are
// driven by the calling goroutine.
func newPair(tb testing.TB, opts ...xcall.Option) (*xcall.Bridge, *xcall.Runtime) {
	tb.Helper()
	local, remote := xcall.NewChannel(0)
	opts = append([]xcall.Option{xcall.WithCatalog(testCatalog(tb))}, opts...)
	return xcall.NewBridge(local, opts...), xcall.NewRuntime(remote, opts...)
}

// drive polls rt and b on the calling goroutine until p settles.
func drive(tb testing.TB, b *xcall.Bridge, rt *xcall.Runtime, p *xcall.Pending) (xcall.Value, error) {
	tb.Helper()
	for i := 0; !p.Done(); i++ {
		if i > 1<<16 {
			tb.Fatalf("call %s never settled", p.Handle())
		}
		_ = rt.Poll()
		_ = b.Poll()
	}
	return p.Await(context.Background())
}

// register runs setup and fails the test on error.
func register(tb testing.TB, b *xcall.Bridge, rt *xcall.Runtime, setup string) xcall.Tree {
	tb.Helper()
	v, err := drive(tb, b, rt, b.Register(setup))
	if err != nil {
		tb.Fatalf("register %s: %v", setup, err)
	}
	tree, err := v.Tree()
	if err != nil {
		tb.Fatalf("register %s: %v", setup, err)
	}
	return tree
}

// spawn starts a runtime on its own goroutine and returns its bridge.
// The runtime is stopped when the test ends.
func spawn(tb testing.TB, opts ...xcall.Option) *xcall.Bridge {
	tb.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	opts = append([]xcall.Option{xcall.WithCatalog(testCatalog(tb))}, opts...)
	b, _, wait := xcall.Spawn(ctx, opts...)
	tb.Cleanup(func() {
		_ = b.Close()
		if err := wait(); err != nil && !errors.Is(err, context.Canceled) {
			tb.Errorf("runtime: %v", err)
		}
		cancel()
	})
	return b
}

// stepExpr drives a protocol to completion via Step+Advance, polling rt
// whenever the protocol waits for a reply.
func stepExpr[R any](b *xcall.Bridge, rt *xcall.Runtime, protocol kont.Expr[R]) kont.Either[error, R] {
	result, susp := xcall.Step[R](protocol)
	for susp != nil {
		var err error
		result, susp, err = xcall.Advance(context.Background(), b, susp)
		if err != nil {
			_ = rt.Poll()
		}
	}
	return result
}

func mustInt(tb testing.TB, v xcall.Value) int64 {
	tb.Helper()
	x, err := v.Interface()
	if err != nil {
		tb.Fatal(err)
	}
	n, ok := x.(int64)
	if !ok {
		tb.Fatalf("result %v is %T, want int64", x, x)
	}
	return n
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T(%v)", err, err)
}
