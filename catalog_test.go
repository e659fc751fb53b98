// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"code.hybscloud.com/xcall"
)

func TestCatalogRegister(t *testing.T) {
	c := xcall.NewCatalog()
	setup := func(*xcall.Builder) (any, error) { return nil, nil }
	if err := c.RegisterSetup("s", setup); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterSetup("s", setup); !errors.Is(err, xcall.ErrDuplicateIdentifier) {
		t.Fatalf("duplicate setup: got %v", err)
	}
	if err := c.RegisterSetup(" ", setup); !errors.Is(err, xcall.ErrArgument) {
		t.Fatalf("blank setup name: got %v", err)
	}
	if err := c.RegisterModule("lib/../lib/m", setup); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Module("lib/m"); !ok {
		t.Fatal("module path not cleaned")
	}
	if err := c.RegisterSetup("r", setup); err != nil {
		t.Fatal(err)
	}
	if got := c.Setups(); !slices.Equal(got, []string{"r", "s"}) {
		t.Fatalf("setups = %v", got)
	}
}

// importCatalog has a module at lib/counter and setups importing it
// relative to their base path.
func importCatalog(t *testing.T, loads *int) *xcall.Catalog {
	t.Helper()
	c := xcall.NewCatalog()
	if err := c.RegisterModule("lib/counter", func(b *xcall.Builder) (any, error) {
		*loads++
		ident, err := b.Add("counter.next", xcall.Func1(func(_ context.Context, n int) (int, error) {
			return n + 1, nil
		}))
		if err != nil {
			return nil, err
		}
		return xcall.Tree{"next": ident}, nil
	}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"first", "second"} {
		if err := c.RegisterSetup(name, func(b *xcall.Builder) (any, error) {
			return b.Import("counter")
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.RegisterSetup("absolute", func(b *xcall.Builder) (any, error) {
		return b.Import("/lib/counter")
	}); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterSetup("missing", func(b *xcall.Builder) (any, error) {
		return b.Import("nowhere")
	}); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestImportRelativeToBase(t *testing.T) {
	loads := 0
	local, remote := xcall.NewChannel(0)
	cat := importCatalog(t, &loads)
	b := xcall.NewBridge(local)
	rt := xcall.NewRuntime(remote, xcall.WithCatalog(cat))

	v, err := drive(t, b, rt, b.RegisterAt("lib", "first"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := v.Tree()
	if err != nil {
		t.Fatal(err)
	}
	if tree["next"] != "counter.next" {
		t.Fatalf("exports = %v", tree)
	}
	v, err = drive(t, b, rt, b.Call("counter.next", 41))
	if err != nil {
		t.Fatal(err)
	}
	if mustInt(t, v) != 42 {
		t.Fatal("imported function misbehaves")
	}

	// A second import of the same module reuses the loaded exports.
	if _, err := drive(t, b, rt, b.RegisterAt("lib", "second")); err != nil {
		t.Fatal(err)
	}
	if loads != 1 {
		t.Fatalf("module evaluated %d times, want 1", loads)
	}
}

func TestImportUnknownModule(t *testing.T) {
	loads := 0
	local, remote := xcall.NewChannel(0)
	b := xcall.NewBridge(local)
	rt := xcall.NewRuntime(remote, xcall.WithCatalog(importCatalog(t, &loads)))

	_, err := drive(t, b, rt, b.Register("first"))
	if !errors.Is(err, xcall.ErrUnknownModule) {
		t.Fatalf("import from the wrong base: got %s, want ErrUnknownModule", errString(err))
	}
	_, err = drive(t, b, rt, b.Register("missing"))
	if !errors.Is(err, xcall.ErrUnknownModule) {
		t.Fatalf("got %s, want ErrUnknownModule", errString(err))
	}
	if _, err := drive(t, b, rt, b.Register("absolute")); err != nil {
		t.Fatalf("absolute import: %v", err)
	}
}

func TestImportCacheClearedOnClose(t *testing.T) {
	loads := 0
	local, remote := xcall.NewChannel(0)
	b := xcall.NewBridge(local)
	rt := xcall.NewRuntime(remote, xcall.WithCatalog(importCatalog(t, &loads)))
	if _, err := drive(t, b, rt, b.Register("absolute")); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	for rt.Poll() == nil {
	}

	local, remote = xcall.NewChannel(0)
	rt.Attach(remote)
	b = xcall.NewBridge(local)
	if _, err := drive(t, b, rt, b.Register("absolute")); err != nil {
		t.Fatal(err)
	}
	if loads != 2 {
		t.Fatalf("module evaluated %d times, want 2", loads)
	}
}
