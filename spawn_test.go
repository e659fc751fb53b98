// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall_test

import (
	"context"
	"errors"
	"testing"

	"code.hybscloud.com/xcall"
)

func TestSpawnServe(t *testing.T) {
	skipRace(t)
	ctx := context.Background()
	b, rt, wait := xcall.Spawn(ctx, xcall.WithCatalog(testCatalog(t)))
	if rt.ID().String() == "" {
		t.Fatal("runtime without id")
	}
	if _, err := b.Register("ab").Await(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := xcall.Call[int](ctx, b, "b")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("b = %d, want 2", n)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := wait(); err != nil {
		t.Fatalf("runtime stopped with %v", err)
	}
}

func TestSpawnCancel(t *testing.T) {
	skipRace(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, _, wait := xcall.Spawn(ctx, xcall.WithCatalog(testCatalog(t)))
	cancel()
	if err := wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestSpawnTypedCallError(t *testing.T) {
	skipRace(t)
	b := spawn(t)
	ctx := context.Background()
	if _, err := b.Register("boom").Await(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := xcall.Call[int](ctx, b, "boom"); err == nil || err.Error() != "boom" {
		t.Fatalf("got %s, want boom", errString(err))
	}
}
