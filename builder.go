// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Func is a function callable across the boundary.
type Func func(ctx context.Context, args Args) (any, error)

// Func0 adapts a function without arguments.
func Func0[R any](fn func(context.Context) (R, error)) Func {
	return func(ctx context.Context, _ Args) (any, error) {
		r, err := fn(ctx)
		return r, err
	}
}

// Func1 adapts a one-argument function; the argument is decoded into A.
func Func1[A, R any](fn func(context.Context, A) (R, error)) Func {
	return func(ctx context.Context, args Args) (any, error) {
		var a A
		if err := args.Decode(0, &a); err != nil {
			return nil, err
		}
		r, err := fn(ctx, a)
		return r, err
	}
}

// Func2 adapts a two-argument function.
func Func2[A, B, R any](fn func(context.Context, A, B) (R, error)) Func {
	return func(ctx context.Context, args Args) (any, error) {
		var a A
		var b B
		if err := args.Decode(0, &a); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &b); err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b)
		return r, err
	}
}

// Func3 adapts a three-argument function.
func Func3[A, B, C, R any](fn func(context.Context, A, B, C) (R, error)) Func {
	return func(ctx context.Context, args Args) (any, error) {
		var a A
		var b B
		var c C
		if err := args.Decode(0, &a); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &b); err != nil {
			return nil, err
		}
		if err := args.Decode(2, &c); err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b, c)
		return r, err
	}
}

// Builder is handed to a Setup during a Register command.
//
// Additions and imports are staged and reach the runtime only when the
// setup succeeds, so a failed Register leaves the registry untouched.
type Builder struct {
	rt      *Runtime
	ctx     context.Context
	base    string
	fns     map[string]Func
	imports map[string]any
	loading map[string]bool
}

func newBuilder(ctx context.Context, rt *Runtime, base string) *Builder {
	if base == "" {
		base = "."
	}
	return &Builder{
		rt:      rt,
		ctx:     ctx,
		base:    path.Clean(base),
		fns:     make(map[string]Func),
		imports: make(map[string]any),
		loading: make(map[string]bool),
	}
}

// Base returns the path imports are resolved against.
func (b *Builder) Base() string { return b.base }

// Context returns the context of the Register command.
func (b *Builder) Context() context.Context { return b.ctx }

// Add registers fn under ident and returns ident.
// Identifiers are unique for the lifetime of the runtime's registry;
// a collision fails with ErrDuplicateIdentifier.
func (b *Builder) Add(ident string, fn Func) (string, error) {
	if err := b.check(ident, fn); err != nil {
		return "", err
	}
	b.fns[ident] = fn
	return ident, nil
}

// AddAll registers every entry of fns and returns the matching registry
// description. It adds nothing unless every entry is valid; all
// collisions are reported together.
func (b *Builder) AddAll(fns map[string]Func) (Tree, error) {
	idents := make([]string, 0, len(fns))
	for ident := range fns {
		idents = append(idents, ident)
	}
	sort.Strings(idents)
	var errs error
	for _, ident := range idents {
		errs = multierr.Append(errs, b.check(ident, fns[ident]))
	}
	if errs != nil {
		return nil, errs
	}
	tree := make(Tree, len(fns))
	for _, ident := range idents {
		b.fns[ident] = fns[ident]
		tree[ident] = ident
	}
	return tree, nil
}

func (b *Builder) check(ident string, fn Func) error {
	if strings.TrimSpace(ident) == "" {
		return fmt.Errorf("%w: empty identifier", ErrArgument)
	}
	if fn == nil {
		return fmt.Errorf("%w: nil function for %q", ErrArgument, ident)
	}
	if _, ok := b.rt.fns[ident]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateIdentifier, ident)
	}
	if _, ok := b.fns[ident]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateIdentifier, ident)
	}
	return nil
}

// Import loads the module at rel, resolved against Base, and returns its
// exports. A module is evaluated at most once per registry lifetime.
func (b *Builder) Import(rel string) (any, error) {
	p := resolveImport(b.base, rel)
	if exports, ok := b.rt.imports[p]; ok {
		return exports, nil
	}
	if exports, ok := b.imports[p]; ok {
		return exports, nil
	}
	if b.loading[p] {
		return nil, fmt.Errorf("%w: import cycle at %s", ErrUnknownModule, p)
	}
	m, ok := b.rt.catalog.Module(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, p)
	}
	b.loading[p] = true
	exports, err := m(b)
	delete(b.loading, p)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", p, err)
	}
	b.imports[p] = exports
	return exports, nil
}

// resolveImport maps rel to a catalog path. A leading slash anchors rel
// at the catalog root instead of base.
func resolveImport(base, rel string) string {
	if path.IsAbs(rel) {
		return modulePath(rel)
	}
	return modulePath(path.Join(base, rel))
}

// commit publishes the staged additions to the runtime.
func (b *Builder) commit() {
	for ident, fn := range b.fns {
		b.rt.fns[ident] = fn
	}
	for p, exports := range b.imports {
		b.rt.imports[p] = exports
	}
}
