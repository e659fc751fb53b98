// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"
	"fmt"
	"sort"
)

// Tree is a registry description: each leaf is a registered identifier
// and each inner node is a nested Tree. A Setup typically returns one.
type Tree map[string]any

// toTree normalizes a decoded description into a Tree.
func toTree(x any) (Tree, error) {
	var m map[string]any
	switch v := x.(type) {
	case Tree:
		m = v
	case map[string]any:
		m = v
	case nil:
		return Tree{}, nil
	default:
		return nil, fmt.Errorf("%w: registry description is %T, not a map", ErrArgument, x)
	}
	t := make(Tree, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case string:
			t[k] = v
		case Tree, map[string]any:
			sub, err := toTree(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			t[k] = sub
		default:
			return nil, fmt.Errorf("%w: %s is %T, not an identifier", ErrArgument, k, v)
		}
	}
	return t, nil
}

// Idents returns every identifier in t, sorted.
func (t Tree) Idents() []string {
	var out []string
	var walk func(Tree)
	walk = func(t Tree) {
		for _, v := range t {
			switch v := v.(type) {
			case string:
				out = append(out, v)
			case Tree:
				walk(v)
			case map[string]any:
				walk(v)
			}
		}
	}
	walk(t)
	sort.Strings(out)
	return out
}

// Thunk forwards its arguments to one remote function.
type Thunk func(args ...any) *Pending

// Stub mirrors a registry description: leaves become thunks that call
// through a Bridge, inner nodes become nested stubs. Both are built on
// first access and reused afterwards.
type Stub struct {
	tree   Tree
	b      *Bridge
	thunks map[string]Thunk
	subs   map[string]*Stub
}

// MakeStub builds a stub over tree calling through b.
func MakeStub(tree Tree, b *Bridge) *Stub {
	return &Stub{tree: tree, b: b}
}

// Func returns the thunk for the leaf name.
func (s *Stub) Func(name string) (Thunk, bool) {
	if f, ok := s.thunks[name]; ok {
		return f, true
	}
	ident, ok := s.tree[name].(string)
	if !ok {
		return nil, false
	}
	f := Thunk(func(args ...any) *Pending {
		return s.b.Call(ident, args...)
	})
	if s.thunks == nil {
		s.thunks = make(map[string]Thunk)
	}
	s.thunks[name] = f
	return f, true
}

// Sub returns the nested stub for the inner node name.
func (s *Stub) Sub(name string) (*Stub, bool) {
	if sub, ok := s.subs[name]; ok {
		return sub, true
	}
	var t Tree
	switch v := s.tree[name].(type) {
	case Tree:
		t = v
	case map[string]any:
		t = v
	default:
		return nil, false
	}
	sub := MakeStub(t, s.b)
	if s.subs == nil {
		s.subs = make(map[string]*Stub)
	}
	s.subs[name] = sub
	return sub, true
}

// Lookup walks path through nested stubs and returns the final thunk.
func (s *Stub) Lookup(path ...string) (Thunk, bool) {
	if len(path) == 0 {
		return nil, false
	}
	cur := s
	for _, name := range path[:len(path)-1] {
		next, ok := cur.Sub(name)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur.Func(path[len(path)-1])
}

// Names returns the keys at this level, sorted.
func (s *Stub) Names() []string {
	names := make([]string, 0, len(s.tree))
	for k := range s.tree {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Tree returns the description the stub was built from.
func (s *Stub) Tree() Tree { return s.tree }

// Bridge returns the bridge the stub calls through.
func (s *Stub) Bridge() *Bridge { return s.b }

// Rebind returns a stub over the same description calling through b.
func (s *Stub) Rebind(b *Bridge) *Stub { return MakeStub(s.tree, b) }

// Ref connects a fresh port to the stub's execution context and returns
// a reference to the service over it. Passing the reference as a call
// argument or result moves the port, so the receiving context can call
// the service directly.
func (s *Stub) Ref() (ServiceRef, error) {
	port, err := s.b.AddPort()
	if err != nil {
		return ServiceRef{}, err
	}
	return ServiceRef{Tree: s.tree, Port: port}, nil
}

// ServiceRef is a registry description together with a port connected
// to the execution context that serves it. On the wire the description
// is copied and the port is moved.
type ServiceRef struct {
	Tree Tree
	Port *Port
}

// Bind creates a Bridge over r.Port and a stub over r.Tree calling
// through it. Release the stub's bridge when done with the service.
func (r ServiceRef) Bind(opts ...Option) *Stub {
	return MakeStub(r.Tree, NewBridge(r.Port, opts...))
}

// Typed wraps f as a blocking call decoding its reply into R.
func Typed[R any](f Thunk) func(ctx context.Context, args ...any) (R, error) {
	return func(ctx context.Context, args ...any) (R, error) {
		v, err := f(args...).Await(ctx)
		if err != nil {
			var zero R
			return zero, err
		}
		return As[R](v)
	}
}
