// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Setup is a named registration entry point. It runs inside the
// execution context, registers functions on b, and returns the registry
// description sent back to the coordinator.
type Setup func(b *Builder) (any, error)

// Module is an importable unit keyed by logical path. Its return value
// is the module's exports; it may also register functions on b.
type Module func(b *Builder) (any, error)

// Catalog is the static table of setups and modules a Runtime can load.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	setups  map[string]Setup
	modules map[string]Module
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		setups:  make(map[string]Setup),
		modules: make(map[string]Module),
	}
}

// DefaultCatalog is used by runtimes created without WithCatalog.
var DefaultCatalog = NewCatalog()

// RegisterSetup adds a named setup.
func (c *Catalog) RegisterSetup(name string, fn Setup) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("%w: setup needs a name and a function", ErrArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.setups[name]; ok {
		return fmt.Errorf("%w: setup %q", ErrDuplicateIdentifier, name)
	}
	c.setups[name] = fn
	return nil
}

// RegisterModule adds a module under its cleaned logical path.
func (c *Catalog) RegisterModule(p string, fn Module) error {
	if strings.TrimSpace(p) == "" || fn == nil {
		return fmt.Errorf("%w: module needs a path and a function", ErrArgument)
	}
	p = modulePath(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.modules[p]; ok {
		return fmt.Errorf("%w: module %q", ErrDuplicateIdentifier, p)
	}
	c.modules[p] = fn
	return nil
}

// Setup returns the named setup.
func (c *Catalog) Setup(name string) (Setup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.setups[name]
	return fn, ok
}

// Module returns the module registered at p.
func (c *Catalog) Module(p string) (Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.modules[modulePath(p)]
	return fn, ok
}

// modulePath cleans p and strips a leading slash.
func modulePath(p string) string {
	return strings.TrimPrefix(path.Clean(p), "/")
}

// Setups lists setup names in order.
func (c *Catalog) Setups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.setups))
	for name := range c.setups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterSetup adds a setup to DefaultCatalog. It panics on a duplicate
// name and is meant to be called from init functions.
func RegisterSetup(name string, fn Setup) {
	if err := DefaultCatalog.RegisterSetup(name, fn); err != nil {
		panic(err)
	}
}

// RegisterModule adds a module to DefaultCatalog. It panics on a
// duplicate path and is meant to be called from init functions.
func RegisterModule(p string, fn Module) {
	if err := DefaultCatalog.RegisterModule(p, fn); err != nil {
		panic(err)
	}
}
