// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

const (
	// DefaultCapacity is the number of calls a Bridge keeps in flight.
	DefaultCapacity = 1024
	// DefaultQueueDepth bounds each direction of a channel.
	DefaultQueueDepth = 64
	// DefaultBoundary is the trace line separating remote from local frames.
	DefaultBoundary = "[xcall boundary]"
	// DefaultTraceDepth is the number of frames captured per trace.
	DefaultTraceDepth = 32
)

// Config tunes a Bridge, a Runtime, or both ends created by Spawn.
type Config struct {
	Capacity   int    `toml:"capacity"`
	QueueDepth int    `toml:"queue_depth"`
	Boundary   string `toml:"boundary"`
	TraceDepth int    `toml:"trace_depth"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Capacity:   DefaultCapacity,
		QueueDepth: DefaultQueueDepth,
		Boundary:   DefaultBoundary,
		TraceDepth: DefaultTraceDepth,
	}
}

// ParseConfig decodes a TOML document over DefaultConfig.
// Unknown keys are rejected.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, checkDecoded(md, cfg)
}

// LoadConfig reads a TOML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, checkDecoded(md, cfg)
}

func checkDecoded(md toml.MetaData, cfg Config) error {
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(names, ", "))
	}
	return cfg.Validate()
}

// Validate rejects negative sizes. Zero values select defaults.
func (c Config) Validate() error {
	switch {
	case c.Capacity < 0:
		return fmt.Errorf("%w: capacity %d", ErrInvalidConfig, c.Capacity)
	case c.QueueDepth < 0:
		return fmt.Errorf("%w: queue_depth %d", ErrInvalidConfig, c.QueueDepth)
	case c.TraceDepth < 0:
		return fmt.Errorf("%w: trace_depth %d", ErrInvalidConfig, c.TraceDepth)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.Boundary == "" {
		c.Boundary = d.Boundary
	}
	if c.TraceDepth <= 0 {
		c.TraceDepth = d.TraceDepth
	}
	return c
}

// Option configures NewBridge, NewRuntime, and Spawn.
type Option func(*options)

type options struct {
	cfg     Config
	log     *zap.Logger
	catalog *Catalog
	ctx     context.Context
}

func buildOptions(opts []Option) options {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg = o.cfg.withDefaults()
	if o.log == nil {
		o.log = Logger()
	}
	if o.catalog == nil {
		o.catalog = DefaultCatalog
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}
	return o
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithCapacity sets the number of calls a Bridge keeps in flight.
func WithCapacity(n int) Option {
	return func(o *options) { o.cfg.Capacity = n }
}

// WithLogger overrides the package logger for one Bridge or Runtime.
// A nil l keeps the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithCatalog selects the setups and modules a Runtime can load.
func WithCatalog(c *Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithContext sets the context passed to registered functions when a
// Runtime is driven by Poll rather than Serve.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}
