package meshlink

import (
	"log/slog"

	"github.com/hupe1980/meshlink/config"
)

type options struct {
	numNeighbors int
	workers      int
	interfaces   []config.InterfacePair
	logger       *Logger
	metrics      MetricsCollector
}

// Option configures the Interpolator.
type Option func(*options)

// WithConfig applies a loaded configuration: neighbor count, worker
// count, and the interface pair list.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		o.numNeighbors = cfg.Interpolation.NumNearestNeighbors
		o.workers = cfg.Interpolation.Workers
		o.interfaces = cfg.Interfaces
	}
}

// WithNumNeighbors sets the number of donor points per target vertex.
// Every active interface must provide at least this many donors in
// total across all ranks.
func WithNumNeighbors(k int) Option {
	return func(o *options) {
		o.numNeighbors = k
	}
}

// WithWorkers sets the number of threads for the per-vertex search.
// Defaults to the number of CPUs.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithInterfaces sets the marker pairs to interpolate across,
// replacing any pairs taken from WithConfig.
func WithInterfaces(pairs ...config.InterfacePair) Option {
	return func(o *options) {
		o.interfaces = pairs
	}
}

// WithLogger configures structured logging. Pass nil to disable
// logging entirely.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets
// it. Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		numNeighbors: 1,
		workers:      0, // resolved against runtime.NumCPU in New
		logger:       NoopLogger(),
		metrics:      NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
