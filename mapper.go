// Package automapping maps values between structurally similar Go types,
// typically persistence records and transfer objects, without hand-written
// copy code.
//
// Key features:
//   - Convention mapping by case-insensitive field name
//   - Per-pair rules: renames, ignored fields, transformers, resolvers
//   - Null propagation or skipping, and partial (patch) updates
//   - Nested structs, slices, arrays, maps and sets
//   - Polymorphic dispatch for interface-typed values
//   - Registered converters with built-in scalar coercion as fallback
//   - Compiled per-pair mappers cached for repeated calls
//
// Basic usage:
//
//	reg := automapping.NewRegistry()
//	automapping.CreateMap[User, UserDTO](reg).Register()
//	mapper := automapping.NewWithRegistry(reg)
//	dto, err := automapping.Map[User, UserDTO](mapper, user)
package automapping

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Mapper executes mappings against a Registry.
// A Mapper is safe for concurrent use.
type Mapper struct {
	registry *Registry
	config   *MapperConfiguration

	plans    sync.Map // *typeMap -> *mappingPlan
	compiled sync.Map // *typeMap -> *compiledMapper
	// generation is the registry generation the caches above belong to.
	generation atomic.Uint64
}

// MapperConfiguration holds executor settings.
type MapperConfiguration struct {
	logger       *slog.Logger
	allowNilColl bool
	flattening   bool
	maxDepth     int
	optLevel     OptimizationLevel
}

// ConfigOption is a function that configures the mapper.
type ConfigOption func(*MapperConfiguration)

// New creates a Mapper with its own empty Registry.
func New(opts ...ConfigOption) *Mapper {
	return NewWithRegistry(nil, opts...)
}

// NewWithRegistry creates a Mapper that executes the rules of r. A nil
// registry is replaced by a new empty one.
func NewWithRegistry(r *Registry, opts ...ConfigOption) *Mapper {
	config := &MapperConfiguration{
		logger:   defaultLogger(),
		optLevel: OptimizationCompiled,
	}
	for _, opt := range opts {
		opt(config)
	}
	if r == nil {
		r = NewRegistry(WithRegistryLogger(config.logger))
	}
	return &Mapper{registry: r, config: config}
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// WithLogger sets the logger for degraded mappings and cache events.
func WithLogger(logger *slog.Logger) ConfigOption {
	return func(c *MapperConfiguration) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAllowNullCollections makes MapSlice return nil for a nil input.
func WithAllowNullCollections() ConfigOption {
	return func(c *MapperConfiguration) {
		c.allowNilColl = true
	}
}

// WithOptimizationLevel sets the optimization level for the mapper.
func WithOptimizationLevel(level OptimizationLevel) ConfigOption {
	return func(c *MapperConfiguration) {
		c.optLevel = level
	}
}

// WithFlattening lets an unmatched destination field such as CustomerName
// read Customer.Name from the source.
func WithFlattening() ConfigOption {
	return func(c *MapperConfiguration) {
		c.flattening = true
	}
}

// WithMaxDepth limits composite nesting. Zero means unlimited.
func WithMaxDepth(depth int) ConfigOption {
	return func(c *MapperConfiguration) {
		if depth >= 0 {
			c.maxDepth = depth
		}
	}
}

// Registry returns the registry the mapper executes.
func (m *Mapper) Registry() *Registry { return m.registry }

// ClearCaches drops every derived cache: type metadata, convention and
// narrowed rules, member plans and compiled mappers. The reset reaches every
// Mapper sharing the registry. Registered rules stay. Mappings running
// concurrently may still use entries they already hold.
func (m *Mapper) ClearCaches() {
	m.registry.resetDerived()
	m.syncCaches()
	m.config.logger.Debug("mapping caches cleared")
}

// syncCaches drops the mapper's plans and compiled mappers when the registry
// moved to a new generation.
func (m *Mapper) syncCaches() {
	gen := m.registry.generation.Load()
	if m.generation.Load() == gen {
		return
	}
	m.plans.Clear()
	m.compiled.Clear()
	m.generation.Store(gen)
}
