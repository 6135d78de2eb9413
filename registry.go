package automapping

import (
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ygrebnov/errorc"
)

// TypePair identifies a source-destination type pair.
type TypePair struct {
	Source reflect.Type
	Dest   reflect.Type
}

// PairOf returns the normalised pair for TSrc and TDest.
func PairOf[TSrc, TDest any]() TypePair {
	return newPair(reflect.TypeFor[TSrc](), reflect.TypeFor[TDest]())
}

func newPair(src, dest reflect.Type) TypePair {
	return TypePair{Source: indirectType(src), Dest: indirectType(dest)}
}

func (p TypePair) String() string {
	return typeName(p.Source) + " -> " + typeName(p.Dest)
}

// Predicate selects a derived binding for a source instance.
type Predicate func(src any) bool

type binding struct {
	base    reflect.Type
	derived reflect.Type
	dest    reflect.Type
	pred    Predicate
}

func (b *binding) explicit() bool { return b.pred != nil }

// Registry holds mapping rules, default destinations, converters and
// polymorphic bindings. Registration may be interleaved with mapping; every
// method is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	rules      map[TypePair]*typeMap
	order      []TypePair
	defaults   map[reflect.Type]reflect.Type
	converters map[TypePair]TypeConverter
	// explicit and implicit bindings per base type, each in registration order.
	explicit map[reflect.Type][]*binding
	implicit map[reflect.Type][]*binding

	conventions sync.Map // TypePair -> *typeMap
	narrowed    sync.Map // narrowKey -> *typeMap
	// generation changes whenever caches derived from the registry must be
	// dropped; every Mapper over the registry compares it before using its
	// plans and compiled mappers.
	generation atomic.Uint64

	metadata *MetadataCache
	logger   *slog.Logger
}

type narrowKey struct {
	pair TypePair
	base *typeMap
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for registration events.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetadataCache shares a metadata cache between registries.
func WithMetadataCache(cache *MetadataCache) RegistryOption {
	return func(r *Registry) {
		if cache != nil {
			r.metadata = cache
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rules:      make(map[TypePair]*typeMap),
		defaults:   make(map[reflect.Type]reflect.Type),
		converters: make(map[TypePair]TypeConverter),
		explicit:   make(map[reflect.Type][]*binding),
		implicit:   make(map[reflect.Type][]*binding),
		metadata:   NewMetadataCache(),
		logger:     defaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metadata returns the registry's metadata cache.
func (r *Registry) Metadata() *MetadataCache { return r.metadata }

// Register validates rule and stores it for the pair, replacing any previous
// rule. dest becomes the default destination for src.
func (r *Registry) Register(src, dest reflect.Type, rule MappingRule) error {
	if src == nil || dest == nil {
		return errorc.With(ErrConfiguration,
			errorc.String(ErrorFieldSourceType, typeName(src)),
			errorc.String(ErrorFieldDestType, typeName(dest)),
		)
	}
	pair := newPair(src, dest)
	if err := rule.validate(pair, r.metadata); err != nil {
		return err
	}
	tm := compileRule(pair, rule)

	r.mu.Lock()
	old, replaced := r.rules[pair]
	r.rules[pair] = tm
	if !replaced {
		r.order = append(r.order, pair)
	}
	r.defaults[pair.Source] = pair.Dest
	r.mu.Unlock()

	if replaced {
		r.dropNarrowed(old)
		r.generation.Add(1)
	}

	r.logger.Debug("mapping registered",
		slog.String("pair", pair.String()),
		slog.Bool("replaced", replaced),
	)
	return nil
}

// RegisterMap registers rule for TSrc -> TDest.
func RegisterMap[TSrc, TDest any](r *Registry, rule MappingRule) error {
	return r.Register(reflect.TypeFor[TSrc](), reflect.TypeFor[TDest](), rule)
}

// Resolve returns a copy of the rule registered for the pair.
func (r *Registry) Resolve(src, dest reflect.Type) (MappingRule, bool) {
	tm, ok := r.lookup(src, dest)
	if !ok {
		return MappingRule{}, false
	}
	return tm.rule.Clone(), true
}

func (r *Registry) lookup(src, dest reflect.Type) (*typeMap, bool) {
	pair := newPair(src, dest)
	r.mu.RLock()
	tm, ok := r.rules[pair]
	r.mu.RUnlock()
	return tm, ok
}

// convention returns the synthesised rule for an unregistered pair.
func (r *Registry) convention(src, dest reflect.Type) *typeMap {
	pair := newPair(src, dest)
	if tm, ok := r.conventions.Load(pair); ok {
		return tm.(*typeMap)
	}
	tm, _ := r.conventions.LoadOrStore(pair, conventionRule(pair))
	return tm.(*typeMap)
}

// ruleFor resolves the rule for a pair: registered rule, else convention.
func (r *Registry) ruleFor(src, dest reflect.Type) *typeMap {
	if tm, ok := r.lookup(src, dest); ok {
		return tm
	}
	return r.convention(src, dest)
}

// nestedRuleFor resolves a rule for a nested pair: direct rule, then a
// breadth-first walk over the source's embedded types, then convention.
func (r *Registry) nestedRuleFor(src, dest reflect.Type) *typeMap {
	if tm, ok := r.lookup(src, dest); ok {
		return tm
	}
	seen := map[reflect.Type]bool{indirectType(src): true}
	queue := slices.Clone(r.metadata.Metadata(src).Embedded())
	for len(queue) > 0 {
		base := queue[0]
		queue = queue[1:]
		if seen[base] {
			continue
		}
		seen[base] = true
		if tm, ok := r.lookup(base, dest); ok {
			return r.narrow(newPair(src, dest), tm)
		}
		queue = append(queue, r.metadata.Metadata(base).Embedded()...)
	}
	return r.convention(src, dest)
}

// narrow returns the rule for pair built by narrowing base.
func (r *Registry) narrow(pair TypePair, base *typeMap) *typeMap {
	key := narrowKey{pair: pair, base: base}
	if tm, ok := r.narrowed.Load(key); ok {
		return tm.(*typeMap)
	}
	tm, _ := r.narrowed.LoadOrStore(key, compileRule(pair, Narrow(base.rule)))
	return tm.(*typeMap)
}

// DefaultDestination returns the destination type registered for src. For a
// collection source without its own entry, the element's default destination
// is rebuilt into the same kind of collection.
func (r *Registry) DefaultDestination(src reflect.Type) (reflect.Type, bool) {
	if src == nil {
		return nil, false
	}
	r.mu.RLock()
	dest, ok := r.defaults[indirectType(src)]
	r.mu.RUnlock()
	if ok {
		return dest, true
	}

	if Classify(src) != ShapeCollection {
		return nil, false
	}
	t := indirectType(src)
	elem := t.Elem()
	elemDest, ok := r.DefaultDestination(elem)
	if !ok {
		return nil, false
	}
	if elem.Kind() == reflect.Pointer {
		elemDest = reflect.PointerTo(elemDest)
	}
	if t.Kind() == reflect.Map {
		return reflect.MapOf(t.Key(), elemDest), true
	}
	return reflect.SliceOf(elemDest), true
}

// Include binds derived as a specialisation of base that maps to dest. With a
// nil predicate the binding matches when the instance's runtime type is
// derived; otherwise the predicate decides. Explicit bindings are tried
// before implicit ones, each in registration order. Re-including a derived
// type replaces its binding. A convention rule is registered for
// (derived, dest) when none exists.
func (r *Registry) Include(base, derived, dest reflect.Type, pred Predicate) error {
	if base == nil || derived == nil || dest == nil {
		return errorc.With(ErrConfiguration, errorc.String(ErrorFieldOption, "include"))
	}
	if base.Kind() != reflect.Interface {
		base = indirectType(base)
	}
	derived = indirectType(derived)
	dest = indirectType(dest)

	if base.Kind() == reflect.Interface &&
		!derived.Implements(base) && !reflect.PointerTo(derived).Implements(base) {
		return errorc.With(ErrConfiguration,
			errorc.String(ErrorFieldSourceType, typeName(derived)),
			errorc.String(ErrorFieldOption, "include"),
			errorc.String(ErrorFieldCause, "does not implement "+typeName(base)),
		)
	}

	b := &binding{base: base, derived: derived, dest: dest, pred: pred}

	r.mu.Lock()
	r.explicit[base] = r.placeBinding(r.explicit[base], b, b.explicit())
	r.implicit[base] = r.placeBinding(r.implicit[base], b, !b.explicit())
	_, hasRule := r.rules[newPair(derived, dest)]
	r.mu.Unlock()

	if !hasRule {
		return r.Register(derived, dest, MappingRule{})
	}
	return nil
}

// placeBinding replaces b's predecessor in tier in place, appends b when the
// tier owns it and it is new, and drops the predecessor when b moved to the
// other tier.
func (r *Registry) placeBinding(tier []*binding, b *binding, owns bool) []*binding {
	// readers iterate snapshots taken under the read lock
	tier = slices.Clone(tier)
	for i, existing := range tier {
		if existing.derived != b.derived {
			continue
		}
		if owns {
			tier[i] = b
			return tier
		}
		return slices.Delete(tier, i, i+1)
	}
	if owns {
		tier = append(tier, b)
	}
	return tier
}

// Include binds TDerived to TDest under the base type TBase.
func Include[TBase, TDerived, TDest any](r *Registry, pred func(TBase) bool) error {
	var p Predicate
	if pred != nil {
		p = func(src any) bool {
			v, ok := src.(TBase)
			return ok && pred(v)
		}
	}
	return r.Include(reflect.TypeFor[TBase](), reflect.TypeFor[TDerived](), reflect.TypeFor[TDest](), p)
}

// ResolveDerivedType returns the derived type bound under base for instance.
func (r *Registry) ResolveDerivedType(instance any, base reflect.Type) (reflect.Type, bool) {
	b, ok := r.resolveBinding(instance, base)
	if !ok {
		return nil, false
	}
	return b.derived, true
}

func (r *Registry) resolveBinding(instance any, base reflect.Type) (*binding, bool) {
	if instance == nil || base == nil {
		return nil, false
	}
	if base.Kind() != reflect.Interface {
		base = indirectType(base)
	}

	r.mu.RLock()
	explicit := r.explicit[base]
	implicit := r.implicit[base]
	r.mu.RUnlock()

	for _, b := range explicit {
		if safePredicate(b.pred, instance) {
			return b, true
		}
	}
	runtime := indirectType(reflect.TypeOf(instance))
	for _, b := range implicit {
		if b.derived == runtime {
			return b, true
		}
	}
	return nil, false
}

func safePredicate(pred Predicate, instance any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return pred(instance)
}

func (r *Registry) hasBindings(base reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.explicit[base]) > 0 || len(r.implicit[base]) > 0
}

// RegisterConverter registers fn for values of exactly type from written to
// type to. It takes precedence over built-in coercion.
func (r *Registry) RegisterConverter(from, to reflect.Type, fn TypeConverter) error {
	if from == nil || to == nil || fn == nil {
		return errorc.With(ErrInvalidConverter,
			errorc.String(ErrorFieldSourceType, typeName(from)),
			errorc.String(ErrorFieldDestType, typeName(to)),
		)
	}
	r.mu.Lock()
	r.converters[TypePair{Source: from, Dest: to}] = fn
	r.mu.Unlock()
	return nil
}

// ResolveConverter returns the converter registered for the exact pair.
func (r *Registry) ResolveConverter(from, to reflect.Type) (TypeConverter, bool) {
	r.mu.RLock()
	fn, ok := r.converters[TypePair{Source: from, Dest: to}]
	r.mu.RUnlock()
	return fn, ok
}

// GetAllMappingConfigurations lists the registered pairs in registration
// order.
func (r *Registry) GetAllMappingConfigurations() []TypePair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// hasMapping reports whether a strict entry point may map src to dest.
func (r *Registry) hasMapping(src, dest reflect.Type) bool {
	if _, ok := r.lookup(src, dest); ok {
		return true
	}
	if Classify(src) == ShapeCollection && Classify(dest) == ShapeCollection {
		se, de := ElementType(src), ElementType(dest)
		return r.hasMapping(se, de) || se == de
	}
	return false
}

// resetDerived drops caches derived from registered rules, for this
// registry and every Mapper executing it.
func (r *Registry) resetDerived() {
	r.conventions.Clear()
	r.narrowed.Clear()
	r.metadata.Reset()
	r.generation.Add(1)
}

// dropNarrowed forgets the rules narrowed from a replaced base rule.
func (r *Registry) dropNarrowed(base *typeMap) {
	r.narrowed.Range(func(key, _ any) bool {
		if key.(narrowKey).base == base {
			r.narrowed.Delete(key)
		}
		return true
	})
}
