package automapping

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/ygrebnov/errorc"
)

// NullPolicy decides what happens when a source value is null.
type NullPolicy int

const (
	// NullPropagate writes null (nil) into nillable destination fields.
	NullPropagate NullPolicy = iota
	// NullSkip leaves the destination untouched.
	NullSkip
)

func (p NullPolicy) String() string {
	if p == NullSkip {
		return "skip"
	}
	return "propagate"
}

// NestedPolicy decides how composite fields are handled.
type NestedPolicy int

const (
	// NestedMap recurses into composite fields.
	NestedMap NestedPolicy = iota
	// NestedAssign only assigns composite values whose types are compatible.
	NestedAssign
)

// Transformer rewrites a source field value before it is written.
type Transformer func(value any) any

// Resolver computes a destination field value from the whole source object.
type Resolver func(src any) any

// Hook runs before or after a pair is mapped. dest is a pointer to the
// destination struct.
type Hook func(src, dest any) error

// MappingRule configures how one source type maps to one destination type.
// The zero value maps by convention and propagates nulls.
//
// Field names are matched case-insensitively. A rule is copied when it is
// registered, so later changes to the caller's maps have no effect.
type MappingRule struct {
	NullPolicy NullPolicy
	// Renames maps destination field names to source field names.
	Renames map[string]string
	// Ignored lists source fields that are never read.
	Ignored []string
	// IgnoredMembers lists destination fields that are never written.
	IgnoredMembers []string
	// Transformers are keyed by source field name.
	Transformers map[string]Transformer
	// Resolvers are keyed by destination field name and bypass source lookup.
	Resolvers map[string]Resolver
	// PreserveNestedNulls leaves an existing nested destination object in
	// place when the source holds null for it.
	PreserveNestedNulls bool
	Nested              NestedPolicy
	BeforeMap           []Hook
	AfterMap            []Hook
}

// Clone returns a deep copy of the rule's tables.
func (r MappingRule) Clone() MappingRule {
	out := r
	out.Renames = maps.Clone(r.Renames)
	out.Ignored = slices.Clone(r.Ignored)
	out.IgnoredMembers = slices.Clone(r.IgnoredMembers)
	out.Transformers = maps.Clone(r.Transformers)
	out.Resolvers = maps.Clone(r.Resolvers)
	out.BeforeMap = slices.Clone(r.BeforeMap)
	out.AfterMap = slices.Clone(r.AfterMap)
	return out
}

// Narrow adapts base onto another pair. Only the null policy, the nested
// policy and PreserveNestedNulls are carried over; field tables name fields of
// the base pair and are dropped.
func Narrow(base MappingRule) MappingRule {
	return MappingRule{
		NullPolicy:          base.NullPolicy,
		Nested:              base.Nested,
		PreserveNestedNulls: base.PreserveNestedNulls,
	}
}

// Reverse returns the rule for the opposite direction. Renames are inverted;
// ignores, transformers, resolvers and hooks are one-way and are not carried.
func (r MappingRule) Reverse() MappingRule {
	out := Narrow(r)
	if len(r.Renames) > 0 {
		out.Renames = make(map[string]string, len(r.Renames))
		for dest, src := range r.Renames {
			out.Renames[src] = dest
		}
	}
	return out
}

// validate checks every field name in the rule against the pair's types.
func (r MappingRule) validate(pair TypePair, cache *MetadataCache) error {
	src := cache.Metadata(pair.Source)
	dest := cache.Metadata(pair.Dest)

	fail := func(option, field string) error {
		return errorc.With(ErrConfiguration,
			errorc.String(ErrorFieldSourceType, typeName(pair.Source)),
			errorc.String(ErrorFieldDestType, typeName(pair.Dest)),
			errorc.String(ErrorFieldOption, option),
			errorc.String(ErrorFieldFieldName, field),
		)
	}

	seen := make(map[string]bool, len(r.Renames))
	for destName, srcName := range r.Renames {
		if _, ok := dest.Lookup(destName); !ok {
			return fail("rename", destName)
		}
		if _, ok := src.Lookup(srcName); !ok {
			return fail("rename", srcName)
		}
		key := strings.ToLower(destName)
		if seen[key] {
			return fail("rename", destName)
		}
		seen[key] = true
	}
	for _, name := range r.Ignored {
		if _, ok := src.Lookup(name); !ok {
			return fail("ignore", name)
		}
	}
	for _, name := range r.IgnoredMembers {
		if _, ok := dest.Lookup(name); !ok {
			return fail("ignore", name)
		}
	}
	for name, fn := range r.Transformers {
		if _, ok := src.Lookup(name); !ok || fn == nil {
			return fail("transform", name)
		}
	}
	for name, fn := range r.Resolvers {
		if _, ok := dest.Lookup(name); !ok || fn == nil {
			return fail("resolve", name)
		}
	}
	for _, h := range slices.Concat(r.BeforeMap, r.AfterMap) {
		if h == nil {
			return fail("hook", "")
		}
	}
	return nil
}

// typeMap is the compiled, immutable form of a rule for one pair. Re-
// registering a pair replaces the pointer, so derived caches keyed by it never
// observe a half-updated rule.
type typeMap struct {
	pair         TypePair
	rule         MappingRule
	renames      map[string]string
	ignored      map[string]bool
	ignoredDest  map[string]bool
	transformers map[string]Transformer
	resolvers    map[string]Resolver
	// convention marks rules synthesised for unregistered pairs; they inherit
	// the null policy of the enclosing mapping.
	convention bool
}

func compileRule(pair TypePair, rule MappingRule) *typeMap {
	rule = rule.Clone()
	tm := &typeMap{
		pair:         pair,
		rule:         rule,
		renames:      make(map[string]string, len(rule.Renames)),
		ignored:      make(map[string]bool, len(rule.Ignored)),
		ignoredDest:  make(map[string]bool, len(rule.IgnoredMembers)),
		transformers: make(map[string]Transformer, len(rule.Transformers)),
		resolvers:    make(map[string]Resolver, len(rule.Resolvers)),
	}
	for dest, src := range rule.Renames {
		tm.renames[strings.ToLower(dest)] = src
	}
	for _, name := range rule.Ignored {
		tm.ignored[strings.ToLower(name)] = true
	}
	for _, name := range rule.IgnoredMembers {
		tm.ignoredDest[strings.ToLower(name)] = true
	}
	for name, fn := range rule.Transformers {
		tm.transformers[strings.ToLower(name)] = fn
	}
	for name, fn := range rule.Resolvers {
		tm.resolvers[strings.ToLower(name)] = fn
	}
	return tm
}

func conventionRule(pair TypePair) *typeMap {
	tm := compileRule(pair, MappingRule{})
	tm.convention = true
	return tm
}

func (tm *typeMap) hasCustomLogic() bool {
	return len(tm.resolvers) > 0 || len(tm.transformers) > 0 ||
		len(tm.rule.BeforeMap) > 0 || len(tm.rule.AfterMap) > 0
}

func (tm *typeMap) runHooks(hooks []Hook, src, dest reflect.Value) error {
	if len(hooks) == 0 {
		return nil
	}
	srcIface := src.Interface()
	destIface := dest.Addr().Interface()
	for _, h := range hooks {
		if err := h(srcIface, destIface); err != nil {
			return err
		}
	}
	return nil
}
