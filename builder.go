package automapping

import (
	"reflect"
)

// TypeMapBuilder provides a fluent API for building and registering the
// rule of one pair.
//
//	err := CreateMap[Order, OrderDTO](reg).
//	    ForMember("Buyer", MapFrom("CustomerName")).
//	    Transform("Status", TransformFunc(strings.ToUpper)).
//	    IgnoreNulls().
//	    Register()
type TypeMapBuilder[TSrc, TDest any] struct {
	registry *Registry
	rule     MappingRule
	// ignoredDest are destination members excluded through ForMember.
	ignoredDest []string
	err         error
}

// CreateMap starts a rule for TSrc -> TDest that propagates nulls.
func CreateMap[TSrc, TDest any](r *Registry) *TypeMapBuilder[TSrc, TDest] {
	return &TypeMapBuilder[TSrc, TDest]{registry: r}
}

// CreatePartialMap starts a rule for TSrc -> TDest that skips nulls.
func CreatePartialMap[TSrc, TDest any](r *Registry) *TypeMapBuilder[TSrc, TDest] {
	b := CreateMap[TSrc, TDest](r)
	b.rule.NullPolicy = NullSkip
	return b
}

// MemberOption configures one destination member.
type MemberOption func(c *memberConfig)

type memberConfig struct {
	dest     string
	src      string
	resolver Resolver
	ignore   bool
}

// MapFrom reads the member from the named source field.
func MapFrom(srcField string) MemberOption {
	return func(c *memberConfig) {
		c.src = srcField
	}
}

// MapFromFunc computes the member from the whole source object.
func MapFromFunc(resolver Resolver) MemberOption {
	return func(c *memberConfig) {
		c.resolver = resolver
	}
}

// Ignore leaves the member untouched.
func Ignore() MemberOption {
	return func(c *memberConfig) {
		c.ignore = true
	}
}

// ForMember configures a destination member by name.
func (b *TypeMapBuilder[TSrc, TDest]) ForMember(destMember string, opts ...MemberOption) *TypeMapBuilder[TSrc, TDest] {
	c := &memberConfig{dest: destMember}
	for _, opt := range opts {
		opt(c)
	}

	if c.src != "" {
		if b.rule.Renames == nil {
			b.rule.Renames = make(map[string]string)
		}
		b.rule.Renames[destMember] = c.src
	}
	if c.resolver != nil {
		return b.ResolveWith(destMember, c.resolver)
	}
	if c.ignore {
		b.ignoredDest = append(b.ignoredDest, destMember)
	}
	return b
}

// Ignore excludes source fields from mapping.
func (b *TypeMapBuilder[TSrc, TDest]) Ignore(srcFields ...string) *TypeMapBuilder[TSrc, TDest] {
	b.rule.Ignored = append(b.rule.Ignored, srcFields...)
	return b
}

// Transform rewrites the value of a source field before it is written.
func (b *TypeMapBuilder[TSrc, TDest]) Transform(srcField string, fn Transformer) *TypeMapBuilder[TSrc, TDest] {
	if b.rule.Transformers == nil {
		b.rule.Transformers = make(map[string]Transformer)
	}
	b.rule.Transformers[srcField] = fn
	return b
}

// ResolveWith computes a destination field from the whole source object.
func (b *TypeMapBuilder[TSrc, TDest]) ResolveWith(destField string, fn Resolver) *TypeMapBuilder[TSrc, TDest] {
	if b.rule.Resolvers == nil {
		b.rule.Resolvers = make(map[string]Resolver)
	}
	b.rule.Resolvers[destField] = fn
	return b
}

// IgnoreNulls leaves destination fields untouched when the source is null.
func (b *TypeMapBuilder[TSrc, TDest]) IgnoreNulls() *TypeMapBuilder[TSrc, TDest] {
	b.rule.NullPolicy = NullSkip
	return b
}

// PropagateNulls writes source nulls into the destination.
func (b *TypeMapBuilder[TSrc, TDest]) PropagateNulls() *TypeMapBuilder[TSrc, TDest] {
	b.rule.NullPolicy = NullPropagate
	return b
}

// PreserveNestedNulls keeps existing nested destination objects when the
// source holds null for them.
func (b *TypeMapBuilder[TSrc, TDest]) PreserveNestedNulls() *TypeMapBuilder[TSrc, TDest] {
	b.rule.PreserveNestedNulls = true
	return b
}

// WithoutNestedMapping assigns composite fields instead of recursing.
func (b *TypeMapBuilder[TSrc, TDest]) WithoutNestedMapping() *TypeMapBuilder[TSrc, TDest] {
	b.rule.Nested = NestedAssign
	return b
}

// BeforeMap adds a function to be called before mapping.
func (b *TypeMapBuilder[TSrc, TDest]) BeforeMap(fn func(src *TSrc, dest *TDest) error) *TypeMapBuilder[TSrc, TDest] {
	b.rule.BeforeMap = append(b.rule.BeforeMap, typedHook(fn))
	return b
}

// AfterMap adds a function to be called after mapping.
func (b *TypeMapBuilder[TSrc, TDest]) AfterMap(fn func(src *TSrc, dest *TDest) error) *TypeMapBuilder[TSrc, TDest] {
	b.rule.AfterMap = append(b.rule.AfterMap, typedHook(fn))
	return b
}

func typedHook[TSrc, TDest any](fn func(src *TSrc, dest *TDest) error) Hook {
	return func(s, d any) error {
		srcPtr, ok := s.(*TSrc)
		if !ok {
			srcVal, ok := s.(TSrc)
			if !ok {
				return nil
			}
			srcPtr = &srcVal
		}
		destPtr, ok := d.(*TDest)
		if !ok {
			return nil
		}
		return fn(srcPtr, destPtr)
	}
}

// Rule returns the rule built so far. Members excluded with ForMember are
// carried as IgnoredMembers.
func (b *TypeMapBuilder[TSrc, TDest]) Rule() (MappingRule, error) {
	rule := b.rule.Clone()
	rule.IgnoredMembers = append(rule.IgnoredMembers, b.ignoredDest...)
	if err := rule.validate(PairOf[TSrc, TDest](), b.registry.metadata); err != nil {
		return MappingRule{}, err
	}
	return rule, nil
}

// Register validates the rule and stores it in the registry.
func (b *TypeMapBuilder[TSrc, TDest]) Register() error {
	if b.err != nil {
		return b.err
	}
	rule, err := b.Rule()
	if err != nil {
		return err
	}
	return b.registry.Register(reflect.TypeFor[TSrc](), reflect.TypeFor[TDest](), rule)
}

// ReverseMap registers the rule built so far and returns a builder for the
// opposite direction with renames inverted. An error registering the forward
// rule is reported by the reverse builder's Register.
func (b *TypeMapBuilder[TSrc, TDest]) ReverseMap() *TypeMapBuilder[TDest, TSrc] {
	rb := &TypeMapBuilder[TDest, TSrc]{registry: b.registry}
	if err := b.Register(); err != nil {
		rb.err = err
		return rb
	}
	rb.rule = b.rule.Reverse()
	return rb
}

// TransformFunc adapts a typed function to a Transformer. A value that is
// not a T (including nil) is passed as the zero T.
func TransformFunc[T, R any](fn func(T) R) Transformer {
	return func(value any) any {
		v, _ := value.(T)
		return fn(v)
	}
}

// ResolverFunc adapts a typed function to a Resolver. The source may arrive
// as TSrc or *TSrc.
func ResolverFunc[TSrc, R any](fn func(TSrc) R) Resolver {
	return func(src any) any {
		switch v := src.(type) {
		case TSrc:
			return fn(v)
		case *TSrc:
			if v != nil {
				return fn(*v)
			}
		}
		var zero TSrc
		return fn(zero)
	}
}
