package automapping

import (
	"reflect"
)

// BindingKind tells how a projected destination field is populated.
type BindingKind int

const (
	// BindField copies a source field, possibly renamed.
	BindField BindingKind = iota
	// BindResolver computes the field from the whole source object.
	BindResolver
	// BindFlatten reads a nested source path.
	BindFlatten
)

func (k BindingKind) String() string {
	switch k {
	case BindField:
		return "field"
	case BindResolver:
		return "resolver"
	case BindFlatten:
		return "flatten"
	default:
		return "unknown"
	}
}

// FieldBinding describes one destination field of a Projection.
type FieldBinding struct {
	Dest string
	// Source is the source field name, or the dotted path for BindFlatten.
	// It is empty for BindResolver.
	Source      string
	Kind        BindingKind
	Transformer Transformer
	Resolver    Resolver
}

// Projection is a read-only view of how a pair is mapped, for callers that
// build projections outside the executor (query builders, code generators).
type Projection struct {
	Pair       TypePair
	Fields     []FieldBinding
	NullPolicy NullPolicy
	// Registered is false when the pair has no rule and the projection is
	// derived by convention.
	Registered bool
}

// Projection returns the field bindings of the pair. Flattened paths are
// included only when flatten is set, matching a Mapper built WithFlattening.
func (r *Registry) Projection(src, dest reflect.Type, flatten bool) Projection {
	tm, registered := r.lookup(src, dest)
	if !registered {
		tm = r.convention(src, dest)
	}

	p := buildPlan(r.metadata, tm, flatten)
	proj := Projection{
		Pair:       tm.pair,
		Fields:     make([]FieldBinding, 0, len(p.members)),
		NullPolicy: tm.rule.NullPolicy,
		Registered: registered,
	}
	for _, mp := range p.members {
		fb := FieldBinding{Dest: mp.dest.Name, Transformer: mp.transformer}
		switch mp.kind {
		case memberResolver:
			fb.Kind = BindResolver
			fb.Resolver = mp.resolver
		case memberFlatten:
			fb.Kind = BindFlatten
			for i, fd := range mp.path {
				if i > 0 {
					fb.Source += "."
				}
				fb.Source += fd.Name
			}
		default:
			fb.Kind = BindField
			fb.Source = mp.src.Name
		}
		proj.Fields = append(proj.Fields, fb)
	}
	return proj
}

// Project returns the projection of TSrc -> TDest as m maps it.
func Project[TSrc, TDest any](m *Mapper) Projection {
	return m.registry.Projection(reflect.TypeFor[TSrc](), reflect.TypeFor[TDest](), m.config.flattening)
}
