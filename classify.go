package automapping

import (
	"encoding"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/ygrebnov/errorc"
)

// Shape is the structural category of a type.
type Shape int

const (
	// ShapeScalar covers values copied or converted as a whole: numbers,
	// booleans, text, time, UUIDs, enumerations and pointers to them.
	ShapeScalar Shape = iota
	// ShapeCollection covers slices, arrays, maps and sets.
	ShapeCollection
	// ShapeComposite covers structs with at least one exported field and
	// interface types, which stand for a polymorphic base.
	ShapeComposite
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeCollection:
		return "collection"
	case ShapeComposite:
		return "composite"
	}
	return "unknown"
}

var (
	timeType            = reflect.TypeFor[time.Time]()
	durationType        = reflect.TypeFor[time.Duration]()
	uuidType            = reflect.TypeFor[uuid.UUID]()
	bytesType           = reflect.TypeFor[[]byte]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// Classify returns the shape of t. Pointers classify as their element type.
func Classify(t reflect.Type) Shape {
	t = indirectType(t)
	if t == nil {
		return ShapeScalar
	}

	switch t {
	case timeType, durationType, uuidType:
		return ShapeScalar
	}

	switch t.Kind() {
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return ShapeScalar
		}
		return ShapeCollection
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return ShapeScalar
		}
		return ShapeCollection
	case reflect.Map:
		return ShapeCollection
	case reflect.Interface:
		return ShapeComposite
	case reflect.Struct:
		if hasExportedField(t) {
			return ShapeComposite
		}
		return ShapeScalar
	default:
		return ShapeScalar
	}
}

func hasExportedField(t reflect.Type) bool {
	for _, f := range reflect.VisibleFields(t) {
		if f.IsExported() && !(f.Anonymous && indirectType(f.Type).Kind() == reflect.Struct) {
			return true
		}
	}
	return false
}

// ElementType returns the element type of a sequence, or the value type of a
// map. It returns nil for non-collections.
func ElementType(t reflect.Type) reflect.Type {
	t = indirectType(t)
	if Classify(t) != ShapeCollection {
		return nil
	}
	return t.Elem()
}

// KeyType returns the key type of a map, or nil.
func KeyType(t reflect.Type) reflect.Type {
	t = indirectType(t)
	if t == nil || t.Kind() != reflect.Map {
		return nil
	}
	return t.Key()
}

// ValueType returns the value type of a map, or nil.
func ValueType(t reflect.Type) reflect.Type {
	t = indirectType(t)
	if t == nil || t.Kind() != reflect.Map {
		return nil
	}
	return t.Elem()
}

// IsSet reports whether t is a set: a map whose values are empty structs or
// booleans.
func IsSet(t reflect.Type) bool {
	t = indirectType(t)
	if t == nil || t.Kind() != reflect.Map {
		return false
	}
	v := t.Elem()
	return v.Kind() == reflect.Bool || (v.Kind() == reflect.Struct && v.NumField() == 0)
}

// Instantiate creates a new empty value of type t: an empty slice, an empty
// map, a zero array or struct, or a pointer to a new element for pointer
// types. The result is addressable. Interface types have no construction
// path and yield ErrUninstantiable.
func Instantiate(t reflect.Type) (reflect.Value, error) {
	if t == nil || t.Kind() == reflect.Interface {
		return reflect.Value{}, errorc.With(ErrUninstantiable, errorc.String(ErrorFieldDestType, typeName(t)))
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Slice:
		v.Set(reflect.MakeSlice(t, 0, 0))
	case reflect.Map:
		v.Set(reflect.MakeMap(t))
	case reflect.Pointer:
		inner, err := Instantiate(t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		v.Set(p)
	}
	return v, nil
}

// isNull reports whether v is absent or a nil reference.
func isNull(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// isNillable reports whether a value of type t can hold nil.
func isNillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
