package automapping

import (
	"iter"
	"log/slog"
	"reflect"
	"strconv"

	"github.com/ygrebnov/errorc"
)

// MapSlice maps a slice of source objects to a slice of destination objects.
// Null elements follow the propagate policy: they become zero values.
func MapSlice[TSrc, TDest any](m *Mapper, src []TSrc) ([]TDest, error) {
	if src == nil {
		if m.config.allowNilColl {
			return nil, nil
		}
		return []TDest{}, nil
	}

	result := make([]TDest, len(src))
	for i := range src {
		if err := m.execute(reflect.ValueOf(&src[i]).Elem(), reflect.ValueOf(&result[i]).Elem(), mapState{}); err != nil {
			return nil, errorc.With(err, errorc.String(ErrorFieldIndex, strconv.Itoa(i)))
		}
	}
	return result, nil
}

// MapSeq lazily maps each element of src. Iteration stops early when the
// consumer stops.
func MapSeq[TSrc, TDest any](m *Mapper, src iter.Seq[TSrc]) iter.Seq2[TDest, error] {
	return func(yield func(TDest, error) bool) {
		i := 0
		for s := range src {
			var dest TDest
			err := m.execute(reflect.ValueOf(&s).Elem(), reflect.ValueOf(&dest).Elem(), mapState{})
			if err != nil {
				err = errorc.With(err, errorc.String(ErrorFieldIndex, strconv.Itoa(i)))
			}
			if !yield(dest, err) {
				return
			}
			i++
		}
	}
}

// mapCollection maps the collection src into dest. Slices are rebuilt,
// arrays are filled from the front, maps are cleared and refilled, and
// nil destinations are instantiated.
func (m *Mapper) mapCollection(src, dest reflect.Value, st mapState) error {
	src = derefValue(src)
	if !src.IsValid() {
		m.writeNull(dest, st)
		return nil
	}

	for dest.Kind() == reflect.Pointer {
		if dest.IsNil() {
			v, err := Instantiate(dest.Type().Elem())
			if err != nil {
				m.logUninstantiable(dest.Type(), err)
				return nil
			}
			p := reflect.New(dest.Type().Elem())
			p.Elem().Set(v)
			dest.Set(p)
		}
		dest = dest.Elem()
	}
	if dest.Kind() == reflect.Interface {
		return m.mapToInterface(src, dest, st)
	}

	switch dest.Kind() {
	case reflect.Slice:
		return m.fillSlice(src, dest, st)
	case reflect.Array:
		return m.fillArray(src, dest, st)
	case reflect.Map:
		return m.fillMap(src, dest, st)
	}
	return nil
}

// elements iterates the source collection: sequence items, set members, or
// map values.
func elements(src reflect.Value) iter.Seq[reflect.Value] {
	return func(yield func(reflect.Value) bool) {
		switch src.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < src.Len(); i++ {
				if !yield(src.Index(i)) {
					return
				}
			}
		case reflect.Map:
			set := IsSet(src.Type())
			it := src.MapRange()
			for it.Next() {
				if set && !setContains(it.Value()) {
					continue
				}
				v := it.Value()
				if set {
					v = it.Key()
				}
				if !yield(v) {
					return
				}
			}
		}
	}
}

func setContains(v reflect.Value) bool {
	return v.Kind() != reflect.Bool || v.Bool()
}

func (m *Mapper) fillSlice(src, dest reflect.Value, st mapState) error {
	elemType := dest.Type().Elem()
	out := reflect.MakeSlice(dest.Type(), 0, src.Len())
	for e := range elements(src) {
		v, ok, err := m.mapElement(e, elemType, st)
		if err != nil {
			return err
		}
		if ok {
			out = reflect.Append(out, v)
		}
	}
	dest.Set(out)
	return nil
}

// fillArray writes mapped elements from index zero. Omitted nulls do not
// consume a slot and surplus source elements are dropped.
func (m *Mapper) fillArray(src, dest reflect.Value, st mapState) error {
	elemType := dest.Type().Elem()
	out := reflect.New(dest.Type()).Elem()
	i := 0
	for e := range elements(src) {
		if i >= out.Len() {
			break
		}
		v, ok, err := m.mapElement(e, elemType, st)
		if err != nil {
			return err
		}
		if ok {
			out.Index(i).Set(v)
			i++
		}
	}
	dest.Set(out)
	return nil
}

func (m *Mapper) fillMap(src, dest reflect.Value, st mapState) error {
	if dest.IsNil() {
		dest.Set(reflect.MakeMapWithSize(dest.Type(), src.Len()))
	} else {
		dest.Clear()
	}

	keyType := dest.Type().Key()
	member := setMember(dest.Type())

	// sequence or set into set
	if member.IsValid() && (src.Kind() != reflect.Map || IsSet(src.Type())) {
		for e := range elements(src) {
			k, ok, err := m.mapElement(e, keyType, st)
			if err != nil {
				return err
			}
			if ok && isHashable(k) {
				dest.SetMapIndex(k, member)
			}
		}
		return nil
	}

	if src.Kind() != reflect.Map {
		m.config.logger.Debug("cannot map sequence into map",
			slog.String("source", typeName(src.Type())),
			slog.String("dest", typeName(dest.Type())),
		)
		return nil
	}

	valType := dest.Type().Elem()
	it := src.MapRange()
	for it.Next() {
		k, ok, err := m.mapElement(it.Key(), keyType, st)
		if err != nil {
			return err
		}
		if !ok || !isHashable(k) {
			continue
		}
		v, ok, err := m.mapElement(it.Value(), valType, st)
		if err != nil {
			return err
		}
		if ok {
			dest.SetMapIndex(k, v)
		}
	}
	return nil
}

// setMember returns the value stored for present members of a set type.
func setMember(t reflect.Type) reflect.Value {
	if !IsSet(t) {
		return reflect.Value{}
	}
	if t.Elem().Kind() == reflect.Bool {
		return reflect.ValueOf(true).Convert(t.Elem())
	}
	return reflect.Zero(t.Elem())
}

func isHashable(v reflect.Value) bool {
	if !v.Type().Comparable() {
		return false
	}
	if v.Kind() == reflect.Interface && !v.IsNil() {
		return v.Elem().Type().Comparable()
	}
	return true
}

// mapElement maps one collection element to elemType. The boolean is false
// when the element is omitted: a null under the skip policy.
//
// Resolution order: direct assignment, exact converter, rule registered for
// the element pair, polymorphic binding, convention, scalar conversion. An
// element that cannot be mapped becomes the zero value.
func (m *Mapper) mapElement(e reflect.Value, elemType reflect.Type, st mapState) (reflect.Value, bool, error) {
	if isNull(e) {
		if st.skip {
			return reflect.Value{}, false, nil
		}
		return reflect.Zero(elemType), true, nil
	}

	out := reflect.New(elemType).Elem()
	if e.Type().AssignableTo(elemType) && !m.needsDispatch(e, elemType) {
		out.Set(e)
		return out, true, nil
	}

	concrete := e
	if concrete.Kind() == reflect.Interface {
		concrete = concrete.Elem()
	}
	if m.applyConverter(concrete, out) {
		return out, true, nil
	}

	if tm, ok := m.registry.lookup(concrete.Type(), elemType); ok && elemType.Kind() != reflect.Interface {
		if err := m.mapResolved(concrete, out, tm, st.nested()); err != nil {
			return reflect.Value{}, false, err
		}
		return out, true, nil
	}

	if err := m.mapValue(e, out, nil, st.nested()); err != nil {
		return reflect.Value{}, false, err
	}
	return out, true, nil
}

// needsDispatch reports whether an assignable interface element still has
// a derived binding that should replace it.
func (m *Mapper) needsDispatch(e reflect.Value, elemType reflect.Type) bool {
	if e.Kind() != reflect.Interface || elemType.Kind() != reflect.Interface {
		return false
	}
	return m.registry.hasBindings(e.Type())
}

func (m *Mapper) logUninstantiable(t reflect.Type, err error) {
	m.config.logger.Debug("destination cannot be instantiated",
		slog.String("dest", typeName(t)),
		slog.Any("error", err),
	)
}
