package automapping

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/ygrebnov/errorc"
)

// mapState carries the per-call options down the object graph.
type mapState struct {
	// partial forces NullSkip for the whole graph.
	partial bool
	// skip is the effective null policy of the enclosing rule.
	skip bool
	// preserve is the effective PreserveNestedNulls flag.
	preserve bool
	// inheritPreserve is set once a parent rule or entry point fixed preserve.
	inheritPreserve bool
	dispatched      bool
	depth           int
}

// enter applies tm's options. Convention rules inherit the enclosing null
// policy.
func (st mapState) enter(tm *typeMap) mapState {
	n := st
	if tm.convention {
		n.skip = st.partial || st.skip
	} else {
		n.skip = st.partial || tm.rule.NullPolicy == NullSkip
	}
	if !st.inheritPreserve {
		n.preserve = tm.rule.PreserveNestedNulls
	}
	return n
}

func (st mapState) nested() mapState {
	st.inheritPreserve = true
	st.dispatched = false
	return st
}

// Map maps src into a new TDest.
func Map[TSrc, TDest any](m *Mapper, src TSrc) (TDest, error) {
	var dest TDest
	err := m.execute(reflect.ValueOf(&src).Elem(), reflect.ValueOf(&dest).Elem(), mapState{})
	return dest, err
}

// MapTo maps src into an existing destination.
func MapTo[TSrc, TDest any](m *Mapper, src TSrc, dest *TDest) error {
	if dest == nil {
		return errorc.With(ErrNilDestination, errorc.String(ErrorFieldDestType, typeName(reflect.TypeFor[TDest]())))
	}
	return m.execute(reflect.ValueOf(&src).Elem(), reflect.ValueOf(dest).Elem(), mapState{})
}

// PartialMap maps src into dest leaving every destination field whose
// source value is null untouched.
func PartialMap[TSrc, TDest any](m *Mapper, src TSrc, dest *TDest) error {
	if dest == nil {
		return errorc.With(ErrNilDestination, errorc.String(ErrorFieldDestType, typeName(reflect.TypeFor[TDest]())))
	}
	st := mapState{partial: true, skip: true}
	return m.execute(reflect.ValueOf(&src).Elem(), reflect.ValueOf(dest).Elem(), st)
}

// MapInferred maps src, whose type is only known at runtime, into a new
// TDest. A rule for the pair must be registered.
func MapInferred[TDest any](m *Mapper, src any) (TDest, error) {
	var dest TDest
	if src == nil {
		return dest, nil
	}
	if err := m.requireMapping(reflect.TypeOf(src), reflect.TypeFor[TDest]()); err != nil {
		return dest, err
	}
	err := m.execute(reflect.ValueOf(src), reflect.ValueOf(&dest).Elem(), mapState{})
	return dest, err
}

// PartialMapInferred is the runtime-typed PartialMap. Null nested objects on
// the source always leave the destination's nested objects in place.
func PartialMapInferred[TDest any](m *Mapper, src any, dest *TDest) error {
	if dest == nil {
		return errorc.With(ErrNilDestination, errorc.String(ErrorFieldDestType, typeName(reflect.TypeFor[TDest]())))
	}
	if src == nil {
		return nil
	}
	if err := m.requireMapping(reflect.TypeOf(src), reflect.TypeFor[TDest]()); err != nil {
		return err
	}
	return m.execute(reflect.ValueOf(src), reflect.ValueOf(dest).Elem(), partialState())
}

// PartialMapNew maps src into a new TDest with partial semantics.
func PartialMapNew[TDest any](m *Mapper, src any) (TDest, error) {
	var dest TDest
	if src == nil {
		return dest, nil
	}
	if err := m.requireMapping(reflect.TypeOf(src), reflect.TypeFor[TDest]()); err != nil {
		return dest, err
	}
	err := m.execute(reflect.ValueOf(src), reflect.ValueOf(&dest).Elem(), partialState())
	return dest, err
}

func partialState() mapState {
	return mapState{partial: true, skip: true, preserve: true, inheritPreserve: true}
}

// MapDefault maps src into a new value of its default destination type.
// A pointer source yields a pointer to the destination.
func (m *Mapper) MapDefault(src any) (any, error) {
	if src == nil {
		return nil, nil
	}
	srcType := reflect.TypeOf(src)
	destType, ok := m.registry.DefaultDestination(srcType)
	if !ok {
		return nil, errorc.With(ErrUnresolvedMapping,
			errorc.String(ErrorFieldSourceType, typeName(srcType)),
			errorc.String(ErrorFieldDestType, "<default>"),
		)
	}
	if srcType.Kind() == reflect.Pointer {
		destType = reflect.PointerTo(destType)
	}
	dest := reflect.New(destType).Elem()
	if err := m.execute(reflect.ValueOf(src), dest, mapState{}); err != nil {
		return nil, err
	}
	return dest.Interface(), nil
}

func (m *Mapper) requireMapping(src, dest reflect.Type) error {
	if m.registry.hasMapping(src, dest) {
		return nil
	}
	return errorc.With(ErrUnresolvedMapping,
		errorc.String(ErrorFieldSourceType, typeName(src)),
		errorc.String(ErrorFieldDestType, typeName(dest)),
	)
}

// execute is the top-level entry: an exact converter for the pair wins,
// anything else goes through mapValue.
func (m *Mapper) execute(src, dest reflect.Value, st mapState) error {
	st.skip = st.skip || st.partial
	if !isNull(src) {
		concrete := src
		if concrete.Kind() == reflect.Interface {
			concrete = concrete.Elem()
		}
		if m.applyConverter(concrete, dest) {
			return nil
		}
	}
	return m.mapValue(src, dest, nil, st)
}

// mapValue maps src into the settable dest. tm may be nil, in which case the
// rule is resolved from the runtime types.
func (m *Mapper) mapValue(src, dest reflect.Value, tm *typeMap, st mapState) error {
	if src.IsValid() && src.Kind() == reflect.Interface && !src.IsNil() {
		return m.mapPolymorphic(src.Type(), src.Elem(), dest, tm, st)
	}
	if isNull(src) {
		m.writeNull(dest, st)
		return nil
	}
	return m.mapResolved(src, dest, tm, st)
}

func (m *Mapper) writeNull(dest reflect.Value, st mapState) {
	if st.skip || !dest.CanSet() || !isNillable(dest.Type()) {
		return
	}
	dest.SetZero()
}

// mapPolymorphic dispatches a value whose static type is the interface base
// to the destination bound for its runtime type.
func (m *Mapper) mapPolymorphic(base reflect.Type, src, dest reflect.Value, tm *typeMap, st mapState) error {
	if isNull(src) {
		m.writeNull(dest, st)
		return nil
	}
	srcType := indirectType(src.Type())
	baseRule := tm
	if baseRule == nil {
		baseRule = m.registry.ruleFor(base, dest.Type())
	}

	b, ok := m.registry.resolveBinding(src.Interface(), base)
	if !ok {
		if dest.Kind() == reflect.Interface {
			return m.mapToInterface(src, dest, st)
		}
		rule, found := m.registry.lookup(srcType, dest.Type())
		if !found && !baseRule.convention {
			rule = m.registry.narrow(newPair(srcType, dest.Type()), baseRule)
		}
		return m.mapResolved(src, dest, rule, st)
	}
	st.dispatched = true

	m.config.logger.Debug("polymorphic dispatch",
		slog.String("base", typeName(base)),
		slog.String("runtime", typeName(srcType)),
		slog.String("dest", typeName(b.dest)),
	)

	ruleFor := func(destType reflect.Type) *typeMap {
		if rule, ok := m.registry.lookup(srcType, destType); ok {
			return rule
		}
		if baseRule.convention {
			return m.registry.convention(srcType, destType)
		}
		return m.registry.narrow(newPair(srcType, destType), baseRule)
	}

	destType := dest.Type()
	if destType.Kind() != reflect.Interface {
		// a concrete destination can only hold the base shape
		return m.mapResolved(src, dest, ruleFor(destType), st)
	}

	if !dest.IsNil() {
		cur := dest.Elem()
		if cur.Kind() == reflect.Pointer && !cur.IsNil() && cur.Type().Elem() == b.dest {
			return m.mapResolved(src, cur, ruleFor(b.dest), st)
		}
	}

	var holder, work reflect.Value
	switch {
	case reflect.PointerTo(b.dest).Implements(destType) && src.Kind() == reflect.Pointer,
		!b.dest.Implements(destType) && reflect.PointerTo(b.dest).Implements(destType):
		holder = reflect.New(b.dest)
		work = holder.Elem()
	case b.dest.Implements(destType):
		holder = reflect.New(b.dest).Elem()
		work = holder
	default:
		m.config.logger.Debug("bound destination does not fit",
			slog.String("dest", typeName(b.dest)),
			slog.String("static", typeName(destType)),
		)
		return m.mapToInterface(src, dest, st)
	}

	if err := m.mapResolved(src, work, ruleFor(b.dest), st); err != nil {
		return err
	}
	dest.Set(holder)
	return nil
}

// mapResolved maps a non-null concrete src into dest by shape.
func (m *Mapper) mapResolved(src, dest reflect.Value, tm *typeMap, st mapState) error {
	if dest.Kind() == reflect.Interface {
		return m.mapToInterface(src, dest, st)
	}

	srcShape, destShape := Classify(src.Type()), Classify(dest.Type())
	switch {
	case srcShape == ShapeCollection && destShape == ShapeCollection:
		return m.mapCollection(src, dest, st)
	case srcShape == ShapeComposite && destShape == ShapeComposite:
		return m.mapComposite(src, dest, tm, st)
	default:
		m.assignScalar(src, dest)
		return nil
	}
}

// mapToInterface fills an interface-typed destination that has no bound
// derived type: an existing object is updated in place, then the source's
// default destination is tried, then direct assignment.
func (m *Mapper) mapToInterface(src, dest reflect.Value, st mapState) error {
	destType := dest.Type()
	srcType := src.Type()

	if !dest.IsNil() {
		cur := dest.Elem()
		if cur.Kind() == reflect.Pointer && !cur.IsNil() &&
			Classify(cur.Type()) == ShapeComposite && Classify(srcType) == ShapeComposite {
			return m.mapComposite(src, cur, m.registry.nestedRuleFor(srcType, cur.Type()), st)
		}
	}

	if d, ok := m.registry.DefaultDestination(srcType); ok {
		var holder, work reflect.Value
		switch {
		case reflect.PointerTo(d).Implements(destType) && (srcType.Kind() == reflect.Pointer || !d.Implements(destType)):
			holder = reflect.New(d)
			work = holder.Elem()
		case d.Implements(destType):
			holder = reflect.New(d).Elem()
			work = holder
		}
		if holder.IsValid() {
			if err := m.mapResolved(src, work, m.registry.ruleFor(srcType, d), st); err != nil {
				return err
			}
			dest.Set(holder)
			return nil
		}
	}

	if srcType.AssignableTo(destType) {
		dest.Set(src)
		return nil
	}
	m.config.logger.Debug("destination cannot be instantiated",
		slog.String("source", typeName(srcType)),
		slog.String("dest", typeName(destType)),
	)
	return nil
}

// mapComposite maps the fields of a struct (or pointer to struct) src into
// dest, allocating dest when it is a nil pointer.
func (m *Mapper) mapComposite(src, dest reflect.Value, tm *typeMap, st mapState) error {
	if m.config.maxDepth > 0 && st.depth >= m.config.maxDepth {
		return errorc.With(ErrMaxDepth,
			errorc.String(ErrorFieldSourceType, typeName(src.Type())),
			errorc.String(ErrorFieldDestType, typeName(dest.Type())),
		)
	}

	for dest.Kind() == reflect.Pointer {
		if dest.IsNil() {
			if !dest.CanSet() {
				return nil
			}
			dest.Set(reflect.New(dest.Type().Elem()))
		}
		dest = dest.Elem()
	}
	src = derefValue(src)
	if !src.IsValid() || src.Kind() != reflect.Struct || dest.Kind() != reflect.Struct {
		return nil
	}

	if tm == nil {
		tm = m.registry.ruleFor(src.Type(), dest.Type())
	}
	st = st.enter(tm)
	st.depth++

	if m.canUseCompiled(tm, st) {
		return m.compiledFor(tm).run(m, src, dest, tm, st)
	}
	return m.mapStructStandard(src, dest, tm, st)
}

// mapStructStandard performs reflection-based struct mapping.
func (m *Mapper) mapStructStandard(src, dest reflect.Value, tm *typeMap, st mapState) error {
	if err := tm.runHooks(tm.rule.BeforeMap, src, dest); err != nil {
		return err
	}
	for _, mp := range m.plan(tm).members {
		if err := m.mapMember(src, dest, mp, tm, st); err != nil {
			return err
		}
	}
	return tm.runHooks(tm.rule.AfterMap, src, dest)
}

// mapMember populates one destination field.
func (m *Mapper) mapMember(src, dest reflect.Value, mp *memberPlan, tm *typeMap, st mapState) error {
	var val reflect.Value
	switch mp.kind {
	case memberResolver:
		out, ok := m.callResolver(mp, src)
		if !ok {
			return nil
		}
		val = reflect.ValueOf(out)
	case memberFlatten:
		val = readPath(src, mp.path)
	default:
		val = mp.src.Get(src)
	}

	if mp.transformer != nil {
		out, ok := m.callTransformer(mp, val)
		if !ok {
			return nil
		}
		val = reflect.ValueOf(out)
	}
	return m.writeMember(val, dest, mp.dest, tm, st)
}

// writeMember writes a source value into the field fd of dest following the
// null policy, then by shape. Scalars and nulls go through the field's
// setter; collections and composites are filled in place.
func (m *Mapper) writeMember(val, dest reflect.Value, fd *FieldDescriptor, tm *typeMap, st mapState) error {
	if isNull(val) {
		if st.skip || !isNillable(fd.Type) {
			return nil
		}
		if st.preserve && Classify(fd.Type) == ShapeComposite {
			return nil
		}
		fd.Set(dest, reflect.Zero(fd.Type))
		return nil
	}

	concrete := val
	if concrete.Kind() == reflect.Interface {
		concrete = concrete.Elem()
	}
	srcShape, destShape := Classify(concrete.Type()), Classify(fd.Type)

	switch {
	case srcShape == ShapeCollection && destShape == ShapeCollection:
		field := fd.Field(dest)
		if !field.IsValid() {
			return nil
		}
		return m.mapCollection(concrete, field, st)

	case srcShape == ShapeComposite && destShape == ShapeComposite && tm.rule.Nested == NestedMap:
		field := fd.Field(dest)
		if !field.IsValid() {
			return nil
		}
		nst := st.nested()
		if val.Kind() == reflect.Interface {
			return m.mapPolymorphic(val.Type(), concrete, field, nil, nst)
		}
		if field.Kind() == reflect.Interface {
			return m.mapToInterface(concrete, field, nst)
		}
		return m.mapComposite(concrete, field, m.registry.nestedRuleFor(concrete.Type(), field.Type()), nst)

	default:
		if out, ok := m.scalarValue(concrete, fd.Type); ok {
			fd.Set(dest, out)
		}
		return nil
	}
}

func (m *Mapper) callResolver(mp *memberPlan, src reflect.Value) (out any, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			m.config.logger.Debug("resolver failed",
				slog.String("field", mp.dest.Name),
				slog.String("panic", fmt.Sprint(p)),
			)
			out, ok = nil, false
		}
	}()
	return mp.resolver(src.Interface()), true
}

func (m *Mapper) callTransformer(mp *memberPlan, val reflect.Value) (out any, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			m.config.logger.Debug("transformer failed",
				slog.String("field", mp.src.Name),
				slog.String("panic", fmt.Sprint(p)),
			)
			out, ok = nil, false
		}
	}()
	var in any
	if val.IsValid() {
		in = val.Interface()
	}
	return mp.transformer(in), true
}

// applyConverter writes src into dest through a converter registered for
// the exact pair. It reports whether such a converter exists; a failing
// converter leaves dest unchanged.
func (m *Mapper) applyConverter(src, dest reflect.Value) bool {
	fn, ok := m.registry.ResolveConverter(src.Type(), dest.Type())
	if !ok {
		return false
	}
	out, err := func() (out reflect.Value, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = conversionError(src.Type(), dest.Type(), fmt.Sprint(p))
			}
		}()
		return callConverter(fn, src, dest.Type())
	}()
	if err != nil {
		m.config.logger.Debug("conversion failed",
			slog.String("source", typeName(src.Type())),
			slog.String("dest", typeName(dest.Type())),
			slog.Any("error", err),
		)
		return true
	}
	dest.Set(out)
	return true
}
