package automapping

import (
	"reflect"
	"unsafe"
)

// OptimizationLevel represents the level of optimization to apply.
type OptimizationLevel int

const (
	// OptimizationNone maps every pair through the general member path.
	OptimizationNone OptimizationLevel = iota
	// OptimizationCompiled caches a compiled mapper per rule that copies
	// same-typed scalar fields directly (default).
	OptimizationCompiled
	// OptimizationUnsafe additionally copies pointer-free scalar fields
	// through typed unsafe stores.
	OptimizationUnsafe
)

// compiledMember is one destination field of a compiled mapper.
type compiledMember struct {
	plan *memberPlan
	// direct copies the source field as-is: same type, top-level on both
	// sides, scalar and never nil.
	direct     bool
	srcIdx     int
	srcOffset  uintptr
	destOffset uintptr
	size       uintptr
	kind       reflect.Kind
}

// compiledMapper is the cached fast path for one rule.
type compiledMapper struct {
	members []compiledMember
	unsafe  bool
}

// canUseCompiled reports whether tm may run on the fast path: no resolvers,
// transformers or hooks, not a partial call, and no derived dispatch.
func (m *Mapper) canUseCompiled(tm *typeMap, st mapState) bool {
	return m.config.optLevel >= OptimizationCompiled &&
		!st.partial && !st.dispatched && !tm.hasCustomLogic()
}

func (m *Mapper) compiledFor(tm *typeMap) *compiledMapper {
	m.syncCaches()
	if cm, ok := m.compiled.Load(tm); ok {
		return cm.(*compiledMapper)
	}
	cm, _ := m.compiled.LoadOrStore(tm, compileMapper(m.plan(tm), m.config.optLevel))
	return cm.(*compiledMapper)
}

func compileMapper(p *mappingPlan, level OptimizationLevel) *compiledMapper {
	cm := &compiledMapper{
		members: make([]compiledMember, len(p.members)),
		unsafe:  level >= OptimizationUnsafe,
	}
	srcType, destType := p.tm.pair.Source, p.tm.pair.Dest

	for i, mp := range p.members {
		cmm := compiledMember{plan: mp}
		if mp.kind == memberField && len(mp.src.Index) == 1 && len(mp.dest.Index) == 1 &&
			mp.src.Type == mp.dest.Type && Classify(mp.src.Type) == ShapeScalar && !isNillable(mp.src.Type) {
			srcField := srcType.Field(mp.src.Index[0])
			destField := destType.Field(mp.dest.Index[0])
			cmm.direct = true
			cmm.srcIdx = mp.src.Index[0]
			cmm.srcOffset = srcField.Offset
			cmm.destOffset = destField.Offset
			cmm.size = srcField.Type.Size()
			cmm.kind = srcField.Type.Kind()
		}
		cm.members[i] = cmm
	}
	return cm
}

func (cm *compiledMapper) run(m *Mapper, src, dest reflect.Value, tm *typeMap, st mapState) error {
	useUnsafe := cm.unsafe && src.CanAddr() && dest.CanAddr()
	var srcPtr, destPtr unsafe.Pointer
	if useUnsafe {
		srcPtr = unsafe.Pointer(src.UnsafeAddr())
		destPtr = unsafe.Pointer(dest.UnsafeAddr())
	}

	for i := range cm.members {
		mm := &cm.members[i]
		if !mm.direct {
			if err := m.mapMember(src, dest, mm.plan, tm, st); err != nil {
				return err
			}
			continue
		}
		if useUnsafe && unsafeCopyField(srcPtr, destPtr, mm) {
			continue
		}
		mm.plan.dest.Set(dest, src.Field(mm.srcIdx))
	}
	return nil
}

// unsafeCopyField copies a primitive field between structs. Strings use a
// typed store so the write barrier runs; kinds holding other pointers are
// refused.
func unsafeCopyField(srcPtr, destPtr unsafe.Pointer, mm *compiledMember) bool {
	src := unsafe.Add(srcPtr, mm.srcOffset)
	dest := unsafe.Add(destPtr, mm.destOffset)

	switch mm.kind {
	case reflect.String:
		*(*string)(dest) = *(*string)(src)
		return true
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
	default:
		return false
	}

	switch mm.size {
	case 1:
		*(*uint8)(dest) = *(*uint8)(src)
	case 2:
		*(*uint16)(dest) = *(*uint16)(src)
	case 4:
		*(*uint32)(dest) = *(*uint32)(src)
	case 8:
		*(*uint64)(dest) = *(*uint64)(src)
	default:
		copy(unsafe.Slice((*byte)(dest), mm.size), unsafe.Slice((*byte)(src), mm.size))
	}
	return true
}
