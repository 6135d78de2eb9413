package automapping

import (
	"encoding"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ygrebnov/errorc"
)

// TypeConverter converts a source value into a value of destType.
type TypeConverter func(src any, destType reflect.Type) (any, error)

var errorType = reflect.TypeFor[error]()

// ConvertUsing registers a typed converter from TSrc to TDest.
func ConvertUsing[TSrc, TDest any](r *Registry, fn func(TSrc) (TDest, error)) error {
	if fn == nil {
		return errorc.With(ErrInvalidConverter, errorc.String(ErrorFieldOption, "convert"))
	}
	return r.RegisterConverter(reflect.TypeFor[TSrc](), reflect.TypeFor[TDest](), func(src any, _ reflect.Type) (any, error) {
		v, ok := src.(TSrc)
		if !ok {
			return nil, errorc.With(ErrConversion,
				errorc.String(ErrorFieldSourceType, fmt.Sprintf("%T", src)),
				errorc.String(ErrorFieldDestType, typeName(reflect.TypeFor[TDest]())),
			)
		}
		return fn(v)
	})
}

// RegisterCaster registers a plain conversion function. Accepted shapes:
//
//	func(A) B
//	func(A) (B, error)
//	func(A) (B, bool)
//	func(A) (B, bool, error)
//
// A false bool result counts as a failed conversion.
func (r *Registry) RegisterCaster(fn any) error {
	fnVal := reflect.ValueOf(fn)
	if !fnVal.IsValid() || fnVal.Kind() != reflect.Func || fnVal.IsNil() {
		return errorc.With(ErrInvalidConverter, errorc.String(ErrorFieldCause, "not a function"))
	}
	fnType := fnVal.Type()
	if fnType.NumIn() != 1 || fnType.NumOut() == 0 || fnType.NumOut() > 3 {
		return errorc.With(ErrInvalidConverter, errorc.String(ErrorFieldCause, "signature "+fnType.String()))
	}

	var hasBool, hasErr bool
	switch fnType.NumOut() {
	case 2:
		switch last := fnType.Out(1); {
		case last.Kind() == reflect.Bool:
			hasBool = true
		case last == errorType:
			hasErr = true
		default:
			return errorc.With(ErrInvalidConverter, errorc.String(ErrorFieldCause, "signature "+fnType.String()))
		}
	case 3:
		if fnType.Out(1).Kind() != reflect.Bool || fnType.Out(2) != errorType {
			return errorc.With(ErrInvalidConverter, errorc.String(ErrorFieldCause, "signature "+fnType.String()))
		}
		hasBool, hasErr = true, true
	}

	from, to := fnType.In(0), fnType.Out(0)
	return r.RegisterConverter(from, to, func(src any, _ reflect.Type) (any, error) {
		in := reflect.ValueOf(src)
		if !in.IsValid() {
			in = reflect.Zero(from)
		}
		out := fnVal.Call([]reflect.Value{in})
		if hasErr {
			if err, _ := out[len(out)-1].Interface().(error); err != nil {
				return nil, err
			}
		}
		if hasBool && !out[1].Bool() {
			return nil, errorc.With(ErrConversion,
				errorc.String(ErrorFieldSourceType, typeName(from)),
				errorc.String(ErrorFieldDestType, typeName(to)),
			)
		}
		return out[0].Interface(), nil
	})
}

// Convert converts value to type to using the registry's converters first
// and built-in coercion second.
func (r *Registry) Convert(value any, to reflect.Type) (any, error) {
	v := reflect.ValueOf(value)
	if !v.IsValid() || to == nil {
		return nil, errorc.With(ErrConversion,
			errorc.String(ErrorFieldSourceType, "<nil>"),
			errorc.String(ErrorFieldDestType, typeName(to)),
		)
	}
	out, err := r.convert(v, to)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// convert runs the fallback chain: exact registered converter, converter
// for the dereferenced source, then built-in coercion.
func (r *Registry) convert(src reflect.Value, to reflect.Type) (out reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = reflect.Value{}, conversionError(src.Type(), to, fmt.Sprint(p))
		}
	}()

	if fn, ok := r.ResolveConverter(src.Type(), to); ok {
		return callConverter(fn, src, to)
	}
	if src.Kind() == reflect.Pointer && !src.IsNil() {
		if fn, ok := r.ResolveConverter(src.Type().Elem(), to); ok {
			return callConverter(fn, src.Elem(), to)
		}
	}
	if to.Kind() == reflect.Pointer {
		if fn, ok := r.ResolveConverter(src.Type(), to.Elem()); ok {
			v, err := callConverter(fn, src, to.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			p := reflect.New(to.Elem())
			p.Elem().Set(v)
			return p, nil
		}
	}
	return coerce(src, to)
}

func callConverter(fn TypeConverter, src reflect.Value, to reflect.Type) (reflect.Value, error) {
	res, err := fn(src.Interface(), to)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.ValueOf(res)
	if !out.IsValid() {
		if isNillable(to) {
			return reflect.Zero(to), nil
		}
		return reflect.Value{}, conversionError(src.Type(), to, "converter returned nil")
	}
	if out.Type().AssignableTo(to) {
		return out, nil
	}
	return coerce(out, to)
}

func conversionError(from, to reflect.Type, cause string) error {
	if cause == "" {
		return errorc.With(ErrConversion,
			errorc.String(ErrorFieldSourceType, typeName(from)),
			errorc.String(ErrorFieldDestType, typeName(to)),
		)
	}
	return errorc.With(ErrConversion,
		errorc.String(ErrorFieldSourceType, typeName(from)),
		errorc.String(ErrorFieldDestType, typeName(to)),
		errorc.String(ErrorFieldCause, cause),
	)
}

// coerce converts between scalar representations: numbers, text, booleans,
// times, durations, UUIDs, text (un)marshalers and pointers to any of them.
func coerce(src reflect.Value, to reflect.Type) (reflect.Value, error) {
	if isNull(src) {
		return reflect.Value{}, conversionError(nil, to, "null value")
	}
	from := src.Type()
	if from.AssignableTo(to) {
		return src, nil
	}

	if src.Kind() == reflect.Interface || src.Kind() == reflect.Pointer {
		return coerce(src.Elem(), to)
	}
	if to.Kind() == reflect.Pointer {
		inner, err := coerce(src, to.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(to.Elem())
		p.Elem().Set(inner)
		return p, nil
	}

	if out, ok, err := coerceSpecial(src, to); ok {
		return out, err
	}
	if out, ok, err := coerceKinds(src, to); ok {
		return out, err
	}
	if from.Kind() == to.Kind() && from.ConvertibleTo(to) {
		return src.Convert(to), nil
	}
	return reflect.Value{}, conversionError(from, to, "")
}

func coerceSpecial(src reflect.Value, to reflect.Type) (reflect.Value, bool, error) {
	from := src.Type()
	fail := func(cause string) (reflect.Value, bool, error) {
		return reflect.Value{}, true, conversionError(from, to, cause)
	}

	switch {
	case to == timeType:
		switch {
		case from.Kind() == reflect.String:
			t, err := parseTime(src.String())
			if err != nil {
				return fail(err.Error())
			}
			return reflect.ValueOf(t), true, nil
		case isInt(from.Kind()):
			return reflect.ValueOf(time.Unix(src.Int(), 0).UTC()), true, nil
		case isUint(from.Kind()):
			if src.Uint() > math.MaxInt64 {
				return fail("overflow")
			}
			return reflect.ValueOf(time.Unix(int64(src.Uint()), 0).UTC()), true, nil
		}
	case from == timeType:
		t := src.Interface().(time.Time)
		switch {
		case to.Kind() == reflect.String:
			return reflect.ValueOf(t.Format(time.RFC3339Nano)).Convert(to), true, nil
		case isInt(to.Kind()):
			return setInt(reflect.New(to).Elem(), t.Unix(), from, to)
		}
	case to == durationType && from.Kind() == reflect.String:
		d, err := time.ParseDuration(strings.TrimSpace(src.String()))
		if err != nil {
			return fail(err.Error())
		}
		return reflect.ValueOf(d), true, nil
	case from == durationType && to.Kind() == reflect.String:
		return reflect.ValueOf(src.Interface().(time.Duration).String()).Convert(to), true, nil
	case to == uuidType:
		switch {
		case from.Kind() == reflect.String:
			id, err := uuid.Parse(strings.TrimSpace(src.String()))
			if err != nil {
				return fail(err.Error())
			}
			return reflect.ValueOf(id), true, nil
		case from.Kind() == reflect.Slice && from.Elem().Kind() == reflect.Uint8:
			id, err := uuid.FromBytes(src.Bytes())
			if err != nil {
				return fail(err.Error())
			}
			return reflect.ValueOf(id), true, nil
		}
	case from == uuidType && to.Kind() == reflect.String:
		return reflect.ValueOf(src.Interface().(uuid.UUID).String()).Convert(to), true, nil
	}

	if to.Kind() == reflect.String && from.Implements(textMarshalerType) {
		text, err := src.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return fail(err.Error())
		}
		return reflect.ValueOf(string(text)).Convert(to), true, nil
	}
	if from.Kind() == reflect.String && reflect.PointerTo(to).Implements(textUnmarshalerType) {
		p := reflect.New(to)
		if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(src.String())); err != nil {
			return fail(err.Error())
		}
		return p.Elem(), true, nil
	}
	return reflect.Value{}, false, nil
}

func coerceKinds(src reflect.Value, to reflect.Type) (reflect.Value, bool, error) {
	from := src.Type()
	out := reflect.New(to).Elem()
	fk, tk := from.Kind(), to.Kind()
	fail := func(cause string) (reflect.Value, bool, error) {
		return reflect.Value{}, true, conversionError(from, to, cause)
	}

	switch {
	case isNumber(fk) && isNumber(tk):
		return convertNumber(src, out)

	case fk == reflect.String && isNumber(tk):
		s := strings.TrimSpace(src.String())
		switch {
		case isInt(tk):
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fail(err.Error())
			}
			return setInt(out, n, from, to)
		case isUint(tk):
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return fail(err.Error())
			}
			return setUint(out, n, from, to)
		default:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fail(err.Error())
			}
			return setFloat(out, f, from, to)
		}

	case isNumber(fk) && tk == reflect.String:
		var s string
		switch {
		case isInt(fk):
			s = strconv.FormatInt(src.Int(), 10)
		case isUint(fk):
			s = strconv.FormatUint(src.Uint(), 10)
		default:
			s = strconv.FormatFloat(src.Float(), 'f', -1, from.Bits())
		}
		out.SetString(s)
		return out, true, nil

	case fk == reflect.String && tk == reflect.Bool:
		b, err := parseBool(src.String())
		if err != nil {
			return fail(err.Error())
		}
		out.SetBool(b)
		return out, true, nil

	case fk == reflect.Bool && tk == reflect.String:
		out.SetString(strconv.FormatBool(src.Bool()))
		return out, true, nil

	case fk == reflect.Bool && isNumber(tk):
		var n int64
		if src.Bool() {
			n = 1
		}
		switch {
		case isInt(tk):
			out.SetInt(n)
		case isUint(tk):
			out.SetUint(uint64(n))
		default:
			out.SetFloat(float64(n))
		}
		return out, true, nil

	case isNumber(fk) && tk == reflect.Bool:
		switch {
		case isInt(fk):
			out.SetBool(src.Int() != 0)
		case isUint(fk):
			out.SetBool(src.Uint() != 0)
		default:
			out.SetBool(src.Float() != 0)
		}
		return out, true, nil

	case fk == reflect.String && tk == reflect.Slice && to.Elem().Kind() == reflect.Uint8,
		fk == reflect.Slice && from.Elem().Kind() == reflect.Uint8 && tk == reflect.String:
		return src.Convert(to), true, nil
	}
	return reflect.Value{}, false, nil
}

func convertNumber(src, out reflect.Value) (reflect.Value, bool, error) {
	from, to := src.Type(), out.Type()
	switch {
	case isInt(from.Kind()):
		n := src.Int()
		switch {
		case isInt(to.Kind()):
			return setInt(out, n, from, to)
		case isUint(to.Kind()):
			if n < 0 {
				return reflect.Value{}, true, conversionError(from, to, "overflow")
			}
			return setUint(out, uint64(n), from, to)
		default:
			return setFloat(out, float64(n), from, to)
		}
	case isUint(from.Kind()):
		n := src.Uint()
		switch {
		case isInt(to.Kind()):
			if n > math.MaxInt64 {
				return reflect.Value{}, true, conversionError(from, to, "overflow")
			}
			return setInt(out, int64(n), from, to)
		case isUint(to.Kind()):
			return setUint(out, n, from, to)
		default:
			return setFloat(out, float64(n), from, to)
		}
	default:
		f := src.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			if isFloat(to.Kind()) {
				out.SetFloat(f)
				return out, true, nil
			}
			return reflect.Value{}, true, conversionError(from, to, "not a finite number")
		}
		switch {
		case isInt(to.Kind()):
			r := math.RoundToEven(f)
			if r < math.MinInt64 || r >= math.MaxInt64 {
				return reflect.Value{}, true, conversionError(from, to, "overflow")
			}
			return setInt(out, int64(r), from, to)
		case isUint(to.Kind()):
			r := math.RoundToEven(f)
			if r < 0 || r >= math.MaxUint64 {
				return reflect.Value{}, true, conversionError(from, to, "overflow")
			}
			return setUint(out, uint64(r), from, to)
		default:
			return setFloat(out, f, from, to)
		}
	}
}

func setInt(out reflect.Value, n int64, from, to reflect.Type) (reflect.Value, bool, error) {
	if out.OverflowInt(n) {
		return reflect.Value{}, true, conversionError(from, to, "overflow")
	}
	out.SetInt(n)
	return out, true, nil
}

func setUint(out reflect.Value, n uint64, from, to reflect.Type) (reflect.Value, bool, error) {
	if out.OverflowUint(n) {
		return reflect.Value{}, true, conversionError(from, to, "overflow")
	}
	out.SetUint(n)
	return out, true, nil
}

func setFloat(out reflect.Value, f float64, from, to reflect.Type) (reflect.Value, bool, error) {
	if out.OverflowFloat(f) {
		return reflect.Value{}, true, conversionError(from, to, "overflow")
	}
	out.SetFloat(f)
	return out, true, nil
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1", "t", "y":
		return true, nil
	case "false", "no", "off", "0", "f", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k)
}

// assignScalar writes src into dest directly when assignable, otherwise
// through the conversion chain. A failed conversion leaves dest unchanged.
func (m *Mapper) assignScalar(src, dest reflect.Value) {
	if out, ok := m.scalarValue(src, dest.Type()); ok {
		dest.Set(out)
	}
}

// scalarValue returns src as a value assignable to to, converting it when
// needed. A failed conversion is logged and reported as false.
func (m *Mapper) scalarValue(src reflect.Value, to reflect.Type) (reflect.Value, bool) {
	if src.Kind() == reflect.Interface {
		src = src.Elem()
	}
	if src.Type().AssignableTo(to) {
		return src, true
	}
	out, err := m.registry.convert(src, to)
	if err != nil {
		m.config.logger.Debug("conversion failed",
			slog.String("source", typeName(src.Type())),
			slog.String("dest", typeName(to)),
			slog.Any("error", err),
		)
		return reflect.Value{}, false
	}
	return out, true
}
