package automapping

import "github.com/ygrebnov/errorc"

const namespace = "automapping"

var ns = errorc.Namespace(namespace)

// Sentinel errors. Use errors.Is to match.
var (
	// ErrConfiguration is returned at registration when a rule names a field
	// that does not exist on its type, or a rule is otherwise malformed.
	ErrConfiguration = ns.NewError("invalid mapping configuration")
	// ErrUnresolvedMapping is returned by the type-inferring entry points when
	// no rule or default destination is registered for the source type.
	ErrUnresolvedMapping = ns.NewError("no mapping registered")
	// ErrConversion reports a failed scalar conversion. The executor recovers
	// it locally; it only escapes from Convert.
	ErrConversion = ns.NewError("conversion failed")
	// ErrUninstantiable reports a type with no zero-argument construction path.
	ErrUninstantiable = ns.NewError("type cannot be instantiated")
	ErrNilDestination   = ns.NewError("destination must be a non-nil pointer")
	ErrInvalidConverter = ns.NewError("invalid converter")
	ErrMaxDepth         = ns.NewError("maximum mapping depth exceeded")
	ErrProfile          = ns.NewError("invalid mapping profile")
)

var newKey = errorc.KeyFactory(namespace)

const (
	keySegmentType    = "type"
	keySegmentField   = "field"
	keySegmentProfile = "profile"
)

// Structured error field keys.
var (
	ErrorFieldSourceType = newKey("source", keySegmentType) // automapping.type.source
	ErrorFieldDestType   = newKey("dest", keySegmentType)   // automapping.type.dest
	ErrorFieldFieldName  = newKey("name", keySegmentField)  // automapping.field.name
	ErrorFieldOption     = newKey("option", keySegmentField)
	ErrorFieldEntry      = newKey("entry", keySegmentProfile)
	ErrorFieldIndex      = newKey("index")
	ErrorFieldCause      = newKey("cause")
)

func typeName(t interface{ String() string }) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
