package automapping

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/singleflight"
)

// MetadataCache caches per-type field metadata and compiled accessors.
// Entries are built once per type on first access and shared until Reset.
// A MetadataCache is safe for concurrent use.
type MetadataCache struct {
	types sync.Map // reflect.Type -> *TypeMetadata
	group singleflight.Group
}

// TypeMetadata holds cached information about a struct type.
type TypeMetadata struct {
	typ      reflect.Type
	fields   []*FieldDescriptor
	byName   map[string]*FieldDescriptor
	embedded []reflect.Type
}

// FieldDescriptor describes one readable and writable field of a struct type,
// including fields promoted from embedded structs.
type FieldDescriptor struct {
	Name  string
	Type  reflect.Type
	Index []int

	owner reflect.Type
	get   func(reflect.Value) reflect.Value
	set   func(reflect.Value, reflect.Value) bool
}

// NewMetadataCache creates an empty metadata cache.
func NewMetadataCache() *MetadataCache {
	return &MetadataCache{}
}

// Metadata returns the metadata for t. Pointer types are resolved to their
// element type. Types that are not structs yield metadata with no fields.
func (c *MetadataCache) Metadata(t reflect.Type) *TypeMetadata {
	t = indirectType(t)
	if t == nil {
		return &TypeMetadata{byName: map[string]*FieldDescriptor{}}
	}
	if md, ok := c.types.Load(t); ok {
		return md.(*TypeMetadata)
	}

	v, _, _ := c.group.Do(cacheKey(t), func() (any, error) {
		if md, ok := c.types.Load(t); ok {
			return md, nil
		}
		md, _ := c.types.LoadOrStore(t, buildTypeMetadata(t))
		return md, nil
	})
	return v.(*TypeMetadata)
}

// Fields returns the ordered field descriptors of t.
func (c *MetadataCache) Fields(t reflect.Type) []*FieldDescriptor {
	return c.Metadata(t).fields
}

// Accessor returns the descriptor of the field called name on t. Matching is
// case-insensitive and the first declared match wins. The returned pointer is
// identical across calls until Reset.
func (c *MetadataCache) Accessor(t reflect.Type, name string) (*FieldDescriptor, bool) {
	return c.Metadata(t).Lookup(name)
}

// Reset drops every cached entry. Later lookups rebuild metadata.
func (c *MetadataCache) Reset() {
	c.types.Clear()
}

// Type returns the struct type the metadata describes.
func (md *TypeMetadata) Type() reflect.Type { return md.typ }

// Fields returns the ordered field descriptors.
func (md *TypeMetadata) Fields() []*FieldDescriptor { return md.fields }

// Lookup finds a field by case-insensitive name.
func (md *TypeMetadata) Lookup(name string) (*FieldDescriptor, bool) {
	fd, ok := md.byName[strings.ToLower(name)]
	return fd, ok
}

// Embedded returns the types of the anonymous struct fields, in declaration
// order. They act as the base types of the struct.
func (md *TypeMetadata) Embedded() []reflect.Type { return md.embedded }

// Owner returns the struct type the field was collected from.
func (fd *FieldDescriptor) Owner() reflect.Type { return fd.owner }

// Get reads the field from the struct value v. A nil embedded pointer along
// the path yields an invalid Value.
func (fd *FieldDescriptor) Get(v reflect.Value) reflect.Value {
	return fd.get(v)
}

// Set writes x into the field of the addressable struct value v, or of the
// struct v points to, allocating nil embedded pointers on the way. It reports
// whether the write happened: a nil v, an unreachable field or an x that is
// not assignable to the field leave it untouched.
func (fd *FieldDescriptor) Set(v, x reflect.Value) bool {
	return fd.set(v, x)
}

// Field returns the settable field Value inside v, allocating nil embedded
// pointers on the way. It returns an invalid Value when the field cannot be
// reached for writing.
func (fd *FieldDescriptor) Field(v reflect.Value) reflect.Value {
	return writableField(derefPointer(v), fd.Index)
}

func buildTypeMetadata(t reflect.Type) *TypeMetadata {
	md := &TypeMetadata{
		typ:    t,
		byName: make(map[string]*FieldDescriptor),
	}
	if t.Kind() != reflect.Struct {
		return md
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && indirectType(f.Type).Kind() == reflect.Struct {
			md.embedded = append(md.embedded, indirectType(f.Type))
		}
	}

	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && indirectType(f.Type).Kind() == reflect.Struct {
			continue
		}
		fd := newFieldDescriptor(t, f)
		md.fields = append(md.fields, fd)
		key := strings.ToLower(f.Name)
		if _, dup := md.byName[key]; !dup {
			md.byName[key] = fd
		}
	}
	return md
}

func newFieldDescriptor(owner reflect.Type, f reflect.StructField) *FieldDescriptor {
	index := append([]int(nil), f.Index...)
	fd := &FieldDescriptor{
		Name:  f.Name,
		Type:  f.Type,
		Index: index,
		owner: owner,
	}

	if len(index) == 1 {
		i := index[0]
		fd.get = func(v reflect.Value) reflect.Value {
			v = derefValue(v)
			if !v.IsValid() || v.Kind() != reflect.Struct {
				return reflect.Value{}
			}
			return v.Field(i)
		}
		fd.set = func(v, x reflect.Value) bool {
			v = derefPointer(v)
			if v.Kind() != reflect.Struct {
				return false
			}
			return assign(v.Field(i), x)
		}
		return fd
	}

	fd.get = func(v reflect.Value) reflect.Value {
		return getNestedField(v, index)
	}
	fd.set = func(v, x reflect.Value) bool {
		return assign(writableField(derefPointer(v), index), x)
	}
	return fd
}

// assign sets field to x when field is settable and x fits its type.
func assign(field, x reflect.Value) bool {
	if !field.IsValid() || !field.CanSet() || !x.IsValid() || !x.Type().AssignableTo(field.Type()) {
		return false
	}
	field.Set(x)
	return true
}

// writableField walks index from v, allocating nil embedded pointers.
func writableField(v reflect.Value, index []int) reflect.Value {
	for n, i := range index {
		if n > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	if !v.CanSet() {
		return reflect.Value{}
	}
	return v
}

// getNestedField gets a field value using nested indices.
func getNestedField(v reflect.Value, indices []int) reflect.Value {
	v = derefValue(v)
	if !v.IsValid() {
		return reflect.Value{}
	}

	for _, idx := range indices {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || idx >= v.NumField() {
			return reflect.Value{}
		}
		v = v.Field(idx)
	}

	return v
}

// derefValue dereferences pointers and interfaces. A nil along the way
// yields an invalid Value.
func derefValue(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// derefPointer follows non-nil pointers. A nil pointer yields an invalid
// Value.
func derefPointer(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// cacheKey is unique per type; String alone collides for identically named
// function-local types.
func cacheKey(t reflect.Type) string {
	return fmt.Sprintf("%s#%p", t, t)
}

// splitPascalCase splits a PascalCase string into individual words.
// Example: "CustomerName" -> ["Customer", "Name"]
func splitPascalCase(s string) []string {
	if len(s) == 0 {
		return nil
	}

	var words []string
	var current []rune

	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 && len(current) > 0 {
			words = append(words, string(current))
			current = nil
		}
		current = append(current, r)
	}

	if len(current) > 0 {
		words = append(words, string(current))
	}

	return words
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
