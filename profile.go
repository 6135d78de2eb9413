package automapping

import (
	"errors"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/ygrebnov/errorc"
	"gopkg.in/yaml.v3"
)

// Profile groups related registrations.
type Profile interface {
	Configure(r *Registry) error
}

// ProfileFunc adapts a function to a Profile.
type ProfileFunc func(r *Registry) error

// Configure calls f(r).
func (f ProfileFunc) Configure(r *Registry) error { return f(r) }

// AddProfiles configures every profile in order and stops at the first
// error.
func (r *Registry) AddProfiles(profiles ...Profile) error {
	for _, p := range profiles {
		if p == nil {
			continue
		}
		if err := p.Configure(r); err != nil {
			return err
		}
	}
	return nil
}

// TypeCatalog names the types and functions a declarative profile may refer
// to.
type TypeCatalog struct {
	mu           sync.RWMutex
	types        map[string]reflect.Type
	transformers map[string]Transformer
	resolvers    map[string]Resolver
}

// NewTypeCatalog creates an empty catalog.
func NewTypeCatalog() *TypeCatalog {
	return &TypeCatalog{
		types:        make(map[string]reflect.Type),
		transformers: make(map[string]Transformer),
		resolvers:    make(map[string]Resolver),
	}
}

// AddType registers t under name.
func (c *TypeCatalog) AddType(name string, t reflect.Type) *TypeCatalog {
	c.mu.Lock()
	c.types[name] = t
	c.mu.Unlock()
	return c
}

// AddTransformer registers fn under name.
func (c *TypeCatalog) AddTransformer(name string, fn Transformer) *TypeCatalog {
	c.mu.Lock()
	c.transformers[name] = fn
	c.mu.Unlock()
	return c
}

// AddResolver registers fn under name.
func (c *TypeCatalog) AddResolver(name string, fn Resolver) *TypeCatalog {
	c.mu.Lock()
	c.resolvers[name] = fn
	c.mu.Unlock()
	return c
}

// CatalogType registers T under name, or under its Go type name when name
// is empty.
func CatalogType[T any](c *TypeCatalog, name string) *TypeCatalog {
	t := reflect.TypeFor[T]()
	if name == "" {
		name = t.Name()
	}
	return c.AddType(name, t)
}

func (c *TypeCatalog) lookupType(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

// ProfileFile is the YAML form of a profile.
//
//	version: "1"
//	mappings:
//	  - source: Order
//	    dest: OrderDTO
//	    nulls: skip
//	    rename: {Buyer: CustomerName}
//	    ignore: [Internal]
//	    transform: {Status: upper}
//	    reverse: true
//	    include:
//	      - derived: RushOrder
//	        dest: RushOrderDTO
type ProfileFile struct {
	Version  string           `yaml:"version,omitempty"`
	Mappings []ProfileMapping `yaml:"mappings"`
}

// ProfileMapping declares the rule of one pair.
type ProfileMapping struct {
	Source              string            `yaml:"source"`
	Dest                string            `yaml:"dest"`
	Nulls               string            `yaml:"nulls,omitempty"`
	PreserveNestedNulls bool              `yaml:"preserve_nested_nulls,omitempty"`
	Nested              *bool             `yaml:"nested,omitempty"`
	Rename              map[string]string `yaml:"rename,omitempty"`
	Ignore              StringList        `yaml:"ignore,omitempty"`
	Transform           map[string]string `yaml:"transform,omitempty"`
	Resolve             map[string]string `yaml:"resolve,omitempty"`
	Reverse             bool              `yaml:"reverse,omitempty"`
	Include             []ProfileInclude  `yaml:"include,omitempty"`
}

// ProfileInclude declares a derived binding under the mapping's source type.
type ProfileInclude struct {
	Derived string `yaml:"derived"`
	Dest    string `yaml:"dest"`
}

// StringList accepts a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList.
func (s *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = []string{single}
		return nil
	}

	var multi []string
	if err := unmarshal(&multi); err == nil {
		*s = multi
		return nil
	}

	return errors.New("expected string or list of strings")
}

// ParseProfile parses YAML profile data.
func ParseProfile(data []byte) (*ProfileFile, error) {
	var pf ProfileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, errorc.With(ErrProfile, errorc.String(ErrorFieldCause, err.Error()))
	}
	if pf.Version == "" {
		pf.Version = "1"
	}
	return &pf, nil
}

// LoadProfileFile reads and parses a YAML profile from path.
func LoadProfileFile(path string) (*ProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorc.With(ErrProfile, errorc.String(ErrorFieldCause, err.Error()))
	}
	return ParseProfile(data)
}

// Bind resolves names against catalog and returns a Profile that registers
// the declared mappings.
func (pf *ProfileFile) Bind(catalog *TypeCatalog) Profile {
	return ProfileFunc(func(r *Registry) error {
		for i := range pf.Mappings {
			if err := pf.Mappings[i].apply(r, catalog, i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (pm *ProfileMapping) apply(r *Registry, catalog *TypeCatalog, i int) error {
	entry := strconv.Itoa(i)
	fail := func(option, cause string) error {
		return errorc.With(ErrProfile,
			errorc.String(ErrorFieldEntry, entry),
			errorc.String(ErrorFieldOption, option),
			errorc.String(ErrorFieldCause, cause),
		)
	}

	src, ok := catalog.lookupType(pm.Source)
	if !ok {
		return fail("source", "unknown type "+pm.Source)
	}
	dest, ok := catalog.lookupType(pm.Dest)
	if !ok {
		return fail("dest", "unknown type "+pm.Dest)
	}

	rule := MappingRule{
		Renames:             pm.Rename,
		Ignored:             pm.Ignore,
		PreserveNestedNulls: pm.PreserveNestedNulls,
	}
	switch strings.ToLower(pm.Nulls) {
	case "", "propagate":
	case "skip", "ignore":
		rule.NullPolicy = NullSkip
	default:
		return fail("nulls", "unknown policy "+pm.Nulls)
	}
	if pm.Nested != nil && !*pm.Nested {
		rule.Nested = NestedAssign
	}

	catalog.mu.RLock()
	for field, name := range pm.Transform {
		fn, ok := catalog.transformers[name]
		if !ok {
			catalog.mu.RUnlock()
			return fail("transform", "unknown transformer "+name)
		}
		if rule.Transformers == nil {
			rule.Transformers = make(map[string]Transformer)
		}
		rule.Transformers[field] = fn
	}
	for field, name := range pm.Resolve {
		fn, ok := catalog.resolvers[name]
		if !ok {
			catalog.mu.RUnlock()
			return fail("resolve", "unknown resolver "+name)
		}
		if rule.Resolvers == nil {
			rule.Resolvers = make(map[string]Resolver)
		}
		rule.Resolvers[field] = fn
	}
	catalog.mu.RUnlock()

	if err := r.Register(src, dest, rule); err != nil {
		return err
	}
	if pm.Reverse {
		if err := r.Register(dest, src, rule.Reverse()); err != nil {
			return err
		}
	}
	for _, inc := range pm.Include {
		derived, ok := catalog.lookupType(inc.Derived)
		if !ok {
			return fail("include", "unknown type "+inc.Derived)
		}
		derivedDest, ok := catalog.lookupType(inc.Dest)
		if !ok {
			return fail("include", "unknown type "+inc.Dest)
		}
		if err := r.Include(src, derived, derivedDest, nil); err != nil {
			return err
		}
	}
	return nil
}

// LoadProfile parses YAML profile data and registers its mappings in r.
func LoadProfile(r *Registry, catalog *TypeCatalog, data []byte) error {
	pf, err := ParseProfile(data)
	if err != nil {
		return err
	}
	return r.AddProfiles(pf.Bind(catalog))
}
