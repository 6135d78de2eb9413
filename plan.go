package automapping

import (
	"reflect"
	"strings"
)

type memberKind int

const (
	memberField memberKind = iota
	memberResolver
	memberFlatten
)

// memberPlan describes how one destination field is populated.
type memberPlan struct {
	kind        memberKind
	dest        *FieldDescriptor
	src         *FieldDescriptor
	path        []*FieldDescriptor
	resolver    Resolver
	transformer Transformer
}

// mappingPlan is the resolved member list of a rule, in destination field
// order. Destination fields with no source are absent.
type mappingPlan struct {
	tm      *typeMap
	members []*memberPlan
}

func (m *Mapper) plan(tm *typeMap) *mappingPlan {
	m.syncCaches()
	if p, ok := m.plans.Load(tm); ok {
		return p.(*mappingPlan)
	}
	p, _ := m.plans.LoadOrStore(tm, buildPlan(m.registry.metadata, tm, m.config.flattening))
	return p.(*mappingPlan)
}

func buildPlan(cache *MetadataCache, tm *typeMap, flatten bool) *mappingPlan {
	srcMeta := cache.Metadata(tm.pair.Source)
	destMeta := cache.Metadata(tm.pair.Dest)
	p := &mappingPlan{tm: tm}

	for _, destField := range destMeta.Fields() {
		key := strings.ToLower(destField.Name)
		if tm.ignoredDest[key] {
			continue
		}
		if fn, ok := tm.resolvers[key]; ok {
			p.members = append(p.members, &memberPlan{kind: memberResolver, dest: destField, resolver: fn})
			continue
		}

		srcName, renamed := tm.renames[key]
		if !renamed {
			srcName = destField.Name
		}
		srcField, ok := srcMeta.Lookup(srcName)
		if !ok {
			if flatten && !renamed {
				if path := flattenPath(cache, srcMeta, destField.Name); path != nil && !tm.ignored[strings.ToLower(path[0].Name)] {
					p.members = append(p.members, &memberPlan{kind: memberFlatten, dest: destField, path: path})
				}
			}
			continue
		}
		srcKey := strings.ToLower(srcField.Name)
		if tm.ignored[srcKey] {
			continue
		}
		p.members = append(p.members, &memberPlan{
			kind:        memberField,
			dest:        destField,
			src:         srcField,
			transformer: tm.transformers[srcKey],
		})
	}
	return p
}

// flattenPath matches a flattened destination name against nested source
// fields: CustomerName -> Customer.Name.
func flattenPath(cache *MetadataCache, srcMeta *TypeMetadata, name string) []*FieldDescriptor {
	words := splitPascalCase(name)
	if len(words) < 2 {
		return nil
	}

	var path []*FieldDescriptor
	current := srcMeta
	for i, part := range words {
		field, ok := current.Lookup(part)
		if !ok {
			return nil
		}
		path = append(path, field)
		if i == len(words)-1 {
			break
		}
		next := indirectType(field.Type)
		if next.Kind() != reflect.Struct {
			return nil
		}
		current = cache.Metadata(next)
	}
	return path
}

// readPath follows a flattened path. A nil pointer along the way yields an
// invalid Value.
func readPath(src reflect.Value, path []*FieldDescriptor) reflect.Value {
	v := src
	for _, fd := range path {
		v = fd.Get(v)
		if !v.IsValid() {
			return v
		}
	}
	return v
}
