package mapping

import (
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/forbearing/docsession/session"
)

// Registry is the default session.MappingRegistry: a fixed set of mappings
// registered at startup, looked up by the reflect.Type of the entity's
// pointer receiver. A small LRU front-caches the reflect.TypeOf/map-lookup
// pair for the types seen most often in a given run; the registry itself
// never evicts a registered mapping.
type Registry struct {
	byType map[reflect.Type]session.EntityMapping
	cache  *lru.Cache[reflect.Type, session.EntityMapping]
}

// NewRegistry builds an empty Registry. cacheSize bounds the lookup cache;
// 256 is used when <= 0.
func NewRegistry(cacheSize int) *Registry {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, _ := lru.New[reflect.Type, session.EntityMapping](cacheSize)
	return &Registry{
		byType: make(map[reflect.Type]session.EntityMapping),
		cache:  c,
	}
}

// Register associates m with the type of sample, which must be a pointer
// to the mapped struct (e.g. (*User)(nil)).
func (r *Registry) Register(sample any, m session.EntityMapping) {
	t := reflect.TypeOf(sample)
	r.byType[t] = m
	r.cache.Add(t, m)
}

var _ session.MappingRegistry = (*Registry)(nil)

// GetMappingForObject resolves the mapping for a live entity instance.
func (r *Registry) GetMappingForObject(obj any) (session.EntityMapping, bool) {
	return r.lookup(reflect.TypeOf(obj))
}

// GetMappingForConstructor resolves the mapping for a type given only a
// sample/zero value of that type, e.g. (*User)(nil).
func (r *Registry) GetMappingForConstructor(ctor any) (session.EntityMapping, bool) {
	return r.lookup(reflect.TypeOf(ctor))
}

func (r *Registry) lookup(t reflect.Type) (session.EntityMapping, bool) {
	if t == nil {
		return nil, false
	}
	if m, ok := r.cache.Get(t); ok {
		return m, true
	}
	m, ok := r.byType[t]
	if ok {
		r.cache.Add(t, m)
	}
	return m, ok
}
