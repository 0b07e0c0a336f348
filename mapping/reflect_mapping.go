package mapping

import (
	"reflect"

	"github.com/forbearing/docsession/internal/structmeta"
	"github.com/forbearing/docsession/session"
)

var cascadeFlags = map[string]session.PropertyFlags{
	"save":    session.FlagCascadeSave,
	"remove":  session.FlagCascadeRemove,
	"detach":  session.FlagCascadeDetach,
	"refresh": session.FlagCascadeRefresh,
	"merge":   session.FlagCascadeMerge,
}

// ReflectMapping is the default session.EntityMapping: it derives every
// behavior from the mapped struct's `session` and `bson` tags via package
// structmeta, the same way the reflectmeta-backed model.Base derives field
// access in the sibling codebase this package was adapted from.
type ReflectMapping struct {
	id       int
	typ      reflect.Type // pointer-to-struct
	meta     *structmeta.StructMeta
	identGen session.IdentityGenerator
	registry session.MappingRegistry
	super    *ReflectMapping // non-nil when this mapping extends another
}

var _ session.EntityMapping = (*ReflectMapping)(nil)

// New builds a ReflectMapping for the struct type of sample (a pointer,
// e.g. (*User)(nil)), with the given stable id and identity generator.
// registry is consulted during Walk to resolve reference-field targets, so
// it must already (or eventually) contain every mapping reachable from
// sample's cascadable fields.
func New(id int, sample any, identGen session.IdentityGenerator, registry session.MappingRegistry) *ReflectMapping {
	t := reflect.TypeOf(sample)
	return &ReflectMapping{
		id:       id,
		typ:      t,
		meta:     structmeta.Of(t),
		identGen: identGen,
		registry: registry,
	}
}

// Extends marks m as inheriting from super, so InheritanceRoot climbs to
// super's root and persister lookups for m's entities are routed through
// super's persister.
func (m *ReflectMapping) Extends(super *ReflectMapping) { m.super = super }

func (m *ReflectMapping) Identity() session.IdentityGenerator { return m.identGen }

func (m *ReflectMapping) ID() int { return m.id }

func (m *ReflectMapping) InheritanceRoot() session.EntityMapping {
	if m.super == nil {
		return m
	}
	return m.super.InheritanceRoot()
}

func valueOf(entity any) reflect.Value {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func (m *ReflectMapping) IdentityOf(entity any) any {
	fm, ok := m.meta.IdentityField()
	if !ok {
		return nil
	}
	v := valueOf(entity)
	if !v.IsValid() {
		return nil
	}
	fv := v.FieldByIndex(fm.Index)
	if fv.IsZero() {
		return nil
	}
	return fv.Interface()
}

func (m *ReflectMapping) SetIdentity(entity any, id any) {
	fm, ok := m.meta.IdentityField()
	if !ok {
		return
	}
	v := valueOf(entity)
	if !v.IsValid() {
		return
	}
	v.FieldByIndex(fm.Index).Set(reflect.ValueOf(id))
}

func (m *ReflectMapping) ClearIdentity(entity any) {
	fm, ok := m.meta.IdentityField()
	if !ok {
		return
	}
	v := valueOf(entity)
	if !v.IsValid() {
		return
	}
	f := v.FieldByIndex(fm.Index)
	f.Set(reflect.Zero(f.Type()))
}

// Walk implements session.EntityMapping. It inspects each non-ignored
// field: embedded fields are collected as values, reference fields are
// resolved to their target mapping and appended as Reference placeholders
// keyed by identity, and every other field whose tagged cascades intersect
// flags is appended (recursively, by the caller) as a direct entity.
// Fields are read from both single values and slices of either.
func (m *ReflectMapping) Walk(entity any, flags session.PropertyFlags, outEntities *[]any, outEmbedded *[]any, outReferences *[]*session.Reference) error {
	v := valueOf(entity)
	if !v.IsValid() {
		return nil
	}

	for _, fm := range m.meta.Fields {
		if fm.Ignored || fm.IsIdentity {
			continue
		}
		fieldFlags := fieldCascadeFlags(fm)
		if fm.Inverse {
			continue
		}

		fv := v.FieldByIndex(fm.Index)
		if !fv.IsValid() || fv.IsZero() {
			continue
		}

		if fm.IsEmbedded {
			*outEmbedded = append(*outEmbedded, fv.Interface())
			continue
		}

		// Reference edges are reported whether or not their cascades match:
		// the walker's callers decide what to do with them (resolve, ignore),
		// and a ref with no cascade tag must still be discoverable by fetch.
		if fm.IsRef {
			if err := m.collectReferences(fv, outReferences); err != nil {
				return err
			}
			continue
		}

		if fieldFlags&flags == 0 {
			continue
		}

		collectEntities(fv, outEntities)
	}
	return nil
}

func fieldCascadeFlags(fm structmeta.FieldMeta) session.PropertyFlags {
	var flags session.PropertyFlags
	for _, c := range fm.Cascade {
		flags |= cascadeFlags[c]
	}
	if fm.Nullable {
		flags |= session.FlagNullable
	}
	if fm.Orphan {
		flags |= session.FlagOrphanRemoval
	}
	return flags
}

func collectEntities(fv reflect.Value, out *[]any) {
	switch fv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < fv.Len(); i++ {
			elem := fv.Index(i)
			if elem.Kind() == reflect.Pointer && elem.IsNil() {
				continue
			}
			*out = append(*out, elem.Interface())
		}
	default:
		*out = append(*out, fv.Interface())
	}
}

func (m *ReflectMapping) collectReferences(fv reflect.Value, out *[]*session.Reference) error {
	switch fv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < fv.Len(); i++ {
			if err := m.appendReference(fv.Index(i), out); err != nil {
				return err
			}
		}
		return nil
	default:
		return m.appendReference(fv, out)
	}
}

func (m *ReflectMapping) appendReference(fv reflect.Value, out *[]*session.Reference) error {
	if fv.Kind() == reflect.Pointer && fv.IsNil() {
		return nil
	}
	target, ok := m.registry.GetMappingForObject(fv.Interface())
	if !ok {
		return newUnmappedReferenceError(fv.Type())
	}
	id := target.IdentityOf(fv.Interface())
	if id == nil {
		return nil
	}
	*out = append(*out, session.NewReference(target, id))
	return nil
}
