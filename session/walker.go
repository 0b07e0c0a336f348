package session

import (
	"context"

	"github.com/samber/lo"
)

// walkResult accumulates what one walk() call discovered.
type walkResult struct {
	entities   []any
	embedded   []any
	references []*Reference
}

// walk performs a cascade-aware graph traversal from root, following only
// edges whose PropertyFlags satisfy flags, stopping at entities already
// visited in this traversal (cycle guard) and at edges marked
// FlagInverseSide (the owning side already carries the cascade).
//
// visited is keyed by pointer identity via a map[any]bool; Go entities are
// always passed as pointers by mapping implementations, so this is safe and
// avoids needing a comparable identity up front (an unsaved entity has none
// yet).
func walk(registry MappingRegistry, root any, flags PropertyFlags) (*walkResult, error) {
	res := &walkResult{}
	visited := make(map[any]bool)
	if err := walkInto(registry, root, flags, visited, res); err != nil {
		return nil, err
	}
	return res, nil
}

func walkInto(registry MappingRegistry, obj any, flags PropertyFlags, visited map[any]bool, res *walkResult) error {
	if visited[obj] {
		return nil
	}
	visited[obj] = true

	m, ok := registry.GetMappingForObject(obj)
	if !ok {
		return newErr(KindUnmapped, nil, errUnmappedWalk(obj))
	}

	var children []any
	var embedded []any
	var refs []*Reference
	if err := m.Walk(obj, flags, &children, &embedded, &refs); err != nil {
		return err
	}

	res.embedded = append(res.embedded, embedded...)
	res.references = append(res.references, refs...)

	for _, child := range children {
		if visited[child] {
			continue
		}
		res.entities = append(res.entities, child)
		if err := walkInto(registry, child, flags, visited, res); err != nil {
			return err
		}
	}
	return nil
}

// reversed returns entities in child-before-parent order: remove unwinds
// the walk so leaves are scheduled for delete ahead of the entities that
// reference them. lo.Reverse mutates in place, so it is handed a copy.
func reversed(entities []any) []any {
	cp := append([]any{}, entities...)
	return lo.Reverse(cp)
}

// errUnmappedWalk exists only to give KindUnmapped a descriptive cause
// without importing fmt into every call site.
func errUnmappedWalk(obj any) error {
	return &unmappedWalkError{obj: obj}
}

type unmappedWalkError struct{ obj any }

func (e *unmappedWalkError) Error() string {
	return "walk: encountered an object with no registered mapping"
}

// resolveReferences resolves each Reference in refs, in order, and returns
// the live entities; Fetch is its only caller. The cascading operations
// (save, remove, detach, refresh) do not pass the references a walk
// collects through it, and walk does not traverse through them.
func resolveReferences(ctx context.Context, s *Session, refs []*Reference) ([]any, error) {
	out := make([]any, 0, len(refs))
	for _, r := range refs {
		p, err := s.persisterFor(r.Mapping())
		if err != nil {
			return nil, err
		}
		entity, err := r.resolve(ctx, s, p)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}
