package session

import "context"

// Reference is a placeholder for an entity the walker discovered by
// identity only, e.g. a DBRef-style pointer, or a field that stores just
// an id instead of an embedded document. It gets resolved to a live,
// Managed entity on demand rather than eagerly, so walking a large graph
// never forces a full fetch of every reachable id.
type Reference struct {
	mapping  EntityMapping
	identity any

	resolved    any
	hasResolved bool
}

// NewReference builds an unresolved Reference to the entity identified by
// id under m. Constructed by mapping implementations during Walk.
func NewReference(m EntityMapping, id any) *Reference {
	return &Reference{mapping: m, identity: id}
}

// Mapping returns the mapping the reference resolves against.
func (r *Reference) Mapping() EntityMapping { return r.mapping }

// Identity returns the referenced entity's identity.
func (r *Reference) Identity() any { return r.identity }

// IsResolved reports whether this reference already points at a live
// entity, either because GetReference found it linked or because Fetch
// resolved it.
func (r *Reference) IsResolved() bool { return r.hasResolved }

// resolve loads (or returns the cached) target entity via getReference-like
// semantics: if the identity table already holds a link for this identity,
// its live object is reused instead of issuing another find. s may be nil
// when the reference is being resolved outside of any session (e.g. during
// a standalone persister test); in that case resolution always goes to the
// persister.
func (r *Reference) resolve(ctx context.Context, s *Session, p Persister) (any, error) {
	if r.hasResolved {
		return r.resolved, nil
	}
	if s != nil {
		key := stringifyIdentity(r.identity)
		if link, ok := s.table.byIdentity(key); ok {
			r.resolved = link.Object()
			r.hasResolved = true
			return r.resolved, nil
		}
	}
	entity, doc, err := p.FindOneByID(ctx, r.identity)
	if err != nil {
		return nil, newErr(KindReferenceResolution, r.identity, err)
	}
	if s != nil {
		// A Reference target loaded via the persister is linked as Managed,
		// same as Find, so it is observable through Contains afterwards
		// rather than staying a bare value.
		link, err := s.table.link(entity, r.mapping, p, OpNone)
		if err != nil {
			return nil, err
		}
		link.original = doc
	}
	r.resolved = entity
	r.hasResolved = true
	return entity, nil
}
