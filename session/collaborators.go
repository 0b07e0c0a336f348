// Package session implements the core unit-of-work mediator between
// in-memory application entities and a document-oriented datastore.
//
// The mapping/metadata subsystem, the persister, and the batch executor are
// treated as external collaborators: this package only declares the
// interfaces it requires of them (mirroring the way database/database.go in
// this codebase's sibling packages declares gorm.DB as a collaborator rather
// than owning connection management). Concrete implementations live in the
// sibling mapping and persister packages.
package session

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is the snapshot representation of a persisted entity used for
// dirty diffing. A document-oriented backend returns these directly; a
// row-oriented one (see persister.SQLPersister) marshals into the same
// shape so the session never has to know which store it is talking to.
type Document = bson.Raw

// PropertyFlags is the bit set a mapping attaches to each entity property.
// The Graph Walker and the mapping subsystem's Walk implementation both
// operate on these flags.
type PropertyFlags uint16

const (
	FlagNone PropertyFlags = 0
	// FlagIgnored marks a property the walker must never traverse.
	FlagIgnored PropertyFlags = 1 << iota
	// FlagCascadeSave propagates save() along this edge.
	FlagCascadeSave
	// FlagCascadeRemove propagates remove() along this edge.
	FlagCascadeRemove
	// FlagCascadeDetach propagates detach() along this edge.
	FlagCascadeDetach
	// FlagCascadeRefresh propagates refresh() along this edge.
	FlagCascadeRefresh
	// FlagCascadeMerge propagates merge-style reconciliation along this edge.
	// No session operation exercises this cascade.
	FlagCascadeMerge
	// FlagInverseSide marks a property that mirrors the owning side of a
	// relation and must not itself drive cascades.
	FlagInverseSide
	// FlagNullable allows the edge to be absent without error.
	FlagNullable
	// FlagOrphanRemoval removes the referenced entity when the edge is cut.
	FlagOrphanRemoval
	// FlagDereference marks an edge the walker should cross without
	// collecting the target as a first-class entity (e.g. read the target
	// for id purposes only).
	FlagDereference
)

// FlagCascadeAll is the union of every cascade flag.
const FlagCascadeAll = FlagCascadeSave | FlagCascadeRemove | FlagCascadeDetach | FlagCascadeRefresh | FlagCascadeMerge

// Has reports whether all bits in want are set in f.
func (f PropertyFlags) Has(want PropertyFlags) bool { return f&want == want }

// Any reports whether any bit in want is set in f.
func (f PropertyFlags) Any(want PropertyFlags) bool { return f&want != 0 }

// IdentityGenerator produces and parses entity identities. Implementations
// are supplied per EntityMapping by the mapping subsystem.
type IdentityGenerator interface {
	// Generate produces a fresh identity value for a never-persisted entity.
	Generate() any
	// FromString parses a string-encoded identity, as arrives from an HTTP
	// path parameter or similar boundary.
	FromString(s string) (any, error)
	// IsIdentifier reports whether v is a value this generator could have
	// produced or parsed (used to validate ids handed in by callers).
	IsIdentifier(v any) bool
}

// EntityMapping describes how one entity type maps onto the datastore and
// how to traverse its reachable graph. Implementations live in package
// mapping.
type EntityMapping interface {
	// Identity returns the identity generator bound to this mapping.
	Identity() IdentityGenerator
	// Walk traverses entity's direct properties that satisfy flags,
	// appending discovered entities, embedded values, and unresolved
	// references to the supplied slices.
	Walk(entity any, flags PropertyFlags, outEntities *[]any, outEmbedded *[]any, outReferences *[]*Reference) error
	// InheritanceRoot returns the top of entity's mapped inheritance chain
	// (itself, if the mapping has no superclass mapping).
	InheritanceRoot() EntityMapping
	// ID is a small stable integer key used to index the persister cache.
	ID() int

	// IdentityOf reads entity's well-known identity attribute. A zero
	// value (nil, "", etc.) means the attribute is unset.
	IdentityOf(entity any) any
	// SetIdentity stamps entity's identity attribute.
	SetIdentity(entity any, id any)
	// ClearIdentity blanks entity's identity attribute: an entity that was
	// never persisted or that has been deleted must not retain a stale
	// identity.
	ClearIdentity(entity any)
}

// MappingRegistry resolves mappings for live objects and for constructors
// (used by find/getReference, where only a type is known up front).
type MappingRegistry interface {
	GetMappingForObject(obj any) (EntityMapping, bool)
	GetMappingForConstructor(ctor any) (EntityMapping, bool)
}

// ChangeTracking is a per-persister policy describing how the flush
// planner should discover dirty entities.
type ChangeTracking int

const (
	// DeferredImplicit entities are dirty-checked on every flush unless a
	// write is already scheduled.
	DeferredImplicit ChangeTracking = iota
	// DeferredExplicit entities are only dirty-checked when save() has
	// explicitly scheduled a DirtyCheck.
	DeferredExplicit
	// Observe entities report their own mutations; the session never
	// schedules DirtyCheck for them. No persister in this module uses
	// this mode.
	Observe
)

// Batch is an ordered collection of datastore operations executed as one
// bulk submission. Persisters append operations to it; the flush planner
// executes it once per flush.
type Batch interface {
	// Execute submits every accumulated operation. A partial failure must
	// not be reported as success; the flush wraps it as KindBatch.
	Execute(ctx context.Context) error
}

// BatchFactory produces a fresh Batch at the start of each flush. A single
// batch is shared across every persister touched by that flush so bulk
// operations stay grouped by kind across the whole graph, not per entity
// type.
type BatchFactory interface {
	NewBatch() Batch
}

// Persister is the mapping-specific adapter that translates entities to and
// from documents and appends operations to a batch. Concrete
// implementations live in package persister.
type Persister interface {
	Identity() IdentityGenerator
	ChangeTracking() ChangeTracking

	// FindOneByID loads the entity with the given identity, returning the
	// hydrated entity and the document it was built from.
	FindOneByID(ctx context.Context, id any) (entity any, doc Document, err error)
	// Refresh reloads entity's current document from the store and
	// rehydrates entity in place, returning the new snapshot.
	Refresh(ctx context.Context, entity any) (doc Document, err error)
	// DirtyCheck diffs entity against original and appends 0 or 1 update
	// operation to batch, returning the entity's current snapshot either
	// way (so originalDocument always advances to "now").
	DirtyCheck(batch Batch, entity any, original Document) (Document, error)
	// Insert appends one insert operation to batch and returns the
	// document that was built for it.
	Insert(batch Batch, entity any) (Document, error)
	// Remove appends one delete operation to batch.
	Remove(batch Batch, entity any) error

	// Bind returns a Persister scoped to ctx, e.g. to run under a
	// datastore session/transaction for the duration of one flush.
	Bind(ctx context.Context) Persister
	// Health reports whether the underlying store is reachable. Never
	// scheduled through the task queue: it mutates no session state.
	Health(ctx context.Context) error
}

// PersisterFactory resolves (and caches) the Persister for a mapping. The
// session calls this at most once per mapping per session lifetime.
type PersisterFactory func(EntityMapping) (Persister, error)
