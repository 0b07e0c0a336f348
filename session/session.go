package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"

	"github.com/forbearing/docsession/logger"
)

// Config controls the behavior of a Session beyond its required
// collaborators. The zero value is a usable default.
type Config struct {
	// TaskPoolSize bounds how many tasks the queue may run concurrently.
	// Defaults to 4 when <= 0.
	TaskPoolSize int
	// PoisonOnFlushError: once a flush fails, the session refuses every
	// further operation until replaced.
	// Defaults to true; set PoisonOnFlushErrorSet to override with false.
	PoisonOnFlushError    bool
	PoisonOnFlushErrorSet bool
}

func (c Config) poisonOnFlushError() bool {
	if !c.PoisonOnFlushErrorSet {
		return true
	}
	return c.PoisonOnFlushError
}

// Session is the unit-of-work mediator: the single entry point through
// which application code loads, mutates, and persists entities. Callers
// are expected to operate one logical unit of work per Session, same as
// an *sql.Tx.
type Session struct {
	registry     MappingRegistry
	factory      PersisterFactory
	batchFactory BatchFactory
	persister    sync.Map // inheritance-root mapping ID (int) -> Persister, resolved at most once per mapping

	table *identityTable
	queue *taskQueue

	cb *gobreaker.CircuitBreaker

	cfg Config

	mu       sync.Mutex
	poisoned error
}

// New builds a Session bound to registry, factory, and batchFactory.
// factory is called at most once per distinct mapping over the session's
// lifetime; its result is cached.
func New(registry MappingRegistry, factory PersisterFactory, batchFactory BatchFactory, cfg Config) (*Session, error) {
	poolSize := cfg.TaskPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	q, err := newTaskQueue(poolSize)
	if err != nil {
		return nil, err
	}

	cbSettings := gobreaker.Settings{
		Name:        "session-flush",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
	}

	return &Session{
		registry:     registry,
		factory:      factory,
		batchFactory: batchFactory,
		table:        newIdentityTable(),
		queue:        q,
		cb:           gobreaker.NewCircuitBreaker(cbSettings),
		cfg:          cfg,
	}, nil
}

// Close releases the session's worker pool. It does not flush pending work.
func (s *Session) Close() { s.queue.release() }

func (s *Session) checkPoisoned() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned != nil {
		return newErr(KindPoisoned, nil, s.poisoned)
	}
	return nil
}

func (s *Session) poison(cause error) {
	s.mu.Lock()
	s.poisoned = cause
	s.mu.Unlock()
}

// persisterFor resolves (and memoizes) the Persister bound to m.
func (s *Session) persisterFor(m EntityMapping) (Persister, error) {
	root := m.InheritanceRoot()
	if v, ok := s.persister.Load(root.ID()); ok {
		return v.(Persister), nil
	}
	p, err := s.factory(root)
	if err != nil {
		return nil, newErr(KindPersister, nil, err)
	}
	actual, _ := s.persister.LoadOrStore(root.ID(), p)
	return actual.(Persister), nil
}

func (s *Session) mappingOf(entity any) (EntityMapping, error) {
	m, ok := s.registry.GetMappingForObject(entity)
	if !ok {
		return nil, newErr(KindUnmapped, nil, errUnmappedWalk(entity))
	}
	return m, nil
}

// linkOf reports the ObjectLink currently tracking entity, distinguishing
// Detached (has an identity, no link) from never-seen-before (no identity
// at all, i.e. this is a brand-new entity).
func (s *Session) linkOf(m EntityMapping, entity any) (*ObjectLink, bool, bool) {
	id := m.IdentityOf(entity)
	hasIdentity := id != nil && id != ""
	if !hasIdentity {
		return nil, false, false
	}
	l, ok := s.table.byIdentity(stringifyIdentity(id))
	return l, ok, true
}

// Save schedules entity (and, by cascade, every reachable entity flagged
// FlagCascadeSave) for insert or update on the next flush.
func (s *Session) Save(ctx context.Context, entity any) error {
	if err := s.checkPoisoned(); err != nil {
		return err
	}
	return s.queue.submit(ctx, ActionSave, func(ctx context.Context) error {
		return s.saveOne(ctx, entity, make(map[any]bool))
	})
}

func (s *Session) saveOne(ctx context.Context, entity any, seen map[any]bool) error {
	if seen[entity] {
		return nil
	}
	seen[entity] = true

	m, err := s.mappingOf(entity)
	if err != nil {
		return err
	}

	link, tracked, hasIdentity := s.linkOf(m, entity)
	switch {
	case tracked:
		switch {
		case link.state == Detached:
			return newErr(KindDetached, link.identity, nil)
		case link.state == Removed:
			// Cancel the pending delete rather than scheduling anything new.
			link.state = Managed
			link.scheduled = OpNone
		case link.scheduled == OpNone && link.persister.ChangeTracking() == DeferredExplicit:
			// DeferredExplicit entities are only dirty-checked when save()
			// has explicitly marked them.
			link.scheduled = OpDirtyCheck
		}
	case hasIdentity:
		// has identity but not tracked: Detached.
		return newErr(KindDetached, m.IdentityOf(entity), nil)
	default:
		// Resolve the persister before stamping an identity, so a mapping
		// with no persister wired leaves the entity untouched.
		p, perr := s.persisterFor(m)
		if perr != nil {
			return perr
		}
		id := m.Identity().Generate()
		m.SetIdentity(entity, id)
		if _, err := s.table.link(entity, m, p, OpInsert); err != nil {
			return err
		}
		logger.Session.Debugw("linked entity for insert", "identity", stringifyIdentity(id))
	}

	res, err := walk(s.registry, entity, FlagCascadeSave)
	if err != nil {
		return err
	}
	for _, child := range res.entities {
		if err := s.saveOne(ctx, child, seen); err != nil {
			return err
		}
	}
	return nil
}

// Remove schedules entity (and cascades) for delete on the next flush.
func (s *Session) Remove(ctx context.Context, entity any) error {
	if err := s.checkPoisoned(); err != nil {
		return err
	}
	return s.queue.submit(ctx, ActionRemove, func(ctx context.Context) error {
		return s.removeOne(ctx, entity, make(map[any]bool))
	})
}

func (s *Session) removeOne(ctx context.Context, entity any, seen map[any]bool) error {
	if seen[entity] {
		return nil
	}
	seen[entity] = true

	m, err := s.mappingOf(entity)
	if err != nil {
		return err
	}
	link, tracked, hasIdentity := s.linkOf(m, entity)
	switch {
	case !tracked && hasIdentity:
		return newErr(KindDetached, m.IdentityOf(entity), nil)
	case !tracked:
		// Never seen by this session and carrying no identity: nothing to
		// schedule, but cascades still propagate below.
	case link.state == Detached:
		return newErr(KindDetached, link.identity, nil)
	case link.scheduled == OpInsert:
		// Never persisted: unlink synchronously rather than scheduling a
		// delete for something the store has never seen.
		s.table.unlink(link)
		logger.Session.Debugw("unlinked never-persisted entity", "identity", link.identityStr)
	default:
		link.state = Removed
		link.scheduled = OpDelete
		logger.Session.Debugw("scheduled delete", "identity", link.identityStr)
	}

	res, err := walk(s.registry, entity, FlagCascadeRemove|FlagDereference)
	if err != nil {
		return err
	}
	// Reverse of discovery order among the cascaded entities: leaves get
	// their delete scheduled before the intermediate entities that reference
	// them. entity itself was already handled above, before the walk, so it
	// is not part of this reversed order.
	for _, child := range reversed(res.entities) {
		if err := s.removeOne(ctx, child, seen); err != nil {
			return err
		}
	}
	return nil
}

// Detach severs entity (and cascades) from the session without affecting
// the datastore; the entity is no longer tracked and any further save on it
// with its existing identity is an error until re-attached via Save
// starting a fresh insert.
func (s *Session) Detach(ctx context.Context, entity any) error {
	if err := s.checkPoisoned(); err != nil {
		return err
	}
	return s.queue.submit(ctx, ActionDetach, func(ctx context.Context) error {
		return s.detachOne(ctx, entity, make(map[any]bool))
	})
}

func (s *Session) detachOne(ctx context.Context, entity any, seen map[any]bool) error {
	if seen[entity] {
		return nil
	}
	seen[entity] = true

	m, err := s.mappingOf(entity)
	if err != nil {
		return err
	}
	if link, tracked, _ := s.linkOf(m, entity); tracked {
		link.state = Detached
		s.table.unlink(link)
	}

	res, err := walk(s.registry, entity, FlagCascadeDetach)
	if err != nil {
		return err
	}
	for _, child := range res.entities {
		if err := s.detachOne(ctx, child, seen); err != nil {
			return err
		}
	}
	return nil
}

// Refresh reloads entity (and cascades) from the datastore, discarding any
// unflushed local changes.
func (s *Session) Refresh(ctx context.Context, entity any) error {
	if err := s.checkPoisoned(); err != nil {
		return err
	}
	return s.queue.submit(ctx, ActionRefresh, func(ctx context.Context) error {
		return s.refreshOne(ctx, entity, make(map[any]bool))
	})
}

func (s *Session) refreshOne(ctx context.Context, entity any, seen map[any]bool) error {
	if seen[entity] {
		return nil
	}
	seen[entity] = true

	m, err := s.mappingOf(entity)
	if err != nil {
		return err
	}
	link, tracked, _ := s.linkOf(m, entity)
	if !tracked || link.state == Detached {
		return newErr(KindDetached, m.IdentityOf(entity), nil)
	}
	p, err := s.persisterFor(m)
	if err != nil {
		return err
	}
	// Walk before reloading, so the cascade follows the in-memory graph as
	// it is now rather than the shape the reload below writes into entity.
	res, err := walk(s.registry, entity, FlagCascadeRefresh)
	if err != nil {
		return err
	}
	doc, err := p.Refresh(ctx, entity)
	if err != nil {
		return newErr(KindPersister, link.identity, err)
	}
	link.original = doc
	link.scheduled = OpNone

	for _, child := range res.entities {
		if err := s.refreshOne(ctx, child, seen); err != nil {
			return err
		}
	}
	return nil
}

// Clear discards every ObjectLink in the session, returning it to its
// initial empty state. No cascades, no datastore access.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.checkPoisoned(); err != nil {
		return err
	}
	return s.queue.submit(ctx, ActionClear, func(ctx context.Context) error {
		s.table.clear()
		return nil
	})
}

// GetID returns entity's identity value, or nil when none has been
// assigned yet (the entity has not been saved or loaded).
func (s *Session) GetID(entity any) (any, error) {
	m, err := s.mappingOf(entity)
	if err != nil {
		return nil, err
	}
	return m.IdentityOf(entity), nil
}

// Contains reports whether entity is currently Managed by this session.
func (s *Session) Contains(entity any) (bool, error) {
	if err := s.checkPoisoned(); err != nil {
		return false, err
	}
	m, err := s.mappingOf(entity)
	if err != nil {
		return false, err
	}
	link, tracked, _ := s.linkOf(m, entity)
	return tracked && link.state == Managed, nil
}

// Find loads the entity of the type produced by ctor with the given id,
// returning a live Managed entity (from the identity table if already
// linked, otherwise freshly loaded and linked).
func (s *Session) Find(ctx context.Context, ctor any, id any) (any, error) {
	if err := s.checkPoisoned(); err != nil {
		return nil, err
	}
	var out any
	err := s.queue.submit(ctx, ActionFind, func(ctx context.Context) error {
		m, ok := s.registry.GetMappingForConstructor(ctor)
		if !ok {
			return newErr(KindUnmapped, nil, errUnmappedWalk(ctor))
		}
		// A string id may be an encoded form (an ObjectID hex from a path
		// parameter, say); the mapping's generator knows how to decode it.
		if sid, ok := id.(string); ok {
			parsed, perr := m.Identity().FromString(sid)
			if perr != nil {
				return errors.Wrap(perr, "find: invalid identity")
			}
			id = parsed
		}
		key := stringifyIdentity(id)
		if link, ok := s.table.byIdentity(key); ok {
			out = link.Object()
			return nil
		}
		p, err := s.persisterFor(m)
		if err != nil {
			return err
		}
		entity, doc, err := p.FindOneByID(ctx, id)
		if err != nil {
			return newErr(KindPersister, id, err)
		}
		link, err := s.table.link(entity, m, p, OpNone)
		if err != nil {
			return err
		}
		link.original = doc
		out = entity
		return nil
	})
	return out, err
}

// Fetch loads every Reference in refs, resolving each against the identity
// table before falling back to the persister.
func (s *Session) Fetch(ctx context.Context, refs []*Reference) ([]any, error) {
	if err := s.checkPoisoned(); err != nil {
		return nil, err
	}
	var out []any
	err := s.queue.submit(ctx, ActionFetch, func(ctx context.Context) error {
		resolved, err := resolveReferences(ctx, s, refs)
		if err != nil {
			return err
		}
		out = resolved
		return nil
	})
	return out, err
}

// FlushOptions controls one Flush call.
type FlushOptions struct {
	// DryRun runs every dirty-check/insert/delete pass against a fresh
	// batch, without calling Batch.Execute or mutating any ObjectLink's
	// scheduled operation or original snapshot. The planned operations are
	// not returned to the caller.
	DryRun bool
}

// Flush executes the three-pass plan (dirty-check, insert, delete) over
// every linked entity and submits the resulting batch.
func (s *Session) Flush(ctx context.Context, opts FlushOptions) error {
	if err := s.checkPoisoned(); err != nil {
		return err
	}
	return s.queue.submit(ctx, ActionFlush, func(ctx context.Context) error {
		return s.flush(ctx, opts)
	})
}

// Ping reports whether every persister this session has resolved so far
// (one per mapping it has saved, loaded or flushed) is healthy; mappings
// whose persister has not been resolved yet are not checked, so a fresh
// session returns nil. Added for operational use; never scheduled through
// the task queue since it mutates no session state.
func (s *Session) Ping(ctx context.Context) error {
	var err error
	s.persister.Range(func(_, v any) bool {
		if perr := v.(Persister).Health(ctx); perr != nil {
			err = newErr(KindPersister, nil, perr)
			return false
		}
		return true
	})
	return err
}
