package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes -----------------------------------------------------------------
//
// These mirror the shape of persister.MongoPersister/MongoBatch closely
// enough to exercise the session's state machine without a live datastore,
// the same way mongo_test.go exercises the persister against a *MongoBatch
// instead of a real *mongo.Database.

type fakeGenerator struct{ next int }

func (g *fakeGenerator) Generate() any {
	g.next++
	return string(rune('a' + g.next - 1))
}
func (g *fakeGenerator) FromString(s string) (any, error) { return s, nil }
func (g *fakeGenerator) IsIdentifier(v any) bool          { _, ok := v.(string); return ok }

// person is the test entity: a plain struct with an identity field and one
// cascadable reference edge, enough to exercise save/remove cascades and
// cycles.
type person struct {
	ID    string
	First string
	Last  string
	Ref   *person
}

// personMapping is a hand-rolled EntityMapping: the reflection-based default
// lives in package mapping and is exercised there, so here the session's own
// dispatch logic is tested against a minimal, fully-controlled mapping.
type personMapping struct {
	gen      *fakeGenerator
	registry *fakeRegistry
	flags    PropertyFlags // cascade flags attached to the Ref edge
}

var _ EntityMapping = (*personMapping)(nil)

func (m *personMapping) Identity() IdentityGenerator   { return m.gen }
func (m *personMapping) InheritanceRoot() EntityMapping { return m }
func (m *personMapping) ID() int                        { return 1 }

func (m *personMapping) IdentityOf(entity any) any {
	p := entity.(*person)
	if p.ID == "" {
		return nil
	}
	return p.ID
}

func (m *personMapping) SetIdentity(entity any, id any) { entity.(*person).ID = id.(string) }
func (m *personMapping) ClearIdentity(entity any)       { entity.(*person).ID = "" }

func (m *personMapping) Walk(entity any, flags PropertyFlags, outEntities *[]any, outEmbedded *[]any, outReferences *[]*Reference) error {
	p := entity.(*person)
	if p.Ref == nil || m.flags&flags == 0 {
		return nil
	}
	*outEntities = append(*outEntities, p.Ref)
	return nil
}

type fakeRegistry struct {
	m EntityMapping
}

var _ MappingRegistry = (*fakeRegistry)(nil)

func (r *fakeRegistry) GetMappingForObject(obj any) (EntityMapping, bool) {
	if _, ok := obj.(*person); !ok {
		return nil, false
	}
	return r.m, true
}
func (r *fakeRegistry) GetMappingForConstructor(ctor any) (EntityMapping, bool) {
	return r.GetMappingForObject(ctor)
}

// fakeBatch records operations in submission order, grouped by kind, so
// tests can assert pass ordering (dirty-check, insert, delete).
type fakeBatch struct {
	ops     []string
	failErr error
}

var _ Batch = (*fakeBatch)(nil)

func (b *fakeBatch) Execute(ctx context.Context) error { return b.failErr }

type fakeBatchFactory struct{ batch *fakeBatch }

var _ BatchFactory = (*fakeBatchFactory)(nil)

func (f *fakeBatchFactory) NewBatch() Batch { return f.batch }

// fakePersister is an in-memory store keyed by identity string, standing in
// for persister.MongoPersister/SQLPersister.
type fakePersister struct {
	store    map[string]*person
	tracking ChangeTracking

	findErr    error
	refreshErr error
}

var _ Persister = (*fakePersister)(nil)

func newFakePersister(tracking ChangeTracking) *fakePersister {
	return &fakePersister{store: make(map[string]*person), tracking: tracking}
}

func (p *fakePersister) Identity() IdentityGenerator       { return &fakeGenerator{} }
func (p *fakePersister) ChangeTracking() ChangeTracking    { return p.tracking }
func (p *fakePersister) Bind(ctx context.Context) Persister { return p }
func (p *fakePersister) Health(ctx context.Context) error   { return nil }

func (p *fakePersister) FindOneByID(ctx context.Context, id any) (any, Document, error) {
	if p.findErr != nil {
		return nil, nil, p.findErr
	}
	e, ok := p.store[id.(string)]
	if !ok {
		return nil, nil, assert.AnError
	}
	cp := *e
	return &cp, Document(cp.First + "|" + cp.Last), nil
}

func (p *fakePersister) Refresh(ctx context.Context, entity any) (Document, error) {
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	e := entity.(*person)
	stored, ok := p.store[e.ID]
	if !ok {
		return nil, assert.AnError
	}
	e.First, e.Last = stored.First, stored.Last
	return Document(e.First + "|" + e.Last), nil
}

func (p *fakePersister) DirtyCheck(batch Batch, entity any, original Document) (Document, error) {
	e := entity.(*person)
	cur := Document(e.First + "|" + e.Last)
	if string(cur) == string(original) {
		return cur, nil
	}
	batch.(*fakeBatch).ops = append(batch.(*fakeBatch).ops, "update:"+e.ID)
	cp := *e
	p.store[e.ID] = &cp
	return cur, nil
}

func (p *fakePersister) Insert(batch Batch, entity any) (Document, error) {
	e := entity.(*person)
	batch.(*fakeBatch).ops = append(batch.(*fakeBatch).ops, "insert:"+e.ID)
	cp := *e
	p.store[e.ID] = &cp
	return Document(e.First + "|" + e.Last), nil
}

func (p *fakePersister) Remove(batch Batch, entity any) error {
	e := entity.(*person)
	batch.(*fakeBatch).ops = append(batch.(*fakeBatch).ops, "delete:"+e.ID)
	delete(p.store, e.ID)
	return nil
}

// --- harness -----------------------------------------------------------------

type harness struct {
	s   *Session
	reg *fakeRegistry
	m   *personMapping
	p   *fakePersister
	bf  *fakeBatchFactory
}

func newHarness(t *testing.T, tracking ChangeTracking) *harness {
	t.Helper()
	m := &personMapping{gen: &fakeGenerator{}, flags: FlagCascadeAll}
	reg := &fakeRegistry{}
	reg.m = m
	p := newFakePersister(tracking)
	bf := &fakeBatchFactory{batch: &fakeBatch{}}
	factory := func(EntityMapping) (Persister, error) { return p, nil }

	s, err := New(reg, factory, bf, Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return &harness{s: s, reg: reg, m: m, p: p, bf: bf}
}

func (h *harness) resetBatch() { h.bf.batch = &fakeBatch{} }

func TestInsertFlush(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	p := &person{First: "Jones", Last: "Bob"}
	require.NoError(t, h.s.Save(ctx, p))
	require.NoError(t, h.s.Flush(ctx, FlushOptions{}))

	assert.Len(t, h.bf.batch.ops, 1)
	assert.Equal(t, "insert:"+p.ID, h.bf.batch.ops[0])

	contains, err := h.s.Contains(p)
	require.NoError(t, err)
	assert.True(t, contains)
	assert.NotEmpty(t, p.ID)

	id, err := h.s.GetID(p)
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)

	link, ok := h.s.table.byIdentity(p.ID)
	require.True(t, ok)
	assert.NotNil(t, link.OriginalDocument())
	assert.Equal(t, OpNone, link.ScheduledOperation())
}

func TestRemoveThenSave_CancelsDelete(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	h.p.store["p1"] = &person{ID: "p1", First: "Ann", Last: "Lee"}

	loaded, err := h.s.Find(ctx, (*person)(nil), "p1")
	require.NoError(t, err)
	p := loaded.(*person)

	require.NoError(t, h.s.Remove(ctx, p))
	require.NoError(t, h.s.Save(ctx, p))

	require.NoError(t, h.s.Flush(ctx, FlushOptions{}))
	assert.Empty(t, h.bf.batch.ops, "cancelled delete must not schedule a dirty-check or any op")

	contains, err := h.s.Contains(p)
	require.NoError(t, err)
	assert.True(t, contains)
}

func TestCascadeSave_Cycle(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	a := &person{First: "A"}
	b := &person{First: "B"}
	a.Ref = b
	b.Ref = a

	require.NoError(t, h.s.Save(ctx, a))
	require.NoError(t, h.s.Flush(ctx, FlushOptions{}))

	assert.Len(t, h.bf.batch.ops, 2)
	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
}

func TestSave_DetachedErrors(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	p := &person{ID: "ghost"} // has an identity but was never linked
	err := h.s.Save(ctx, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetached)
}

func TestDeferredExplicit_DirtyCheckOnlyAfterSave(t *testing.T) {
	h := newHarness(t, DeferredExplicit)
	ctx := context.Background()

	h.p.store["p1"] = &person{ID: "p1", First: "Ann", Last: "Lee"}
	loaded, err := h.s.Find(ctx, (*person)(nil), "p1")
	require.NoError(t, err)
	p := loaded.(*person)

	p.Last = "Smith"
	require.NoError(t, h.s.Flush(ctx, FlushOptions{}))
	assert.Empty(t, h.bf.batch.ops, "DeferredExplicit must not dirty-check without an explicit save")

	require.NoError(t, h.s.Save(ctx, p))
	require.NoError(t, h.s.Flush(ctx, FlushOptions{}))
	require.Len(t, h.bf.batch.ops, 1)
	assert.Equal(t, "update:p1", h.bf.batch.ops[0])

	link, ok := h.s.table.byIdentity("p1")
	require.True(t, ok)
	assert.Equal(t, Document("Ann|Smith"), link.OriginalDocument())
}

func TestFetch_ResolvesReference(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	h.p.store["abc"] = &person{ID: "abc", First: "Rip", Last: "VanWinkle"}

	ref, err := h.s.GetReference((*person)(nil), "abc")
	require.NoError(t, err)
	assert.False(t, ref.IsResolved())

	out, err := h.s.Fetch(ctx, []*Reference{ref})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "abc", out[0].(*person).ID)
	assert.True(t, ref.IsResolved())
}

func TestSaveIdempotent_SingleInsertScheduled(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	p := &person{First: "X"}
	require.NoError(t, h.s.Save(ctx, p))
	require.NoError(t, h.s.Save(ctx, p))

	link, ok := h.s.table.byIdentity(p.ID)
	require.True(t, ok)
	assert.Equal(t, OpInsert, link.ScheduledOperation())

	require.NoError(t, h.s.Flush(ctx, FlushOptions{}))
	assert.Len(t, h.bf.batch.ops, 1)
}

func TestRemoveNeverPersisted_UnlinksWithoutDelete(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	p := &person{First: "Y"}
	require.NoError(t, h.s.Save(ctx, p))
	id := p.ID

	require.NoError(t, h.s.Remove(ctx, p))
	assert.Empty(t, p.ID, "identity must be cleared on unlink of a never-persisted entity")

	_, ok := h.s.table.byIdentity(id)
	assert.False(t, ok)

	require.NoError(t, h.s.Flush(ctx, FlushOptions{}))
	assert.Empty(t, h.bf.batch.ops, "no delete op should be produced for a never-persisted entity")
}

func TestRemoveNeverSeen_NoOp(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	// No identity, no link: remove has nothing to schedule and must not
	// treat the entity as detached.
	require.NoError(t, h.s.Remove(ctx, &person{First: "Nobody"}))
	assert.Equal(t, 0, h.s.table.len())
}

func TestClear_EmptiesTable(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	require.NoError(t, h.s.Save(ctx, &person{First: "Z"}))
	require.NoError(t, h.s.Clear(ctx))
	assert.Equal(t, 0, h.s.table.len())
}

func TestFetchEmptyPaths_NoOp(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	out, err := h.s.Fetch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFlushError_PoisonsSession(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	require.NoError(t, h.s.Save(ctx, &person{First: "Poison"}))
	h.bf.batch.failErr = assert.AnError

	err := h.s.Flush(ctx, FlushOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatch)

	err = h.s.Save(ctx, &person{First: "AfterPoison"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoisoned)
}

func TestGraphWalkCycle_VisitsEachEntityOnce(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	a := &person{First: "A"}
	b := &person{First: "B"}
	a.Ref = b
	b.Ref = a // cycle

	calls := 0
	res, err := walk(h.reg, a, FlagCascadeSave)
	require.NoError(t, err)
	for range res.entities {
		calls++
	}
	assert.Equal(t, 1, calls, "cycle must be visited exactly once per entity beyond the root")
	_ = ctx
}

func TestDryRunFlush_DoesNotMutateOrExecute(t *testing.T) {
	h := newHarness(t, DeferredImplicit)
	ctx := context.Background()

	p := &person{First: "Dry"}
	require.NoError(t, h.s.Save(ctx, p))
	require.NoError(t, h.s.Flush(ctx, FlushOptions{DryRun: true}))

	link, ok := h.s.table.byIdentity(p.ID)
	require.True(t, ok)
	assert.Equal(t, OpInsert, link.ScheduledOperation(), "dry run must not advance scheduled op")
	assert.Nil(t, link.OriginalDocument())
}
