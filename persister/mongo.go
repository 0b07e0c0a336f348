// Package persister supplies session.Persister implementations: a
// MongoDB-backed one built on the official v2 driver, and a row-store one
// built on gorm for comparison (see sql.go). Both marshal to and from
// session.Document so the session package never has to know which store it
// is talking to.
package persister

import (
	"bytes"
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/forbearing/docsession/session"
)

// MongoPersister is the default session.Persister: one instance per
// collection/type, sharing a *mongo.Database handle with every other
// MongoPersister touched by the same flush.
type MongoPersister struct {
	db         *mongo.Database
	collection string
	mapping    session.EntityMapping
	tracking   session.ChangeTracking
	ctor       func() any // produces a zero-value pointer for Decode targets
}

var _ session.Persister = (*MongoPersister)(nil)

// NewMongoPersister builds a persister for collection, decoding documents
// into fresh values produced by ctor (e.g. func() any { return new(User) }).
func NewMongoPersister(db *mongo.Database, collection string, m session.EntityMapping, tracking session.ChangeTracking, ctor func() any) *MongoPersister {
	return &MongoPersister{db: db, collection: collection, mapping: m, tracking: tracking, ctor: ctor}
}

func (p *MongoPersister) Identity() session.IdentityGenerator { return p.mapping.Identity() }

func (p *MongoPersister) ChangeTracking() session.ChangeTracking { return p.tracking }

func (p *MongoPersister) coll() *mongo.Collection { return p.db.Collection(p.collection) }

func (p *MongoPersister) FindOneByID(ctx context.Context, id any) (any, session.Document, error) {
	raw, err := p.coll().FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		return nil, nil, err
	}
	entity := p.ctor()
	if err := bson.Unmarshal(raw, entity); err != nil {
		return nil, nil, err
	}
	return entity, session.Document(raw), nil
}

func (p *MongoPersister) Refresh(ctx context.Context, entity any) (session.Document, error) {
	id := p.mapping.IdentityOf(entity)
	raw, err := p.coll().FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		return nil, err
	}
	if err := bson.Unmarshal(raw, entity); err != nil {
		return nil, err
	}
	return session.Document(raw), nil
}

// DirtyCheck marshals entity and compares it byte-for-byte against
// original; a difference appends one replace-style update to batch. Byte
// comparison is sufficient because bson.Marshal produces a canonical field
// order for a given struct type.
func (p *MongoPersister) DirtyCheck(batch session.Batch, entity any, original session.Document) (session.Document, error) {
	doc, err := bson.Marshal(entity)
	if err != nil {
		return nil, err
	}
	if original != nil && bytes.Equal(doc, original) {
		return session.Document(doc), nil
	}

	id := p.mapping.IdentityOf(entity)
	model := mongo.NewReplaceOneModel().SetFilter(bson.M{"_id": id}).SetReplacement(doc)
	p.appendOp(batch, model)
	return session.Document(doc), nil
}

func (p *MongoPersister) Insert(batch session.Batch, entity any) (session.Document, error) {
	doc, err := bson.Marshal(entity)
	if err != nil {
		return nil, err
	}
	model := mongo.NewInsertOneModel().SetDocument(doc)
	p.appendOp(batch, model)
	return session.Document(doc), nil
}

func (p *MongoPersister) Remove(batch session.Batch, entity any) error {
	id := p.mapping.IdentityOf(entity)
	model := mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id})
	p.appendOp(batch, model)
	return nil
}

func (p *MongoPersister) appendOp(batch session.Batch, model mongo.WriteModel) {
	mb, ok := batch.(*MongoBatch)
	if !ok {
		// A non-Mongo Batch was handed to a Mongo persister, which can only
		// happen if the session's BatchFactory and PersisterFactory
		// disagree about the backend; that is a wiring bug, not a runtime
		// condition callers recover from.
		panic("persister: MongoPersister requires a *persister.MongoBatch")
	}
	mb.append(p.collection, model)
}

// Bind returns p itself. The v2 mongo driver attaches
// transaction/session state to context.Context itself (via
// mongo.NewSessionContext), so binding is a matter of carrying ctx through;
// ctx is supplied by every method call already, so Bind just hands back p
// unchanged, the same way an already-context-threaded repository would.
func (p *MongoPersister) Bind(ctx context.Context) session.Persister { return p }

func (p *MongoPersister) Health(ctx context.Context) error {
	return p.db.Client().Ping(ctx, nil)
}
