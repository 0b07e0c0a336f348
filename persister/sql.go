package persister

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forbearing/docsession/session"
)

// SQLPersister adapts a gorm row store to session.Persister, proving the
// session package is storage-agnostic: entities still diff and batch as
// session.Document (bson-encoded) snapshots even though the underlying
// store is relational. One instance handles one gorm model/table.
type SQLPersister struct {
	db       *gorm.DB
	mapping  session.EntityMapping
	tracking session.ChangeTracking
	ctor     func() any
}

var _ session.Persister = (*SQLPersister)(nil)

func NewSQLPersister(db *gorm.DB, m session.EntityMapping, tracking session.ChangeTracking, ctor func() any) *SQLPersister {
	return &SQLPersister{db: db, mapping: m, tracking: tracking, ctor: ctor}
}

func (p *SQLPersister) Identity() session.IdentityGenerator { return p.mapping.Identity() }

func (p *SQLPersister) ChangeTracking() session.ChangeTracking { return p.tracking }

func (p *SQLPersister) FindOneByID(ctx context.Context, id any) (any, session.Document, error) {
	entity := p.ctor()
	if err := p.db.WithContext(ctx).First(entity, "id = ?", id).Error; err != nil {
		return nil, nil, errors.Wrap(err, "sql persister: find")
	}
	doc, err := bson.Marshal(entity)
	if err != nil {
		return nil, nil, err
	}
	return entity, session.Document(doc), nil
}

func (p *SQLPersister) Refresh(ctx context.Context, entity any) (session.Document, error) {
	id := p.mapping.IdentityOf(entity)
	if err := p.db.WithContext(ctx).First(entity, "id = ?", id).Error; err != nil {
		return nil, errors.Wrap(err, "sql persister: refresh")
	}
	return bson.Marshal(entity)
}

func (p *SQLPersister) DirtyCheck(batch session.Batch, entity any, original session.Document) (session.Document, error) {
	doc, err := bson.Marshal(entity)
	if err != nil {
		return nil, err
	}
	if original != nil && bytes.Equal(doc, original) {
		return session.Document(doc), nil
	}
	sb, ok := batch.(*SQLBatch)
	if !ok {
		panic("persister: SQLPersister requires a *persister.SQLBatch")
	}
	sb.addUpdate(entity)
	return session.Document(doc), nil
}

func (p *SQLPersister) Insert(batch session.Batch, entity any) (session.Document, error) {
	sb, ok := batch.(*SQLBatch)
	if !ok {
		panic("persister: SQLPersister requires a *persister.SQLBatch")
	}
	sb.addInsert(entity)
	return bson.Marshal(entity)
}

func (p *SQLPersister) Remove(batch session.Batch, entity any) error {
	sb, ok := batch.(*SQLBatch)
	if !ok {
		panic("persister: SQLPersister requires a *persister.SQLBatch")
	}
	sb.addDelete(entity)
	return nil
}

// Bind returns a copy of p bound to a *gorm.DB carrying ctx, mirroring the
// WithContext escape hatch the sibling gorm-based database package in this
// codebase exposes.
func (p *SQLPersister) Bind(ctx context.Context) session.Persister {
	bound := *p
	bound.db = p.db.WithContext(ctx)
	return &bound
}

func (p *SQLPersister) Health(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SQLBatch accumulates inserts/updates/deletes and applies them inside a
// single gorm transaction, the row-store analog of MongoBatch's per-
// collection BulkWrite grouping.
type SQLBatch struct {
	db *gorm.DB

	inserts []any
	updates []any
	deletes []any
}

var _ session.Batch = (*SQLBatch)(nil)

func (b *SQLBatch) addInsert(e any) { b.inserts = append(b.inserts, e) }
func (b *SQLBatch) addUpdate(e any) { b.updates = append(b.updates, e) }
func (b *SQLBatch) addDelete(e any) { b.deletes = append(b.deletes, e) }

func (b *SQLBatch) Execute(ctx context.Context) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range b.inserts {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(e).Error; err != nil {
				return errors.Wrap(err, "sql batch: insert")
			}
		}
		for _, e := range b.updates {
			if err := tx.Save(e).Error; err != nil {
				return errors.Wrap(err, "sql batch: update")
			}
		}
		for _, e := range b.deletes {
			if err := tx.Delete(e).Error; err != nil {
				return errors.Wrap(err, "sql batch: delete")
			}
		}
		return nil
	})
}

// SQLBatchFactory produces SQLBatch instances bound to db.
type SQLBatchFactory struct{ DB *gorm.DB }

var _ session.BatchFactory = SQLBatchFactory{}

func (f SQLBatchFactory) NewBatch() session.Batch { return &SQLBatch{db: f.DB} }
