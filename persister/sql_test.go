package persister

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/forbearing/docsession/mapping"
	"github.com/forbearing/docsession/session"
)

type sqlWidget struct {
	ID   string `gorm:"primaryKey" bson:"_id" session:"identity"`
	Name string `gorm:"column:name" bson:"name"`
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&sqlWidget{}))
	return db
}

func sqlWidgetMapping() session.EntityMapping {
	reg := mapping.NewRegistry(0)
	m := mapping.New(1, (*sqlWidget)(nil), mapping.UUIDGenerator{}, reg)
	reg.Register((*sqlWidget)(nil), m)
	return m
}

func TestSQLPersister_InsertThenFind(t *testing.T) {
	db := openTestDB(t)
	m := sqlWidgetMapping()
	p := NewSQLPersister(db, m, session.DeferredImplicit, func() any { return new(sqlWidget) })
	factory := SQLBatchFactory{DB: db}

	w := &sqlWidget{ID: "w1", Name: "gear"}
	batch := factory.NewBatch()
	_, err := p.Insert(batch, w)
	require.NoError(t, err)
	require.NoError(t, batch.Execute(context.Background()))

	loaded, _, err := p.FindOneByID(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, "gear", loaded.(*sqlWidget).Name)
}

func TestSQLPersister_DirtyCheckThenRemove(t *testing.T) {
	db := openTestDB(t)
	m := sqlWidgetMapping()
	p := NewSQLPersister(db, m, session.DeferredImplicit, func() any { return new(sqlWidget) })
	factory := SQLBatchFactory{DB: db}

	w := &sqlWidget{ID: "w2", Name: "gear"}
	insertBatch := factory.NewBatch()
	original, err := p.Insert(insertBatch, w)
	require.NoError(t, err)
	require.NoError(t, insertBatch.Execute(context.Background()))

	w.Name = "sprocket"
	updateBatch := factory.NewBatch()
	_, err = p.DirtyCheck(updateBatch, w, original)
	require.NoError(t, err)
	require.NoError(t, updateBatch.Execute(context.Background()))

	reloaded, _, err := p.FindOneByID(context.Background(), "w2")
	require.NoError(t, err)
	require.Equal(t, "sprocket", reloaded.(*sqlWidget).Name)

	removeBatch := factory.NewBatch()
	require.NoError(t, p.Remove(removeBatch, w))
	require.NoError(t, removeBatch.Execute(context.Background()))

	_, _, err = p.FindOneByID(context.Background(), "w2")
	require.Error(t, err)
}
