package persister

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forbearing/docsession/mapping"
	"github.com/forbearing/docsession/session"
)

type widget struct {
	ID   bson.ObjectID `bson:"_id" session:"identity"`
	Name string        `bson:"name"`
}

func widgetMapping() session.EntityMapping {
	reg := mapping.NewRegistry(0)
	m := mapping.New(1, (*widget)(nil), mapping.ObjectIDGenerator{}, reg)
	reg.Register((*widget)(nil), m)
	return m
}

func TestMongoPersister_DirtyCheck_NoOpWhenUnchanged(t *testing.T) {
	m := widgetMapping()
	p := NewMongoPersister(nil, "widgets", m, session.DeferredImplicit, func() any { return new(widget) })

	w := &widget{ID: bson.NewObjectID(), Name: "gear"}
	original, err := bson.Marshal(w)
	require.NoError(t, err)

	batch := &MongoBatch{}
	doc, err := p.DirtyCheck(batch, w, session.Document(original))
	require.NoError(t, err)
	assert.Equal(t, []byte(original), []byte(doc))
	assert.Empty(t, batch.ops)
}

func TestMongoPersister_DirtyCheck_AppendsReplaceOnChange(t *testing.T) {
	m := widgetMapping()
	p := NewMongoPersister(nil, "widgets", m, session.DeferredImplicit, func() any { return new(widget) })

	w := &widget{ID: bson.NewObjectID(), Name: "gear"}
	original, err := bson.Marshal(w)
	require.NoError(t, err)

	w.Name = "sprocket"
	batch := &MongoBatch{}
	_, err = p.DirtyCheck(batch, w, session.Document(original))
	require.NoError(t, err)

	require.Len(t, batch.ops["widgets"], 1)
}

func TestMongoPersister_InsertAndRemove_GroupByCollection(t *testing.T) {
	m := widgetMapping()
	p := NewMongoPersister(nil, "widgets", m, session.DeferredImplicit, func() any { return new(widget) })

	w := &widget{ID: bson.NewObjectID(), Name: "gear"}
	batch := &MongoBatch{}

	_, err := p.Insert(batch, w)
	require.NoError(t, err)
	require.NoError(t, p.Remove(batch, w))

	assert.Len(t, batch.ops["widgets"], 2)
}
