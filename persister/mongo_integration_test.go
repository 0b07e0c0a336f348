//go:build integration

package persister

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/forbearing/docsession/session"
)

// TestMongoPersister_RoundTrip exercises MongoPersister/MongoBatch against
// a real server. Run with: go test -tags=integration ./persister/...
// and DOCSESSION_TEST_MONGO_URI pointing at a disposable instance.
func TestMongoPersister_RoundTrip(t *testing.T) {
	uri := os.Getenv("DOCSESSION_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DOCSESSION_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	db := client.Database("docsession_integration_test")
	defer db.Collection("widgets").Drop(ctx)

	m := widgetMapping()
	p := NewMongoPersister(db, "widgets", m, session.DeferredImplicit, func() any { return new(widget) })
	factory := MongoBatchFactory{DB: db}

	w := &widget{ID: bson.NewObjectID(), Name: "gear"}
	batch := factory.NewBatch()
	_, err = p.Insert(batch, w)
	require.NoError(t, err)
	require.NoError(t, batch.Execute(ctx))

	loaded, _, err := p.FindOneByID(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, w.Name, loaded.(*widget).Name)
}
