package persister

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/forbearing/docsession/session"
)

// MongoBatch groups every write accumulated during one flush by collection
// name, so each collection receives a single BulkWrite regardless of how
// many entity types/persisters contributed operations to it.
type MongoBatch struct {
	db *mongo.Database

	mu  sync.Mutex
	ops map[string][]mongo.WriteModel
}

var _ session.Batch = (*MongoBatch)(nil)

func (b *MongoBatch) append(collection string, model mongo.WriteModel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ops == nil {
		b.ops = make(map[string][]mongo.WriteModel)
	}
	b.ops[collection] = append(b.ops[collection], model)
}

// Execute runs one BulkWrite per collection. If any collection's bulk
// write fails, the remaining collections still run (MongoDB gives no way
// to span a bulk write across collections transactionally without a
// client session, which callers get by flushing under Persister.Bind); all
// errors are joined and returned together so the caller sees the full
// picture rather than just the first failure.
func (b *MongoBatch) Execute(ctx context.Context) error {
	b.mu.Lock()
	ops := b.ops
	b.mu.Unlock()

	var errs []error
	for collection, models := range ops {
		if len(models) == 0 {
			continue
		}
		if _, err := b.db.Collection(collection).BulkWrite(ctx, models); err != nil {
			errs = append(errs, errors.Wrapf(err, "bulk write on %s", collection))
		}
	}
	return errors.Join(errs...)
}

// MongoBatchFactory produces MongoBatch instances bound to db.
type MongoBatchFactory struct{ DB *mongo.Database }

var _ session.BatchFactory = MongoBatchFactory{}

func (f MongoBatchFactory) NewBatch() session.Batch {
	return &MongoBatch{db: f.DB, ops: make(map[string][]mongo.WriteModel)}
}
