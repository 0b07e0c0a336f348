// Package mongo bootstraps the global connection for the default
// session.Persister backend, the same Init/New/Client shape the sibling
// connection-provider packages in this codebase follow.
package mongo

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/docsession/config"
	"github.com/forbearing/docsession/logger"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var (
	initialized bool
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
)

// Init initializes the global mongo client from config.App.Mongo and
// verifies connectivity with a ping. Safe to call more than once; later
// calls are no-ops once a client is established.
func Init() error {
	cfg := config.App.Mongo
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return nil
	}

	cli, err := New(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create mongo client")
	}

	timeout := 10 * time.Second
	if d, err := time.ParseDuration(cfg.ConnectTimeout); err == nil && d > 0 {
		timeout = d
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap(err, "failed to ping mongo")
	}

	client = cli
	database = cli.Database(cfg.Database)
	initialized = true
	logger.Mongo.Infow("successfully connected to mongo", "uri", cfg.URI, "database", cfg.Database)
	return nil
}

// New returns a new, unconnected mongo client for cfg. Callers that need a
// client outside the package global (e.g. tests against an in-process
// mongod) should use this instead of Init.
func New(cfg config.Mongo) (*mongo.Client, error) {
	if len(cfg.URI) == 0 {
		return nil, errors.New("mongo uri is empty")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	return mongo.Connect(opts)
}

// Client returns the global mongo client, or nil if Init has not run.
func Client() *mongo.Client {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// Database returns the global database handle configured by
// config.App.Mongo.Database, or nil if Init has not run.
func Database() *mongo.Database {
	mu.RLock()
	defer mu.RUnlock()
	return database
}

// Close disconnects the global client, if any.
func Close(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Disconnect(ctx)
	client = nil
	database = nil
	initialized = false
	return err
}
