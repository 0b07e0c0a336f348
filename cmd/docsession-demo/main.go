// Command docsession-demo wires the mapping, persister, and session
// packages together against a real MongoDB instance and drives the
// entity lifecycle through its save/flush/remove scenarios end to end.
// It is not part of the library's public surface.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/forbearing/docsession/config"
	"github.com/forbearing/docsession/logger"
	zaplogger "github.com/forbearing/docsession/logger/zap"
	"github.com/forbearing/docsession/mapping"
	"github.com/forbearing/docsession/persister"
	mongoprovider "github.com/forbearing/docsession/provider/mongo"
	"github.com/forbearing/docsession/session"
)

type Author struct {
	ID   string `bson:"_id" session:"identity"`
	Name string `bson:"name"`
}

type Chapter struct {
	ID   string `bson:"_id" session:"identity"`
	Text string `bson:"text"`
}

type Book struct {
	ID       string     `bson:"_id" session:"identity"`
	Title    string     `bson:"title"`
	Author   *Author    `bson:"author" session:"ref"`
	Tags     []string   `bson:"tags" session:"embedded"`
	Chapters []*Chapter `bson:"chapters,omitempty" session:"cascade=save|remove"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("config.Init: %w", err)
	}
	defer config.Clean()

	if err := zaplogger.Init(config.App.Logger); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer zaplogger.Clean()

	if err := mongoprovider.Init(); err != nil {
		return fmt.Errorf("mongo init: %w", err)
	}
	db := mongoprovider.Database()

	registry := mapping.NewRegistry(0)
	registry.Register((*Author)(nil), mapping.New(1, (*Author)(nil), mapping.UUIDGenerator{}, registry))
	// Chapters use rs/xid instead of uuid: sortable-by-creation-time ids are
	// a better fit for a child collection that is mostly appended to, and it
	// shows IdentityGenerator is swappable per mapping rather than global.
	registry.Register((*Chapter)(nil), mapping.New(2, (*Chapter)(nil), mapping.XIDGenerator{}, registry))
	registry.Register((*Book)(nil), mapping.New(3, (*Book)(nil), mapping.UUIDGenerator{}, registry))

	batchFactory := persister.MongoBatchFactory{DB: db}
	factory := func(m session.EntityMapping) (session.Persister, error) {
		switch m.ID() {
		case 1:
			return persister.NewMongoPersister(db, "authors", m, session.DeferredImplicit, func() any { return new(Author) }), nil
		case 2:
			return persister.NewMongoPersister(db, "chapters", m, session.DeferredImplicit, func() any { return new(Chapter) }), nil
		case 3:
			return persister.NewMongoPersister(db, "books", m, session.DeferredImplicit, func() any { return new(Book) }), nil
		default:
			return nil, fmt.Errorf("docsession-demo: no persister wired for mapping id %d", m.ID())
		}
	}

	sess, err := session.New(registry, factory, batchFactory, session.Config{
		TaskPoolSize:          config.App.Session.TaskPoolSize,
		PoisonOnFlushError:    config.App.Session.PoisonOnFlushError,
		PoisonOnFlushErrorSet: true,
	})
	if err != nil {
		return fmt.Errorf("session.New: %w", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sess.Ping(ctx); err != nil {
		return fmt.Errorf("session.Ping: %w", err)
	}

	// Author is referenced by Book (session:"ref", no cascade tag: the
	// author's lifecycle is managed independently of any book), so it is
	// saved on its own before the book that points to it.
	author := &Author{Name: "Ada Lovelace"}
	if err := sess.Save(ctx, author); err != nil {
		return fmt.Errorf("save author: %w", err)
	}
	if err := sess.Flush(ctx, session.FlushOptions{}); err != nil {
		return fmt.Errorf("flush author: %w", err)
	}

	// A new entity graph is saved and flushed in one pass. Entities are
	// never handed a pre-assigned identity: save() stamps one from the
	// mapping's IdentityGenerator, since an object that already carries an
	// identity but isn't yet linked in this session is detached.
	book := &Book{
		Title:    "Notes on the Analytical Engine",
		Author:   author,
		Tags:     []string{"history", "computing"},
		Chapters: []*Chapter{{Text: "On the general nature of the Analytical Engine"}},
	}
	if err := sess.Save(ctx, book); err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	if err := sess.Flush(ctx, session.FlushOptions{}); err != nil {
		return fmt.Errorf("flush insert: %w", err)
	}
	logger.Session.Infow("inserted book graph", "book_id", book.ID, "author_id", author.ID, "chapter_id", book.Chapters[0].ID)

	// Remove the book, then save it again before flushing: the pending
	// delete is cancelled rather than racing a delete and insert against
	// the same identity.
	if err := sess.Remove(ctx, book); err != nil {
		return fmt.Errorf("remove book: %w", err)
	}
	if err := sess.Save(ctx, book); err != nil {
		return fmt.Errorf("re-save book: %w", err)
	}
	if err := sess.Flush(ctx, session.FlushOptions{}); err != nil {
		return fmt.Errorf("flush cancel-delete: %w", err)
	}
	logger.Session.Infow("cancelled pending delete via re-save", "book_id", book.ID)

	// Fetch the book's author through its lazy Reference.
	ref, err := sess.GetReference((*Author)(nil), author.ID)
	if err != nil {
		return fmt.Errorf("get author reference: %w", err)
	}
	resolved, err := sess.Fetch(ctx, []*session.Reference{ref})
	if err != nil {
		return fmt.Errorf("fetch author: %w", err)
	}
	logger.Session.Infow("fetched reference", "entities", len(resolved))

	// Final cascade remove and flush of the book and its chapters. The
	// author is not cascaded from Book and stays in the store.
	if err := sess.Remove(ctx, book); err != nil {
		return fmt.Errorf("final remove: %w", err)
	}
	if err := sess.Flush(ctx, session.FlushOptions{}); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	logger.Session.Infow("removed book graph", "book_id", book.ID)

	return nil
}
