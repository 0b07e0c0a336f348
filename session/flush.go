package session

import (
	"context"

	"github.com/forbearing/docsession/logger"
)

// flushPlan is the work one flush discovered, kept separate from execution
// so a dry-run flush can stop after the passes have filled the batch,
// without running it or reconciling any link.
type flushPlan struct {
	dirtyChecked []*ObjectLink
	dirtyDocs    []Document
	inserted     []*ObjectLink
	insertedDocs []Document
	deleted      []*ObjectLink
}

// flush runs the three-pass plan (dirty-check, insert, delete) over every
// currently linked entity, executes the resulting batch once, and
// reconciles ObjectLink state against the outcome.
func (s *Session) flush(ctx context.Context, opts FlushOptions) error {
	links := s.table.snapshot()

	// Each flush binds its own copy of every touched persister to ctx (e.g.
	// a single datastore transaction/session spanning the whole batch),
	// rather than reusing the long-lived persister the session memoized.
	persisters := make(map[int]Persister)
	for _, l := range links {
		root := l.mapping.InheritanceRoot()
		if _, ok := persisters[root.ID()]; !ok {
			p, err := s.persisterFor(root)
			if err != nil {
				return err
			}
			persisters[root.ID()] = p.Bind(ctx)
		}
	}

	batch := s.batchFactory.NewBatch()
	plan := &flushPlan{}

	// Pass 1: dirty-check every Managed, not-otherwise-scheduled link whose
	// persister tracks changes implicitly, plus any link explicitly
	// scheduled for a dirty check.
	for _, l := range links {
		if l.state != Managed {
			continue
		}
		p := persisters[l.mapping.InheritanceRoot().ID()]
		needsCheck := l.scheduled == OpDirtyCheck ||
			(l.scheduled == OpNone && p.ChangeTracking() == DeferredImplicit)
		if !needsCheck {
			continue
		}
		doc, err := p.DirtyCheck(batch, l.object, l.original)
		if err != nil {
			return newErr(KindPersister, l.identity, err)
		}
		plan.dirtyChecked = append(plan.dirtyChecked, l)
		plan.dirtyDocs = append(plan.dirtyDocs, doc)
	}

	// Pass 2: insert every link scheduled for insert.
	for _, l := range links {
		if l.scheduled != OpInsert {
			continue
		}
		p := persisters[l.mapping.InheritanceRoot().ID()]
		doc, err := p.Insert(batch, l.object)
		if err != nil {
			return newErr(KindPersister, l.identity, err)
		}
		plan.inserted = append(plan.inserted, l)
		plan.insertedDocs = append(plan.insertedDocs, doc)
	}

	// Pass 3: delete every link scheduled for delete.
	for _, l := range links {
		if l.scheduled != OpDelete {
			continue
		}
		p := persisters[l.mapping.InheritanceRoot().ID()]
		if err := p.Remove(batch, l.object); err != nil {
			return newErr(KindPersister, l.identity, err)
		}
		plan.deleted = append(plan.deleted, l)
	}

	if opts.DryRun {
		return nil
	}

	// The circuit breaker is the poison mechanism: a batch failure trips it
	// and the poisoned flag makes every later operation fail fast. With
	// poisoning disabled, execute directly so a failed flush stays
	// retryable.
	var err error
	if s.cfg.poisonOnFlushError() {
		_, err = s.cb.Execute(func() (any, error) {
			return nil, batch.Execute(ctx)
		})
	} else {
		err = batch.Execute(ctx)
	}
	if err != nil {
		if s.cfg.poisonOnFlushError() {
			s.poison(err)
		}
		logger.Session.Errorw("flush batch failed", "error", err)
		return newErr(KindBatch, nil, err)
	}

	s.reconcile(plan)
	logger.Session.Infow("flush complete",
		"updates", len(plan.dirtyChecked), "inserts", len(plan.inserted), "deletes", len(plan.deleted))
	return nil
}

// reconcile advances link state after a successful batch execution:
// dirty-checked and inserted links get their snapshot updated and their
// scheduled operation cleared, deleted links are unlinked from the table
// entirely.
func (s *Session) reconcile(plan *flushPlan) {
	for i, l := range plan.dirtyChecked {
		l.original = plan.dirtyDocs[i]
		l.scheduled = OpNone
	}
	for i, l := range plan.inserted {
		l.original = plan.insertedDocs[i]
		l.scheduled = OpNone
	}
	for _, l := range plan.deleted {
		s.table.unlink(l)
	}
}
