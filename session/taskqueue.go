package session

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Action identifies the kind of operation a queued task performs, used to
// look up its conflict mask in the exclusion lattice.
type Action int

const (
	ActionSave Action = iota
	ActionRemove
	ActionDetach
	ActionRefresh
	// ActionMerge has a conflict mask, but no public Session method
	// schedules it.
	ActionMerge
	ActionFlush
	ActionClear
	ActionFind
	ActionFetch

	numActions
)

type actionMask uint16

func bit(a Action) actionMask { return 1 << uint(a) }

// exclusionMasks[a] is the set of actions that may not run concurrently
// with a. Built once from the policy table in the task queue's design:
//
//   - Save, Remove, Detach, Refresh, Merge: conflict with every other kind
//     of task, but not with themselves. Two Save tasks may run at once,
//     because each only touches the graph reachable from its own root and
//     the identity table is independently synchronized.
//   - Flush, Clear: conflict with everything, including another instance
//     of themselves. Only one flush (or clear) may be in flight, and
//     nothing else may run while it is.
//   - Find, Fetch: conflict with everything except each other. Concurrent
//     reads are fine, but not alongside a mutation or a flush.
var exclusionMasks = buildExclusionMasks()

func buildExclusionMasks() [numActions]actionMask {
	var m [numActions]actionMask
	all := actionMask(0)
	for a := Action(0); a < numActions; a++ {
		all |= bit(a)
	}

	mutators := []Action{ActionSave, ActionRemove, ActionDetach, ActionRefresh, ActionMerge}
	for _, a := range mutators {
		m[a] = all &^ bit(a)
	}

	m[ActionFlush] = all
	m[ActionClear] = all

	readers := []Action{ActionFind, ActionFetch}
	readerMask := all
	for _, r := range readers {
		readerMask &^= bit(r)
	}
	for _, a := range readers {
		m[a] = readerMask
	}
	return m
}

// task is one queued unit of work: fn runs once dispatched, under the
// context of the submit call that enqueued it, and done delivers its error
// when it completes, matching the yield-then-callback completion shape
// described for the queue.
type task struct {
	action Action
	ctx    context.Context
	fn     func(ctx context.Context) error
	done   chan error
}

// taskQueue is a FIFO work queue that dispatches tasks as soon as they do
// not conflict with any task currently in flight, rather than strictly one
// at a time. Conflict is decided once per head-of-line task against the
// in-flight set's accumulated mask; a task that conflicts blocks the queue
// behind it even if a later task would not conflict, preserving program
// order for anything a caller depends on ordering for.
type taskQueue struct {
	mu       sync.Mutex
	pending  []*task
	inFlight map[*task]bool
	pool     *ants.Pool
}

func newTaskQueue(poolSize int) (*taskQueue, error) {
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, newErr(KindUnknown, nil, err)
	}
	return &taskQueue{inFlight: make(map[*task]bool), pool: pool}, nil
}

func (q *taskQueue) release() { q.pool.Release() }

// submit enqueues fn under action and blocks until it has run, returning
// its error. Callers that want async dispatch should invoke submit from
// their own goroutine; the queue itself always waits for a dispatch slot
// before returning, which is what keeps the exclusion lattice meaningful:
// the caller only proceeds once its task is actually running or done.
func (q *taskQueue) submit(ctx context.Context, action Action, fn func(ctx context.Context) error) error {
	t := &task{action: action, ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, t)
	ready := q.drainLocked()
	q.mu.Unlock()

	q.dispatch(ready)

	return <-t.done
}

// drainLocked pulls every pending task, in FIFO order, that does not
// conflict with the current in-flight set (including ones drained in this
// same call) out of the pending queue and marks it in-flight, returning the
// tasks the caller must now hand to the pool. Must be called with q.mu
// held; does not itself touch the pool, so the lock is never held across a
// (possibly blocking) pool.Submit call.
func (q *taskQueue) drainLocked() []*task {
	var ready []*task
	for len(q.pending) > 0 {
		head := q.pending[0]
		if q.conflictsLocked(head) {
			break
		}
		q.pending = q.pending[1:]
		q.inFlight[head] = true
		ready = append(ready, head)
	}
	return ready
}

// dispatch hands each task in ready to the worker pool. Called with no lock
// held.
func (q *taskQueue) dispatch(ready []*task) {
	for _, t := range ready {
		t := t
		err := q.pool.Submit(func() { q.run(t) })
		if err != nil {
			q.mu.Lock()
			delete(q.inFlight, t)
			next := q.drainLocked()
			q.mu.Unlock()
			t.done <- newErr(KindUnknown, nil, err)
			q.dispatch(next)
		}
	}
}

// run executes t, retires it from the in-flight set, and dispatches any
// successors it unblocked. Successor dispatch happens off this worker
// goroutine: pool.Submit blocks until a worker slot is free, and this
// worker's own slot only frees once run returns, so submitting from here
// would deadlock a single-worker pool.
func (q *taskQueue) run(t *task) {
	runErr := t.fn(t.ctx)

	q.mu.Lock()
	delete(q.inFlight, t)
	next := q.drainLocked()
	q.mu.Unlock()

	t.done <- runErr
	if len(next) > 0 {
		go q.dispatch(next)
	}
}

func (q *taskQueue) conflictsLocked(t *task) bool {
	mask := exclusionMasks[t.action]
	for other := range q.inFlight {
		if mask&bit(other.action) != 0 {
			return true
		}
	}
	return false
}
