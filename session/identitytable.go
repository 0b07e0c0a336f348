package session

import (
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// identityTable is the session-scoped map from stringified entity id to its
// ObjectLink. It is guarded by its own mutex: the task queue
// allows several non-conflicting user operations (e.g. two concurrent
// save() calls on disjoint graphs) to run as separate goroutines, so the
// table itself must still be safe for concurrent structural mutation even
// though the session's logical model is single-threaded cooperative.
type identityTable struct {
	mu    sync.Mutex
	links map[string]*ObjectLink
}

func newIdentityTable() *identityTable {
	return &identityTable{links: make(map[string]*ObjectLink)}
}

// stringifyIdentity renders an identity value to the table's key space.
// bson.ObjectID (the default Mongo identity shape) renders as its hex
// string; everything else uses its default formatting, matching how a
// string-keyed path parameter would already arrive.
func stringifyIdentity(id any) string {
	switch v := id.(type) {
	case bson.ObjectID:
		return v.Hex()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// link registers a new ObjectLink for entity under m/p, requiring entity's
// identity to already be set and unique in this session.
func (t *identityTable) link(entity any, m EntityMapping, p Persister, op ScheduledOp) (*ObjectLink, error) {
	id := m.IdentityOf(entity)
	if id == nil || id == "" {
		return nil, newErr(KindUnmapped, id, fmt.Errorf("link: entity has no identity set"))
	}
	key := stringifyIdentity(id)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.links[key]; exists {
		return nil, newErr(KindDuplicateLink, id, fmt.Errorf("link: identity %q already linked in this session", key))
	}
	l := newLink(entity, m, p, id, key, op)
	t.links[key] = l
	return l, nil
}

// unlink removes l from the table. If l's scheduled operation is Insert or
// its state is Removed, the entity's identity attribute is also cleared: an
// entity that was never persisted, or that has been deleted, must not
// retain a stale identity, or a later save would collide with it.
func (t *identityTable) unlink(l *ObjectLink) {
	t.mu.Lock()
	delete(t.links, l.identityStr)
	t.mu.Unlock()

	if l.scheduled == OpInsert || l.state == Removed {
		l.mapping.ClearIdentity(l.object)
	}
}

// byIdentity returns the link for a stringified identity, if any.
func (t *identityTable) byIdentity(key string) (*ObjectLink, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.links[key]
	return l, ok
}

// snapshot returns every currently-linked ObjectLink in enumeration order,
// stable for the duration of the caller's use (no mutation occurs while the
// caller holds the returned slice, by convention: callers only take a
// snapshot while population is quiescent, i.e. at flush entry).
func (t *identityTable) snapshot() []*ObjectLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*ObjectLink, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l)
	}
	return out
}

// clear discards every link, returning the table to empty.
func (t *identityTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links = make(map[string]*ObjectLink)
}

func (t *identityTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links)
}
