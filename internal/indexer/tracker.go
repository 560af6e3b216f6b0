package indexer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// ChangeKind classifies a point mutation
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ChangeSet holds the ids touched since the last index update.
// An id is in at most one of added, updated and deleted.
type ChangeSet struct {
	added   map[string]struct{}
	updated map[string]struct{}
	deleted map[string]struct{}
}

// NewChangeSet returns an empty change set
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		added:   make(map[string]struct{}),
		updated: make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

// Record applies one mutation. The last operation on an id wins, except
// that updating an id added in the same set keeps it added.
func (c *ChangeSet) Record(kind ChangeKind, id string) {
	switch kind {
	case ChangeAdded:
		delete(c.deleted, id)
		if _, ok := c.updated[id]; !ok {
			c.added[id] = struct{}{}
		}
	case ChangeUpdated:
		if _, ok := c.added[id]; ok {
			return
		}
		delete(c.deleted, id)
		c.updated[id] = struct{}{}
	case ChangeDeleted:
		delete(c.added, id)
		delete(c.updated, id)
		c.deleted[id] = struct{}{}
	}
}

// Merge records every change of other into c
func (c *ChangeSet) Merge(other *ChangeSet) {
	for id := range other.deleted {
		c.Record(ChangeDeleted, id)
	}
	for id := range other.added {
		c.Record(ChangeAdded, id)
	}
	for id := range other.updated {
		c.Record(ChangeUpdated, id)
	}
}

// Remove forgets every change recorded for id
func (c *ChangeSet) Remove(id string) {
	delete(c.added, id)
	delete(c.updated, id)
	delete(c.deleted, id)
}

// Added returns the added ids, sorted
func (c *ChangeSet) Added() []string { return sortedKeys(c.added) }

// Updated returns the updated ids, sorted
func (c *ChangeSet) Updated() []string { return sortedKeys(c.updated) }

// Deleted returns the deleted ids, sorted
func (c *ChangeSet) Deleted() []string { return sortedKeys(c.deleted) }

// Upserted returns added and updated ids together, sorted
func (c *ChangeSet) Upserted() []string {
	out := make([]string, 0, len(c.added)+len(c.updated))
	for id := range c.added {
		out = append(out, id)
	}
	for id := range c.updated {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Size returns added + updated + deleted
func (c *ChangeSet) Size() int {
	return len(c.added) + len(c.updated) + len(c.deleted)
}

// Empty reports whether nothing was recorded
func (c *ChangeSet) Empty() bool { return c.Size() == 0 }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// collectionState is the per-collection tracker state
type collectionState struct {
	lock IndexLock

	mu      sync.Mutex
	session *ChangeSet // nil outside a session
	pending *ChangeSet // changes made outside a session
}

// ChangeTracker records point mutations per collection and enforces one
// indexing session at a time per collection. Collections never block each other.
type ChangeTracker struct {
	states sync.Map // collection name -> *collectionState
	log    zerolog.Logger
}

// NewChangeTracker creates an empty tracker
func NewChangeTracker(logger zerolog.Logger) *ChangeTracker {
	return &ChangeTracker{log: logger}
}

func (t *ChangeTracker) state(collection string) *collectionState {
	if st, ok := t.states.Load(collection); ok {
		return st.(*collectionState)
	}
	st, _ := t.states.LoadOrStore(collection, &collectionState{pending: NewChangeSet()})
	return st.(*collectionState)
}

// BeginIndexing opens a session for collection. Changes recorded since the
// previous session are carried into it.
func (t *ChangeTracker) BeginIndexing(collection string) error {
	st := t.state(collection)
	if !st.lock.TryAcquire() {
		return fmt.Errorf("collection %s: %w", collection, types.ErrSessionAlreadyOpen)
	}

	st.mu.Lock()
	st.session = st.pending
	st.pending = NewChangeSet()
	carried := st.session.Size()
	st.mu.Unlock()

	t.log.Debug().Str("collection", collection).Int("carried", carried).Msg("indexing session opened")
	return nil
}

// EndIndexing closes the session and hands back its change set
func (t *ChangeTracker) EndIndexing(collection string) (*ChangeSet, error) {
	st := t.state(collection)

	st.mu.Lock()
	cs := st.session
	st.session = nil
	st.mu.Unlock()

	if cs == nil {
		return nil, fmt.Errorf("collection %s: %w", collection, types.ErrNoActiveSession)
	}
	st.lock.Release()

	t.log.Debug().
		Str("collection", collection).
		Int("added", len(cs.added)).
		Int("updated", len(cs.updated)).
		Int("deleted", len(cs.deleted)).
		Msg("indexing session closed")
	return cs, nil
}

// Record notes a mutation in the open session, or in the pending set when
// no session is open.
func (t *ChangeTracker) Record(collection string, kind ChangeKind, ids ...string) {
	st := t.state(collection)
	st.mu.Lock()
	defer st.mu.Unlock()

	target := st.session
	if target == nil {
		target = st.pending
	}
	for _, id := range ids {
		target.Record(kind, id)
	}
}

// Active reports whether collection has an open session
func (t *ChangeTracker) Active(collection string) bool {
	st := t.state(collection)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session != nil
}

// PendingSize returns the number of changes waiting for the next session
func (t *ChangeTracker) PendingSize(collection string) int {
	st := t.state(collection)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pending.Size()
}

// Discard forgets the recorded changes of ids, in the open session and in
// the pending set. Used when the index is about to be brought up to date
// for exactly those ids.
func (t *ChangeTracker) Discard(collection string, ids ...string) {
	st := t.state(collection)
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, id := range ids {
		st.pending.Remove(id)
		if st.session != nil {
			st.session.Remove(id)
		}
	}
}

// TakePending hands back the changes recorded outside a session and starts
// a fresh pending set. Changes recorded afterwards stay pending.
func (t *ChangeTracker) TakePending(collection string) *ChangeSet {
	st := t.state(collection)
	st.mu.Lock()
	defer st.mu.Unlock()

	cs := st.pending
	st.pending = NewChangeSet()
	return cs
}

// RestorePending puts back a set returned by TakePending. Changes recorded
// since the take win over the restored ones.
func (t *ChangeTracker) RestorePending(collection string, cs *ChangeSet) {
	st := t.state(collection)
	st.mu.Lock()
	defer st.mu.Unlock()

	cs.Merge(st.pending)
	st.pending = cs
}

// Forget drops all state for a collection
func (t *ChangeTracker) Forget(collection string) {
	t.states.Delete(collection)
}
