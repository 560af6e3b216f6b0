package vectorstore

import (
	"context"

	"github.com/dshills/gocontext-vecstore/internal/indexer"
	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// WriteOption modifies an upsert or delete
type WriteOption func(*writeOptions)

type writeOptions struct {
	watch bool
}

// WithWatchMode applies the write to the index immediately instead of
// waiting for EndIndexing. It is meant for single-file updates.
func WithWatchMode() WriteOption {
	return func(o *writeOptions) { o.watch = true }
}

func applyWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WriteResult reports the effect of an upsert or delete
type WriteResult struct {
	Added   []string
	Updated []string
	Deleted []string

	// Index is set in watch mode
	Index *IndexingResult
}

// UpsertPoints writes points to the collection. The batch is all or
// nothing: one bad vector fails it with a DimensionMismatchError.
// Outside watch mode the changes are recorded for the next index update.
func (s *Store) UpsertPoints(ctx context.Context, name string, points []types.Point, opts ...WriteOption) (*WriteResult, error) {
	o := applyWriteOptions(opts)
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	res, err := c.store.Upsert(ctx, points)
	if err != nil {
		return nil, err
	}
	out := &WriteResult{Added: res.Added, Updated: res.Updated}

	if !o.watch {
		s.tracker.Record(name, indexer.ChangeAdded, res.Added...)
		s.tracker.Record(name, indexer.ChangeUpdated, res.Updated...)
		return out, nil
	}

	cs := indexer.NewChangeSet()
	for _, id := range res.Added {
		cs.Record(indexer.ChangeAdded, id)
	}
	for _, id := range res.Updated {
		cs.Record(indexer.ChangeUpdated, id)
	}
	return s.applyWatch(ctx, c, cs, out)
}

// DeletePoints removes points from the collection. Unknown ids are ignored.
func (s *Store) DeletePoints(ctx context.Context, name string, ids []string, opts ...WriteOption) (*WriteResult, error) {
	o := applyWriteOptions(opts)
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	deleted, err := c.store.Delete(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := &WriteResult{Deleted: deleted}

	if !o.watch {
		s.tracker.Record(name, indexer.ChangeDeleted, deleted...)
		return out, nil
	}

	cs := indexer.NewChangeSet()
	for _, id := range deleted {
		cs.Record(indexer.ChangeDeleted, id)
	}
	return s.applyWatch(ctx, c, cs, out)
}

// applyWatch updates the index right away. Earlier changes recorded for the
// same ids are dropped first, since the update reads their current state.
// When it fails the points are already written, so the changes are kept
// for the next session.
func (s *Store) applyWatch(ctx context.Context, c *collection, cs *indexer.ChangeSet, out *WriteResult) (*WriteResult, error) {
	s.tracker.Discard(c.name, cs.Upserted()...)
	s.tracker.Discard(c.name, cs.Deleted()...)

	res, err := s.applyChanges(ctx, c, cs)
	if err != nil {
		s.tracker.Record(c.name, indexer.ChangeAdded, cs.Added()...)
		s.tracker.Record(c.name, indexer.ChangeUpdated, cs.Updated()...)
		s.tracker.Record(c.name, indexer.ChangeDeleted, cs.Deleted()...)
		return nil, err
	}
	out.Index = res
	return out, nil
}

// GetPoint returns one stored point
func (s *Store) GetPoint(ctx context.Context, name, id string) (*types.Point, error) {
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.store.Get(ctx, id)
}
