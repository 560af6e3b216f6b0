package storage

import (
	"context"
	"time"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// PointStore defines the interface for durable point persistence within one collection.
// It is the source of truth the HNSW index is rebuilt from.
type PointStore interface {
	// Collection metadata
	Name() string
	Dimension() int
	Dir() string
	Info(ctx context.Context) (*CollectionInfo, error)

	// Point operations
	Upsert(ctx context.Context, points []types.Point) (*UpsertResult, error)
	Delete(ctx context.Context, ids []string) (deleted []string, err error)
	Get(ctx context.Context, id string) (*types.Point, error)
	GetMany(ctx context.Context, ids []string) (map[string]types.Point, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)

	// ForEachVector visits every stored vector in ascending id order.
	ForEachVector(ctx context.Context, fn func(id string, vector []float32) error) error

	// Database operations
	Close() error
}

// CollectionInfo describes a collection as recorded in its point store
type CollectionInfo struct {
	Name       string
	Dimension  int
	PointCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpsertResult reports which ids were inserted and which overwrote an existing point.
// Classification is by existence before the batch.
type UpsertResult struct {
	Added   []string
	Updated []string
}

// Total returns the number of distinct ids written
func (r *UpsertResult) Total() int {
	return len(r.Added) + len(r.Updated)
}
