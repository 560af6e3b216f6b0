package types

import (
	"errors"
	"fmt"
)

// Domain errors shared by the storage, index and search layers
var (
	// Collection errors
	ErrCollectionNotFound = errors.New("collection not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrPointNotFound      = errors.New("point not found")

	// Indexing session errors
	ErrSessionAlreadyOpen = errors.New("indexing session already open")
	ErrNoActiveSession    = errors.New("no active indexing session")

	// Index errors
	ErrIndexNotFound = errors.New("HNSW index not found")
	ErrCapacity      = errors.New("index capacity exceeded")

	// Collaborator errors
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// Search result errors
	ErrInvalidPointID        = errors.New("invalid point ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("score must be between -1 and 1")
)

// DimensionMismatchError reports a vector whose length differs from the
// collection dimension. It matches both ErrDimensionMismatch and
// ErrInvalidArgument under errors.Is.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	PointID  string // empty for query vectors
}

func (e *DimensionMismatchError) Error() string {
	if e.PointID == "" {
		return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch for point %q: expected %d, got %d", e.PointID, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// Is reports DimensionMismatchError as an InvalidArgument-class error.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// CapacityError is returned when an index is loaded with fewer slots than it stores.
type CapacityError struct {
	Requested int
	Stored    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("index capacity exceeded: max_elements %d is below stored vector count %d", e.Requested, e.Stored)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }
