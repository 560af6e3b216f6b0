// Package types provides shared type definitions for the gocontext vector store.
//
// This package defines the domain types used across the storage, index and
// search layers: points, search results and the error taxonomy.
//
// # Core Types
//
// Point is the unit of storage. Every point in a collection has a unique id,
// a vector of the collection's fixed dimension and a free-form payload:
//
//	point := types.Point{
//	    ID:      "pkg/auth/token.go#Verify",
//	    Vector:  embedding,
//	    Payload: map[string]any{"path": "pkg/auth/token.go"},
//	}
//
// SearchResult is a nearest-neighbor hit resolved against the point store:
//
//	for _, r := range results {
//	    fmt.Printf("[%d] %s (score: %.3f)\n", r.Rank, r.ID, r.Score)
//	}
//
// # Errors
//
// Every failure class is exposed as a sentinel error and can be matched with
// errors.Is:
//
//	ErrCollectionNotFound  // collection name never created
//	ErrAlreadyExists       // create_collection called twice
//	ErrDimensionMismatch   // vector length differs from collection dimension
//	ErrSessionAlreadyOpen  // begin_indexing while a session is open
//	ErrNoActiveSession     // end_indexing without begin_indexing
//	ErrIndexNotFound       // no usable index artifact ("HNSW index not found")
//	ErrCapacity            // load requested below the stored vector count
//	ErrEmbeddingProvider   // passthrough from the embedding provider
//
// DimensionMismatchError and CapacityError carry the offending numbers and
// unwrap to their sentinels:
//
//	var dm *types.DimensionMismatchError
//	if errors.As(err, &dm) {
//	    log.Printf("point %s: want %d dims, got %d", dm.PointID, dm.Expected, dm.Actual)
//	}
package types
