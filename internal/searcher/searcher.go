package searcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/gocontext-vecstore/internal/embedder"
	"github.com/dshills/gocontext-vecstore/internal/hnsw"
	"github.com/dshills/gocontext-vecstore/pkg/types"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	// poolSize bounds the goroutines of one search: embedding and index load
	poolSize = 2
)

// Index is a loaded, read-only nearest-neighbor index
type Index interface {
	Dimension() int
	Search(vector []float32, k int) ([]hnsw.Neighbor, error)
}

// IndexLoader returns the current index of a collection. It fails fast with
// types.ErrIndexNotFound when none has been built.
type IndexLoader interface {
	LoadIndex(ctx context.Context, collection string) (Index, error)
}

// PointResolver maps neighbor ids back to stored points. Ids that no longer
// exist are left out of the result.
type PointResolver interface {
	GetMany(ctx context.Context, collection string, ids []string) (map[string]types.Point, error)
}

// SearchRequest contains parameters for a search operation.
// Exactly one of Query and Vector is used; Vector wins when both are set.
type SearchRequest struct {
	Collection string
	Query      string
	Vector     []float32
	Limit      int
	MinScore   *float64
}

// Timing reports where a search spent its time
type Timing struct {
	Embedding time.Duration
	IndexLoad time.Duration
	Parallel  time.Duration // wall clock of the overlapped embedding and load
	Query     time.Duration
	Resolve   time.Duration
	Total     time.Duration
}

func (t Timing) EmbeddingMs() float64 { return ms(t.Embedding) }
func (t Timing) IndexLoadMs() float64 { return ms(t.IndexLoad) }
func (t Timing) ParallelMs() float64  { return ms(t.Parallel) }
func (t Timing) QueryMs() float64     { return ms(t.Query) }
func (t Timing) TotalMs() float64     { return ms(t.Total) }

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// SearchResponse contains ranked results and timing
type SearchResponse struct {
	Results []types.SearchResult
	Timing  Timing
}

// Config holds executor options
type Config struct {
	DefaultLimit int
	MaxLimit     int
	Logger       zerolog.Logger
}

// Executor runs searches, overlapping query embedding with index loading
type Executor struct {
	embedder embedder.Embedder
	loader   IndexLoader
	resolver PointResolver
	cfg      Config
	log      zerolog.Logger
}

// NewExecutor creates an executor. emb may be nil when only precomputed
// vectors are searched.
func NewExecutor(emb embedder.Embedder, loader IndexLoader, resolver PointResolver, cfg Config) *Executor {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	return &Executor{
		embedder: emb,
		loader:   loader,
		resolver: resolver,
		cfg:      cfg,
		log:      cfg.Logger,
	}
}

// Search embeds the query and loads the index concurrently, then queries
// the index once both are ready. The first failure of either task is
// returned; provider failures wrap types.ErrEmbeddingProvider.
func (e *Executor) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	if err := e.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	var (
		timing Timing
		vector []float32
		index  Index
	)

	if req.Vector != nil {
		loadStart := time.Now()
		idx, err := e.loader.LoadIndex(ctx, req.Collection)
		if err != nil {
			return nil, err
		}
		timing.IndexLoad = time.Since(loadStart)
		timing.Parallel = timing.IndexLoad
		vector, index = req.Vector, idx
	} else {
		if e.embedder == nil {
			return nil, fmt.Errorf("%w: no embedder configured", types.ErrEmbeddingProvider)
		}

		parallelStart := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(poolSize)

		g.Go(func() error {
			t := time.Now()
			emb, err := e.embedder.GenerateEmbedding(gctx, embedder.EmbeddingRequest{Text: req.Query})
			timing.Embedding = time.Since(t)
			if err != nil {
				return fmt.Errorf("%w: %w", types.ErrEmbeddingProvider, err)
			}
			vector = emb.Vector
			return nil
		})
		g.Go(func() error {
			t := time.Now()
			idx, err := e.loader.LoadIndex(gctx, req.Collection)
			timing.IndexLoad = time.Since(t)
			if err != nil {
				return err
			}
			index = idx
			return nil
		})

		// Wait returns only after both goroutines exit.
		if err := g.Wait(); err != nil {
			return nil, err
		}
		timing.Parallel = time.Since(parallelStart)
	}

	queryStart := time.Now()
	neighbors, err := index.Search(vector, 2*req.Limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Collection, err)
	}
	timing.Query = time.Since(queryStart)

	resolveStart := time.Now()
	results, err := e.resolve(ctx, req, neighbors)
	if err != nil {
		return nil, err
	}
	timing.Resolve = time.Since(resolveStart)
	timing.Total = time.Since(start)

	e.log.Debug().
		Str("collection", req.Collection).
		Int("results", len(results)).
		Float64("embedding_ms", timing.EmbeddingMs()).
		Float64("index_load_ms", timing.IndexLoadMs()).
		Float64("parallel_ms", timing.ParallelMs()).
		Float64("total_ms", timing.TotalMs()).
		Msg("search complete")

	return &SearchResponse{Results: results, Timing: timing}, nil
}

// resolve drops stale ids and low scores, then ranks the first Limit hits
func (e *Executor) resolve(ctx context.Context, req SearchRequest, neighbors []hnsw.Neighbor) ([]types.SearchResult, error) {
	if len(neighbors) == 0 {
		return []types.SearchResult{}, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	points, err := e.resolver.GetMany(ctx, req.Collection, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve results: %w", err)
	}

	results := make([]types.SearchResult, 0, min(req.Limit, len(neighbors)))
	for _, n := range neighbors {
		if len(results) == req.Limit {
			break
		}
		p, ok := points[n.ID]
		if !ok {
			continue
		}
		score := 1 - float64(n.Distance)
		if req.MinScore != nil && score < *req.MinScore {
			continue
		}
		results = append(results, types.SearchResult{
			ID:       n.ID,
			Rank:     len(results) + 1,
			Score:    score,
			Distance: float64(n.Distance),
			Payload:  p.Payload,
		})
	}
	return results, nil
}

// validateRequest applies defaults and rejects unusable requests
func (e *Executor) validateRequest(req *SearchRequest) error {
	if req.Collection == "" {
		return fmt.Errorf("%w: collection is required", types.ErrInvalidArgument)
	}
	if req.Vector == nil && req.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrInvalidArgument)
	}
	if req.Vector != nil && len(req.Vector) == 0 {
		return fmt.Errorf("%w: vector cannot be empty", types.ErrInvalidArgument)
	}
	if req.Limit < 0 {
		return fmt.Errorf("%w: limit %d is negative", types.ErrInvalidArgument, req.Limit)
	}

	if req.Limit == 0 {
		req.Limit = e.cfg.DefaultLimit
	}
	if req.Limit > e.cfg.MaxLimit {
		req.Limit = e.cfg.MaxLimit
	}
	return nil
}

// IsEmbeddingError reports whether err came from the embedding provider
func IsEmbeddingError(err error) bool {
	return errors.Is(err, types.ErrEmbeddingProvider)
}
