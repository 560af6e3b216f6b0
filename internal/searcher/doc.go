// Package searcher executes nearest-neighbor searches against a collection.
//
// A text search needs two slow inputs: the query embedding and the loaded
// index. Executor fetches both at once on a two-slot errgroup, so latency
// approaches the slower of the two rather than their sum:
//
//	exec := searcher.NewExecutor(emb, loader, resolver, searcher.Config{})
//	resp, err := exec.Search(ctx, searcher.SearchRequest{
//	    Collection: "code",
//	    Query:      "open the index file",
//	    Limit:      10,
//	})
//	fmt.Println(resp.Timing.EmbeddingMs(), resp.Timing.ParallelMs())
//
// The index is asked for twice the limit so hits whose points were deleted
// after the last index update can be dropped without starving the result.
// Score is cosine similarity, 1 - distance.
//
// A request carrying Vector skips embedding and runs sequentially.
package searcher
