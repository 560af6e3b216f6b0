// Package embedder turns query text into vectors for the vector store.
//
// Providers:
//
//   - OpenAIProvider calls the OpenAI embeddings API (or any compatible
//     endpoint) with exponential-backoff retry on 429 and 5xx.
//   - LocalProvider feature-hashes words into a fixed-size unit vector. It
//     needs no network and is deterministic, which makes it the default
//     for offline use and tests.
//   - Func wraps an arbitrary function, for callers that already own an
//     embedding client.
//
// # Provider Selection
//
// NewFromEnv reads VECSTORE_EMBEDDING_PROVIDER, VECSTORE_EMBEDDING_MODEL,
// VECSTORE_EMBEDDING_DIMENSION and OPENAI_API_KEY:
//
//  1. If VECSTORE_EMBEDDING_PROVIDER is set, use it
//  2. Else if OPENAI_API_KEY is set, use OpenAI
//  3. Else fall back to the local provider
//
// # Caching
//
// Remote and local providers accept an optional *Cache, an LRU keyed by
// model and text. Cached vectors are copied on the way out.
//
//	emb, err := embedder.NewFromConfig(embedder.Config{
//	    Provider:  "openai",
//	    Dimension: 512,
//	    CacheSize: 1000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	res, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: "open a file"})
package embedder
