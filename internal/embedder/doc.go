// Package embedder generates vector embeddings for content and queries.
//
// The ranking pipeline treats embedding as an opaque function; this package
// supplies the implementations used by the indexer and the search
// orchestrator.
//
// # Providers
//
//   - openai: OpenAI /v1/embeddings (text-embedding-3-small, 1536 dimensions)
//   - jina: Jina AI, same wire format (jina-embeddings-v3, 1024 dimensions)
//   - local: offline signed feature hashing over words (384 dimensions)
//
// Both API providers retry transient failures (network errors, 5xx, 429)
// with exponential backoff. Other 4xx responses fail immediately.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    key,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	e, err := emb.Embed(ctx, "reciprocal rank fusion")
//	fmt.Println(len(e.Vector))
//
// # Caching
//
// WithCache wraps any Embedder in an LRU keyed by the SHA-256 of the text.
// EmbedBatch only forwards cache misses. Cached vectors are copied on the
// way in and out.
package embedder
