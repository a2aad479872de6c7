// Package indexer ingests content units into the store.
//
// A run moves every input through three stages:
//
//  1. Prepare: validate, hash the text, and skip content already stored
//  2. Embed: call the embedder in batches, several batches at a time
//  3. Store: write nodes and embeddings in input order, one transaction per batch
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, logger)
//
//	stats, err := idx.Index(ctx, []indexer.NodeInput{
//	    {Key: "post", Title: "Ranking", Text: "Reciprocal rank fusion ...", SourceType: "article"},
//	    {ParentKey: "post", Text: "Why k=60?", SourceType: "comment", HierarchyLevel: 1},
//	}, nil)
//
// # Deduplication
//
// Inputs are keyed by the SHA-256 of their text. Text already in the store
// is skipped, unless its embedding is missing (for example after a failed
// provider call), in which case only the embedding is written.
//
// # Failure Handling
//
// Invalid inputs, unknown parent keys and failed embedding batches do not
// stop the run; they are reported in Statistics. Store failures abort it.
// Only one run may be active per Indexer; a concurrent call returns
// ErrIndexInProgress.
package indexer
