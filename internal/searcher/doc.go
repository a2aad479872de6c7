// Package searcher implements the hybrid search orchestrator: it issues a
// dense (embedding) and a sparse (keyword) candidate query concurrently
// against a content store, converts both into ranked results and fuses
// them with Reciprocal Rank Fusion.
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(store, emb, logger, searcher.Options{})
//	if err != nil {
//	    return err
//	}
//
//	res, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "reset the connection pool",
//	    Limit: 10,
//	})
//
//	for _, r := range res.Results {
//	    fmt.Printf("%d %.4f dense=%d sparse=%d\n",
//	        r.Node.ID, r.FusedScore, r.DenseRank, r.SparseRank)
//	}
//
// # Modes
//
// A request runs in hybrid mode unless DenseOnly or SparseOnly is set;
// setting both is an error. The dense branch uses SearchRequest.Vector when
// given and otherwise embeds Query with the configured embedder. In hybrid
// mode a branch with nothing to search is skipped, so a keyword-only request
// against a searcher without an embedder still succeeds. A request with
// neither a vector nor query text fails with types.ErrEmptyQuery.
//
// # Candidates
//
// Each branch asks the store for Limit * CandidateMultiplier candidates so
// that fusion has material to re-rank; the fused list is truncated to Limit.
// If either query fails the whole search fails. There is no retry and no
// partial result.
//
// # Caching
//
// With UseCache set, results are kept in an LRU cache keyed by a SHA-256 of
// every request field that shapes the output, for CacheTTL (default one
// hour). Entries are deep-copied on the way in and out. Call InvalidateCache
// after indexing new content.
package searcher
