// Package reranker provides interchangeable strategies for reordering fused
// search results behind one contract.
//
// # Strategies
//
//   - identity: passthrough, only MinScore and Limit are applied
//   - score: +0.1 when both sources agreed, plus a capped length boost
//     of 0.05*min(wordCount/300, 1.5)
//   - diversity: greedy MMR-style selection penalising repeated source types
//
// # Usage
//
//	rr, err := reranker.New(reranker.KindDiversity, reranker.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	top := rr.Rerank(query, fused, reranker.Options{Limit: 10})
//
// Pipelines hold a Reranker value and never branch on the concrete type.
package reranker
