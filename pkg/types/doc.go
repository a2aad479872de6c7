// Package types provides the data contracts passed between the stages of the
// hybrid retrieval and ranking pipeline.
//
// # Core Types
//
// Node is a content unit owned by the content store. The pipeline reads it
// and never modifies it:
//
//	node := &types.Node{
//	    ID:         42,
//	    Text:       "Reciprocal rank fusion combines ranked lists...",
//	    WordCount:  180,
//	    SourceType: "article",
//	}
//
// RankedResult is a store hit with its 1-based rank inside one source
// (dense or sparse). FusedResult is produced by fusion and carries the
// provenance of both sources:
//
//	fused := types.FusedResult{
//	    Node:       node,
//	    FusedScore: 0.0161,
//	    DenseRank:  1,
//	    SparseRank: 3,
//	    InBoth:     true,
//	}
//
// Downstream stages may replace FusedScore but keep Node and the dense and
// sparse provenance fields untouched.
//
// EnrichedResult is the terminal shape: a FusedResult plus quality
// indicators and optional expanded context.
//
// # Ownership
//
// Every stage returns newly allocated slices. Callers can therefore apply
// several stages to the same fused list without copying it first.
package types
