// Package fusion merges independently ranked dense and sparse candidate
// lists with weighted Reciprocal Rank Fusion (RRF).
//
// # Scoring
//
// Each source a node appears in contributes weight/(k + rank):
//
//	score(d) = 0.7/(60 + denseRank) + 0.3/(60 + sparseRank)
//
// Absent sources contribute nothing, so a node found by both sources sums
// two contributions and is favoured without an explicit boost.
//
// # Ordering
//
// Results are sorted by fused score descending. Equal scores place nodes
// found by both sources first, then keep first-encounter order (dense
// list before sparse list). Ranks stored on each FusedResult are the
// pre-fusion positions.
//
// # Example
//
//	dense := fusion.ToRankedResults(denseHits, types.SourceDense)
//	sparse := fusion.ToRankedResults(sparseHits, types.SourceSparse)
//	fused := fusion.FuseResults(dense, sparse, fusion.Options{Limit: 10})
//	stats := fusion.ComputeOverlapStats(dense, sparse)
package fusion
