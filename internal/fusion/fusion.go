package fusion

import (
	"sort"

	"github.com/dshills/hybridrank/pkg/types"
)

// Default fusion parameters
const (
	DefaultK            = 60
	DefaultDenseWeight  = 0.7
	DefaultSparseWeight = 0.3
)

// Options controls Reciprocal Rank Fusion
type Options struct {
	K            int     // Smoothing constant (default 60)
	DenseWeight  float64 // Weight of the dense list (default 0.7)
	SparseWeight float64 // Weight of the sparse list (default 0.3)
	Limit        int     // Truncate fused output; 0 keeps everything
}

// DefaultOptions returns the standard fusion parameters
func DefaultOptions() Options {
	return Options{
		K:            DefaultK,
		DenseWeight:  DefaultDenseWeight,
		SparseWeight: DefaultSparseWeight,
	}
}

// withDefaults fills unset parameters. Both weights zero means "unset";
// a single zero weight is honoured so one source can be muted.
func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.DenseWeight == 0 && o.SparseWeight == 0 {
		o.DenseWeight = DefaultDenseWeight
		o.SparseWeight = DefaultSparseWeight
	}
	return o
}

// ComputeRRFScore returns the weighted RRF score for a node.
// A rank of 0 means the node is absent from that source and contributes nothing.
//
//	RRF(d) = denseWeight/(k + denseRank) + sparseWeight/(k + sparseRank)
func ComputeRRFScore(denseRank, sparseRank int, opts Options) float64 {
	opts = opts.withDefaults()
	k := float64(opts.K)

	var score float64
	if denseRank > 0 {
		score += opts.DenseWeight / (k + float64(denseRank))
	}
	if sparseRank > 0 {
		score += opts.SparseWeight / (k + float64(sparseRank))
	}
	return score
}

// FuseResults merges the dense and sparse lists into one deduplicated list
// ordered by fused score. Ties prefer nodes found by both sources, then the
// order in which nodes were first encountered (dense list first).
func FuseResults(dense, sparse []types.RankedResult, opts Options) []types.FusedResult {
	opts = opts.withDefaults()

	index := make(map[int64]int, len(dense)+len(sparse))
	entries := make([]types.FusedResult, 0, len(dense)+len(sparse))

	upsert := func(r types.RankedResult) {
		if r.Node == nil {
			return
		}
		i, ok := index[r.Node.ID]
		if !ok {
			i = len(entries)
			index[r.Node.ID] = i
			entries = append(entries, types.FusedResult{Node: r.Node})
		}
		entry := &entries[i]
		switch r.Source {
		case types.SourceDense:
			// Keep the best rank if the store returned a node twice
			if entry.DenseRank == 0 || r.Rank < entry.DenseRank {
				entry.DenseRank = r.Rank
				entry.DenseScore = r.Score
			}
		case types.SourceSparse:
			if entry.SparseRank == 0 || r.Rank < entry.SparseRank {
				entry.SparseRank = r.Rank
				entry.SparseScore = r.Score
			}
		}
	}

	for _, r := range dense {
		upsert(r)
	}
	for _, r := range sparse {
		upsert(r)
	}

	for i := range entries {
		e := &entries[i]
		e.InBoth = e.HasDense() && e.HasSparse()
		e.FusedScore = ComputeRRFScore(e.DenseRank, e.SparseRank, opts)
	}

	// Stable sort preserves encounter order for full ties
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].FusedScore != entries[j].FusedScore {
			return entries[i].FusedScore > entries[j].FusedScore
		}
		return entries[i].InBoth && !entries[j].InBoth
	})

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries
}

// ToRankedResults assigns 1-based ranks in the order the store returned hits.
// The store is assumed to sort by its own relevance metric.
func ToRankedResults(hits []types.ScoredNode, source types.Source) []types.RankedResult {
	results := make([]types.RankedResult, 0, len(hits))
	for i, hit := range hits {
		results = append(results, types.RankedResult{
			Node:   hit.Node,
			Rank:   i + 1,
			Score:  hit.Score,
			Source: source,
		})
	}
	return results
}

// OverlapStats describes how the dense and sparse lists intersect
type OverlapStats struct {
	Overlap    int // Nodes present in both lists
	DenseOnly  int
	SparseOnly int
	Total      int // Unique nodes across both lists
}

// ComputeOverlapStats counts node-identity intersection and differences
func ComputeOverlapStats(dense, sparse []types.RankedResult) OverlapStats {
	denseIDs := make(map[int64]struct{}, len(dense))
	for _, r := range dense {
		if r.Node != nil {
			denseIDs[r.Node.ID] = struct{}{}
		}
	}

	sparseIDs := make(map[int64]struct{}, len(sparse))
	for _, r := range sparse {
		if r.Node != nil {
			sparseIDs[r.Node.ID] = struct{}{}
		}
	}

	var stats OverlapStats
	for id := range denseIDs {
		if _, ok := sparseIDs[id]; ok {
			stats.Overlap++
		} else {
			stats.DenseOnly++
		}
	}
	stats.SparseOnly = len(sparseIDs) - stats.Overlap
	stats.Total = stats.Overlap + stats.DenseOnly + stats.SparseOnly
	return stats
}
