package anchor

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/hybridrank/internal/filter"
	"github.com/dshills/hybridrank/internal/vecmath"
	"github.com/dshills/hybridrank/pkg/types"
)

// Options configures a refinement pass
type Options struct {
	Threshold      *float64             // negative match threshold, nil uses 0.85
	Mode           filter.Mode          // default exclude
	OnMissing      filter.MissingPolicy // default keep
	PositiveWeight float64              // default 0.3
	NegativeWeight float64              // default 0.3
	MinResults     int                  // floor on surviving results; 0 disables
}

// Stats summarises a refinement pass
type Stats struct {
	InputCount                int
	OutputCount               int
	RemovedByNegative         int
	DroppedMissing            int // no usable embedding under filter.MissingDrop
	RestoredByFloor           int
	AveragePositiveSimilarity float64
}

// Refinement is the outcome of Refine
type Refinement struct {
	Results   []types.FusedResult
	Groups    map[string][]types.FusedResult // positive anchor ID -> nearest results
	Ungrouped []types.FusedResult            // no usable embedding or no positive anchors
	Stats     Stats
}

// Refine applies an anchor set to fused results: negatives filter, the
// MinResults floor restores the best removed results, positives and
// negatives nudge scores, and survivors are grouped by nearest positive.
// Embeddings resolve from embeddingsByID first and the node's inline
// embedding second, the same way FromResult does.
func Refine(results []types.FusedResult, embeddingsByID map[int64][]float32, set Set, opts Options) (*Refinement, error) {
	resolved := resolveEmbeddings(results, embeddingsByID)

	filtered, err := filter.FilterWithEmbeddings(results, resolved, filter.Options{
		NegativeEmbeddings: set.NegativeEmbeddings(),
		Threshold:          opts.Threshold,
		Mode:               opts.Mode,
		OnMissing:          opts.OnMissing,
	})
	if err != nil {
		return nil, fmt.Errorf("negative filter: %w", err)
	}

	survivors := filtered.Results
	var restored []types.FusedResult
	if opts.MinResults > 0 && len(survivors) < opts.MinResults && len(filtered.Removed) > 0 {
		survivors, restored = applyFloor(survivors, filtered.Removed, opts.MinResults)
	}
	byNegative, missing := countRemoved(filtered.Removed, restored, resolved)

	adjusted, err := filter.AdjustScoresByEmbeddings(survivors, resolved,
		set.PositiveEmbeddings(), set.NegativeEmbeddings(),
		filter.AdjustOptions{PositiveWeight: opts.PositiveWeight, NegativeWeight: opts.NegativeWeight})
	if err != nil {
		return nil, fmt.Errorf("score adjustment: %w", err)
	}

	ref := &Refinement{
		Results: adjusted,
		Groups:  make(map[string][]types.FusedResult, len(set.Positive)),
		Stats: Stats{
			InputCount:        len(results),
			OutputCount:       len(adjusted),
			RemovedByNegative: byNegative,
			DroppedMissing:    missing,
			RestoredByFloor:   len(restored),
		},
	}

	positives := set.PositiveEmbeddings()
	var simTotal float64
	var simCount int
	for _, r := range adjusted {
		vector, ok := resolved[r.NodeID()]
		if !ok || len(positives) == 0 {
			ref.Ungrouped = append(ref.Ungrouped, r)
			continue
		}
		sim, idx, err := vecmath.MaxSimilarityToSet(vector, positives)
		if errors.Is(err, types.ErrNonFiniteVector) || (err == nil && idx < 0) {
			ref.Ungrouped = append(ref.Ungrouped, r)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("grouping node %d: %w", r.NodeID(), err)
		}
		id := set.Positive[idx].ID
		ref.Groups[id] = append(ref.Groups[id], r)
		simTotal += sim
		simCount++
	}
	if simCount > 0 {
		ref.Stats.AveragePositiveSimilarity = simTotal / float64(simCount)
	}

	return ref, nil
}

// resolveEmbeddings builds one lookup covering every result that has an
// embedding either in embeddingsByID or inline on its node
func resolveEmbeddings(results []types.FusedResult, embeddingsByID map[int64][]float32) map[int64][]float32 {
	out := make(map[int64][]float32, len(results))
	for _, r := range results {
		if v, ok := embeddingFor(r, embeddingsByID); ok {
			out[r.NodeID()] = v
		}
	}
	return out
}

// countRemoved splits the results that stayed removed after the floor into
// negative matches and results dropped for lacking a usable embedding
func countRemoved(removed, restored []types.FusedResult, resolved map[int64][]float32) (byNegative, missing int) {
	back := make(map[int64]struct{}, len(restored))
	for _, r := range restored {
		back[r.NodeID()] = struct{}{}
	}
	for _, r := range removed {
		if _, ok := back[r.NodeID()]; ok {
			continue
		}
		if usable(resolved[r.NodeID()]) {
			byNegative++
		} else {
			missing++
		}
	}
	return byNegative, missing
}

// usable reports whether a vector can be compared at all
func usable(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

// applyFloor restores the highest-scoring removed results until the floor is
// met, then restores fused-score order across the combined list.
func applyFloor(survivors, removed []types.FusedResult, floor int) ([]types.FusedResult, []types.FusedResult) {
	candidates := types.CloneFused(removed)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FusedScore > candidates[j].FusedScore
	})

	need := floor - len(survivors)
	if need > len(candidates) {
		need = len(candidates)
	}

	out := make([]types.FusedResult, 0, len(survivors)+need)
	out = append(out, survivors...)
	out = append(out, candidates[:need]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FusedScore > out[j].FusedScore
	})
	return out, candidates[:need]
}
