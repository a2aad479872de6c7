// Package filter removes or down-weights fused results by their embedding
// similarity to negative (and positive) example vectors.
package filter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/hybridrank/internal/vecmath"
	"github.com/dshills/hybridrank/pkg/types"
)

// Mode selects how negative embeddings constrain results
type Mode string

const (
	// ModeExclude treats each negative as a hard exclusion zone
	ModeExclude Mode = "exclude"
	// ModeRequireDissimilar keeps a result only if it clears the threshold
	// distance from every negative
	ModeRequireDissimilar Mode = "require_dissimilar"
)

// MissingPolicy decides what happens to a result whose embedding cannot be resolved
type MissingPolicy string

const (
	MissingKeep MissingPolicy = "keep" // fail-open (default)
	MissingDrop MissingPolicy = "drop" // fail-closed
)

// DefaultThreshold is the similarity at or above which a negative matches
const DefaultThreshold = 0.85

// Options configures negative filtering
type Options struct {
	NegativeEmbeddings [][]float32
	Threshold          *float64      // nil uses DefaultThreshold
	Mode               Mode          // default exclude
	OnMissing          MissingPolicy // default keep
}

// Result is the outcome of a negative filter pass
type Result struct {
	Results        []types.FusedResult
	Removed        []types.FusedResult
	RemovedCount   int // includes MissingDropped
	MissingCount   int // results without a resolvable embedding
	MissingDropped int // missing results removed under MissingDrop
}

func (o Options) withDefaults() (Options, error) {
	if o.Threshold == nil {
		t := DefaultThreshold
		o.Threshold = &t
	}
	if o.Mode == "" {
		o.Mode = ModeExclude
	}
	if o.OnMissing == "" {
		o.OnMissing = MissingKeep
	}
	switch o.Mode {
	case ModeExclude, ModeRequireDissimilar:
	default:
		return o, fmt.Errorf("%w: %q", types.ErrInvalidMode, o.Mode)
	}
	switch o.OnMissing {
	case MissingKeep, MissingDrop:
	default:
		return o, fmt.Errorf("%w: missing-embedding policy %q", types.ErrInvalidMode, o.OnMissing)
	}
	return o, nil
}

// FilterByNegativeEmbeddings filters using the embedding carried inline on
// each result's node. Results without one pass through unfiltered.
func FilterByNegativeEmbeddings(results []types.FusedResult, opts Options) (*Result, error) {
	return filter(results, opts, func(r types.FusedResult) ([]float32, bool) {
		if !r.Node.HasEmbedding() {
			return nil, false
		}
		return r.Node.Embedding, true
	})
}

// FilterWithEmbeddings filters using an explicit node ID to vector lookup
func FilterWithEmbeddings(results []types.FusedResult, embeddingsByID map[int64][]float32, opts Options) (*Result, error) {
	return filter(results, opts, lookup(embeddingsByID))
}

func lookup(embeddingsByID map[int64][]float32) func(types.FusedResult) ([]float32, bool) {
	return func(r types.FusedResult) ([]float32, bool) {
		v, ok := embeddingsByID[r.NodeID()]
		if !ok || len(v) == 0 {
			return nil, false
		}
		return v, true
	}
}

func filter(results []types.FusedResult, opts Options, resolve func(types.FusedResult) ([]float32, bool)) (*Result, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	if len(opts.NegativeEmbeddings) == 0 {
		return &Result{Results: types.CloneFused(results)}, nil
	}

	out := &Result{Results: make([]types.FusedResult, 0, len(results))}
	for _, r := range results {
		var maxSim float64
		vector, ok := resolve(r)
		if ok {
			maxSim, _, err = vecmath.MaxSimilarityToSet(vector, opts.NegativeEmbeddings)
			switch {
			case errors.Is(err, types.ErrNonFiniteVector):
				// An unusable vector counts as a missing one
				ok = false
			case err != nil:
				return nil, fmt.Errorf("node %d: %w", r.NodeID(), err)
			}
		}
		if !ok {
			out.MissingCount++
			if opts.OnMissing == MissingDrop {
				out.Removed = append(out.Removed, r)
				out.MissingDropped++
				continue
			}
			out.Results = append(out.Results, r)
			continue
		}

		// Both modes reject a result within threshold of any negative
		if maxSim < *opts.Threshold {
			out.Results = append(out.Results, r)
		} else {
			out.Removed = append(out.Removed, r)
		}
	}

	out.RemovedCount = len(out.Removed)
	return out, nil
}

// Default nudging weights
const (
	DefaultPositiveWeight = 0.3
	DefaultNegativeWeight = 0.3
)

// AdjustOptions weights the score nudges applied by AdjustScoresByEmbeddings
type AdjustOptions struct {
	PositiveWeight float64
	NegativeWeight float64
}

// DefaultAdjustOptions returns the standard nudging weights
func DefaultAdjustOptions() AdjustOptions {
	return AdjustOptions{PositiveWeight: DefaultPositiveWeight, NegativeWeight: DefaultNegativeWeight}
}

// AdjustScoresByEmbeddings nudges each fused score toward positives and away
// from negatives, then re-sorts descending:
//
//	score += avgSim(positives)*positiveWeight - avgSim(negatives)*negativeWeight
//
// Results without a resolvable (finite) embedding keep their score. When
// both weights are zero the defaults apply.
func AdjustScoresByEmbeddings(results []types.FusedResult, embeddingsByID map[int64][]float32,
	positives, negatives [][]float32, opts AdjustOptions) ([]types.FusedResult, error) {

	out := types.CloneFused(results)
	if len(positives) == 0 && len(negatives) == 0 {
		return out, nil
	}
	if opts.PositiveWeight == 0 && opts.NegativeWeight == 0 {
		opts = DefaultAdjustOptions()
	}

	resolve := lookup(embeddingsByID)
	for i := range out {
		vector, ok := resolve(out[i])
		if !ok {
			continue
		}

		posSim, err := vecmath.AvgSimilarityToSet(vector, positives)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", out[i].NodeID(), err)
		}
		negSim, err := vecmath.AvgSimilarityToSet(vector, negatives)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", out[i].NodeID(), err)
		}

		if math.IsNaN(posSim) || math.IsNaN(negSim) {
			continue
		}
		out[i].FusedScore += posSim*opts.PositiveWeight - negSim*opts.NegativeWeight
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FusedScore > out[j].FusedScore
	})
	return out, nil
}
