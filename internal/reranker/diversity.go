package reranker

import (
	"github.com/dshills/hybridrank/pkg/types"
)

// DiversityConfig tunes the MMR-style selection
type DiversityConfig struct {
	Lambda              float64 // relevance weight
	SourceTypeDiversity float64 // penalty per already-selected result of the same source type
}

// DefaultDiversityConfig returns the standard diversity weights
func DefaultDiversityConfig() DiversityConfig {
	return DiversityConfig{
		Lambda:              0.3,
		SourceTypeDiversity: 0.1,
	}
}

// Diversity greedily selects results, trading relevance against repetition
// of the same source type:
//
//	score = lambda*fusedScore - sourceTypeDiversity*selectedWithSameSourceType
//
// Source-type repetition stands in for embedding similarity between selected
// items, so near-duplicates from one source type are not detected.
type Diversity struct {
	cfg DiversityConfig
}

// NewDiversity creates a diversity-aware reranker
func NewDiversity(cfg DiversityConfig) *Diversity {
	if cfg.Lambda == 0 && cfg.SourceTypeDiversity == 0 {
		cfg = DefaultDiversityConfig()
	}
	return &Diversity{cfg: cfg}
}

func (d *Diversity) Name() string {
	return string(KindDiversity)
}

// Rerank returns results in selection order with their fused scores
// unchanged. MinScore is applied to the selected results at the end.
func (d *Diversity) Rerank(_ string, results []types.FusedResult, opts Options) []types.FusedResult {
	limit := opts.Limit
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	candidates := types.CloneFused(results)
	selected := make([]types.FusedResult, 0, limit)
	perSourceType := make(map[string]int)

	for len(selected) < limit && len(candidates) > 0 {
		best := 0
		bestScore := d.score(candidates[0], perSourceType)
		for i := 1; i < len(candidates); i++ {
			// Strict comparison keeps the earliest candidate on ties
			if s := d.score(candidates[i], perSourceType); s > bestScore {
				best, bestScore = i, s
			}
		}

		chosen := candidates[best]
		selected = append(selected, chosen)
		perSourceType[sourceType(chosen)]++
		candidates = append(candidates[:best], candidates[best+1:]...)
	}

	return applyMinScore(selected, opts.MinScore)
}

func (d *Diversity) score(r types.FusedResult, perSourceType map[string]int) float64 {
	penalty := d.cfg.SourceTypeDiversity * float64(perSourceType[sourceType(r)])
	return d.cfg.Lambda*r.FusedScore - penalty
}

func sourceType(r types.FusedResult) string {
	if r.Node == nil {
		return ""
	}
	return r.Node.SourceType
}
