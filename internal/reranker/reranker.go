package reranker

import (
	"fmt"

	"github.com/dshills/hybridrank/pkg/types"
)

// Kind selects a reranking strategy
type Kind string

const (
	KindIdentity  Kind = "identity"
	KindScore     Kind = "score"
	KindDiversity Kind = "diversity"
)

// Options are applied by every strategy after it has ordered the results
type Options struct {
	Limit    int      // 0 keeps everything
	MinScore *float64 // nil keeps every score, including negative ones
}

// Reranker reorders fused results. Implementations never mutate their input.
type Reranker interface {
	Name() string
	Rerank(query string, results []types.FusedResult, opts Options) []types.FusedResult
}

// Config carries per-strategy settings for New
type Config struct {
	Score     ScoreConfig
	Diversity DiversityConfig
}

// DefaultConfig returns default settings for every strategy
func DefaultConfig() Config {
	return Config{
		Score:     DefaultScoreConfig(),
		Diversity: DefaultDiversityConfig(),
	}
}

// New creates a reranker by kind. An empty kind selects identity.
func New(kind Kind, cfg Config) (Reranker, error) {
	switch kind {
	case "", KindIdentity:
		return NewIdentity(), nil
	case KindScore:
		return NewScoreBased(cfg.Score), nil
	case KindDiversity:
		return NewDiversity(cfg.Diversity), nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownReranker, kind)
	}
}

// Kinds lists the supported strategies
func Kinds() []Kind {
	return []Kind{KindIdentity, KindScore, KindDiversity}
}

// applyMinScore keeps results whose fused score reaches minScore
func applyMinScore(results []types.FusedResult, minScore *float64) []types.FusedResult {
	if minScore == nil {
		return results
	}
	out := results[:0:0]
	for _, r := range results {
		if r.FusedScore >= *minScore {
			out = append(out, r)
		}
	}
	return out
}

// applyLimit truncates to limit when limit is positive
func applyLimit(results []types.FusedResult, limit int) []types.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
