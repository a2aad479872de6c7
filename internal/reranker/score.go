package reranker

import (
	"math"
	"sort"

	"github.com/dshills/hybridrank/pkg/types"
)

// ScoreConfig tunes the heuristic score adjustment
type ScoreConfig struct {
	OverlapBoost        float64 // added when both sources found the node
	SingleSourcePenalty float64 // subtracted otherwise
	WordCountBoost      float64 // maximum boost is 1.5x this value
	TargetWordCount     int     // word count that earns a full WordCountBoost
}

// DefaultScoreConfig returns the standard heuristic weights
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		OverlapBoost:        0.1,
		SingleSourcePenalty: 0,
		WordCountBoost:      0.05,
		TargetWordCount:     300,
	}
}

// maxWordCountRatio caps the diminishing-returns length boost
const maxWordCountRatio = 1.5

// ScoreBased adjusts fused scores by source agreement and content length
type ScoreBased struct {
	cfg ScoreConfig
}

// NewScoreBased creates a heuristic reranker
func NewScoreBased(cfg ScoreConfig) *ScoreBased {
	if cfg.TargetWordCount <= 0 {
		cfg.TargetWordCount = DefaultScoreConfig().TargetWordCount
	}
	return &ScoreBased{cfg: cfg}
}

func (s *ScoreBased) Name() string {
	return string(KindScore)
}

func (s *ScoreBased) Rerank(_ string, results []types.FusedResult, opts Options) []types.FusedResult {
	out := types.CloneFused(results)
	for i := range out {
		out[i].FusedScore += s.adjustment(out[i])
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FusedScore > out[j].FusedScore
	})

	out = applyMinScore(out, opts.MinScore)
	return applyLimit(out, opts.Limit)
}

// adjustment returns the score delta for one result
func (s *ScoreBased) adjustment(r types.FusedResult) float64 {
	var delta float64
	if r.InBoth {
		delta += s.cfg.OverlapBoost
	} else {
		delta -= s.cfg.SingleSourcePenalty
	}

	if r.Node != nil && r.Node.WordCount > 0 {
		ratio := float64(r.Node.WordCount) / float64(s.cfg.TargetWordCount)
		delta += s.cfg.WordCountBoost * math.Min(ratio, maxWordCountRatio)
	}
	return delta
}
