package reranker

import "github.com/dshills/hybridrank/pkg/types"

// Identity keeps the fused order and only applies MinScore and Limit
type Identity struct{}

// NewIdentity creates a passthrough reranker
func NewIdentity() *Identity {
	return &Identity{}
}

func (Identity) Name() string {
	return string(KindIdentity)
}

func (Identity) Rerank(_ string, results []types.FusedResult, opts Options) []types.FusedResult {
	out := types.CloneFused(results)
	out = applyMinScore(out, opts.MinScore)
	return applyLimit(out, opts.Limit)
}
