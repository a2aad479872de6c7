package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrank/internal/storage"
	"github.com/dshills/hybridrank/pkg/types"
)

func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }
func intPtr(v int) *int           { return &v }

func words(n int) string {
	text := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			text += " "
		}
		text += "word"
	}
	return text + "."
}

func nodeWithWords(id int64, n int) *types.Node {
	return &types.Node{ID: id, Text: words(n), WordCount: n}
}

func TestPassesQualityGate(t *testing.T) {
	tests := []struct {
		name string
		node *types.Node
		opts Options
		want bool
	}{
		{"short fails default", nodeWithWords(1, 10), Options{}, false},
		{"short passes lowered minimum", nodeWithWords(1, 10), Options{MinWordCount: intPtr(5)}, true},
		{"exactly minimum passes", nodeWithWords(1, 30), Options{}, true},
		{"explicit zero disables the word check", nodeWithWords(1, 3), Options{MinWordCount: intPtr(0)}, true},
		{
			"low quality fails",
			&types.Node{Text: words(40), WordCount: 40, QualityScore: floatPtr(0.2)},
			Options{MinQualityScore: floatPtr(0.5)},
			false,
		},
		{
			"high quality passes",
			&types.Node{Text: words(40), WordCount: 40, QualityScore: floatPtr(0.7)},
			Options{MinQualityScore: floatPtr(0.5)},
			true,
		},
		{
			"unscored node is not penalised",
			&types.Node{Text: words(40), WordCount: 40},
			Options{MinQualityScore: floatPtr(0.5)},
			true,
		},
		{"nil node", nil, Options{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PassesQualityGate(tt.node, tt.opts))
		})
	}
}

func TestFilterByQuality(t *testing.T) {
	input := []types.FusedResult{
		{Node: nodeWithWords(1, 50), FusedScore: 0.3},
		{Node: nodeWithWords(2, 5), FusedScore: 0.2},
		{Node: nodeWithWords(3, 31), FusedScore: 0.1},
	}

	out := FilterByQuality(input, Options{})
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].NodeID())
	assert.Equal(t, int64(3), out[1].NodeID())
	assert.Len(t, input, 3)
}

func TestIsComplete(t *testing.T) {
	assert.True(t, isComplete("A full sentence."))
	assert.True(t, isComplete("Really?  "))
	assert.True(t, isComplete(`He said "stop!"`))
	assert.False(t, isComplete("trailing off and"))
	assert.False(t, isComplete(""))
}

// mockParents resolves parents from a fixed map
type mockParents struct {
	nodes map[int64]*types.Node
	err   error
	calls int
}

func (m *mockParents) GetParent(_ context.Context, nodeID int64) (*types.Node, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	child, ok := m.nodes[nodeID]
	if !ok || child.ParentID == nil {
		return nil, storage.ErrNotFound
	}
	parent, ok := m.nodes[*child.ParentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return parent, nil
}

func thread() (*mockParents, *types.Node) {
	root := &types.Node{ID: 1, Text: words(12), WordCount: 12}
	mid := &types.Node{ID: 2, Text: words(10), WordCount: 10, ParentID: int64Ptr(1)}
	leaf := &types.Node{ID: 3, Text: "short reply", WordCount: 2, ParentID: int64Ptr(2)}
	return &mockParents{nodes: map[int64]*types.Node{1: root, 2: mid, 3: leaf}}, leaf
}

func TestGateApply_NoExpansion(t *testing.T) {
	gate := NewGate(nil, zerolog.Nop())

	results := []types.FusedResult{
		{Node: nodeWithWords(1, 40)},
		{Node: nodeWithWords(2, 3)},
	}

	out, err := gate.Apply(context.Background(), results, GateOptions{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].NodeID())
	assert.False(t, out[0].ContextExpanded)
	assert.Equal(t, out[0].Node.Text, out[0].ContextText)
	assert.Equal(t, types.QualityIndicators{
		HasMinWords: true, HasMinQuality: true, IsComplete: true, PassedGate: true,
	}, out[0].Quality)
}

func TestGateApply_IncludeRejected(t *testing.T) {
	gate := NewGate(nil, zerolog.Nop())

	out, err := gate.Apply(context.Background(),
		[]types.FusedResult{{Node: &types.Node{ID: 9, Text: "too short", WordCount: 2}}},
		GateOptions{IncludeRejected: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Quality.PassedGate)
	assert.False(t, out[0].Quality.HasMinWords)
	assert.False(t, out[0].Quality.IsComplete)
}

func TestGateApply_ExpandsOneHop(t *testing.T) {
	parents, leaf := thread()
	gate := NewGate(parents, zerolog.Nop())

	out, err := gate.Apply(context.Background(),
		[]types.FusedResult{{Node: leaf}},
		GateOptions{Options: Options{MinWordCount: intPtr(10)}, ExpandContext: true})
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.True(t, r.ContextExpanded)
	assert.Equal(t, int64(2), r.ParentNode.ID)
	assert.Equal(t, words(10)+"\n\nshort reply", r.ContextText)
	assert.True(t, r.Quality.PassedGate)
	assert.False(t, r.Quality.IsComplete, "context ends on the unterminated reply")
	assert.Equal(t, 1, parents.calls)
}

func TestGateApply_ClimbLimit(t *testing.T) {
	parents, leaf := thread()
	gate := NewGate(parents, zerolog.Nop())
	opts := GateOptions{Options: Options{MinWordCount: intPtr(20)}, ExpandContext: true, IncludeRejected: true}

	// One hop gives 12 words
	out, err := gate.Apply(context.Background(), []types.FusedResult{{Node: leaf}}, opts)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].ContextExpanded)
	assert.False(t, out[0].Quality.PassedGate)

	// Two hops reach the root: 24 words
	opts.MaxContextExpansion = 2
	out, err = gate.Apply(context.Background(), []types.FusedResult{{Node: leaf}}, opts)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Quality.PassedGate)
	assert.Equal(t, int64(1), out[0].ParentNode.ID)
	assert.Equal(t, words(12)+"\n\n"+words(10)+"\n\nshort reply", out[0].ContextText)
}

func TestGateApply_MissingParentEndsClimb(t *testing.T) {
	parents := &mockParents{nodes: map[int64]*types.Node{
		5: {ID: 5, Text: "orphan", WordCount: 1, ParentID: int64Ptr(404)},
	}}
	gate := NewGate(parents, zerolog.Nop())

	out, err := gate.Apply(context.Background(),
		[]types.FusedResult{{Node: parents.nodes[5]}},
		GateOptions{ExpandContext: true, IncludeRejected: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].ContextExpanded)
	assert.Nil(t, out[0].ParentNode)
}

func TestGateApply_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("database is locked")
	_, leaf := thread()
	gate := NewGate(&mockParents{err: boom}, zerolog.Nop())

	_, err := gate.Apply(context.Background(), []types.FusedResult{{Node: leaf}}, GateOptions{ExpandContext: true})
	assert.ErrorIs(t, err, boom)
}

func TestGateApply_LowQualityIsNotExpanded(t *testing.T) {
	parents, leaf := thread()
	scored := *leaf
	scored.QualityScore = floatPtr(0.1)
	gate := NewGate(parents, zerolog.Nop())

	out, err := gate.Apply(context.Background(), []types.FusedResult{{Node: &scored}}, GateOptions{
		Options:       Options{MinWordCount: intPtr(5), MinQualityScore: floatPtr(0.5)},
		ExpandContext: true,
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, parents.calls)
}
