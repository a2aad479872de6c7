package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorderCounts(t *testing.T) {
	r := New("test")

	r.ObserveSearch("hybrid", nil)
	r.ObserveSearch("hybrid", nil)
	r.ObserveSearch("dense", errors.New("boom"))
	r.ObserveCache(true)
	r.ObserveCache(false)
	r.ObserveCache(false)
	r.ObserveRemoved(StageRefine, 3)
	r.ObserveRemoved(StageRefine, 0)
	r.ObserveIndexed(4, 1, 0)

	out := scrape(t, r)
	assert.Contains(t, out, `hybridrank_search_requests_total{mode="hybrid",service="test",status="success"} 2`)
	assert.Contains(t, out, `hybridrank_search_requests_total{mode="dense",service="test",status="error"} 1`)
	assert.Contains(t, out, `hybridrank_search_cache_lookups_total{result="hit",service="test"} 1`)
	assert.Contains(t, out, `hybridrank_search_cache_lookups_total{result="miss",service="test"} 2`)
	assert.Contains(t, out, `hybridrank_pipeline_removed_total{service="test",stage="refine"} 3`)
	assert.Contains(t, out, `hybridrank_indexer_nodes_total{outcome="indexed",service="test"} 4`)
	assert.Contains(t, out, `hybridrank_indexer_nodes_total{outcome="skipped",service="test"} 1`)
}

func TestRecorderIndexingGauge(t *testing.T) {
	r := New("test")

	r.StartIndexing()
	assert.Contains(t, scrape(t, r), `hybridrank_indexer_in_progress{service="test"} 1`)

	r.FinishIndexing()
	assert.Contains(t, scrape(t, r), `hybridrank_indexer_in_progress{service="test"} 0`)
}

func TestRecorderHistograms(t *testing.T) {
	r := New("test")

	r.ObserveStage(StageDense, 5*time.Millisecond)
	r.ObserveStage(StageDense, -time.Second)
	r.ObserveCandidates("sparse", 12)

	out := scrape(t, r)
	assert.Contains(t, out, `hybridrank_search_stage_duration_seconds_count{service="test",stage="dense"} 1`)
	assert.Contains(t, out, `hybridrank_search_candidates_sum{service="test",source="sparse"} 12`)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveSearch("hybrid", nil)
		r.ObserveStage(StageTotal, time.Millisecond)
		r.ObserveCandidates("dense", 1)
		r.ObserveCache(true)
		r.ObserveRemoved(StageQuality, 2)
		r.ObserveIndexed(1, 1, 1)
		r.StartIndexing()
		r.FinishIndexing()
	})
	assert.NotNil(t, r.Gatherer())
	assert.NotNil(t, r.Handler())
}
