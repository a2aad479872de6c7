package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used as the "stage" label
const (
	StageDense   = "dense"
	StageSparse  = "sparse"
	StageFusion  = "fusion"
	StageRefine  = "refine"
	StageRerank  = "rerank"
	StageQuality = "quality"
	StageTotal   = "total"
)

// Recorder collects search pipeline metrics in its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	searchesTotal   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	candidates      *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	removedTotal    *prometheus.CounterVec
	indexedTotal    *prometheus.CounterVec
	indexInProgress prometheus.Gauge
}

// New creates a Recorder with every collector registered
func New(service string) *Recorder {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	searchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hybridrank",
			Subsystem:   "search",
			Name:        "requests_total",
			Help:        "Total hybrid search requests by mode and status.",
			ConstLabels: constLabels,
		},
		[]string{"mode", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "hybridrank",
			Subsystem:   "search",
			Name:        "stage_duration_seconds",
			Help:        "Duration of each ranking stage in seconds.",
			Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	candidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "hybridrank",
			Subsystem:   "search",
			Name:        "candidates",
			Help:        "Number of candidates returned per source.",
			Buckets:     []float64{0, 1, 5, 10, 30, 60, 100, 300},
			ConstLabels: constLabels,
		},
		[]string{"source"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hybridrank",
			Subsystem:   "search",
			Name:        "cache_lookups_total",
			Help:        "Query cache lookups by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
	removedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hybridrank",
			Subsystem:   "pipeline",
			Name:        "removed_total",
			Help:        "Results removed by a pipeline stage.",
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	indexedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hybridrank",
			Subsystem:   "indexer",
			Name:        "nodes_total",
			Help:        "Nodes processed by the indexer by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	indexInProgress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "hybridrank",
			Subsystem:   "indexer",
			Name:        "in_progress",
			Help:        "Whether an indexing run is in progress.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(searchesTotal, stageDuration, candidates, cacheLookups,
		removedTotal, indexedTotal, indexInProgress)

	return &Recorder{
		registry:        registry,
		searchesTotal:   searchesTotal,
		stageDuration:   stageDuration,
		candidates:      candidates,
		cacheLookups:    cacheLookups,
		removedTotal:    removedTotal,
		indexedTotal:    indexedTotal,
		indexInProgress: indexInProgress,
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Recorder) ObserveSearch(mode string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.searchesTotal.WithLabelValues(mode, status).Inc()
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil || d < 0 {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) ObserveCandidates(source string, n int) {
	if r == nil {
		return
	}
	r.candidates.WithLabelValues(source).Observe(float64(n))
}

func (r *Recorder) ObserveCache(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRemoved counts results dropped by a stage; zero is not recorded
func (r *Recorder) ObserveRemoved(stage string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.removedTotal.WithLabelValues(stage).Add(float64(n))
}

func (r *Recorder) ObserveIndexed(indexed, skipped, failed int) {
	if r == nil {
		return
	}
	r.indexedTotal.WithLabelValues("indexed").Add(float64(indexed))
	r.indexedTotal.WithLabelValues("skipped").Add(float64(skipped))
	r.indexedTotal.WithLabelValues("failed").Add(float64(failed))
}

func (r *Recorder) StartIndexing() {
	if r == nil {
		return
	}
	r.indexInProgress.Set(1)
}

func (r *Recorder) FinishIndexing() {
	if r == nil {
		return
	}
	r.indexInProgress.Set(0)
}
