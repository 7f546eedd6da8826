package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricListingsScoredTotal   = "ranking_listings_scored_total"
	MetricRecomputeErrors       = "ranking_recompute_errors_total"
	MetricBatchDuration         = "ranking_batch_duration_seconds"
	MetricLastBatchTimestamp    = "ranking_last_batch_timestamp"
	MetricLastBatchListingCount = "ranking_last_batch_listing_count"
	MetricFinalScore            = "ranking_final_score"
	MetricWeightLoadErrors      = "ranking_weight_load_errors_total"
	MetricDirtyListings         = "ranking_dirty_listings"
)

// Recompute modes for the listings scored counter.
const (
	ModeBatch  = "batch"
	ModeSingle = "single"
)

// Metrics contains Prometheus metrics for listing score recomputation.
// All operations are thread-safe.
type Metrics struct {
	listingsScored        *prometheus.CounterVec
	recomputeErrors       prometheus.Counter
	batchDuration         prometheus.Histogram
	lastBatchTimestamp    prometheus.Gauge
	lastBatchListingCount prometheus.Gauge
	finalScore            prometheus.Histogram
	weightLoadErrors      prometheus.Counter
	dirtyListings         prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		listingsScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricListingsScoredTotal,
				Help: "Total number of listing scores written by recompute mode",
			},
			[]string{"mode"},
		),
		recomputeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputeErrors,
			Help: "Total number of failed score recompute operations",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricBatchDuration,
			Help:    "Histogram of full score recompute duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0, 900.0},
		}),
		lastBatchTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastBatchTimestamp,
			Help: "Unix timestamp of the last successful full score recompute",
		}),
		lastBatchListingCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastBatchListingCount,
			Help: "Number of listings rescored by the last successful full recompute",
		}),
		finalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFinalScore,
			Help:    "Distribution of computed final listing scores",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		weightLoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricWeightLoadErrors,
			Help: "Total number of ranking weight reads that fell back to defaults",
		}),
		dirtyListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricDirtyListings,
			Help: "Number of listings waiting for incremental score recompute",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// AddListingsScored adds n to the scored listings counter for mode.
func (m *Metrics) AddListingsScored(mode string, n int) {
	m.listingsScored.WithLabelValues(mode).Add(float64(n))
}

// IncRecomputeErrors increments the recompute errors counter.
func (m *Metrics) IncRecomputeErrors() {
	m.recomputeErrors.Inc()
}

// ObserveBatchDuration records a full recompute duration sample.
func (m *Metrics) ObserveBatchDuration(seconds float64) {
	m.batchDuration.Observe(seconds)
}

// SetLastBatchTimestamp sets the last full recompute timestamp gauge.
func (m *Metrics) SetLastBatchTimestamp(timestamp float64) {
	m.lastBatchTimestamp.Set(timestamp)
}

// SetLastBatchListingCount sets the last full recompute listing count gauge.
func (m *Metrics) SetLastBatchListingCount(count float64) {
	m.lastBatchListingCount.Set(count)
}

// ObserveFinalScore records a computed final score.
func (m *Metrics) ObserveFinalScore(score float64) {
	m.finalScore.Observe(score)
}

// IncWeightLoadErrors implements ranking.WeightLoadMetrics.
func (m *Metrics) IncWeightLoadErrors() {
	m.weightLoadErrors.Inc()
}

// SetDirtyListings sets the incremental recompute backlog gauge.
func (m *Metrics) SetDirtyListings(count float64) {
	m.dirtyListings.Set(count)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.listingsScored,
		m.recomputeErrors,
		m.batchDuration,
		m.lastBatchTimestamp,
		m.lastBatchListingCount,
		m.finalScore,
		m.weightLoadErrors,
		m.dirtyListings,
	}
}
