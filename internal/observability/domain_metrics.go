package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	nlqRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetdb_nlq_requests_total",
			Help: "Natural-language query pipeline runs by outcome kind.",
		},
		[]string{"outcome"},
	)
	nlqSynthesisLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jetdb_nlq_synthesis_latency_ms",
			Help:    "Latency of the language-model completion call in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		},
	)
	nlqResultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jetdb_nlq_result_rows",
			Help:    "Rows returned per executed natural-language query.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		},
	)
	nlqTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jetdb_nlq_truncated_total",
			Help: "Total number of query results truncated at the row cap.",
		},
	)
	datasetUploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jetdb_dataset_uploads_total",
			Help: "Total number of accepted dataset uploads.",
		},
	)
	datasetConversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jetdb_dataset_conversions_total",
			Help: "Dataset conversion attempts by result.",
		},
		[]string{"result"},
	)
	datasetConversionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jetdb_dataset_conversion_seconds",
			Help:    "Wall-clock duration of CSV to Parquet conversions.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(
		nlqRequestsTotal,
		nlqSynthesisLatencyMs,
		nlqResultRows,
		nlqTruncatedTotal,
		datasetUploadsTotal,
		datasetConversionsTotal,
		datasetConversionSeconds,
	)
}

func ObserveNLQOutcome(outcome string) {
	nlqRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveSynthesisLatency(elapsed time.Duration) {
	nlqSynthesisLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveNLQResult(rows int, truncated bool) {
	nlqResultRows.Observe(float64(rows))
	if truncated {
		nlqTruncatedTotal.Inc()
	}
}

func IncrementDatasetUploads() {
	datasetUploadsTotal.Inc()
}

func ObserveDatasetConversion(result string, elapsed time.Duration) {
	datasetConversionsTotal.WithLabelValues(result).Inc()
	datasetConversionSeconds.Observe(elapsed.Seconds())
}
