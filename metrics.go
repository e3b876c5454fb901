package prestods

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presto",
		Subsystem: "query",
		Name:      "duration_milliseconds",
		Help:      "Time spent executing a Presto query and shaping its frame.",
		Buckets:   []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 120000},
	}, []string{"format"})

	queryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presto",
		Subsystem: "plugin",
		Name:      "query_errors_total",
		Help:      "Number of queries that returned an error.",
	}, []string{"type"})

	metricFindFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presto",
		Subsystem: "plugin",
		Name:      "metric_find_failures_total",
		Help:      "Number of variable queries that degraded to an empty option list.",
	})
)

func init() {
	prometheus.MustRegister(queryDuration, queryErrors, metricFindFailures)
}
