// Package metrics holds the prometheus collectors for the feedback pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Drop reasons
const (
	DropOverflow       = "overflow"
	DropClassifyFailed = "classify_failed"
	DropRetryExhausted = "retry_exhausted"
	DropAPIErrorCap    = "api_error_cap"
	DropCorrupt        = "corrupt"
)

var (
	Captured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedback",
		Name:      "captured_total",
		Help:      "Messages captured per mentioned app.",
	}, []string{"app"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "feedback",
		Name:      "queue_depth",
		Help:      "Items waiting for classification.",
	})

	Dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedback",
		Name:      "dropped_total",
		Help:      "Captured items discarded without being stored.",
	}, []string{"reason"})

	Classified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedback",
		Name:      "classified_total",
		Help:      "Stored records per sentiment.",
	}, []string{"sentiment"})

	StoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feedback",
		Name:      "store_failures_total",
		Help:      "Records that could not be written.",
	})

	RateLimitRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feedback",
		Name:      "rate_limit_retries_total",
		Help:      "Batches requeued after a rate limit.",
	})

	DigestRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedback",
		Name:      "digest_runs_total",
		Help:      "Digest runs per trigger and status.",
	}, []string{"trigger", "status"})

	LLMRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "feedback",
		Name:      "llm_request_seconds",
		Help:      "Model call latency per provider and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "outcome"})
)

// Registry holds every collector above
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		Captured, QueueDepth, Dropped, Classified,
		StoreFailures, RateLimitRetries, DigestRuns, LLMRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
