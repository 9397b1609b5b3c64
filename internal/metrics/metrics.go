package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hand-off counters, fed from the reporter's deltas so the hot path
	// only touches plain atomics.
	ItemsPushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spsc_bench_items_pushed_total",
			Help: "Total number of items handed to the buffer by the producer",
		},
	)

	ItemsPoppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spsc_bench_items_popped_total",
			Help: "Total number of items taken from the buffer by the consumer",
		},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spsc_bench_retries_total",
			Help: "Total number of failed non-blocking attempts",
		},
		[]string{"condition"}, // condition can be "full" or "empty"
	)

	SequenceViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spsc_bench_sequence_violations_total",
			Help: "Total number of out-of-order or missing values seen by the consumer",
		},
	)

	BufferOccupancy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spsc_bench_buffer_occupancy",
			Help: "Number of live items in the buffer at the last report tick",
		},
	)

	BufferCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spsc_bench_buffer_capacity",
			Help: "Usable capacity of the buffer",
		},
	)

	WaitLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spsc_bench_wait_latency_seconds",
			Help:    "Sampled time spent in push or pop including retries",
			Buckets: prometheus.ExponentialBuckets(50e-9, 4, 12),
		},
		[]string{"op"}, // op can be "push" or "pop"
	)
)
