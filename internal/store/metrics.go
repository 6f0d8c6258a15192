// Prometheus instrumentation for the message store. Labels are kept to
// small fixed sets (message type, toggle outcome) so cardinality stays
// bounded no matter how many conversations exist.
package store

import "github.com/prometheus/client_golang/prometheus"

var (
	// appendsTotal counts committed messages by effective type.
	appendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_appends_total",
			Help: "Total number of messages appended to the store.",
		},
		[]string{"type"},
	)

	// likeToggleTotal counts like toggles by outcome: liked, unliked, or
	// conflict (retry budget exhausted).
	likeToggleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_like_toggles_total",
			Help: "Total number of like toggle attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// streamSubscribers gauges currently registered live-stream listeners.
	streamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_stream_subscribers",
			Help: "Current number of live stream subscribers.",
		},
	)

	// streamDroppedTotal counts subscribers dropped for falling behind.
	streamDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_stream_dropped_total",
			Help: "Total number of stream subscribers dropped as too slow.",
		},
	)
)

func init() {
	prometheus.MustRegister(appendsTotal, likeToggleTotal, streamSubscribers, streamDroppedTotal)
}
