package services

import "github.com/prometheus/client_golang/prometheus"

// inferenceResults counts gateway outcomes by result kind
// (ok, empty, malformed, transport_error).
var inferenceResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_inference_results_total",
		Help: "Inference gateway calls by result kind.",
	},
	[]string{"result"},
)

// inferenceLatency records how long the gateway took to answer.
var inferenceLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "chat_inference_duration_seconds",
		Help:    "Duration of inference gateway calls in seconds.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	},
)

func init() {
	prometheus.MustRegister(inferenceResults, inferenceLatency)
}
