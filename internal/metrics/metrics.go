// Package metrics registers the Prometheus collectors the task pipeline
// exercises, modelled on jordigilh-kubernaut's pkg/metrics package
// (counters/histograms registered at init, scraped via an HTTP handler).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TilesDispatchedTotal counts tiles handed out by the dispatcher.
	TilesDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "povbackend",
		Name:      "tiles_dispatched_total",
		Help:      "Total number of tiles dispatched by the tile dispatcher.",
	})

	// TilesCompletedTotal counts CompletedRectangle calls, labeled by
	// whether the pass contributed to / completed the visible image.
	TilesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "povbackend",
		Name:      "tiles_completed_total",
		Help:      "Total number of tiles completed, labeled by stage.",
	}, []string{"stage"})

	// PhotonsShotTotal counts photons shot across all shooter workers.
	PhotonsShotTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "povbackend",
		Name:      "photons_shot_total",
		Help:      "Total number of photons shot by photon shooter workers.",
	})

	// RadiosityPassesTotal counts completed radiosity pretrace passes.
	RadiosityPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "povbackend",
		Name:      "radiosity_passes_total",
		Help:      "Total number of radiosity pretrace passes completed.",
	})

	// PassDuration records wall-clock duration of a render pass.
	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "povbackend",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a single render/radiosity/photon pass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// QueueDrainLatency records how long a TaskQueue.Process loop spent
	// between becoming actionable and going idle again.
	QueueDrainLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "povbackend",
		Name:      "queue_drain_latency_seconds",
		Help:      "Latency between a TaskQueue entry becoming actionable and the queue going idle again.",
		Buckets:   prometheus.DefBuckets,
	})
)
