// Package telemetry holds the Prometheus collectors for the engine.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marquee"

type Metrics struct {
	PlayersOnline           prometheus.Gauge
	LivenessDecays          prometheus.Counter
	DistributionTransitions *prometheus.CounterVec
	CastOperations          *prometheus.CounterVec
	PlaylistPushes          *prometheus.CounterVec
	PlaybackEvents          *prometheus.CounterVec
	CycleDuration           prometheus.Histogram
	CyclePlayerErrors       prometheus.Counter
}

// NewMetrics registers every collector on reg. Tests pass a fresh
// prometheus.NewRegistry() so registrations do not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PlayersOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_online",
			Help:      "Players classified online by the last liveness sweep.",
		}),
		LivenessDecays: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_decays_total",
			Help:      "Players that went from online to offline.",
		}),
		DistributionTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_transitions_total",
			Help:      "Distribution state machine operations by result.",
		}, []string{"op", "result"}),
		CastOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cast_operations_total",
			Help:      "Cast discovery, connect and load calls by result.",
		}, []string{"op", "result"}),
		PlaylistPushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_pushes_total",
			Help:      "Playlists delivered to players.",
		}, []string{"channel", "result"}),
		PlaybackEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_events_total",
			Help:      "Playback telemetry events received.",
		}, []string{"type"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full scheduling cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		CyclePlayerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_player_errors_total",
			Help:      "Per-player pipeline failures during scheduling cycles.",
		}),
	}
}

// Result maps an error to a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler exposes metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
