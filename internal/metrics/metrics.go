// Package metrics holds the Prometheus collectors shared by the calc engine,
// its sources and the HTTP server.
//
// Collectors are registered on the default registry at package init, so the
// server can expose them with promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation outcomes used as the "result" label of Evaluations.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	// Evaluations counts recompute attempts per calculation and outcome.
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsecalc_evaluations_total",
		Help: "Recompute attempts by calculation and result (ok, error, skipped)",
	}, []string{"calc", "result"})

	// EvaluationDuration observes how long expression evaluation takes.
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulsecalc_evaluation_duration_seconds",
		Help:    "Duration of expression evaluation",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"calc"})

	// ActiveWorkers is the number of running calculation workers.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsecalc_active_workers",
		Help: "Number of running calculation workers",
	})

	// Notifications counts updates delivered to channel listeners.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsecalc_notifications_total",
		Help: "Updates delivered to calc channel listeners",
	}, []string{"calc"})

	// SourcePolls counts HTTP source polls by outcome.
	SourcePolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsecalc_source_polls_total",
		Help: "HTTP source polls by result (ok, error)",
	}, []string{"result"})
)
