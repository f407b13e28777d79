// Package metrics exposes the Prometheus instruments served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks controllers currently running their timers.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bacblanc",
		Name:      "active_exam_sessions",
		Help:      "Number of exam sessions with a live countdown.",
	})

	// AttemptsCompleted counts finalized attempts by cause.
	AttemptsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bacblanc",
		Name:      "attempts_completed_total",
		Help:      "Completed exam attempts, partitioned by completion cause.",
	}, []string{"cause"})

	// SnapshotWrites counts progress snapshot persistence outcomes.
	SnapshotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bacblanc",
		Name:      "snapshot_writes_total",
		Help:      "Attempt progress writes, partitioned by outcome.",
	}, []string{"outcome"})
)
