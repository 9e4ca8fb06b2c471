package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnrollmentsTotal counts enrollment attempts by outcome
	EnrollmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_enrollments_total",
			Help: "Total number of enrollment attempts",
		},
		[]string{"status"},
	)

	// VerificationsTotal counts verification factor checks by result
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_verifications_total",
			Help: "Total number of verification factor checks",
		},
		[]string{"factor", "result"},
	)

	// FaceDistance tracks the descriptor distance of face comparisons
	FaceDistance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "identity_face_distance",
			Help:    "Euclidean distance between live and reference descriptors",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1.0, 1.5},
		},
	)

	// LedgerCallDuration tracks registry call latency
	LedgerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_ledger_call_duration_seconds",
			Help:    "Registry call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ActiveSessions tracks in-flight enrollment and verification sessions
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "identity_active_sessions",
			Help: "Number of in-flight sessions by kind",
		},
		[]string{"kind"},
	)
)
