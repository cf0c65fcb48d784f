package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seechain_writes_total",
		Help: "Total write attempts by operation and outcome.",
	}, []string{"op", "result"})

	confirmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seechain_confirm_duration_seconds",
		Help:    "Time from submission to finalization or rejection.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seechain_refreshes_total",
		Help: "Total registry refreshes by result.",
	}, []string{"result"})

	malformedLogsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seechain_malformed_logs_total",
		Help: "Total shipment logs that failed the timestamp ordering check.",
	})
)

const (
	resultOK           = "ok"
	resultUnauthorized = "unauthorized"
	resultRejected     = "rejected"
	resultTimedOut     = "timed_out"
	resultError        = "error"
)
