package tools

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Name:      "tool_calls_total",
			Help:      "Total tool adapter calls by outcome",
		},
		[]string{"tool", "status"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skillflow",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool adapter calls including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"tool"},
	)

	toolRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Name:      "tool_retries_total",
			Help:      "Total retried tool attempts",
		},
		[]string{"tool"},
	)
)

func observe(tool string, err error, attempts int, elapsed time.Duration) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	default:
		status = "error"
	}
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
	if attempts > 1 {
		toolRetriesTotal.WithLabelValues(tool).Add(float64(attempts - 1))
	}
}
