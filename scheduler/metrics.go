package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zhfg/refly-sub011/model"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Name:      "turns_total",
			Help:      "Total turns by skill and final status",
		},
		[]string{"skill", "status"},
	)

	turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skillflow",
			Name:      "turn_duration_seconds",
			Help:      "Duration of turns in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		},
		[]string{"skill"},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillflow",
			Name:      "llm_tokens_total",
			Help:      "Model tokens by tier, model and direction",
		},
		[]string{"tier", "model", "direction"},
	)
)

func recordTurn(skill string, status model.EndStatus, elapsed time.Duration) {
	turnsTotal.WithLabelValues(skill, string(status)).Inc()
	turnDuration.WithLabelValues(skill).Observe(elapsed.Seconds())
}

func recordTokens(item *model.TokenUsageItem) {
	if item == nil {
		return
	}
	llmTokensTotal.WithLabelValues(item.Tier, item.ModelName, "input").Add(float64(item.InputTokens))
	llmTokensTotal.WithLabelValues(item.Tier, item.ModelName, "output").Add(float64(item.OutputTokens))
}
