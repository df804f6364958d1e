// Package metrics exposes prometheus instrumentation for stage dispatch,
// batch fan-out and the highlights sink.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "highlighter_stage_invocations_total",
		Help: "Worker invocations by stage and outcome status",
	}, []string{"stage", "status"})

	stageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "highlighter_stage_duration_seconds",
		Help:    "Wall time of worker invocations by stage",
		Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"stage"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "highlighter_runs_total",
		Help: "Pipeline runs by mode and terminal status",
	}, []string{"mode", "status"})

	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "highlighter_batch_items_total",
		Help: "Batch items by final status",
	}, []string{"status"})

	highlightsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "highlighter_highlights_saves_total",
		Help: "Highlight save attempts by result",
	}, []string{"result"})
)

// ObserveStage records one worker invocation.
func ObserveStage(stage, status string, d time.Duration) {
	stage = normalizeLabel(stage)
	stageInvocationsTotal.WithLabelValues(stage, normalizeLabel(status)).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// IncRun records a terminal pipeline run. mode is single, chain, batch or highlights.
func IncRun(mode, status string) {
	runsTotal.WithLabelValues(normalizeLabel(mode), normalizeLabel(status)).Inc()
}

// IncBatchItem records one batch row.
func IncBatchItem(status string) {
	batchItemsTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncHighlightSave records a save attempt; result is "saved" or the error kind.
func IncHighlightSave(result string) {
	highlightsSavedTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
