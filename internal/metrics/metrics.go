// Package metrics exposes Prometheus instrumentation for the voice loop and
// aggregates per-session statistics for the live monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Wakes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wakeloop_wakes_total",
			Help: "Total number of wake word detections",
		},
	)

	BargeIns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wakeloop_barge_ins_total",
			Help: "Total number of wakes that interrupted playback",
		},
	)

	Captures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wakeloop_captures_total",
			Help: "Capture sessions by outcome",
		},
		[]string{"outcome"},
	)

	TurnErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wakeloop_turn_errors_total",
			Help: "Failed turns by pipeline stage",
		},
		[]string{"stage"},
	)

	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wakeloop_stage_latency_seconds",
			Help:    "Latency of each pipeline stage in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8, 16},
		},
		[]string{"stage"},
	)

	TurnLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wakeloop_turn_latency_seconds",
			Help:    "Time from transcript to audio enqueued in seconds",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16},
		},
	)

	PlaybackBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wakeloop_playback_bytes_total",
			Help: "PCM bytes handed to the playback buffer",
		},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wakeloop_llm_requests_total",
			Help: "Chat completion requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "wakeloop_llm_latency_seconds",
			Help: "Chat completion latency in seconds",
		},
		[]string{"provider"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wakeloop_llm_tokens_total",
			Help: "Tokens consumed by provider and direction",
		},
		[]string{"provider", "direction"},
	)
)
