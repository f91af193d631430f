package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anchor_sessions_active",
		Help: "Currently open sessions",
	})

	TurnsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_turns_started_total",
		Help: "Turns started",
	})

	TurnsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_turns_finalized_total",
		Help: "Turns finalized (first finalize only)",
	})

	FinalizeReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_finalize_replays_total",
		Help: "Finalize calls answered from a stored result",
	})

	ChunksAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_chunks_appended_total",
		Help: "Transcript chunks accepted",
	})

	SessionGateHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_session_gate_hits_total",
		Help: "Finalizes rejected because the session time budget was spent",
	})

	AdapterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_adapter_failures_total",
		Help: "Adapter failures by stage",
	}, []string{"stage"})

	SafetyVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_safety_verdicts_total",
		Help: "Safety classifications by label",
	}, []string{"label"})

	DomainBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_domain_blocks_total",
		Help: "Turns redirected by the domain guard",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anchor_stage_duration_seconds",
		Help:    "Per-stage finalize latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	FinalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anchor_finalize_duration_seconds",
		Help:    "End-to-end finalize latency",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	BaselineUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_baseline_updates_total",
		Help: "Baseline EMA updates applied",
	})

	BaselineSpikes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_baseline_spikes_total",
		Help: "Baseline updates flagged as z-score spikes",
	})

	STTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_stt_requests_total",
		Help: "Speech-to-text bridge requests by outcome",
	}, []string{"outcome"})
)
