package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage and collaborator metrics.

var (
	// StageDurationSeconds observes per-stage duration within a pipeline run.
	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidforge_stage_duration_seconds",
		Help:    "Duration of individual pipeline stages.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180, 600},
	}, []string{"stage"})

	// PipelineRunsTotal counts pipeline runs by outcome.
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_pipeline_runs_total",
		Help: "Total number of pipeline runs, by outcome (ok/error).",
	}, []string{"outcome"})

	// SynthesisTotal counts TTS synthesis calls by engine and outcome.
	SynthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_tts_synthesis_total",
		Help: "Total number of TTS synthesis calls, by engine and outcome.",
	}, []string{"engine", "outcome"})

	// SynthesisRetriesTotal counts TTS retry attempts.
	SynthesisRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidforge_tts_retries_total",
		Help: "Total number of TTS synthesis retry attempts.",
	})

	// TranscriptionsTotal counts STT requests by outcome.
	TranscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_stt_transcriptions_total",
		Help: "Total number of STT transcription requests, by outcome.",
	}, []string{"outcome"})

	// EncodesTotal counts encode attempts by codec and outcome.
	EncodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_encodes_total",
		Help: "Total number of video encode attempts, by codec and outcome.",
	}, []string{"codec", "outcome"})

	// EncodeFallbacksTotal counts hardware-to-software encoder fallbacks.
	EncodeFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidforge_encode_fallbacks_total",
		Help: "Total number of encodes retried on the software encoder after a hardware failure.",
	})
)

// ObserveStage records the duration of one pipeline stage.
func ObserveStage(stage string, seconds float64) {
	StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordPipelineRun increments the run counter.
func RecordPipelineRun(outcome string) {
	PipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordSynthesis increments the TTS counter.
func RecordSynthesis(engine, outcome string) {
	SynthesisTotal.WithLabelValues(engine, outcome).Inc()
}

// RecordSynthesisRetry increments the TTS retry counter.
func RecordSynthesisRetry() {
	SynthesisRetriesTotal.Inc()
}

// RecordTranscription increments the STT counter.
func RecordTranscription(outcome string) {
	TranscriptionsTotal.WithLabelValues(outcome).Inc()
}

// RecordEncode increments the encode counter.
func RecordEncode(codec, outcome string) {
	EncodesTotal.WithLabelValues(codec, outcome).Inc()
}

// RecordEncodeFallback increments the fallback counter.
func RecordEncodeFallback() {
	EncodeFallbacksTotal.Inc()
}
