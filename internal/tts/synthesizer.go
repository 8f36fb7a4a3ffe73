// SPDX-License-Identifier: MIT

package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/metrics"
)

// Segment is one synthesized sentence on disk. Duration is measured from
// the produced file, never estimated.
type Segment struct {
	Index    int // 1-based sentence position in the script
	Text     string
	Path     string
	Duration float64
}

// Failure records a sentence that could not be synthesized after retries.
type Failure struct {
	Index int
	Text  string
	Err   error
}

// DurationProber measures a finished audio file. The ffprobe engine
// implements it in production.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Synthesizer drives an Engine across all sentences of a script. Concurrency
// is bounded by a weighted semaphore; each sentence gets its own retry
// budget with exponential backoff. Individual failures are collected, not
// fatal: the caller decides what an empty result means.
type Synthesizer struct {
	engine   Engine
	prober   DurationProber
	sem      *semaphore.Weighted
	attempts int
	// retryDelay is the backoff base between attempts.
	retryDelay time.Duration
	format     string
	logger     zerolog.Logger
}

// NewSynthesizer wires an engine and a duration prober under the configured
// concurrency (default 1, the safe setting for subprocess engines).
func NewSynthesizer(cfg config.TTSConfig, engine Engine, prober DurationProber) *Synthesizer {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	format := cfg.Format
	if format == "" {
		format = "mp3"
	}
	return &Synthesizer{
		engine:     engine,
		prober:     prober,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		attempts:   attempts,
		retryDelay: 2 * time.Second,
		format:     format,
		logger:     log.WithComponent("tts"),
	}
}

// GenerateSegments synthesizes one audio file per sentence into dir and
// measures each produced file. Empty sentences are skipped. The returned
// segments keep script order; failures carry the sentences that did not
// make it.
func (s *Synthesizer) GenerateSegments(ctx context.Context, sentences []string, dir string) ([]Segment, []Failure) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, []Failure{{Err: fault.Wrap(fault.KindCollaborator, "tts.mkdir", err)}}
	}

	produced := make([]*Segment, len(sentences))
	failed := make([]*Failure, len(sentences))

	var wg sync.WaitGroup
	for i, sentence := range sentences {
		text := strings.TrimSpace(sentence)
		if text == "" {
			s.logger.Debug().Int("sentence", i+1).Msg("skipping empty sentence")
			continue
		}
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				failed[i] = &Failure{Index: i + 1, Text: text, Err: err}
				return
			}
			defer s.sem.Release(1)

			seg, err := s.synthesizeOne(ctx, i+1, text, dir)
			if err != nil {
				failed[i] = &Failure{Index: i + 1, Text: text, Err: err}
				metrics.RecordSynthesis(s.engine.Name(), "error")
				s.logger.Warn().Err(err).
					Int("sentence", i+1).
					Str("engine", s.engine.Name()).
					Msg("sentence synthesis failed, skipping")
				return
			}
			produced[i] = seg
			metrics.RecordSynthesis(s.engine.Name(), "success")
		}(i, text)
	}
	wg.Wait()

	segments := make([]Segment, 0, len(sentences))
	var failures []Failure
	for i := range sentences {
		if produced[i] != nil {
			segments = append(segments, *produced[i])
		}
		if failed[i] != nil {
			failures = append(failures, *failed[i])
		}
	}
	return segments, failures
}

func (s *Synthesizer) synthesizeOne(ctx context.Context, index int, text, dir string) (*Segment, error) {
	out := filepath.Join(dir, fmt.Sprintf("segment_%03d.%s", index, s.format))

	policy := retrypolicy.Builder[any]().
		WithBackoff(s.retryDelay, 8*s.retryDelay).
		WithMaxRetries(s.attempts - 1).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			metrics.RecordSynthesisRetry()
			s.logger.Warn().Err(e.LastError()).
				Int("sentence", index).
				Int(log.FieldAttempt, e.Attempts()).
				Msg("retrying sentence synthesis")
		}).
		Build()

	err := failsafe.NewExecutor[any](policy).WithContext(ctx).Run(func() error {
		return s.engine.Synthesize(ctx, text, out)
	})
	if err != nil {
		return nil, err
	}

	d, err := s.prober.ProbeDuration(ctx, out)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, fault.Collab("tts", fmt.Errorf("segment %d measured zero duration", index))
	}
	return &Segment{Index: index, Text: text, Path: out, Duration: d}, nil
}

// TotalDuration sums the measured durations of all segments.
func TotalDuration(segments []Segment) float64 {
	var total float64
	for _, seg := range segments {
		total += seg.Duration
	}
	return total
}
