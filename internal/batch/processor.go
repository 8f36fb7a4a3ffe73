// SPDX-License-Identifier: MIT

// Package batch drains the persistent task queue through the assembly
// pipeline under bounded parallelism.
//
// The processor owns worker sizing, per-task admission, timeout and retry
// handling, and the graceful-shutdown window. Task state transitions go
// through the queue store so a crashed batch can be resumed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/admission"
	"github.com/mediafab/vidforge/internal/config"
	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/metrics"
	"github.com/mediafab/vidforge/internal/pipeline"
	"github.com/mediafab/vidforge/internal/queue"
)

// abandonWait bounds how long the processor waits for workers after the
// shutdown grace expired and their contexts were cancelled. Tasks still
// running after this are abandoned; the store keeps them in processing and
// the next startup requeues them.
const abandonWait = 5 * time.Second

// RunFunc executes a single task end to end and returns its result.
type RunFunc func(ctx context.Context, task *queue.Task) (*pipeline.Result, error)

// Progress is a snapshot reported at every tenth of a batch.
type Progress struct {
	Done      int
	Total     int
	Elapsed   time.Duration
	Remaining time.Duration
}

// TaskOutcome records how a single task ended inside a batch.
type TaskOutcome struct {
	ID       string
	Title    string
	Status   queue.Status
	Kind     fault.Kind
	Message  string
	Output   string
	Attempts int
	Duration time.Duration
}

// Result aggregates one full drain of the queue.
type Result struct {
	Total               int
	Successful          int
	Failed              int
	TotalDuration       time.Duration
	AverageTaskDuration time.Duration
	ThroughputPerSec    float64
	PeakMemoryMB        int
	Interrupted         bool
	Tasks               []TaskOutcome
}

// merge folds a later drain into the running aggregate; callers re-run
// summarize afterwards.
func (r *Result) merge(next *Result) {
	r.Total += next.Total
	if next.PeakMemoryMB > r.PeakMemoryMB {
		r.PeakMemoryMB = next.PeakMemoryMB
	}
	r.Interrupted = r.Interrupted || next.Interrupted
	r.Tasks = append(r.Tasks, next.Tasks...)
}

// summarize recomputes the derived fields from the recorded outcomes.
func (r *Result) summarize(wall time.Duration) {
	r.TotalDuration = wall
	r.Successful, r.Failed = 0, 0
	var taskTime time.Duration
	for _, out := range r.Tasks {
		switch out.Status {
		case queue.StatusCompleted:
			r.Successful++
		case queue.StatusFailed:
			r.Failed++
		default:
			continue
		}
		taskTime += out.Duration
	}
	terminal := r.Successful + r.Failed
	if terminal > 0 {
		r.AverageTaskDuration = taskTime / time.Duration(terminal)
	}
	if secs := wall.Seconds(); secs > 0 {
		r.ThroughputPerSec = float64(terminal) / secs
	}
}

// Processor runs pending tasks through a RunFunc with bounded workers.
type Processor struct {
	store   *queue.Store
	ledger  *admission.Manager
	run     RunFunc
	cfg     config.ThreadingConfig
	logsDir string
	workers int
	logger  zerolog.Logger

	// OnProgress, when set, is invoked at every progress interval.
	OnProgress func(Progress)

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a processor over the given store and admission ledger.
// Worker count follows the configured max_workers value, with automatic
// sizing capped at max_concurrent_tasks.
func New(store *queue.Store, ledger *admission.Manager, run RunFunc, cfg config.Config) *Processor {
	threading := cfg.Performance.Threading
	workers := admission.ComputeWorkers(threading.MaxWorkers, threading.MaxConcurrentTasks, nil, nil)
	return &Processor{
		store:    store,
		ledger:   ledger,
		run:      run,
		cfg:      threading,
		logsDir:  cfg.Paths.Logs,
		workers:  workers,
		logger:   log.WithComponent("batch"),
		shutdown: make(chan struct{}),
	}
}

// Workers reports the effective worker-pool size.
func (p *Processor) Workers() int {
	return p.workers
}

// Shutdown stops dispatching new tasks and starts the grace window for
// in-flight ones. Safe to call more than once and from any goroutine.
func (p *Processor) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Process drains every currently pending task and blocks until all of them
// reached a terminal state, the context was cancelled, or a shutdown ran out
// its grace window. An empty queue returns an empty result immediately.
func (p *Processor) Process(ctx context.Context) (*Result, error) {
	pending := p.store.Pending()
	res := &Result{Total: len(pending)}
	if len(pending) == 0 {
		p.logger.Info().Msg("queue empty, nothing to process")
		return res, nil
	}

	metrics.SetQueueDepth(float64(len(pending)))
	start := time.Now()
	p.logger.Info().
		Int("tasks", len(pending)).
		Int("workers", p.workers).
		Msg("batch started")

	// admitCtx gates tasks still waiting for a slot and dies the moment a
	// shutdown begins; runCtx covers admitted tasks and survives until the
	// grace window expires.
	admitCtx, cancelAdmit := context.WithCancel(ctx)
	defer cancelAdmit()
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()
	go func() {
		select {
		case <-p.shutdown:
			cancelAdmit()
		case <-admitCtx.Done():
		}
	}()

	var (
		mu       sync.Mutex
		outcomes []TaskOutcome
		done     int
		peakMB   int
	)
	step := (len(pending) + 9) / 10

	record := func(out TaskOutcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, out)
		if !out.Status.IsTerminal() {
			return
		}
		done++
		if rss, err := admission.ProcessMemoryUsedMB(); err == nil && rss > peakMB {
			peakMB = rss
		}
		if done%step == 0 || done == len(pending) {
			p.reportProgress(done, len(pending), start)
		}
	}

	var wg sync.WaitGroup
	slots := make(chan struct{}, p.workers)
dispatch:
	for _, task := range pending {
		select {
		case <-admitCtx.Done():
			break dispatch
		case slots <- struct{}{}:
		}
		wg.Add(1)
		go func(task *queue.Task) {
			defer wg.Done()
			defer func() { <-slots }()
			record(p.runTask(admitCtx, runCtx, task))
		}(task)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	interrupted := p.await(ctx, finished, cancelRun)

	mu.Lock()
	res.Tasks = outcomes
	res.PeakMemoryMB = peakMB
	mu.Unlock()
	res.Interrupted = interrupted
	res.summarize(time.Since(start))

	metrics.SetQueueDepth(float64(len(p.store.Pending())))
	p.logger.Info().
		Int("total", res.Total).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Dur("duration", res.TotalDuration).
		Bool("interrupted", res.Interrupted).
		Msg("batch finished")
	return res, nil
}

// await blocks until all workers returned. On shutdown it grants the grace
// window, then cancels the remaining tasks and waits a short beat before
// abandoning them. Returns true when the batch was cut short.
func (p *Processor) await(ctx context.Context, finished chan struct{}, cancelRun context.CancelFunc) bool {
	select {
	case <-finished:
		return false
	case <-ctx.Done():
	case <-p.shutdown:
	}

	grace := p.cfg.ShutdownGrace()
	p.logger.Warn().
		Dur("grace", grace).
		Int("active", p.ledger.Active()).
		Msg("shutdown requested, waiting for in-flight tasks")

	select {
	case <-finished:
		return true
	case <-time.After(grace):
	}

	cancelRun()
	select {
	case <-finished:
	case <-time.After(abandonWait):
		p.logger.Error().
			Int("abandoned", p.ledger.Active()).
			Msg("grace window expired, abandoning unfinished tasks")
	}
	return true
}

func (p *Processor) reportProgress(done, total int, start time.Time) {
	elapsed := time.Since(start)
	var remaining time.Duration
	if done > 0 && done < total {
		remaining = time.Duration(float64(elapsed) / float64(done) * float64(total-done))
	}
	p.logger.Info().
		Int("done", done).
		Int("total", total).
		Dur("elapsed", elapsed.Round(time.Second)).
		Dur("eta", remaining.Round(time.Second)).
		Msg("batch progress")
	if p.OnProgress != nil {
		p.OnProgress(Progress{Done: done, Total: total, Elapsed: elapsed, Remaining: remaining})
	}
}

// runTask takes one task from admission through completion, applying the
// per-task timeout and the retry budget.
func (p *Processor) runTask(admitCtx, runCtx context.Context, task *queue.Task) TaskOutcome {
	out := TaskOutcome{ID: task.ID, Title: task.Title, Status: task.Status}
	logger := p.logger.With().Str(log.FieldTaskID, task.ID).Logger()

	if err := p.ledger.Acquire(admitCtx, task.ID, p.cfg.TaskMemoryEstimateMB); err != nil {
		logger.Warn().Err(err).Msg("task not admitted, left pending")
		out.Message = "not admitted before shutdown"
		return out
	}
	defer p.ledger.Release(task.ID)

	if _, err := p.store.Start(task.ID); err != nil {
		logger.Warn().Err(err).Msg("task no longer startable, skipping")
		out.Message = err.Error()
		return out
	}
	out.Status = queue.StatusProcessing

	attempts := p.cfg.RetryTimes
	if attempts < 1 {
		attempts = 1
	}
	timeout := p.cfg.TaskTimeout()
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt
		taskCtx, cancel := context.WithTimeout(runCtx, timeout)
		result, err := p.invoke(taskCtx, task)
		timedOut := taskCtx.Err() == context.DeadlineExceeded && runCtx.Err() == nil
		cancel()

		if err == nil {
			out.Duration = time.Since(start)
			return p.complete(logger, task, result, out)
		}
		lastErr = err

		if runCtx.Err() != nil && !timedOut {
			// Shutdown cut the run short. The task stays in processing so
			// the next startup requeues it.
			logger.Warn().Int(log.FieldAttempt, attempt).Msg("task abandoned at shutdown")
			out.Message = "abandoned at shutdown"
			return out
		}
		if timedOut || fault.IsKind(err, fault.KindTimeout) {
			out.Duration = time.Since(start)
			msg := fmt.Sprintf("task exceeded %s timeout", timeout)
			return p.fail(logger, task, fault.KindTimeout, msg, err, out)
		}
		if attempt < attempts {
			if _, retryErr := p.store.IncrementRetry(task.ID); retryErr != nil {
				logger.Warn().Err(retryErr).Msg("retry bump failed")
			}
			logger.Warn().
				Err(err).
				Int(log.FieldAttempt, attempt).
				Int("remaining", attempts-attempt).
				Msg("task failed, retrying")
		}
	}

	out.Duration = time.Since(start)
	return p.fail(logger, task, fault.KindOf(lastErr), lastErr.Error(), lastErr, out)
}

// invoke shields the batch from a panicking pipeline; the stack ends up in
// the error log like any other failure.
func (p *Processor) invoke(ctx context.Context, task *queue.Task) (result *pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.Wrap(fault.KindUnknown, "pipeline.run",
				fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()
	return p.run(ctx, task)
}

func (p *Processor) complete(logger zerolog.Logger, task *queue.Task, result *pipeline.Result, out TaskOutcome) TaskOutcome {
	res := queue.Result{
		OutputPath:    result.OutputPath,
		DurationSec:   result.DurationSec,
		SubtitleCount: result.SubtitleCount,
	}
	if _, err := p.store.Complete(task.ID, res); err != nil {
		logger.Error().Err(err).Msg("completion not recorded")
	}
	out.Status = queue.StatusCompleted
	out.Output = result.OutputPath
	logger.Info().
		Str(log.FieldPath, result.OutputPath).
		Float64(log.FieldDuration, result.DurationSec).
		Int(log.FieldAttempt, out.Attempts).
		Msg("task completed")
	return out
}

func (p *Processor) fail(logger zerolog.Logger, task *queue.Task, kind fault.Kind, msg string, cause error, out TaskOutcome) TaskOutcome {
	if _, err := p.store.Fail(task.ID, kind, msg); err != nil {
		logger.Error().Err(err).Msg("failure not recorded")
	}
	out.Status = queue.StatusFailed
	out.Kind = kind
	out.Message = msg
	logPath := p.writeErrorLog(task, kind, cause, out.Attempts)
	logger.Error().
		Str(log.FieldReason, string(kind)).
		Str(log.FieldPath, logPath).
		Int(log.FieldAttempt, out.Attempts).
		Msg("task failed: " + msg)
	return out
}

// writeErrorLog drops a per-task diagnostic file under the logs directory so
// a failed batch can be triaged without scrolling the combined log. Returns
// the file path, or "" when writing was impossible.
func (p *Processor) writeErrorLog(task *queue.Task, kind fault.Kind, cause error, attempts int) string {
	if p.logsDir == "" {
		return ""
	}
	if err := os.MkdirAll(p.logsDir, 0o755); err != nil {
		p.logger.Warn().Err(err).Msg("error log directory not writable")
		return ""
	}
	name := fmt.Sprintf("error_%s_%s.log", task.ID, time.Now().Format("20060102_150405"))
	path := filepath.Join(p.logsDir, name)

	var b []byte
	b = appendLine(b, "task_id", task.ID)
	b = appendLine(b, "title", task.Title)
	b = appendLine(b, "failed_at", time.Now().Format(time.RFC3339))
	b = appendLine(b, "attempts", fmt.Sprint(attempts))
	b = appendLine(b, "kind", string(kind))
	b = appendLine(b, "script_path", task.ScriptPath)
	if task.ScriptText != "" {
		b = appendLine(b, "script_text", fmt.Sprintf("(%d chars inline)", len(task.ScriptText)))
	}
	b = appendLine(b, "audio_path", task.AudioPath)
	b = appendLine(b, "materials_dir", task.MaterialsDir)
	b = appendLine(b, "output_path", task.OutputPath)
	b = append(b, "\nerror:\n"...)
	b = append(b, cause.Error()...)
	b = append(b, '\n')

	if err := os.WriteFile(path, b, 0o644); err != nil {
		p.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("error log not written")
		return ""
	}
	return path
}

func appendLine(b []byte, key, value string) []byte {
	if value == "" {
		return b
	}
	b = append(b, key...)
	b = append(b, ": "...)
	b = append(b, value...)
	return append(b, '\n')
}

// IsInterrupted reports whether err or the result indicate the batch was cut
// short; callers map this to the conventional timeout exit code.
func IsInterrupted(res *Result, err error) bool {
	if res != nil && res.Interrupted {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
