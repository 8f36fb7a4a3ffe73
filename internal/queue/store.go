// SPDX-License-Identifier: MIT

package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/metrics"
)

// Store is a persistent task queue backed by a single JSON file. All methods
// are safe for concurrent use; every mutation is followed by an atomic rewrite
// of the backing file. Exclusive access across processes is not enforced; one
// batch processor per queue file is assumed.
type Store struct {
	mu     sync.RWMutex
	path   string
	tasks  map[string]*Task
	logger zerolog.Logger
}

// fileState is the on-disk layout of the queue file.
type fileState struct {
	Tasks     map[string]*Task `json:"tasks"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Open loads the queue from path, creating parent directories as needed.
// A missing file yields an empty queue. A corrupt file is moved aside and the
// queue starts fresh rather than failing the whole run.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		tasks:  make(map[string]*Task),
		logger: log.WithComponent("queue"),
	}

	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fault.Queue("queue.open", err, path)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- queue path comes from operator config
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fault.Queue("queue.open", err, path)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		backup := fmt.Sprintf("%s.corrupted-%s", path, time.Now().UTC().Format("20060102_150405"))
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, fault.Queue("queue.open", renameErr, "backing up corrupt queue file")
		}
		s.logger.Warn().
			Err(err).
			Str("event", "queue.corrupt_backup").
			Str("path", path).
			Str("backup", backup).
			Msg("queue file corrupt, moved aside and starting empty")
		return s, nil
	}

	dropped, recovered := 0, 0
	for id, t := range state.Tasks {
		if t == nil || t.ID == "" {
			dropped++
			continue
		}
		// Non-terminal entries must still point at existing inputs.
		if !t.Status.IsTerminal() {
			if in := t.InputPath(); in != "" {
				if _, statErr := os.Stat(in); statErr != nil {
					s.logger.Warn().
						Str("event", "queue.entry_dropped").
						Str(log.FieldTaskID, id).
						Str("path", in).
						Msg("dropping task whose input no longer exists")
					dropped++
					continue
				}
			}
		}
		// A processing entry at load time means the previous run died
		// mid-task; requeue it.
		if t.Status == StatusProcessing {
			t.Status = StatusPending
			recovered++
		}
		s.tasks[id] = t
	}

	s.logger.Info().
		Str("event", "queue.loaded").
		Str("path", path).
		Int("tasks", len(s.tasks)).
		Int("dropped", dropped).
		Int("recovered", recovered).
		Msg("task queue loaded")

	if dropped > 0 || recovered > 0 {
		s.mu.Lock()
		err := s.persistLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	depth := len(s.pendingLocked())
	s.mu.RUnlock()
	metrics.SetQueueDepth(float64(depth))
	return s, nil
}

// NewTask builds a pending task with a fresh id and UTC creation time.
// The caller still has to Add it.
func NewTask(title string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Add inserts a new task. The id must not already exist.
func (s *Store) Add(t *Task) error {
	if t == nil || t.ID == "" {
		return fault.BadInput("queue.add", "task without id")
	}
	if !t.Status.IsValid() {
		return fault.BadInput("queue.add", fmt.Sprintf("status %q", t.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fault.Queue("queue.add", fault.ErrDuplicateID, t.ID)
	}
	s.tasks[t.ID] = t.clone()

	if err := s.persistLocked(); err != nil {
		return err
	}

	metrics.RecordTaskSubmitted()
	metrics.SetQueueDepth(float64(len(s.pendingLocked())))
	s.logger.Info().
		Str("event", "queue.task_added").
		Str(log.FieldTaskID, t.ID).
		Str("title", t.Title).
		Msg("task added")
	return nil
}

// Get returns a copy of the task, or false if the id is unknown.
func (s *Store) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// StatusUpdate carries the optional payload of a status transition.
type StatusUpdate struct {
	Kind    fault.Kind
	Message string
	Result  *Result
}

// UpdateStatus transitions a task and persists the change. Timestamps are set
// as a side effect: StartedAt on entering Processing, CompletedAt on any
// terminal state. Once set they are never cleared.
func (s *Store) UpdateStatus(id string, to Status, upd StatusUpdate) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fault.Queue("queue.update_status", fault.ErrUnknownID, id)
	}
	from := t.Status
	if !from.CanTransitionTo(to) {
		return nil, fault.Queue("queue.update_status", fault.ErrIllegalTransition,
			fmt.Sprintf("%s -> %s", from, to))
	}

	cp := t.clone()
	now := time.Now().UTC()
	cp.Status = to
	switch {
	case to == StatusProcessing:
		cp.StartedAt = &now
	case to.IsTerminal():
		cp.CompletedAt = &now
	}
	if upd.Kind != "" {
		cp.ErrorKind = string(upd.Kind)
	}
	if upd.Message != "" {
		cp.ErrorMessage = upd.Message
	}
	if upd.Result != nil {
		r := *upd.Result
		cp.Result = &r
	}
	s.tasks[id] = cp

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	metrics.RecordTaskTransition(string(from), string(to))
	if to.IsTerminal() {
		metrics.RecordTaskFinished(string(to), cp.Duration().Seconds())
	}
	metrics.SetQueueDepth(float64(len(s.pendingLocked())))

	s.logger.Info().
		Str("event", "queue.transition").
		Str(log.FieldTaskID, id).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("task status changed")
	return cp.clone(), nil
}

// Start marks a pending task as processing.
func (s *Store) Start(id string) (*Task, error) {
	return s.UpdateStatus(id, StatusProcessing, StatusUpdate{})
}

// Complete marks a processing task as completed with its result.
func (s *Store) Complete(id string, res Result) (*Task, error) {
	return s.UpdateStatus(id, StatusCompleted, StatusUpdate{Result: &res})
}

// Fail marks a processing task as failed with the error kind and message.
func (s *Store) Fail(id string, kind fault.Kind, msg string) (*Task, error) {
	return s.UpdateStatus(id, StatusFailed, StatusUpdate{Kind: kind, Message: msg})
}

// Cancel marks a pending task as cancelled. Running tasks cannot be cancelled.
func (s *Store) Cancel(id string) (*Task, error) {
	return s.UpdateStatus(id, StatusCancelled, StatusUpdate{})
}

// IncrementRetry bumps the retry counter of a task without changing status.
func (s *Store) IncrementRetry(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fault.Queue("queue.increment_retry", fault.ErrUnknownID, id)
	}
	cp := t.clone()
	cp.RetryCount++
	s.tasks[id] = cp

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	metrics.RecordTaskRetry()
	return cp.clone(), nil
}

// ListByStatus returns copies of all tasks in the given state, oldest first.
func (s *Store) ListByStatus(st Status) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.Status == st {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pending returns all pending tasks, oldest first.
func (s *Store) Pending() []*Task {
	return s.ListByStatus(StatusPending)
}

// All returns copies of every task, oldest first.
func (s *Store) All() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ClearTerminal drops all completed, failed and cancelled tasks and persists.
// It returns the number of removed entries.
func (s *Store) ClearTerminal() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tasks {
		if t.Status.IsTerminal() {
			delete(s.tasks, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	s.logger.Info().
		Str("event", "queue.cleared").
		Int("removed", removed).
		Msg("terminal tasks cleared")
	return removed, nil
}

// Statistics returns the task count per status.
func (s *Store) Statistics() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[Status]int, len(AllStatuses()))
	for _, st := range AllStatuses() {
		stats[st] = 0
	}
	for _, t := range s.tasks {
		stats[t.Status]++
	}
	return stats
}

// Len returns the total number of tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// pendingLocked must be called with at least a read lock held.
func (s *Store) pendingLocked() []*Task {
	var out []*Task
	for _, t := range s.tasks {
		if t.Status == StatusPending {
			out = append(out, t)
		}
	}
	return out
}

// persistLocked rewrites the backing file atomically. Callers hold the write
// lock. A Store without a path is memory-only and persists nothing.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	state := fileState{Tasks: s.tasks, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fault.Queue("queue.persist", err, "marshal")
	}

	pf, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fault.Queue("queue.persist", err, s.path)
	}
	defer pf.Cleanup() //nolint:errcheck // best-effort temp cleanup

	if _, err := pf.Write(data); err != nil {
		return fault.Queue("queue.persist", err, s.path)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fault.Queue("queue.persist", err, s.path)
	}
	return nil
}
