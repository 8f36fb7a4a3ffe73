// SPDX-License-Identifier: MIT

// Package queue provides the durable task queue backing batch video assembly.
//
// Tasks move along a monotone lifecycle; every mutation is persisted with an
// atomic file rewrite so a crashed run can be resumed.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the current state of a video task.
type Status string

const (
	// StatusPending indicates the task is queued but not yet started.
	StatusPending Status = "pending"

	// StatusProcessing indicates the task is currently executing.
	StatusProcessing Status = "processing"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task terminated with an error.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the task was cancelled before it started.
	StatusCancelled Status = "cancelled"
)

// String implements fmt.Stringer for logging.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the status represents a final state.
// Terminal states are Completed, Failed and Cancelled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether this status may transition to target.
//
// Valid transitions:
//   - Pending → Processing, Cancelled
//   - Processing → Completed, Failed
//
// Cancellation is only reachable from Pending; a running task finishes on its
// own terms. Terminal states never transition.
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusCancelled
	case StatusProcessing:
		return target == StatusCompleted || target == StatusFailed
	default:
		return false
	}
}

// UnmarshalJSON rejects unknown status strings on load.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := Status(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid task status: %q", str)
	}
	*s = status
	return nil
}

// ParseStatus parses a string into a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid task status: %q (valid: pending, processing, completed, failed, cancelled)", s)
	}
	return status, nil
}

// AllStatuses returns all defined statuses in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusProcessing,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	}
}

// Result captures the output of a successfully assembled video.
type Result struct {
	OutputPath    string  `json:"output_path"`
	DurationSec   float64 `json:"duration_sec"`
	SubtitleCount int     `json:"subtitle_count"`
}

// Task is the durable record of one video-assembly job.
//
// Exactly one of ScriptPath, ScriptText or AudioPath is set: the first two
// drive the TTS pipeline, the third the transcription pipeline.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	ScriptPath   string `json:"script_path,omitempty"`
	ScriptText   string `json:"script_text,omitempty"`
	AudioPath    string `json:"audio_path,omitempty"`
	MaterialsDir string `json:"materials_dir,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`

	// Overrides are per-task configuration overrides (option name -> value).
	Overrides map[string]string `json:"overrides,omitempty"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RetryCount   int     `json:"retry_count,omitempty"`
	ErrorKind    string  `json:"error_kind,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Result       *Result `json:"result,omitempty"`
}

// InputPath returns the local file input referenced by the task, if any.
// Inline script text has no backing file.
func (t *Task) InputPath() string {
	switch {
	case t.ScriptPath != "":
		return t.ScriptPath
	case t.AudioPath != "":
		return t.AudioPath
	default:
		return ""
	}
}

// Duration returns the wall-clock execution time, or zero if the task never
// ran to a terminal state.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// clone copies the task so callers never share map memory with the store.
func (t *Task) clone() *Task {
	cp := *t
	if t.Overrides != nil {
		cp.Overrides = make(map[string]string, len(t.Overrides))
		for k, v := range t.Overrides {
			cp.Overrides[k] = v
		}
	}
	if t.Result != nil {
		r := *t.Result
		cp.Result = &r
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}
