package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextWithTaskID(t *testing.T) {
	tests := []struct {
		name   string
		ctx    context.Context
		taskID string
		want   string
	}{
		{name: "nil context", ctx: nil, taskID: "task-123", want: "task-123"},
		{name: "background context", ctx: context.Background(), taskID: "task-456", want: "task-456"},
		{name: "empty task ID", ctx: context.Background(), taskID: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithTaskID(tt.ctx, tt.taskID)
			if got := TaskIDFromContext(ctx); got != tt.want {
				t.Errorf("TaskIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaskIDFromContext_Missing(t *testing.T) {
	if got := TaskIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty task ID, got %q", got)
	}
	if got := TaskIDFromContext(nil); got != "" {
		t.Errorf("expected empty task ID for nil context, got %q", got)
	}
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithTaskID(context.Background(), "task-789")
	ctx = ContextWithStage(ctx, "tts")

	enriched := WithContext(ctx, base)
	enriched.Info().Msg("stage running")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry["task_id"] != "task-789" {
		t.Errorf("expected task_id task-789, got %v", entry["task_id"])
	}
	if entry["stage"] != "tts" {
		t.Errorf("expected stage tts, got %v", entry["stage"])
	}
}

func TestWithContext_NoFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	plain := WithContext(context.Background(), base)
	plain.Info().Msg("plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if _, ok := entry["task_id"]; ok {
		t.Error("task_id should not be present without context value")
	}
}

func TestFromContext_FallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("FromContext returned nil")
	}
	if l.GetLevel() == zerolog.Disabled {
		t.Error("fallback logger should not be disabled")
	}
}

func TestFromContext_UsesAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	attached := zerolog.New(&buf)
	ctx := attached.WithContext(context.Background())

	FromContext(ctx).Info().Msg("via context")

	if buf.Len() == 0 {
		t.Error("expected attached logger to receive the log line")
	}
}
