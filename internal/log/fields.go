package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldTaskID    = "task_id"
	FieldBatchID   = "batch_id"
	FieldComponent = "component"
	FieldEvent     = "event"

	// Pipeline fields
	FieldStage    = "stage"
	FieldSentence = "sentence"
	FieldAttempt  = "attempt"

	// Media fields
	FieldCodec    = "codec"
	FieldPreset   = "preset"
	FieldDuration = "duration_sec"
	FieldFont     = "font"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"

	// Path / URL fields
	FieldPath   = "path"
	FieldURL    = "url"
	FieldSource = "source"
)
