// SPDX-License-Identifier: MIT

// Package fault defines the closed set of error kinds the pipeline reports.
// Kinds are stable strings: metrics labels and batch summaries depend on them.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindBadInput         Kind = "bad_input"
	KindBadConfig        Kind = "bad_config"
	KindCollaborator     Kind = "collaborator"
	KindTimeout          Kind = "timeout"
	KindNotFound         Kind = "not_found"
	KindNoUsableFont     Kind = "no_usable_font"
	KindQueue            Kind = "queue"
	KindDownloadRejected Kind = "download_rejected"
)

// Queue contract violations, wrapped inside a KindQueue Error.
var (
	ErrDuplicateID       = errors.New("duplicate task id")
	ErrUnknownID         = errors.New("unknown task id")
	ErrIllegalTransition = errors.New("illegal state transition")
)

// Download rejections, wrapped inside a KindDownloadRejected Error.
var (
	ErrOversize  = errors.New("download exceeds size limit")
	ErrBadFormat = errors.New("unrecognized media format")
)

// HTTPStatusError reports a non-2xx response during a media download.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Code)
}

// Error is a classified failure. Op names the operation that failed
// ("queue.add", "tts.synthesize"); Detail carries the human-readable part.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error without a cause.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// BadInput reports missing or unusable caller input.
func BadInput(op, detail string) *Error {
	return New(KindBadInput, op, detail)
}

// BadConfig reports contradictory or out-of-range configuration.
func BadConfig(op, detail string) *Error {
	return New(KindBadConfig, op, detail)
}

// Collab reports a failed external collaborator call; which names the
// collaborator ("tts", "stt", "llm", "http", "encoder").
func Collab(which string, err error) *Error {
	return &Error{Kind: KindCollaborator, Op: which, Err: err}
}

// Timeout reports a per-task deadline expiry.
func Timeout(op string, detail string) *Error {
	return New(KindTimeout, op, detail)
}

// NotFound reports an expected file that is missing.
func NotFound(op, path string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Detail: path}
}

// NoUsableFont reports exhausted font resolution.
func NoUsableFont(detail string) *Error {
	return New(KindNoUsableFont, "fontsel.resolve", detail)
}

// Queue wraps a queue contract violation.
func Queue(op string, sentinel error, detail string) *Error {
	return &Error{Kind: KindQueue, Op: op, Detail: detail, Err: sentinel}
}

// Download wraps a media-cache rejection.
func Download(op string, cause error) *Error {
	return &Error{Kind: KindDownloadRejected, Op: op, Err: cause}
}

// KindOf classifies an arbitrary error chain. Context deadline expiry maps to
// KindTimeout so collaborator-level timeouts and task timeouts read the same.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
