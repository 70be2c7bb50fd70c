package pipeline

import "fmt"

// Kind classifies pipeline failures so the API layer can map them to
// status codes without string matching.
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindUpstream      Kind = "upstream_unavailable"
	KindParse         Kind = "parse_failure"
	KindSafety        Kind = "safety_rejected"
	KindCapacity      Kind = "capacity_exceeded"
	KindExecution     Kind = "execution_failure"
)

// Error is the single failure type the pipeline surfaces. Query is the
// finalized query when the failure happened at or after validation, so
// callers can show what would have run.
type Error struct {
	Kind    Kind
	Message string
	Query   string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func failf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}
