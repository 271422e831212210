package nlq

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies the terminal states of a request. Each pipeline
// stage reports its own kind; the HTTP layer maps kinds to status codes.
type FailureKind string

const (
	KindSchemaUnavailable    FailureKind = "schema_unavailable"
	KindSynthesisUnavailable FailureKind = "synthesis_unavailable"
	KindRejectedByValidator  FailureKind = "rejected_by_validator"
	KindQueryTimeout         FailureKind = "query_timeout"
	KindQueryExecutionFailed FailureKind = "query_execution_failed"
)

type Error struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func SchemaUnavailable(err error) *Error {
	return &Error{Kind: KindSchemaUnavailable, Message: "could not read the dataset schema", Err: err}
}

func SynthesisUnavailable(message string, err error) *Error {
	return &Error{Kind: KindSynthesisUnavailable, Message: message, Err: err}
}

func RejectedByValidator(reason string) *Error {
	return &Error{Kind: KindRejectedByValidator, Message: reason}
}

func QueryTimeout(limit time.Duration) *Error {
	return &Error{
		Kind:    KindQueryTimeout,
		Message: fmt.Sprintf("query exceeded the %s statement timeout; try a more specific question or add filters", limit),
	}
}

func ExecutionFailed(err error) *Error {
	return &Error{Kind: KindQueryExecutionFailed, Message: "query execution failed", Err: err}
}

// KindOf extracts the failure kind from an error chain. The second return is
// false for errors that did not originate in this package.
func KindOf(err error) (FailureKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
