// Package errs defines the typed error taxonomy surfaced across the
// code-graph engine. Analyzers and parsers never let exceptions escape
// their boundary; they return results carrying these errors instead.
package errs

import (
	"fmt"
	"time"
)

// Kind identifies one of the engine's error categories.
type Kind string

const (
	KindUnsupportedLanguage Kind = "UnsupportedLanguage"
	KindParseTimeout        Kind = "ParseTimeout"
	KindParseError          Kind = "ParseError"
	KindCircuitBreaker      Kind = "CircuitBreaker"
	KindIOError             Kind = "IOError"
	KindSchemaError         Kind = "SchemaError"
	KindDimensionMismatch   Kind = "DimensionMismatch"
	KindAgentBusy           Kind = "AgentBusy"
	KindCancelled           Kind = "Cancelled"
	KindTimeout             Kind = "Timeout"
	KindInvalidArgument     Kind = "InvalidArgument"
)

// EngineError is the common shape for every error kind in the taxonomy. It
// always carries a Kind so the operation boundary can convert it into the
// {ok:false, kind, message} envelope without further inspection.
type EngineError struct {
	Kind       Kind
	Op         string
	Path       string
	Underlying error
	Timestamp  time.Time
	Retryable  bool
}

// New creates an EngineError of the given kind for the given operation.
func New(kind Kind, op string, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, Underlying: err, Timestamp: time.Now()}
}

// WithPath attaches a file path to the error for richer diagnostics.
func (e *EngineError) WithPath(path string) *EngineError {
	e.Path = path
	return e
}

// WithRetryable marks whether a caller may retry the failed operation.
func (e *EngineError) WithRetryable(retryable bool) *EngineError {
	e.Retryable = retryable
	return e
}

func (e *EngineError) Error() string {
	if e.Path != "" {
		if e.Underlying != nil {
			return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Underlying)
		}
		return fmt.Sprintf("%s: %s %s", e.Kind, e.Op, e.Path)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap allows errors.Is/As to see through to the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the caller's policy should retry.
func (e *EngineError) IsRetryable() bool {
	return e.Retryable
}

func UnsupportedLanguage(path string) *EngineError {
	return New(KindUnsupportedLanguage, "grammarFor", nil).WithPath(path)
}

func ParseTimeout(path string, after time.Duration) *EngineError {
	return New(KindParseTimeout, "parse", fmt.Errorf("exceeded %s deadline", after)).WithPath(path)
}

func CircuitBreaker(path, reason string) *EngineError {
	return New(KindCircuitBreaker, "analyze", fmt.Errorf("%s", reason)).WithPath(path)
}

func IOError(op, path string, err error) *EngineError {
	return New(KindIOError, op, err).WithPath(path).WithRetryable(true)
}

func SchemaError(op string, err error) *EngineError {
	return New(KindSchemaError, op, err)
}

func DimensionMismatch(expected, got int) *EngineError {
	return New(KindDimensionMismatch, "vectorstore", fmt.Errorf("expected dimension %d, got %d", expected, got))
}

func AgentBusy(agent string) *EngineError {
	return New(KindAgentBusy, "admit", fmt.Errorf("agent %q over capacity", agent)).WithRetryable(true)
}

func Cancelled(op string) *EngineError {
	return New(KindCancelled, op, nil)
}

func Timeout(op string, after time.Duration) *EngineError {
	return New(KindTimeout, op, fmt.Errorf("exceeded %s deadline", after))
}

func InvalidArgument(field string, reason string) *EngineError {
	return New(KindInvalidArgument, "validate", fmt.Errorf("%s: %s", field, reason))
}

// MultiError aggregates zero or more errors, e.g. per-file batch failures.
type MultiError struct {
	Errors []error
}

// NewMulti filters nils and wraps the remainder.
func NewMulti(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(m.Errors), m.Errors)
	}
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Len reports how many underlying errors the MultiError carries.
func (m *MultiError) Len() int {
	return len(m.Errors)
}
