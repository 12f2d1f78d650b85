package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code identifies a failure class across the workflow.
type Code string

// Severity drives how loudly a failure is reported.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes holds the default behaviour attached to a code.
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeTimeout         Code = "TIMEOUT"
	CodeStorageFailure  Code = "STORAGE_FAILURE"
	CodePublishFailure  Code = "PUBLISH_FAILURE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:  "unknown error",
			Severity: SeverityCritical,
			Alert:    true,
		},
		CodeInvalidArgument: {
			Message:  "invalid argument",
			Severity: SeverityInfo,
		},
		CodeNotFound: {
			Message:  "resource not found",
			Severity: SeverityInfo,
		},
		CodeTimeout: {
			Message:   "operation timed out",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeStorageFailure: {
			Message:   "storage failure",
			Severity:  SeverityWarning,
			Retryable: true,
		},
		CodePublishFailure: {
			Message:   "publish failure",
			Severity:  SeverityWarning,
			Retryable: true,
		},
	}
)

// Register adds or replaces the attributes of a code. Domain packages call it
// from init.
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf returns the attributes registered for code, falling back to
// UNKNOWN.
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error is the coded error type shared by every package.
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	severity *Severity
}

// Option customises an Error at construction.
type Option func(*Error)

// WithMetadata attaches a key/value pair, e.g. the account address involved.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithSeverity overrides the registered severity.
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New builds an Error. An empty message takes the registered default.
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap builds an Error around cause.
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error carrying the same code, so sentinels built with New
// work with errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata returns a copy of the attached metadata.
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable reports the registered retry hint. The workflow itself never
// retries; the hint is informational for callers scripting around the CLI.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Retryable
}

// ShouldAlert reports whether the failure deserves an alert.
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Alert
}

// Severity returns the effective severity.
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From extracts the first *Error in err's chain.
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of err, or UNKNOWN.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return stdErrors.Is(err, &Error{code: code})
}

// SeverityOf returns the severity of err.
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
