package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Frame is a single frame in a captured call stack.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error is the one concrete error type produced by this package. The
// variant lives in Kind; code, domain, severity, retryability, message
// and recovery hint all derive from it via the definition table, so two
// errors of the same kind always classify identically.
type Error struct {
	Kind Kind

	// Status holds the HTTP status for ServerError, ClientError,
	// RateLimited and Maintenance; zero otherwise.
	Status int

	// Detail optionally narrows the generic kind message, e.g. the
	// field name for a validation failure.
	Detail string

	Context Context

	Function string
	File     string
	Line     int
	Stack    []Frame

	cause error
}

// E creates an error of the given kind, capturing the caller's source
// location and stamping a fresh occurrence context.
func E(kind Kind) *Error {
	e := &Error{
		Kind:    kind,
		Context: Context{Timestamp: time.Now()},
	}
	e.Function, e.File, e.Line = callerFrame(1)
	return e
}

// Wrap creates an error of the given kind with an underlying cause.
func Wrap(kind Kind, cause error) *Error {
	e := &Error{
		Kind:    kind,
		Context: Context{Timestamp: time.Now()},
		cause:   cause,
	}
	e.Function, e.File, e.Line = callerFrame(1)
	return e
}

// Wrapf wraps a cause and sets a formatted detail string.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	e := Wrap(kind, cause)
	e.Function, e.File, e.Line = callerFrame(1)
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithStatus records the HTTP status that produced this error.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithDetail sets the detail string.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithDetailf sets a formatted detail string.
func (e *Error) WithDetailf(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithContext replaces the occurrence context. The context is copied by
// value; later changes to the caller's copy do not affect the error.
func (e *Error) WithContext(ctx Context) *Error {
	e.Context = ctx.clone()
	if e.Context.Timestamp.IsZero() {
		e.Context.Timestamp = time.Now()
	}
	return e
}

// WithMeta adds one metadata key to the occurrence context.
func (e *Error) WithMeta(key, value string) *Error {
	if e.Context.Metadata == nil {
		e.Context.Metadata = make(map[string]string, 1)
	}
	e.Context.Metadata[key] = value
	return e
}

// WithStack captures the full call stack at the point of the call.
func (e *Error) WithStack() *Error {
	e.Stack = captureStack(1)
	return e
}

// Code returns the stable numeric code.
func (e *Error) Code() int { return e.Kind.Code() }

// Domain returns the error's domain.
func (e *Error) Domain() Domain { return e.Kind.Domain() }

// Severity returns the error's severity.
func (e *Error) Severity() Severity { return e.Kind.Severity() }

// Retryable reports whether the failed operation may succeed if
// re-attempted.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// RecoveryHint returns the kind's recovery guidance.
func (e *Error) RecoveryHint() string { return e.Kind.RecoveryHint() }

// Message returns the human-readable message, including the HTTP
// status and detail when present.
func (e *Error) Message() string {
	msg := e.Kind.Message()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%d] %s: %s: %v", e.Code(), e.Domain(), e.Message(), e.cause)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code(), e.Domain(), e.Message())
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error of the same kind, so
// errors.Is(err, errors.E(KindTimeout)) works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// FormatSummary returns a human-readable block for console output and
// notifications.
func (e *Error) FormatSummary() string {
	var sb strings.Builder

	emoji := "ℹ️"
	switch e.Severity() {
	case SeverityWarning:
		emoji = "⚠️"
	case SeverityError:
		emoji = "❌"
	case SeverityCritical, SeverityFatal:
		emoji = "🔴"
	}

	sb.WriteString(fmt.Sprintf("%s %s [%d/%s]\n", emoji, e.Severity().Label(), e.Code(), e.Domain()))
	sb.WriteString(e.Message())
	if e.cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.cause))
	}
	sb.WriteString("\n")
	if e.Function != "" {
		sb.WriteString(fmt.Sprintf("at %s (%s:%d)\n", e.Function, e.File, e.Line))
	}
	sb.WriteString(fmt.Sprintf("hint: %s\n", e.RecoveryHint()))
	return sb.String()
}

// FormatJSON returns the full error as indented JSON.
func (e *Error) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalJSON flattens the derived fields so consumers get code, domain
// and severity without access to the definition table.
func (e *Error) MarshalJSON() ([]byte, error) {
	var cause string
	if e.cause != nil {
		cause = e.cause.Error()
	}
	return json.Marshal(struct {
		Type      string  `json:"type"`
		Code      int     `json:"code"`
		Domain    Domain  `json:"domain"`
		Severity  string  `json:"severity"`
		Retryable bool    `json:"retryable"`
		Message   string  `json:"message"`
		Hint      string  `json:"hint"`
		Status    int     `json:"status,omitempty"`
		Detail    string  `json:"detail,omitempty"`
		Cause     string  `json:"cause,omitempty"`
		Function  string  `json:"function,omitempty"`
		File      string  `json:"file,omitempty"`
		Line      int     `json:"line,omitempty"`
		Context   Context `json:"context"`
		Stack     []Frame `json:"stack,omitempty"`
	}{
		Type:      e.Kind.String(),
		Code:      e.Code(),
		Domain:    e.Domain(),
		Severity:  e.Severity().String(),
		Retryable: e.Retryable(),
		Message:   e.Message(),
		Hint:      e.RecoveryHint(),
		Status:    e.Status,
		Detail:    e.Detail,
		Cause:     cause,
		Function:  e.Function,
		File:      e.File,
		Line:      e.Line,
		Context:   e.Context,
		Stack:     e.Stack,
	})
}

// KindOf extracts the kind from any error. Non-nil errors that are not
// produced by this package report KindUnknown; nil reports zero.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf extracts the numeric code from any error, zero for nil.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).Code()
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == kind
}

// IsRetryable reports whether the error's kind is retryable. Errors not
// produced by this package are classified first, so the answer is total.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable()
	}
	return Classify(err).Retryable()
}

func callerFrame(skip int) (fn, file string, line int) {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "", "", 0
	}
	if f := runtime.FuncForPC(pc); f != nil {
		fn = shortFunc(f.Name())
	}
	return fn, shortFile(file), line
}

// captureStack walks the call stack, skipping runtime internals.
func captureStack(skip int) []Frame {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	var frames []Frame
	callers := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := callers.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			frames = append(frames, Frame{
				Function: shortFunc(frame.Function),
				File:     shortFile(frame.File),
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
	return frames
}

// shortFile trims the path down to the final element.
func shortFile(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// shortFunc trims the package path from a function name, keeping
// pkg.Func or pkg.(*Type).Method.
func shortFunc(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
