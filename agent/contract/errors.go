package contract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrPromptMissing = errors.New("required prompt is missing")
)

// Kind classifies a tool or gateway failure. The orchestrator's transition
// table is keyed on Kind, so every failure must map onto one of these.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindTimeout             Kind = "timeout"
	KindUpstreamRejected    Kind = "upstream_rejected"
	KindUnknown             Kind = "unknown"
)

// Sentinels for errors.Is matching against a ToolError of the same kind.
var (
	ErrInvalidInput        = errors.New(string(KindInvalidInput))
	ErrUpstreamUnavailable = errors.New(string(KindUpstreamUnavailable))
	ErrTimeout             = errors.New(string(KindTimeout))
	ErrUpstreamRejected    = errors.New(string(KindUpstreamRejected))
	ErrUnknown             = errors.New(string(KindUnknown))
)

// Retryable reports whether the kind is transient.
func (k Kind) Retryable() bool {
	return k == KindUpstreamUnavailable || k == KindTimeout
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable
	case KindTimeout:
		return ErrTimeout
	case KindUpstreamRejected:
		return ErrUpstreamRejected
	default:
		return ErrUnknown
	}
}

// ToolError is the only error type that crosses a tool or gateway boundary.
type ToolError struct {
	Kind    Kind
	Message string
	Cause   error
	// Detail carries machine-readable upstream reasons, e.g. code=duplicate_sku.
	Detail map[string]string
}

func (e *ToolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

func (e *ToolError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func newToolError(kind Kind, cause error, format string, args ...any) *ToolError {
	return &ToolError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func InvalidInput(format string, args ...any) *ToolError {
	return newToolError(KindInvalidInput, nil, format, args...)
}

func Unavailable(cause error, format string, args ...any) *ToolError {
	return newToolError(KindUpstreamUnavailable, cause, format, args...)
}

func Timeout(cause error, format string, args ...any) *ToolError {
	return newToolError(KindTimeout, cause, format, args...)
}

func Rejected(cause error, detail map[string]string, format string, args ...any) *ToolError {
	e := newToolError(KindUpstreamRejected, cause, format, args...)
	e.Detail = detail
	return e
}

func Unknown(cause error, format string, args ...any) *ToolError {
	return newToolError(KindUnknown, cause, format, args...)
}

// Classify normalizes any error into a ToolError. A nil error yields nil.
// context.Canceled is classified as Unknown; callers that need to tell
// cancellation apart check their own context first.
func Classify(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err, "deadline exceeded")
	}
	return Unknown(err, "unclassified failure")
}

// KindOf returns the kind of err after classification.
func KindOf(err error) Kind {
	if te := Classify(err); te != nil {
		return te.Kind
	}
	return ""
}

// FromHTTPStatus maps an upstream HTTP status code into a ToolError.
func FromHTTPStatus(status int, body string, detail map[string]string) *ToolError {
	body = strings.TrimSpace(body)
	cause := fmt.Errorf("http status=%d body=%s", status, body)
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return Timeout(cause, "upstream timed out")
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return Unavailable(cause, "upstream unavailable")
	case status == http.StatusBadRequest || (status == http.StatusUnprocessableEntity && len(detail) == 0):
		return newToolError(KindInvalidInput, cause, "upstream refused request")
	case status >= http.StatusBadRequest:
		return Rejected(cause, detail, "upstream rejected request")
	default:
		return Unknown(cause, "unexpected upstream status")
	}
}

// FromTransport classifies a failure returned by an HTTP round-trip.
func FromTransport(ctx context.Context, err error, what string) *ToolError {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Timeout(err, "%s timed out", what)
	}
	if ctx.Err() != nil {
		return Unknown(err, "%s aborted", what)
	}
	return Unavailable(err, "%s failed", what)
}
