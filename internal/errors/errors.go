package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced across the tool boundary. Handlers map these to
// typed {success:false, error} responses; nothing below ever panics
// through a tool call.
type Kind string

const (
	KindParse          Kind = "parse_error"
	KindFilter         Kind = "filter_error"
	KindIO             Kind = "io_error"
	KindNotConfirmed   Kind = "not_confirmed"
	KindAlreadyRunning Kind = "already_running"
	KindCrawlerActive  Kind = "crawler_active"
	KindNotFound       Kind = "not_found"
	KindExtraction     Kind = "extraction_failure"
)

// Sentinels for errors.Is checks on the handler side.
var (
	ErrParse          = errors.New("query parse error")
	ErrFilter         = errors.New("filter validation error")
	ErrNotConfirmed   = errors.New("operation not confirmed")
	ErrAlreadyRunning = errors.New("operation already running")
	ErrCrawlerActive  = errors.New("crawler is active")
	ErrNotFound       = errors.New("document not found")
)

// ToolError carries a kind plus a human-readable message for the tool
// surface. The Underlying error is preserved for errors.Is/As.
type ToolError struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Underlying != nil {
		return e.Underlying.Error()
	}
	return string(e.Kind)
}

func (e *ToolError) Unwrap() error {
	return e.Underlying
}

// NewParseError wraps a query syntax problem.
func NewParseError(msg string) *ToolError {
	return &ToolError{Kind: KindParse, Message: msg, Underlying: ErrParse}
}

// NewFilterError wraps a filter validation problem.
func NewFilterError(format string, args ...interface{}) *ToolError {
	return &ToolError{Kind: KindFilter, Message: fmt.Sprintf(format, args...), Underlying: ErrFilter}
}

// NewNotConfirmed rejects a destructive operation lacking its
// confirmation flag.
func NewNotConfirmed(op string) *ToolError {
	return &ToolError{
		Kind:       KindNotConfirmed,
		Message:    fmt.Sprintf("%s requires confirm=true; no changes were made", op),
		Underlying: ErrNotConfirmed,
	}
}

// NewAlreadyRunning rejects an admin operation while another one holds
// the executor. The running operation's id is included so callers can
// poll it.
func NewAlreadyRunning(runningID string) *ToolError {
	return &ToolError{
		Kind:       KindAlreadyRunning,
		Message:    fmt.Sprintf("another admin operation is running (id=%s)", runningID),
		Underlying: ErrAlreadyRunning,
	}
}

// NewCrawlerActive rejects an operation that cannot run concurrently
// with a crawl.
func NewCrawlerActive(op string) *ToolError {
	return &ToolError{
		Kind:       KindCrawlerActive,
		Message:    fmt.Sprintf("%s rejected: a crawl is in progress", op),
		Underlying: ErrCrawlerActive,
	}
}

// NewNotFound reports a lookup miss by path.
func NewNotFound(path string) *ToolError {
	return &ToolError{
		Kind:       KindNotFound,
		Message:    fmt.Sprintf("no indexed document for path %s", path),
		Underlying: ErrNotFound,
	}
}

// KindOf extracts the tool error kind, defaulting to io_error for
// anything untyped that leaks out of the engine.
func KindOf(err error) Kind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindIO
}
