// Package errortracking reports errors, log messages and recovered panics
// to an external tracker. The logger fans its Warn/Error output into the
// active provider, so individual components report without importing this
// package directly.
package errortracking

import "context"

// Severity classifies a captured event
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Provider is the reporting backend. Implementations must be safe for
// concurrent use; one provider serves the whole process.
type Provider interface {
	// CaptureError reports an error with free-form context values
	CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{})

	// CaptureMessage reports a plain message
	CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{})

	// CapturePanic reports a recovered panic and its stack
	CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{})

	// Flush blocks until buffered events are delivered or the timeout
	// (in seconds) elapses, reporting whether the buffer drained
	Flush(timeout int) bool

	// Close flushes remaining events and releases the provider
	Close() error
}

// NoOpProvider drops every event. It is the active provider whenever error
// tracking is disabled, which keeps the logger free of nil checks.
type NoOpProvider struct{}

// NewNoOpProvider creates a provider that drops everything
func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

func (*NoOpProvider) CaptureError(context.Context, error, Severity, map[string]interface{}) {}

func (*NoOpProvider) CaptureMessage(context.Context, string, Severity, map[string]interface{}) {}

func (*NoOpProvider) CapturePanic(context.Context, interface{}, []byte, map[string]interface{}) {}

func (*NoOpProvider) Flush(int) bool { return true }

func (*NoOpProvider) Close() error { return nil }
