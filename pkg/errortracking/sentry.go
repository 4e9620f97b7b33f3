package errortracking

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds the Sentry client settings
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	SampleRate       float64
	TracesSampleRate float64
}

// SentryProvider reports events through the Sentry client
type SentryProvider struct {
	hub *sentry.Hub
}

var sentryLevels = map[Severity]sentry.Level{
	SeverityDebug:   sentry.LevelDebug,
	SeverityInfo:    sentry.LevelInfo,
	SeverityWarning: sentry.LevelWarning,
	SeverityError:   sentry.LevelError,
}

// NewSentryProvider initializes the Sentry client and returns a provider
// bound to its hub
func NewSentryProvider(cfg SentryConfig) (*SentryProvider, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return &SentryProvider{hub: sentry.CurrentHub()}, nil
}

// CaptureError implements Provider
func (s *SentryProvider) CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{}) {
	if err == nil {
		return
	}

	event := sentry.NewEvent()
	event.Level = sentryLevel(severity)
	event.Message = err.Error()
	event.Exception = []sentry.Exception{{
		Value:      err.Error(),
		Type:       fmt.Sprintf("%T", err),
		Stacktrace: sentry.ExtractStacktrace(err),
	}}
	s.capture(ctx, event, extra)
}

// CaptureMessage implements Provider
func (s *SentryProvider) CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{}) {
	if message == "" {
		return
	}

	event := sentry.NewEvent()
	event.Level = sentryLevel(severity)
	event.Message = message
	s.capture(ctx, event, extra)
}

// CapturePanic implements Provider
func (s *SentryProvider) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
	if recovered == nil {
		return
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = fmt.Sprintf("Panic: %v", recovered)
	event.Exception = []sentry.Exception{{
		Value: fmt.Sprintf("%v", recovered),
		Type:  "panic",
	}}

	if extra == nil {
		extra = map[string]interface{}{}
	}
	extra["stack_trace"] = string(stackTrace)
	s.capture(ctx, event, extra)
}

// Flush implements Provider
func (s *SentryProvider) Flush(timeout int) bool {
	return sentry.Flush(time.Duration(timeout) * time.Second)
}

// Close implements Provider
func (s *SentryProvider) Close() error {
	sentry.Flush(2 * time.Second)
	return nil
}

// capture routes the event through the request-scoped hub when one exists,
// falling back to the hub the provider was initialized with.
func (s *SentryProvider) capture(ctx context.Context, event *sentry.Event, extra map[string]interface{}) {
	if extra != nil {
		event.Extra = extra
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = s.hub
	}
	hub.CaptureEvent(event)
}

func sentryLevel(severity Severity) sentry.Level {
	if level, ok := sentryLevels[severity]; ok {
		return level
	}
	return sentry.LevelError
}
