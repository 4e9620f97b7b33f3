package errortracking

import (
	"fmt"

	"github.com/bitechdev/ServeSpec/pkg/config"
)

// NewProviderFromConfig builds the provider the configuration names. With
// tracking disabled, or no provider named, events are dropped.
func NewProviderFromConfig(cfg config.ErrorTrackingConfig) (Provider, error) {
	if !cfg.Enabled {
		return NewNoOpProvider(), nil
	}

	switch cfg.Provider {
	case "sentry":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("error tracking provider 'sentry' needs a DSN")
		}
		return NewSentryProvider(SentryConfig{
			DSN:              cfg.DSN,
			Environment:      cfg.Environment,
			Release:          cfg.Release,
			Debug:            cfg.Debug,
			SampleRate:       cfg.SampleRate,
			TracesSampleRate: cfg.TracesSampleRate,
		})
	case "", "noop":
		return NewNoOpProvider(), nil
	default:
		return nil, fmt.Errorf("unknown error tracking provider '%s'", cfg.Provider)
	}
}
