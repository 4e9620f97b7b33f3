package errortracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ServeSpec/pkg/config"
)

func TestProviderDisabled(t *testing.T) {
	provider, err := NewProviderFromConfig(config.ErrorTrackingConfig{})
	require.NoError(t, err)
	assert.IsType(t, &NoOpProvider{}, provider)
}

func TestProviderUnnamed(t *testing.T) {
	provider, err := NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true})
	require.NoError(t, err)
	assert.IsType(t, &NoOpProvider{}, provider)
}

func TestProviderSentryNeedsDSN(t *testing.T) {
	_, err := NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: "sentry"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestProviderUnknown(t *testing.T) {
	_, err := NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: "rollbar"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollbar")
}

func TestNoOpProvider(t *testing.T) {
	provider := NewNoOpProvider()

	// Every capture is a silent drop
	provider.CaptureMessage(context.Background(), "msg", SeverityWarning, nil)
	provider.CapturePanic(context.Background(), "boom", nil, nil)

	assert.True(t, provider.Flush(1))
	assert.NoError(t, provider.Close())
}
