package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/framesift/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledDoesNotDial(t *testing.T) {
	// The gRPC exporter connects lazily, so setup succeeds without a collector.
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:1",
		ServiceName: "framesift-test",
		Insecure:    true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
