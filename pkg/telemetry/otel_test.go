package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupAndShutdown(t *testing.T) {
	tel, err := Setup("margin-maker-test", "test")
	require.NoError(t, err)

	assert.NotNil(t, GetTracer("test-tracer"))
	assert.NotNil(t, GetMeter("test-meter"))
	assert.NotNil(t, GetGlobalMetrics().PnLRealizedTotal)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
}
