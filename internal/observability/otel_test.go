package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/chimera-protocol/chimera/apps/state/internal/config"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, Options{}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_StdoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
		ServiceName: "chimera-test",
	}, Options{Version: "test", Stdout: &buf}, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "workspace.switch")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "workspace.switch")
	assert.Contains(t, buf.String(), "chimera-test")
}

func TestInitTracing_ZeroRatioDropsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled: true, Exporter: "stdout", SampleRatio: 0,
	}, Options{Stdout: &buf}, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.NotContains(t, buf.String(), "dropped")
}
