package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Equal(t, noop.Meter{}, p.Meter("x"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSink(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "svc"})
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(FromConfig(config.OTelConfig{Enabled: true, BatchTimeout: time.Second}, &buf))
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())
	assert.Equal(t, DefaultServiceName, p.config.ServiceName)
	assert.NotNil(t, p.Meter("forage"))

	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestFromConfig(t *testing.T) {
	var buf bytes.Buffer
	c := FromConfig(config.OTelConfig{Enabled: true, ServiceName: "s", Endpoint: "localhost:4318", Insecure: true, BatchTimeout: 2 * time.Second}, &buf)
	assert.True(t, c.Enabled)
	assert.Equal(t, "s", c.ServiceName)
	assert.Equal(t, "localhost:4318", c.Endpoint)
	assert.True(t, c.Insecure)
	assert.Equal(t, 2*time.Second, c.BatchTimeout)
	assert.Same(t, &buf, c.LogWriter.(*bytes.Buffer))
}

func TestNew_ServiceVersion(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{Enabled: true, ServiceName: "svc", ServiceVersion: "1.2.3", LogWriter: &buf})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}
