package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "opcuad", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
	assert.False(t, IsEnabled())
	assert.NotNil(t, Tracer())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestSpanHelpers_NoActiveSpan(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		RecordError(ctx, nil)
		RecordError(ctx, errors.New("BadTimeout"))
		SetAttributes(ctx, ClientAddr("192.168.1.1:4840"))
	})
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:50000")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:50000", attr.Value.AsString())
	})

	t.Run("Service", func(t *testing.T) {
		attr := Service("Browse")
		assert.Equal(t, AttrService, string(attr.Key))
		assert.Equal(t, "Browse", attr.Value.AsString())
	})

	t.Run("RequestHandle", func(t *testing.T) {
		attr := RequestHandle(0xfffffffe)
		assert.Equal(t, AttrRequestHandle, string(attr.Key))
		assert.Equal(t, int64(0xfffffffe), attr.Value.AsInt64())
	})

	t.Run("SessionID", func(t *testing.T) {
		attr := SessionID("ns=1;i=7")
		assert.Equal(t, AttrSessionID, string(attr.Key))
		assert.Equal(t, "ns=1;i=7", attr.Value.AsString())
	})

	t.Run("Status", func(t *testing.T) {
		attrs := Status("BadNothingToDo", 0x800F0000)
		require.Len(t, attrs, 2)
		assert.Equal(t, "BadNothingToDo", attrs[0].Value.AsString())
		assert.Equal(t, int64(0x800F0000), attrs[1].Value.AsInt64())
	})

	t.Run("Items", func(t *testing.T) {
		attr := Items(12)
		assert.Equal(t, AttrItems, string(attr.Key))
		assert.Equal(t, int64(12), attr.Value.AsInt64())
	})

	t.Run("SubscriptionID", func(t *testing.T) {
		attr := SubscriptionID(4)
		assert.Equal(t, AttrSubscriptionID, string(attr.Key))
		assert.Equal(t, int64(4), attr.Value.AsInt64())
	})

	t.Run("Username", func(t *testing.T) {
		assert.Equal(t, "operator", Username("operator").Value.AsString())
		assert.Equal(t, "username", AuthMethod("username").Value.AsString())
	})
}

func TestStartServiceSpan(t *testing.T) {
	ctx, span := StartServiceSpan(context.Background(), "Read", 7, Items(3))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestStartDriverSpan(t *testing.T) {
	ctx, span := StartDriverSpan(context.Background(), SpanDriverTick, Sessions(2))
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestProfiling_Disabled(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, stop())
	assert.False(t, IsProfilingEnabled())
}

func TestResolveProfileTypes(t *testing.T) {
	types, err := resolveProfileTypes([]string{"cpu", "inuse_space"})
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = resolveProfileTypes([]string{"cpu", "heap"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"heap"`)
	assert.Contains(t, err.Error(), "goroutines")
}

func TestProfileTypeNames(t *testing.T) {
	names := ProfileTypeNames()
	assert.Len(t, names, 10)
	assert.Equal(t, "alloc_objects", names[0])
}
