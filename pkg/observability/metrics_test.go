package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HooksUpdateCollectors(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	h := m.Hooks()

	h.OnHandlerFinish(ctx, &domain.HandlerEvent{Handler: "click", Duration: 2 * time.Millisecond})
	h.OnHandlerFinish(ctx, &domain.HandlerEvent{Handler: "click", Duration: time.Millisecond})
	h.OnNodeError(ctx, &domain.NodeErrorEvent{Handler: "click", Kind: "Set"})
	h.OnBindingApplied(ctx, &domain.BindingEvent{})
	h.OnBindingFailed(ctx, &domain.BindingEvent{})
	h.OnBindingFailed(ctx, &domain.BindingEvent{})
	h.OnPluginEvent(ctx, &domain.PluginEvent{Name: "saved", Plugins: 3, Failures: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HandlerRuns.WithLabelValues("click")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeErrors.WithLabelValues("click", "Set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BindingPushes.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BindingPushes.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PluginEvents.WithLabelValues("saved", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginEvents.WithLabelValues("saved", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HandlerDuration))
}

func TestMetrics_RegisterTwiceReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	second, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	second.Hooks().OnBindingApplied(context.Background(), &domain.BindingEvent{})
	assert.Equal(t, 1.0, testutil.ToFloat64(first.BindingPushes.WithLabelValues("ok")))
}

func TestCombine_CallsEverySet(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	calls := 0
	h := observability.Combine(
		observability.LogHooks(logger),
		domain.Hooks{OnNodeError: func(context.Context, *domain.NodeErrorEvent) { calls++ }},
		domain.Hooks{},
	)

	h.OnNodeError(context.Background(), &domain.NodeErrorEvent{Handler: "h", Kind: "Set", Err: errors.New("boom")})

	assert.Equal(t, 1, calls)
	assert.Contains(t, buf.String(), "node_error")
	assert.Contains(t, buf.String(), "boom")
}
