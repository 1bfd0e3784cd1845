package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/weft/pkg/domain"
)

// Metrics holds the engine collectors.
type Metrics struct {
	HandlerRuns     *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	NodeErrors      *prometheus.CounterVec
	BindingPushes   *prometheus.CounterVec
	PluginEvents    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		HandlerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_handler_runs_total",
			Help: "Total number of handler executions",
		}, []string{"handler"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weft_handler_duration_seconds",
			Help:    "Duration of handler executions",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"handler"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_node_errors_total",
			Help: "Total number of failed handler nodes",
		}, []string{"handler", "kind"}),
		BindingPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_binding_pushes_total",
			Help: "Total number of binding writes to control properties",
		}, []string{"result"}),
		PluginEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_plugin_events_total",
			Help: "Total number of plugin event deliveries",
		}, []string{"event", "result"}),
	}

	m.HandlerRuns = register(reg, m.HandlerRuns)
	m.HandlerDuration = register(reg, m.HandlerDuration)
	m.NodeErrors = register(reg, m.NodeErrors)
	m.BindingPushes = register(reg, m.BindingPushes)
	m.PluginEvents = register(reg, m.PluginEvents)
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnHandlerFinish: func(_ context.Context, e *domain.HandlerEvent) {
			m.HandlerRuns.WithLabelValues(e.Handler).Inc()
			m.HandlerDuration.WithLabelValues(e.Handler).Observe(e.Duration.Seconds())
		},
		OnNodeError: func(_ context.Context, e *domain.NodeErrorEvent) {
			m.NodeErrors.WithLabelValues(e.Handler, e.Kind).Inc()
		},
		OnBindingApplied: func(context.Context, *domain.BindingEvent) {
			m.BindingPushes.WithLabelValues("ok").Inc()
		},
		OnBindingFailed: func(context.Context, *domain.BindingEvent) {
			m.BindingPushes.WithLabelValues("failed").Inc()
		},
		OnPluginEvent: func(_ context.Context, e *domain.PluginEvent) {
			m.PluginEvents.WithLabelValues(e.Name, "ok").Add(float64(e.Plugins - e.Failures))
			if e.Failures > 0 {
				m.PluginEvents.WithLabelValues(e.Name, "failed").Add(float64(e.Failures))
			}
		},
	}
}
