package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// LogHooks logs lifecycle events. Handler boundaries log at debug, failures at warn.
func LogHooks(logger *slog.Logger) domain.Hooks {
	return domain.Hooks{
		OnHandlerStart: func(ctx context.Context, e *domain.HandlerEvent) {
			logger.DebugContext(ctx, "handler_start", "handler", e.Handler, "exec_id", e.ExecutionID)
		},
		OnHandlerFinish: func(ctx context.Context, e *domain.HandlerEvent) {
			logger.DebugContext(ctx, "handler_finish",
				"handler", e.Handler,
				"exec_id", e.ExecutionID,
				"nodes", e.Nodes,
				"failures", e.Failures,
				"duration", e.Duration,
			)
		},
		OnNodeError: func(ctx context.Context, e *domain.NodeErrorEvent) {
			logger.WarnContext(ctx, "node_error", "handler", e.Handler, "node", e.Kind, "exec_id", e.ExecutionID, "err", e.Err)
		},
		OnBindingFailed: func(ctx context.Context, e *domain.BindingEvent) {
			logger.WarnContext(ctx, "binding_failed", "key", e.Binding.Key, "target", e.Binding.TargetID, "property", e.Binding.Property, "err", e.Err)
		},
		OnPluginEvent: func(ctx context.Context, e *domain.PluginEvent) {
			logger.DebugContext(ctx, "plugin_event", "event", e.Name, "plugins", e.Plugins, "failures", e.Failures)
		},
	}
}
