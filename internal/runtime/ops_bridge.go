package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
)

func opSetProperty(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p propertyParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	if x.in.renderer == nil {
		x.logger().Warn("no renderer, property not set", "target", p.Target)
		return FlowNormal, nil
	}
	id := x.name(p.Target)
	target, ok := x.in.renderer.Locate(id)
	if !ok {
		x.logger().Warn("target not found", "target", id)
		return FlowNormal, nil
	}
	if err := x.in.renderer.SetProperty(target, x.text(p.Property), x.operand(p.Value)); err != nil {
		if errors.Is(err, domain.ErrUnknownProperty) {
			x.logger().Warn("property not set", "target", id, "property", p.Property, "err", err)
			return FlowNormal, nil
		}
		return FlowNormal, fmt.Errorf("set %s.%s: %w", id, p.Property, err)
	}
	return FlowNormal, nil
}

func opGetProperty(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p propertyParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	if name == "" {
		return FlowNormal, errMissingVariable
	}
	if x.in.renderer == nil {
		x.logger().Warn("no renderer, property not read", "target", p.Target)
		return FlowNormal, nil
	}
	id := x.name(p.Target)
	target, ok := x.in.renderer.Locate(id)
	if !ok {
		x.logger().Warn("target not found", "target", id)
		return FlowNormal, nil
	}
	v, ok := x.in.renderer.GetProperty(target, x.text(p.Property))
	if !ok {
		x.logger().Warn("property not found", "target", id, "property", p.Property)
		return FlowNormal, nil
	}
	x.in.vars.Set(x.ctx, name, v)
	return FlowNormal, nil
}

func opBind(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p bindParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	if x.in.binder == nil {
		x.logger().Warn("no binding engine, bind ignored")
		return FlowNormal, nil
	}
	key := x.name(firstNonEmpty(p.Key, p.Variable))
	target, property := x.name(p.Target), x.text(p.Property)
	if key == "" || target == "" || property == "" {
		return FlowNormal, fmt.Errorf("bind needs Variable, Target and Property")
	}
	if x.in.binder.Bind(key, target, property, p.Format) {
		x.in.binder.Refresh(x.ctx, key)
	}
	return FlowNormal, nil
}

func opUnbind(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p bindParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	if x.in.binder == nil {
		return FlowNormal, nil
	}
	key := x.name(firstNonEmpty(p.Key, p.Variable))
	if key == "" {
		return FlowNormal, errMissingVariable
	}
	if target := x.name(p.Target); target != "" {
		x.in.binder.UnbindOne(key, target, x.text(p.Property))
		return FlowNormal, nil
	}
	x.in.binder.Unbind(key)
	return FlowNormal, nil
}

// opCall runs another handler inline. Break and Continue do not cross the call.
func opCall(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p callParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Handler)
	if x.in.handlers == nil {
		x.logger().Warn("no handler source, call ignored", "target_handler", name)
		return FlowNormal, nil
	}
	root, ok := x.in.handlers.Handler(name)
	if !ok {
		x.logger().Warn("handler not found", "target_handler", name)
		return FlowNormal, nil
	}
	if x.depth >= maxCallDepth {
		return FlowNormal, fmt.Errorf("call depth limit %d reached at %q", maxCallDepth, name)
	}
	x.depth++
	defer func() { x.depth-- }()
	x.block(root.Children)
	return FlowNormal, nil
}

func opLog(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p logParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(p.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	x.logger().Log(x.ctx, level, x.text(p.Message))
	return FlowNormal, nil
}

func opEmit(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p emitParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	event := x.text(p.Event)
	if event == "" {
		return FlowNormal, fmt.Errorf("missing Event attribute")
	}
	if x.in.emit == nil {
		x.logger().Debug("no plugin host, event dropped", "event", event)
		return FlowNormal, nil
	}
	var payload any
	if p.Payload != "" {
		payload = x.operand(p.Payload)
	}
	if failures := x.in.emit(x.ctx, event, payload); failures > 0 {
		x.logger().Warn("plugins failed to handle event", "event", event, "failures", failures)
	}
	return FlowNormal, nil
}

func opCacheSet(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p cacheParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	if x.in.cache == nil {
		return FlowNormal, nil
	}
	key := x.text(p.Key)
	if key == "" {
		return FlowNormal, fmt.Errorf("missing Key attribute")
	}
	ttl := 0.0
	if s := strings.TrimSpace(p.TTL); s != "" {
		if v, ok := convert.ToFloat(x.operand(s)); ok && v >= 0 {
			ttl = v
		} else {
			x.logger().Warn("invalid Ttl, caching without expiry", "key", key, "ttl", s)
		}
	}
	x.in.cache.Set(key, x.operand(p.Value), ttl)
	return FlowNormal, nil
}

func opCacheGet(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p cacheParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	if name == "" {
		return FlowNormal, errMissingVariable
	}
	if x.in.cache == nil {
		return FlowNormal, nil
	}
	key := x.text(p.Key)
	if v, ok := x.in.cache.Get(key); ok {
		x.in.vars.Set(x.ctx, name, v)
		return FlowNormal, nil
	}
	if p.Default != "" {
		x.in.vars.Set(x.ctx, name, x.operand(p.Default))
		return FlowNormal, nil
	}
	x.logger().Debug("cache miss", "key", key)
	return FlowNormal, nil
}

func opCacheRemove(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p cacheParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	if x.in.cache != nil {
		x.in.cache.Remove(x.text(p.Key))
	}
	return FlowNormal, nil
}

func opCacheClear(x *execution, _ *domain.HandlerNode) (Flow, error) {
	if x.in.cache != nil {
		x.in.cache.Clear()
	}
	return FlowNormal, nil
}

// opCommand offers an unknown kind to the command registry by its lower-cased
// name. The command receives a copy of the node with interpolated attributes.
func opCommand(x *execution, n *domain.HandlerNode) (Flow, error) {
	kind := strings.ToLower(n.Kind)
	if x.in.commands == nil {
		x.logger().Debug("unknown node kind", "node", n.Kind)
		return FlowNormal, nil
	}
	attrs := make(map[string]string, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = x.text(v)
	}
	found, ok := x.in.commands.Execute(x.ctx, kind, n.WithAttrs(attrs), x.sender)
	switch {
	case !found:
		x.logger().Debug("unknown node kind", "node", n.Kind)
	case !ok:
		x.logger().Debug("command reported failure", "command", kind)
	}
	return FlowNormal, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
