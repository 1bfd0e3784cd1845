package dsl

import (
	"strconv"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
)

// Body is a fluent list of handler nodes.
type Body struct {
	nodes []*domain.HandlerNode
}

// Nodes returns the nodes added so far.
func (b *Body) Nodes() []*domain.HandlerNode {
	return b.nodes
}

// Node appends a node of any kind, including host commands. attrs are
// name/value pairs.
func (b *Body) Node(kind string, attrs ...string) *Body {
	b.nodes = append(b.nodes, domain.NewNode(kind, pairs(attrs)))
	return b
}

func (b *Body) block(kind string, attrs map[string]string, fill func(*Body)) *Body {
	inner := &Body{}
	if fill != nil {
		fill(inner)
	}
	b.nodes = append(b.nodes, domain.NewNode(kind, attrs, inner.nodes...))
	return b
}

func (b *Body) variable(kind, name string, value any, withValue bool) *Body {
	attrs := map[string]string{"Variable": name}
	if withValue {
		attrs["Value"] = text(value)
	}
	b.nodes = append(b.nodes, domain.NewNode(kind, attrs))
	return b
}

// Set assigns value to a variable. Strings are interpolated at run time.
func (b *Body) Set(name string, value any) *Body { return b.variable(domain.KindSet, name, value, true) }

// Increment adds one to a variable.
func (b *Body) Increment(name string) *Body { return b.variable(domain.KindIncrement, name, nil, false) }

// Decrement subtracts one from a variable.
func (b *Body) Decrement(name string) *Body { return b.variable(domain.KindDecrement, name, nil, false) }

func (b *Body) Multiply(name string, by any) *Body {
	return b.variable(domain.KindMultiply, name, by, true)
}

func (b *Body) Divide(name string, by any) *Body { return b.variable(domain.KindDivide, name, by, true) }

func (b *Body) Modulo(name string, by any) *Body { return b.variable(domain.KindModulo, name, by, true) }

func (b *Body) Toggle(name string) *Body { return b.variable(domain.KindToggle, name, nil, false) }

// Append adds value to the end of a list variable.
func (b *Body) Append(name string, value any) *Body {
	return b.variable(domain.KindAppend, name, value, true)
}

// Clear removes a variable.
func (b *Body) Clear(name string) *Body { return b.variable(domain.KindClear, name, nil, false) }

// For counts variable from start towards end, end excluded.
func (b *Body) For(variable string, start, end any, fill func(*Body)) *Body {
	return b.block(domain.KindFor, map[string]string{
		"Variable": variable, "Start": text(start), "End": text(end),
	}, fill)
}

// While repeats while condition holds, up to the engine's iteration cap.
func (b *Body) While(condition string, fill func(*Body)) *Body {
	return b.block(domain.KindWhile, map[string]string{"Condition": condition}, fill)
}

// ForEach iterates the list named by in, exposing each item as variable.
func (b *Body) ForEach(variable, in string, fill func(*Body)) *Body {
	return b.block(domain.KindForEach, map[string]string{"Variable": variable, "In": in}, fill)
}

// If runs then when condition holds, otherwise otherwise. Either may be nil.
func (b *Body) If(condition string, then, otherwise func(*Body)) *Body {
	inner := &Body{}
	if then != nil {
		then(inner)
	}
	children := inner.nodes
	if otherwise != nil {
		alt := &Body{}
		otherwise(alt)
		children = append(children, domain.NewNode(domain.KindElse, nil, alt.nodes...))
	}
	b.nodes = append(b.nodes, domain.NewNode(domain.KindIf, map[string]string{"Condition": condition}, children...))
	return b
}

func (b *Body) Break() *Body    { return b.Node(domain.KindBreak) }
func (b *Body) Continue() *Body { return b.Node(domain.KindContinue) }

// SetProperty writes value to a control property.
func (b *Body) SetProperty(target, property string, value any) *Body {
	return b.Node(domain.KindSetProperty, "Target", target, "Property", property, "Value", text(value))
}

// Call runs another handler.
func (b *Body) Call(handler string) *Body { return b.Node(domain.KindCall, "Handler", handler) }

// Log writes an interpolated message at level (empty means info).
func (b *Body) Log(message, level string) *Body {
	if level == "" {
		return b.Node(domain.KindLog, "Message", message)
	}
	return b.Node(domain.KindLog, "Message", message, "Level", level)
}

// Emit notifies every plugin of event.
func (b *Body) Emit(event, payload string) *Body {
	return b.Node(domain.KindEmit, "Event", event, "Payload", payload)
}

// CacheSet stores value under key. A ttl of zero never expires.
func (b *Body) CacheSet(key string, value any, ttlSeconds int) *Body {
	if ttlSeconds <= 0 {
		return b.Node(domain.KindCacheSet, "Key", key, "Value", text(value))
	}
	return b.Node(domain.KindCacheSet, "Key", key, "Value", text(value), "TTL", strconv.Itoa(ttlSeconds))
}

// CacheGet copies the cached value into variable, or def when absent.
func (b *Body) CacheGet(key, variable string, def any) *Body {
	return b.Node(domain.KindCacheGet, "Key", key, "Variable", variable, "Default", text(def))
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return convert.ToString(convert.Normalize(v))
}

func pairs(kv []string) map[string]string {
	attrs := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	return attrs
}
