package domain

import "strings"

// Built-in node kinds understood by the interpreter. Matching is case-insensitive.
const (
	KindHandler   = "Handler"
	KindSet       = "Set"
	KindIncrement = "Increment"
	KindDecrement = "Decrement"
	KindMultiply  = "Multiply"
	KindDivide    = "Divide"
	KindModulo    = "Modulo"
	KindToggle    = "Toggle"
	KindAppend    = "Append"
	KindClear     = "Clear"
	KindFor       = "For"
	KindWhile     = "While"
	KindForEach   = "ForEach"
	KindIf        = "If"
	KindElse      = "Else"
	KindBreak     = "Break"
	KindContinue  = "Continue"

	KindSetProperty = "SetProperty"
	KindGetProperty = "GetProperty"
	KindBind        = "Bind"
	KindUnbind      = "Unbind"
	KindCall        = "Call"
	KindLog         = "Log"
	KindEmit        = "Emit"
	KindCacheSet    = "CacheSet"
	KindCacheGet    = "CacheGet"
	KindCacheRemove = "CacheRemove"
	KindCacheClear  = "CacheClear"
)

// HandlerNode is one instruction of a handler tree.
// Attribute values are raw markup strings; interpolation happens at execution time.
type HandlerNode struct {
	Kind     string            `json:"kind" yaml:"kind"`
	Attrs    map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Children []*HandlerNode    `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewNode creates a node with the given kind and attributes.
func NewNode(kind string, attrs map[string]string, children ...*HandlerNode) *HandlerNode {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &HandlerNode{Kind: kind, Attrs: attrs, Children: children}
}

// Attr returns the attribute with a case-insensitive name match.
func (n *HandlerNode) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	if v, ok := n.Attrs[name]; ok {
		return v, true
	}
	for k, v := range n.Attrs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Is reports whether the node is of the given kind, ignoring case.
func (n *HandlerNode) Is(kind string) bool {
	return n != nil && strings.EqualFold(n.Kind, kind)
}

// WithAttrs returns a shallow copy carrying attrs instead of the original map.
// Children are shared.
func (n *HandlerNode) WithAttrs(attrs map[string]string) *HandlerNode {
	return &HandlerNode{Kind: n.Kind, Attrs: attrs, Children: n.Children}
}

// Count returns the number of nodes in the tree rooted at n, n included.
func (n *HandlerNode) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}
