// Package graph draws a document as a Mermaid flowchart.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/binding"
	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/markup"
)

// Overlay contains live data to show on the graph.
type Overlay struct {
	// State adds current values to the variable nodes.
	State map[string]any
	// Active highlights handlers, e.g. the ones that just ran.
	Active []string
}

// GenerateMermaid produces a Mermaid flowchart of doc. Shapes:
//   - Handler: [[Subroutine]]
//   - Variable: ([Stadium])
//   - Control: [Rectangle]
//   - Plugin: {{Hexagon}}
//
// Edges show handler calls, variables written by handlers, bindings from
// variables to control properties and events emitted to plugins.
func GenerateMermaid(doc *markup.Document, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	vars := make(map[string]bool, len(doc.Variables))
	for name := range doc.Variables {
		vars[name] = true
	}
	type edge struct{ from, arrow, to string }
	var edges []edge
	seen := make(map[edge]bool)
	addEdge := func(e edge) {
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}

	for _, name := range doc.HandlerNames() {
		from := handlerID(name)
		visit(doc.Handlers[name], func(n *domain.HandlerNode) {
			switch {
			case n.Is(domain.KindCall):
				if h, _ := n.Attr("Handler"); h != "" && !strings.Contains(h, "{") {
					addEdge(edge{from, "-- call -->", handlerID(h)})
				}
			case n.Is(domain.KindEmit):
				if ev, _ := n.Attr("Event"); ev != "" && len(doc.Plugins) > 0 {
					addEdge(edge{from, fmt.Sprintf("-. \"%s\" .->", label(ev)), "plugins"})
				}
			}
			if v, _ := n.Attr("Variable"); v != "" && !strings.Contains(v, "{") {
				vars[v] = true
				addEdge(edge{from, "-->", variableID(v)})
			}
		})
	}

	for _, b := range bindings(doc) {
		vars[b.Key] = true
		addEdge(edge{variableID(b.Key), fmt.Sprintf("-. %s .->", label(b.Property)), controlID(b.Target)})
	}
	for _, c := range doc.Controls {
		if c.Parent != "" {
			addEdge(edge{controlID(c.Parent), "---", controlID(c.ID)})
		}
	}

	for _, name := range doc.HandlerNames() {
		fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", handlerID(name), label(name))
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		text := name
		if overlay != nil {
			if v, ok := overlay.State[name]; ok {
				text = fmt.Sprintf("%s = %s", name, convert.ToString(v))
			}
		}
		fmt.Fprintf(&sb, "    %s([\"%s\"])\n", variableID(name), label(text))
	}
	for _, c := range doc.Controls {
		fmt.Fprintf(&sb, "    %s[\"%s: %s\"]\n", controlID(c.ID), label(c.ID), label(c.Kind))
	}
	if len(doc.Plugins) > 0 {
		ids := make([]string, 0, len(doc.Plugins))
		for _, p := range doc.Plugins {
			ids = append(ids, label(pluginName(p)))
		}
		fmt.Fprintf(&sb, "    plugins{{\"%s\"}}\n", strings.Join(ids, ", "))
	}

	for _, e := range edges {
		fmt.Fprintf(&sb, "    %s %s %s\n", e.from, e.arrow, e.to)
	}

	if overlay != nil && len(overlay.Active) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef active fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		done := make(map[string]bool)
		for _, h := range overlay.Active {
			id := handlerID(h)
			if !done[id] {
				done[id] = true
				fmt.Fprintf(&sb, "    class %s active;\n", id)
			}
		}
	}
	return sb.String()
}

// bindings returns the explicit bindings followed by the ones written as
// control properties.
func bindings(doc *markup.Document) []markup.BindingDef {
	out := append([]markup.BindingDef(nil), doc.Bindings...)
	for _, c := range doc.Controls {
		props := make([]string, 0, len(c.Properties))
		for p := range c.Properties {
			props = append(props, p)
		}
		sort.Strings(props)
		for _, p := range props {
			s, ok := c.Properties[p].(string)
			if !ok {
				continue
			}
			if key, format, ok := binding.ParseExpression(s); ok {
				out = append(out, markup.BindingDef{Key: key, Target: c.ID, Property: p, Format: format})
			}
		}
	}
	return out
}

func pluginName(p markup.PluginRef) string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Builtin != "":
		return p.Builtin
	}
	return p.Source
}

func visit(n *domain.HandlerNode, fn func(*domain.HandlerNode)) {
	for _, c := range n.Children {
		fn(c)
		visit(c, fn)
	}
}

func handlerID(name string) string  { return "h_" + sanitizeMermaidID(name) }
func variableID(name string) string { return "v_" + sanitizeMermaidID(name) }
func controlID(id string) string    { return "c_" + sanitizeMermaidID(id) }

func sanitizeMermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, id)
}

// label escapes double quotes for a quoted Mermaid label.
func label(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
