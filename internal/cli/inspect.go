package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/binding"
	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/markup"
)

// Report describes a document as markdown.
func Report(doc *markup.Document) string {
	var b strings.Builder
	name := doc.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "# %s\n\n", name)
	if doc.Path != "" {
		fmt.Fprintf(&b, "Source: `%s`\n\n", doc.Path)
	}

	if doc.Settings.CacheCapacity > 0 || doc.Settings.MaxWhileIterations > 0 {
		b.WriteString("## Settings\n\n")
		if doc.Settings.CacheCapacity > 0 {
			fmt.Fprintf(&b, "- cache capacity: %d\n", doc.Settings.CacheCapacity)
		}
		if doc.Settings.MaxWhileIterations > 0 {
			fmt.Fprintf(&b, "- max while iterations: %d\n", doc.Settings.MaxWhileIterations)
		}
		b.WriteString("\n")
	}

	if len(doc.Variables) > 0 {
		b.WriteString("## Variables\n\n| Name | Type | Initial value |\n|---|---|---|\n")
		for _, k := range sortedNames(doc.Variables) {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", k, cell(doc.Types[k]), cell(convert.ToString(doc.Variables[k])))
		}
		b.WriteString("\n")
	}

	if len(doc.Controls) > 0 {
		b.WriteString("## Controls\n\n| Id | Kind | Parent |\n|---|---|---|\n")
		for _, c := range doc.Controls {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", c.ID, c.Kind, cell(c.Parent))
		}
		b.WriteString("\n")
	}

	if rows := bindingRows(doc); len(rows) > 0 {
		b.WriteString("## Bindings\n\n| Key | Target | Format |\n|---|---|---|\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "| %s | %s.%s | %s |\n", r.Key, r.Target, r.Property, cell(r.Format))
		}
		b.WriteString("\n")
	}

	if len(doc.Plugins) > 0 {
		b.WriteString("## Plugins\n\n")
		for _, p := range doc.Plugins {
			if p.Builtin != "" {
				fmt.Fprintf(&b, "- %s (built-in)\n", p.Builtin)
				continue
			}
			fmt.Fprintf(&b, "- %s from `%s`\n", p.Name, p.Source)
		}
		b.WriteString("\n")
	}

	if len(doc.Handlers) > 0 {
		b.WriteString("## Handlers\n\n")
		for _, name := range doc.HandlerNames() {
			root := doc.Handlers[name]
			fmt.Fprintf(&b, "### %s\n\n%d node(s)\n\n```\n", name, root.Count()-1)
			for _, c := range root.Children {
				writeTree(&b, c, 0)
			}
			b.WriteString("```\n\n")
		}
	}
	return b.String()
}

// bindingRows lists explicit bindings followed by the ones declared in
// control properties.
func bindingRows(doc *markup.Document) []markup.BindingDef {
	rows := append([]markup.BindingDef(nil), doc.Bindings...)
	for _, c := range doc.Controls {
		for _, prop := range sortedNames(c.Properties) {
			s, ok := c.Properties[prop].(string)
			if !ok {
				continue
			}
			if key, format, ok := binding.ParseExpression(s); ok {
				rows = append(rows, markup.BindingDef{Key: key, Target: c.ID, Property: prop, Format: format})
			}
		}
	}
	return rows
}

func writeTree(b *strings.Builder, n *domain.HandlerNode, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Kind)
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%q", k, n.Attrs[k])
	}
	b.WriteString("\n")
	for _, c := range n.Children {
		writeTree(b, c, depth+1)
	}
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

// Inspect loads path and writes its report to out. The markdown is rendered
// with glamour when out is a terminal.
func Inspect(path string, out io.Writer) error {
	doc, err := markup.LoadFile(path)
	if err != nil {
		return err
	}
	report := Report(doc)
	if isTerminal(out) {
		rendered, err := tui.NewRenderer()(report)
		if err == nil {
			report = rendered
		}
	}
	_, err = io.WriteString(out, report)
	return err
}

// Diagram loads path and writes a Mermaid flowchart of it to out.
func Diagram(path string, out io.Writer) error {
	doc, err := markup.LoadFile(path)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, graph.GenerateMermaid(doc, nil))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
