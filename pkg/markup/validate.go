package markup

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/binding"
	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
)

// Issue is a single validation problem.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationError collects every issue found in a document.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("%d validation issue(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

// Validate checks references between sections. It returns a *ValidationError
// listing every issue, or nil.
func Validate(doc *Document) error {
	var issues []Issue
	add := func(path, format string, args ...any) {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	for _, name := range sortedKeys(doc.Types) {
		t, err := schema.ParseType(doc.Types[name])
		if err != nil {
			add("types."+name, "%v", err)
			continue
		}
		v, ok := doc.Variables[name]
		if !ok {
			add("types."+name, "typed variable has no initial value")
			continue
		}
		if err := t.Validate(v); err != nil {
			add("variables."+name, "%v", err)
		}
	}

	ids := make(map[string]bool, len(doc.Controls))
	for i, c := range doc.Controls {
		path := fmt.Sprintf("controls[%d]", i)
		switch {
		case c.ID == "":
			add(path, "missing id")
		case ids[c.ID]:
			add(path, "duplicate control id %q", c.ID)
		}
		if c.Kind == "" {
			add(path, "missing kind")
		}
		ids[c.ID] = true
	}
	for i, c := range doc.Controls {
		path := fmt.Sprintf("controls[%d]", i)
		if c.Parent != "" && !ids[c.Parent] {
			add(path, "unknown parent %q", c.Parent)
		}
		for _, prop := range sortedKeys(c.Properties) {
			s, ok := c.Properties[prop].(string)
			if !ok || !strings.HasPrefix(strings.TrimSpace(s), "{Binding") {
				continue
			}
			if _, _, ok := binding.ParseExpression(s); !ok {
				add(path+".properties."+prop, "malformed binding expression %q", s)
			}
		}
	}

	for i, b := range doc.Bindings {
		path := fmt.Sprintf("bindings[%d]", i)
		if b.Key == "" {
			add(path, "missing key")
		}
		if b.Property == "" {
			add(path, "missing property")
		}
		if !ids[b.Target] {
			add(path, "unknown target %q", b.Target)
		}
	}

	for i, p := range doc.Plugins {
		path := fmt.Sprintf("plugins[%d]", i)
		if (p.Builtin == "") == (p.Source == "") {
			add(path, "exactly one of builtin or source is required")
		}
	}

	for _, name := range doc.HandlerNames() {
		walk(doc.Handlers[name], "handlers."+name, func(n *domain.HandlerNode, path string) {
			checkNode(n, path, doc, add)
		})
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

func checkNode(n *domain.HandlerNode, path string, doc *Document, add func(string, string, ...any)) {
	switch {
	case n.Is(domain.KindCall):
		if h, _ := n.Attr("Handler"); h != "" && !strings.Contains(h, "{") {
			if _, ok := doc.Handlers[h]; !ok {
				add(path, "call to unknown handler %q", h)
			}
		}
	case n.Is(domain.KindWhile):
		if s, ok := n.Attr("MaxIterations"); ok && !strings.Contains(s, "{") {
			if v, ok := convert.ParseInt(s); !ok || v <= 0 {
				add(path, "MaxIterations must be a positive integer, got %q", s)
			}
		}
	case n.Is(domain.KindElse):
		add(path, "Else outside of If")
	}
}

// walk visits every node below root. Else children of If nodes are entered
// without being reported.
func walk(root *domain.HandlerNode, path string, fn func(*domain.HandlerNode, string)) {
	for i, c := range root.Children {
		p := fmt.Sprintf("%s[%d]", path, i)
		if c.Is(domain.KindElse) && root.Is(domain.KindIf) {
			walk(c, p+".else", fn)
			continue
		}
		fn(c, p)
		walk(c, p, fn)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsValidationError reports whether err carries validation issues.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
