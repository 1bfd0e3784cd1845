package dsl

import (
	"fmt"
	"sort"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/markup"
)

// Builder manages the document construction.
type Builder struct {
	doc      *markup.Document
	controls []*ControlBuilder
	handlers map[string]*Body
}

// New creates a builder for a document called name.
func New(name string) *Builder {
	return &Builder{
		doc: &markup.Document{
			Name:      name,
			Variables: make(map[string]any),
			Resources: make(map[string]string),
			Handlers:  make(map[string]*domain.HandlerNode),
		},
		handlers: make(map[string]*Body),
	}
}

// Var declares a state variable with its initial value.
func (b *Builder) Var(name string, value any) *Builder {
	b.doc.Variables[name] = convert.Normalize(value)
	return b
}

// Resource declares a named text resource.
func (b *Builder) Resource(key, text string) *Builder {
	b.doc.Resources[key] = text
	return b
}

// CacheCapacity overrides the engine cache capacity.
func (b *Builder) CacheCapacity(n int) *Builder {
	b.doc.Settings.CacheCapacity = n
	return b
}

// MaxWhileIterations overrides the default While cap.
func (b *Builder) MaxWhileIterations(n int) *Builder {
	b.doc.Settings.MaxWhileIterations = n
	return b
}

// Control adds a control. If the id already exists, it returns the existing builder.
func (b *Builder) Control(id, kind string) *ControlBuilder {
	for _, c := range b.controls {
		if c.ctrl.ID == id {
			return c
		}
	}
	c := &ControlBuilder{ctrl: markup.Control{ID: id, Kind: kind, Properties: make(map[string]any)}}
	b.controls = append(b.controls, c)
	return c
}

// Bind declares a binding from key to a control property. format may be empty.
func (b *Builder) Bind(key, target, property, format string) *Builder {
	b.doc.Bindings = append(b.doc.Bindings, markup.BindingDef{
		Key: key, Target: target, Property: property, Format: format,
	})
	return b
}

// Builtin activates a built-in plugin.
func (b *Builder) Builtin(name string) *Builder {
	b.doc.Plugins = append(b.doc.Plugins, markup.PluginRef{Builtin: name})
	return b
}

// Plugin loads a plugin from a source file.
func (b *Builder) Plugin(name, source string, refs ...string) *Builder {
	b.doc.Plugins = append(b.doc.Plugins, markup.PluginRef{Name: name, Source: source, Refs: refs})
	return b
}

// Handler returns the body of the named handler, creating it when needed.
func (b *Builder) Handler(name string) *Body {
	if h, ok := b.handlers[name]; ok {
		return h
	}
	h := &Body{}
	b.handlers[name] = h
	return h
}

// Build assembles and validates the document.
func (b *Builder) Build() (*markup.Document, error) {
	doc := *b.doc
	doc.Controls = make([]markup.Control, 0, len(b.controls))
	for _, c := range b.controls {
		doc.Controls = append(doc.Controls, c.ctrl)
	}

	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	doc.Handlers = make(map[string]*domain.HandlerNode, len(names))
	for _, name := range names {
		doc.Handlers[name] = domain.NewNode(domain.KindHandler, nil, b.handlers[name].nodes...)
	}

	if err := markup.Validate(&doc); err != nil {
		return nil, fmt.Errorf("build %q: %w", doc.Name, err)
	}
	return &doc, nil
}

// ControlBuilder configures one control.
type ControlBuilder struct {
	ctrl markup.Control
}

// Parent nests the control under another control.
func (c *ControlBuilder) Parent(id string) *ControlBuilder {
	c.ctrl.Parent = id
	return c
}

// Prop sets a property. A "{Binding key}" string becomes a binding on load.
func (c *ControlBuilder) Prop(name string, value any) *ControlBuilder {
	c.ctrl.Properties[name] = convert.Normalize(value)
	return c
}
