// Package markup loads application descriptions written in YAML.
//
// A document declares the initial state, resources, controls, bindings,
// plugins and named handlers. Handler bodies are lists of nodes:
//
//	handlers:
//	  increment:
//	    - {op: Increment, Variable: count}
//	    - op: If
//	      Condition: "count > 10"
//	      body: [{op: Set, Variable: count, Value: 0}]
//	      else: [{op: Log, Message: "count is {count}"}]
//	    - Break
//
// A "types" map may declare the type of each variable; see package schema.
//
// "op" becomes the node kind, "body" its children and "else" an Else child.
// Every other key is a string attribute. A bare string is a node without
// attributes.
package markup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
)

// Document is a parsed application description.
type Document struct {
	Name      string
	Settings  Settings
	Variables map[string]any
	// Types declares variable types, e.g. "int" or "[string]".
	Types     map[string]string
	Resources map[string]string
	Controls  []Control
	Bindings  []BindingDef
	Plugins   []PluginRef
	Handlers  map[string]*domain.HandlerNode

	// Path is the file the document was loaded from, empty for Parse.
	Path string
}

// Settings override engine defaults. Zero values keep the default.
type Settings struct {
	CacheCapacity      int `mapstructure:"cache_capacity" yaml:"cache_capacity"`
	MaxWhileIterations int `mapstructure:"max_while_iterations" yaml:"max_while_iterations"`
}

// Control declares a control of the headless tree.
type Control struct {
	ID         string         `mapstructure:"id"`
	Kind       string         `mapstructure:"kind"`
	Parent     string         `mapstructure:"parent"`
	Properties map[string]any `mapstructure:"properties"`
}

// BindingDef declares a binding from a state key to a control property.
type BindingDef struct {
	Key      string `mapstructure:"key"`
	Target   string `mapstructure:"target"`
	Property string `mapstructure:"property"`
	Format   string `mapstructure:"format"`
}

// PluginRef names a built-in plugin or a plugin source file.
type PluginRef struct {
	Builtin string   `mapstructure:"builtin"`
	Name    string   `mapstructure:"name"`
	Source  string   `mapstructure:"source"`
	Refs    []string `mapstructure:"refs"`
}

// HandlerNames returns the handler names, sorted.
func (d *Document) HandlerNames() []string {
	names := make([]string, 0, len(d.Handlers))
	for n := range d.Handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schema parses the declared variable types.
func (d *Document) Schema() (schema.Schema, error) {
	return schema.ParseTypeMap(d.Types)
}

// ResolvePath resolves p relative to the document's directory.
func (d *Document) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || d.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(d.Path), p)
}

// LoadFile reads and parses the document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

type rawDocument struct {
	Name      string         `yaml:"name"`
	Settings  map[string]any `yaml:"settings"`
	Variables map[string]any `yaml:"variables"`
	Types     map[string]any `yaml:"types"`
	Resources map[string]any `yaml:"resources"`
	Controls  []any          `yaml:"controls"`
	Bindings  []any          `yaml:"bindings"`
	Plugins   []any          `yaml:"plugins"`
	Handlers  map[string]any `yaml:"handlers"`
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	doc := &Document{
		Name:      raw.Name,
		Variables: make(map[string]any, len(raw.Variables)),
		Types:     make(map[string]string, len(raw.Types)),
		Resources: make(map[string]string, len(raw.Resources)),
		Handlers:  make(map[string]*domain.HandlerNode, len(raw.Handlers)),
	}
	for k, v := range raw.Variables {
		doc.Variables[k] = convert.Normalize(v)
	}
	for k, v := range raw.Types {
		doc.Types[k] = convert.ToString(v)
	}
	for k, v := range raw.Resources {
		doc.Resources[k] = convert.ToString(v)
	}

	if err := decode(raw.Settings, &doc.Settings); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if err := decode(raw.Controls, &doc.Controls); err != nil {
		return nil, fmt.Errorf("controls: %w", err)
	}
	for i := range doc.Controls {
		for k, v := range doc.Controls[i].Properties {
			doc.Controls[i].Properties[k] = convert.Normalize(v)
		}
	}
	if err := decode(raw.Bindings, &doc.Bindings); err != nil {
		return nil, fmt.Errorf("bindings: %w", err)
	}
	if err := decode(raw.Plugins, &doc.Plugins); err != nil {
		return nil, fmt.Errorf("plugins: %w", err)
	}

	for name, body := range raw.Handlers {
		children, err := nodes(body, "handlers."+name)
		if err != nil {
			return nil, err
		}
		doc.Handlers[name] = domain.NewNode(domain.KindHandler, nil, children...)
	}
	return doc, nil
}

func decode(input, out any) error {
	if input == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// nodes converts a YAML list into handler nodes.
func nodes(v any, path string) ([]*domain.HandlerNode, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of nodes, got %T", path, v)
	}
	out := make([]*domain.HandlerNode, 0, len(items))
	for i, item := range items {
		n, err := node(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func node(v any, path string) (*domain.HandlerNode, error) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, fmt.Errorf("%s: empty node", path)
		}
		return domain.NewNode(strings.TrimSpace(x), nil), nil
	case map[string]any:
		kind := strings.TrimSpace(convert.ToString(x["op"]))
		if kind == "" {
			return nil, fmt.Errorf("%s: missing op", path)
		}
		attrs := make(map[string]string)
		var children []*domain.HandlerNode
		for key, val := range x {
			switch key {
			case "op":
			case "body":
				c, err := nodes(val, path+".body")
				if err != nil {
					return nil, err
				}
				children = append(c, children...)
			case "else":
				c, err := nodes(val, path+".else")
				if err != nil {
					return nil, err
				}
				children = append(children, domain.NewNode(domain.KindElse, nil, c...))
			default:
				attrs[key] = convert.ToString(convert.Normalize(val))
			}
		}
		return domain.NewNode(kind, attrs, children...), nil
	}
	return nil, fmt.Errorf("%s: unsupported node %T", path, v)
}
