package memory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
)

// AnyKind registers a property for every control kind.
const AnyKind = "*"

// PropertyType is the value type a property accepts.
type PropertyType int

const (
	TypeString PropertyType = iota + 1
	TypeNumber
	TypeBool
	TypeList
	TypeAny
)

func (t PropertyType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "bool"
	case TypeList:
		return "list"
	case TypeAny:
		return "any"
	}
	return fmt.Sprintf("PropertyType(%d)", int(t))
}

var (
	// ErrDuplicateProperty is returned when a (kind, property) pair is registered twice.
	ErrDuplicateProperty = errors.New("property already registered")
	// ErrInvalidPropertyType is returned for an unknown PropertyType.
	ErrInvalidPropertyType = errors.New("invalid property type")
	// ErrPropertyValue is returned when a value cannot be converted to the property type.
	ErrPropertyValue = errors.New("invalid property value")
)

// PropertyTable maps (control kind, property) to a typed setter.
// Kinds and property names are matched case-insensitively.
type PropertyTable struct {
	mu    sync.RWMutex
	types map[string]map[string]PropertyType
}

// NewPropertyTable creates an empty table.
func NewPropertyTable() *PropertyTable {
	return &PropertyTable{types: make(map[string]map[string]PropertyType)}
}

// DefaultProperties returns a table with the standard controls registered.
func DefaultProperties() *PropertyTable {
	t := NewPropertyTable()
	defs := []struct {
		kind  string
		props map[string]PropertyType
	}{
		{AnyKind, map[string]PropertyType{
			"Visible": TypeBool, "IsEnabled": TypeBool, "ToolTip": TypeString,
			"Width": TypeNumber, "Height": TypeNumber, "Tag": TypeAny,
		}},
		{"Label", map[string]PropertyType{"Text": TypeString, "Foreground": TypeString}},
		{"TextBlock", map[string]PropertyType{"Text": TypeString, "Foreground": TypeString}},
		{"TextBox", map[string]PropertyType{"Text": TypeString, "IsReadOnly": TypeBool}},
		{"Button", map[string]PropertyType{"Content": TypeString}},
		{"CheckBox", map[string]PropertyType{"Content": TypeString, "IsChecked": TypeBool}},
		{"ProgressBar", map[string]PropertyType{"Value": TypeNumber, "Minimum": TypeNumber, "Maximum": TypeNumber}},
		{"Slider", map[string]PropertyType{"Value": TypeNumber, "Minimum": TypeNumber, "Maximum": TypeNumber}},
		{"ListBox", map[string]PropertyType{"Items": TypeList, "SelectedIndex": TypeNumber}},
	}
	for _, d := range defs {
		for p, typ := range d.props {
			// The defaults are unique and valid.
			_ = t.Register(d.kind, p, typ)
		}
	}
	return t
}

// Register adds a typed setter for kind.property.
func (t *PropertyTable) Register(kind, property string, typ PropertyType) error {
	if typ < TypeString || typ > TypeAny {
		return fmt.Errorf("%s.%s: %w", kind, property, ErrInvalidPropertyType)
	}
	if strings.TrimSpace(kind) == "" || strings.TrimSpace(property) == "" {
		return fmt.Errorf("kind and property are required")
	}
	k, p := strings.ToLower(kind), strings.ToLower(property)

	t.mu.Lock()
	defer t.mu.Unlock()
	props, ok := t.types[k]
	if !ok {
		props = make(map[string]PropertyType)
		t.types[k] = props
	}
	if _, dup := props[p]; dup {
		return fmt.Errorf("%s.%s: %w", kind, property, ErrDuplicateProperty)
	}
	props[p] = typ
	return nil
}

// Lookup returns the type of kind.property, falling back to AnyKind.
func (t *PropertyTable) Lookup(kind, property string) (PropertyType, bool) {
	k, p := strings.ToLower(kind), strings.ToLower(property)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if typ, ok := t.types[k][p]; ok {
		return typ, true
	}
	typ, ok := t.types[AnyKind][p]
	return typ, ok
}

// Properties returns the property names registered for kind, including AnyKind ones, sorted.
func (t *PropertyTable) Properties(kind string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]bool)
	for _, k := range []string{strings.ToLower(kind), AnyKind} {
		for p := range t.types[k] {
			seen[p] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// coerce converts value for kind.property.
func (t *PropertyTable) coerce(kind, property string, value any) (any, error) {
	typ, ok := t.Lookup(kind, property)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", kind, property, domain.ErrUnknownProperty)
	}
	switch typ {
	case TypeString:
		return convert.ToString(value), nil
	case TypeNumber:
		f, ok := convert.ToFloat(value)
		if !ok {
			return nil, fmt.Errorf("%s.%s = %v: %w", kind, property, value, ErrPropertyValue)
		}
		return convert.Number(f), nil
	case TypeBool:
		b, ok := convert.ToBool(value)
		if !ok {
			return nil, fmt.Errorf("%s.%s = %v: %w", kind, property, value, ErrPropertyValue)
		}
		return b, nil
	case TypeList:
		if s, isText := value.(string); isText {
			return splitList(s), nil
		}
		l, ok := convert.ToList(value)
		if !ok {
			return nil, fmt.Errorf("%s.%s = %v: %w", kind, property, value, ErrPropertyValue)
		}
		return l, nil
	}
	return value, nil
}

func splitList(s string) []any {
	if strings.TrimSpace(s) == "" {
		return []any{}
	}
	parts := strings.Split(s, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
