package schema

import (
	"fmt"
	"math"
	"strings"
)

// Type checks one value.
type Type interface {
	// Name returns the declared spelling, e.g. "int" or "[string]".
	Name() string
	// Validate reports why value does not conform.
	Validate(value any) error
}

type basic struct {
	name  string
	check func(any) bool
}

func (t basic) Name() string { return t.name }

func (t basic) Validate(value any) error {
	if !t.check(value) {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

type list struct {
	elem Type
}

func (t list) Name() string {
	if t.elem == nil {
		return "list"
	}
	return "[" + t.elem.Name() + "]"
}

func (t list) Validate(value any) error {
	items, ok := value.([]any)
	if !ok {
		if s, isStrings := value.([]string); isStrings {
			items = make([]any, len(s))
			for i, v := range s {
				items[i] = v
			}
		} else {
			return fmt.Errorf("expected list, got %T", value)
		}
	}
	if t.elem == nil {
		return nil
	}
	for i, item := range items {
		if err := t.elem.Validate(item); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// String accepts strings.
func String() Type {
	return basic{"string", func(v any) bool { _, ok := v.(string); return ok }}
}

// Int accepts integers and whole floats.
func Int() Type {
	return basic{"int", func(v any) bool {
		switch x := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return x == math.Trunc(x) && !math.IsInf(x, 0)
		}
		return false
	}}
}

// Float accepts any number.
func Float() Type {
	return basic{"float", func(v any) bool {
		switch v.(type) {
		case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	}}
}

// Bool accepts booleans.
func Bool() Type {
	return basic{"bool", func(v any) bool { _, ok := v.(bool); return ok }}
}

// Any accepts every value, nil included.
func Any() Type {
	return basic{"any", func(any) bool { return true }}
}

// List accepts lists whose elements conform to elem. A nil elem accepts any list.
func List(elem Type) Type {
	return list{elem: elem}
}

// ParseType converts a declared type name. Supports string, int, float,
// bool, any, list and [T] for any supported T.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']' {
		elem, err := ParseType(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	}
	switch strings.ToLower(s) {
	case "string":
		return String(), nil
	case "int", "integer":
		return Int(), nil
	case "float", "number":
		return Float(), nil
	case "bool", "boolean":
		return Bool(), nil
	case "any":
		return Any(), nil
	case "list":
		return List(nil), nil
	}
	return nil, fmt.Errorf("unsupported type: %q", s)
}

// ParseTypeMap converts declared type names into a Schema.
func ParseTypeMap(types map[string]string) (Schema, error) {
	out := make(Schema, len(types))
	for name, spelled := range types {
		t, err := ParseType(spelled)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}
