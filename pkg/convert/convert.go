// Package convert holds the culture-invariant value conversions shared by the
// state store, the binding engine and the interpreter.
//
// Every parser reports success with a boolean instead of an error: a malformed
// attribute is a ConversionFailure and callers fall back to a stated default.
package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseFloat parses s using invariant rules ('.' decimal separator, no grouping).
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInt parses a whole number. Values like "3.0" are accepted.
func ParseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, ok := ParseFloat(s)
	if !ok || !IsWhole(f) {
		return 0, false
	}
	return int64(f), true
}

// ParseBool accepts true/false, yes/no, on/off and 1/0 in any case.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "on", "1":
		return true, true
	case "false", "no", "n", "off", "0":
		return false, true
	}
	return false, false
}

// IntOr parses s or returns def.
func IntOr(s string, def int64) int64 {
	if v, ok := ParseInt(s); ok {
		return v
	}
	return def
}

// FloatOr parses s or returns def.
func FloatOr(s string, def float64) float64 {
	if v, ok := ParseFloat(s); ok {
		return v
	}
	return def
}

// BoolOr parses s or returns def.
func BoolOr(s string, def bool) bool {
	if v, ok := ParseBool(s); ok {
		return v
	}
	return def
}

// IsWhole reports whether f has no fractional part and fits an int64.
// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is strict.
func IsWhole(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f) &&
		f >= math.MinInt64 && f < math.MaxInt64
}

// ToFloat coerces a dynamic value to float64. nil is treated as 0.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		return ParseFloat(n)
	case fmt.Stringer:
		return ParseFloat(n.String())
	}
	return 0, false
}

// ToBool coerces a dynamic value to bool. Numbers are true when non-zero.
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case nil:
		return false, true
	case bool:
		return b, true
	case string:
		if r, ok := ParseBool(b); ok {
			return r, true
		}
		if f, ok := ParseFloat(b); ok {
			return f != 0, true
		}
		return false, false
	}
	if f, ok := ToFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// Number normalises f: whole values become int64, everything else stays float64.
func Number(f float64) any {
	if IsWhole(f) {
		return int64(f)
	}
	return f
}

// IsWholeValue reports whether v is numeric and whole. Absent values count as 0.
func IsWholeValue(v any) bool {
	f, ok := ToFloat(v)
	return ok && IsWhole(f)
}

// ToString renders v invariantly. Whole floats print without a fraction.
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case uint64:
		return strconv.FormatUint(s, 10)
	case float32:
		return formatFloat(float64(s))
	case float64:
		return formatFloat(s)
	case []any:
		parts := make([]string, len(s))
		for i, item := range s {
			parts[i] = ToString(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(s, ",")
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

func formatFloat(f float64) string {
	if IsWhole(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Literal converts a markup attribute string to the most specific value:
// whole numbers become int64, decimals float64, true/false bool, the rest stays a string.
func Literal(s string) any {
	t := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i
	}
	if f, ok := ParseFloat(t); ok && strings.ContainsAny(t, ".eE") {
		return f
	}
	switch strings.ToLower(t) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// ToList returns v as a list of items: slices are copied, strings split into characters.
func ToList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		out := make([]any, len(l))
		copy(out, l)
		return out, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case string:
		runes := []rune(l)
		out := make([]any, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out, true
	}
	return nil, false
}

// Normalize maps decoded and Go-native values onto the state model: every
// integer kind becomes int64, whole float64 numbers become int64, json.Number
// is parsed, and lists and maps are walked. Unsigned values above MaxInt64
// stay numeric as float64.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return unsigned(x)
	case float32:
		return Number(float64(x))
	case float64:
		return Number(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Normalize(item)
		}
		return out
	}
	return v
}

func unsigned(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return float64(u)
}

// ParseJSON decodes raw as JSON with integer precision kept. Text that is not
// exactly one JSON value is returned unchanged.
func ParseJSON(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return Normalize(v)
}
