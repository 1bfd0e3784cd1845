// Package builtin provides the plugins shipped with the engine.
//
// They are registered on a Manager as factories and only instantiated when a
// document asks for them (or when the host ensures them explicitly).
package builtin

import (
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/plugin"
)

// Factories returns the built-in plugin factories keyed by plugin name.
func Factories() map[string]plugin.Factory {
	return map[string]plugin.Factory{
		MathName:     func() plugin.Plugin { return NewMath() },
		TextName:     func() plugin.Plugin { return NewText() },
		DateTimeName: func() plugin.Plugin { return NewDateTime() },
	}
}

// Names returns the built-in plugin names, sorted.
func Names() []string {
	f := Factories()
	out := make([]string, 0, len(f))
	for n := range f {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Register adds every built-in factory to m.
func Register(m *plugin.Manager) {
	for name, f := range Factories() {
		m.RegisterFactory(name, f)
	}
}

// splitArgs splits a function argument string on commas.
func splitArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	parts := strings.Split(args, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func numbers(args string) ([]float64, bool) {
	parts := splitArgs(args)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, ok := convert.ParseFloat(p)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func formatNumber(f float64) string {
	return convert.ToString(convert.Number(f))
}
