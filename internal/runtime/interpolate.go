package runtime

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/weft/pkg/convert"
)

var tokenRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Interpolate is the default Interpolator. Each {token} is replaced by what
// resolve returns; unresolved tokens are left as written.
func Interpolate(_ context.Context, text string, resolve Resolver) (string, error) {
	if !strings.Contains(text, "{") {
		return text, nil
	}
	return tokenRe.ReplaceAllStringFunc(text, func(m string) string {
		if out, ok := resolve(m[1 : len(m)-1]); ok {
			return out
		}
		return m
	}), nil
}

// text interpolates s. Interpolation errors leave s untouched.
func (x *execution) text(s string) string {
	out, err := x.in.interpolator(x.ctx, s, x.resolveText)
	if err != nil {
		x.logger().Warn("interpolation failed", "text", s, "err", err)
		return s
	}
	return out
}

func (x *execution) resolveText(token string) (string, bool) {
	v, ok := x.resolve(token)
	if !ok {
		return "", false
	}
	return convert.ToString(v), true
}

// resolve looks token up as a state variable, then as a function call, then as
// a resource. Function forms: name, name(args), name:args.
func (x *execution) resolve(token string) (any, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}
	if v, ok := x.in.vars.Get(token); ok {
		return v, true
	}
	if x.in.functions != nil {
		name, args := splitCall(token)
		if name != "" {
			if out, ok := x.in.functions.Call(name, args); ok {
				return out, true
			}
		}
	}
	if x.in.resources != nil {
		if r, ok := x.in.resources.Resource(token); ok {
			return r, true
		}
	}
	return nil, false
}

func splitCall(token string) (name, args string) {
	if i := strings.Index(token, "("); i > 0 && strings.HasSuffix(token, ")") {
		return strings.TrimSpace(token[:i]), strings.TrimSpace(token[i+1 : len(token)-1])
	}
	if name, args, ok := strings.Cut(token, ":"); ok {
		return strings.TrimSpace(name), strings.TrimSpace(args)
	}
	return token, ""
}

// wrapped returns the name inside a value written exactly as {name}.
func wrapped(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if len(t) < 3 || t[0] != '{' || t[len(t)-1] != '}' {
		return "", false
	}
	inner := t[1 : len(t)-1]
	if strings.ContainsAny(inner, "{}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// operand resolves an attribute used as a value. {name} yields the raw state
// value so lists and numbers keep their type; anything else is interpolated
// and parsed as a literal.
func (x *execution) operand(s string) any {
	if name, ok := wrapped(s); ok {
		if v, found := x.in.vars.Get(name); found {
			return v
		}
	}
	return convert.Literal(x.text(s))
}

// name resolves a variable name attribute. Both count and {count} name the
// variable count; other tokens are interpolated.
func (x *execution) name(s string) string {
	if inner, ok := wrapped(s); ok {
		return inner
	}
	return strings.TrimSpace(x.text(s))
}
