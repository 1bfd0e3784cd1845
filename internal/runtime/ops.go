package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
)

var errMissingVariable = errors.New("missing Variable attribute")

func builtinOps() map[string]opFunc {
	ops := map[string]opFunc{
		domain.KindSet:       opSet,
		domain.KindIncrement: arith(Variables.Increment, 1),
		domain.KindDecrement: arith(Variables.Decrement, 1),
		domain.KindMultiply:  arith(Variables.Multiply, 1),
		domain.KindDivide:    arith(Variables.Divide, 1),
		domain.KindModulo:    arith(Variables.Modulo, nil),
		domain.KindToggle:    opToggle,
		domain.KindAppend:    opAppend,
		domain.KindClear:     opClear,

		domain.KindFor:      opFor,
		domain.KindWhile:    opWhile,
		domain.KindForEach:  opForEach,
		domain.KindIf:       opIf,
		domain.KindBreak:    func(*execution, *domain.HandlerNode) (Flow, error) { return FlowBreak, nil },
		domain.KindContinue: func(*execution, *domain.HandlerNode) (Flow, error) { return FlowContinue, nil },
		domain.KindHandler:  func(x *execution, n *domain.HandlerNode) (Flow, error) { return x.block(n.Children), nil },

		domain.KindSetProperty: opSetProperty,
		domain.KindGetProperty: opGetProperty,
		domain.KindBind:        opBind,
		domain.KindUnbind:      opUnbind,
		domain.KindCall:        opCall,
		domain.KindLog:         opLog,
		domain.KindEmit:        opEmit,
		domain.KindCacheSet:    opCacheSet,
		domain.KindCacheGet:    opCacheGet,
		domain.KindCacheRemove: opCacheRemove,
		domain.KindCacheClear:  opCacheClear,
	}
	out := make(map[string]opFunc, len(ops))
	for k, op := range ops {
		out[strings.ToLower(k)] = op
	}
	return out
}

func opSet(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p varParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	if name == "" {
		return FlowNormal, errMissingVariable
	}
	x.in.vars.Set(x.ctx, name, x.operand(p.Value))
	return FlowNormal, nil
}

// arith builds a numeric mutation. A missing or non-numeric operand falls back
// to def; a nil def turns that case into a no-op.
func arith(m func(Variables, context.Context, string, any) (any, bool), def any) opFunc {
	return func(x *execution, n *domain.HandlerNode) (Flow, error) {
		var p varParams
		if err := decode(n.Attrs, &p); err != nil {
			return FlowNormal, err
		}
		name := x.name(p.Variable)
		if name == "" {
			return FlowNormal, errMissingVariable
		}

		operand := def
		if strings.TrimSpace(p.Value) != "" {
			v := x.operand(p.Value)
			if _, ok := convert.ToFloat(v); ok {
				operand = v
			} else {
				x.logger().Warn("operand is not numeric, using default", "node", n.Kind, "value", p.Value, "default", def)
			}
		}
		if operand == nil {
			return FlowNormal, nil
		}
		if _, ok := m(x.in.vars, x.ctx, name, operand); !ok {
			x.logger().Debug("arithmetic left value unchanged", "node", n.Kind, "key", name, "operand", operand)
		}
		return FlowNormal, nil
	}
}

func opToggle(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p varParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	if name == "" {
		return FlowNormal, errMissingVariable
	}
	cur, _ := x.in.vars.Get(name)
	b, ok := convert.ToBool(cur)
	if !ok {
		x.logger().Warn("toggle on non boolean value, treating as false", "key", name)
	}
	x.in.vars.Set(x.ctx, name, !b)
	return FlowNormal, nil
}

func opAppend(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p varParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	if name == "" {
		return FlowNormal, errMissingVariable
	}
	item := x.operand(p.Value)
	cur, had := x.in.vars.Get(name)
	if s, isText := cur.(string); had && isText {
		x.in.vars.Set(x.ctx, name, s+convert.ToString(item))
		return FlowNormal, nil
	}
	list, ok := convert.ToList(cur)
	if had && !ok {
		return FlowNormal, fmt.Errorf("variable %q is not a list", name)
	}
	x.in.vars.Set(x.ctx, name, append(list, item))
	return FlowNormal, nil
}

func opClear(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p varParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	if name == "" {
		return FlowNormal, errMissingVariable
	}
	cur, had := x.in.vars.Get(name)
	if !had {
		return FlowNormal, nil
	}
	var empty any
	switch cur.(type) {
	case string:
		empty = ""
	case bool:
		empty = false
	case int, int64, float64, float32, int32:
		empty = int64(0)
	default:
		empty = []any{}
	}
	x.in.vars.Set(x.ctx, name, empty)
	return FlowNormal, nil
}
