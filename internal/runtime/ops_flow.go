package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
)

// loopBody runs one iteration and reports whether the loop must stop.
func (x *execution) loopBody(n *domain.HandlerNode) (stop bool) {
	switch x.block(n.Children) {
	case FlowBreak:
		return true
	case FlowContinue:
		return false
	}
	return x.cancelled()
}

// forBounds resolves start, end and step. Range is "end" or "start,end[,step]"
// and takes precedence over the explicit attributes.
func (x *execution) forBounds(n *domain.HandlerNode, p forParams) (start, end, step float64) {
	num := func(attr, s string, def float64) float64 {
		if strings.TrimSpace(s) == "" {
			return def
		}
		v, ok := convert.ToFloat(x.operand(s))
		if !ok {
			x.logger().Warn("loop bound is not numeric, using default", "node", n.Kind, "attr", attr, "value", s, "default", def)
			return def
		}
		return v
	}

	start, end, step = 0, 0, 1
	if r := strings.TrimSpace(x.text(p.Range)); r != "" {
		parts := strings.Split(r, ",")
		switch len(parts) {
		case 1:
			end = num("Range", parts[0], 0)
		case 2, 3:
			start = num("Range", parts[0], 0)
			end = num("Range", parts[1], 0)
			if len(parts) == 3 {
				step = num("Range", parts[2], 1)
			}
		default:
			x.logger().Warn("malformed range, loop skipped", "range", r)
			return 0, 0, 1
		}
	} else {
		start = num("Start", p.Start, 0)
		end = num("End", p.End, 0)
		step = num("Step", p.Step, 1)
	}

	if step == 0 {
		x.logger().Warn("loop step is zero, using 1", "node", n.Kind)
		step = 1
	}
	return start, end, step
}

// opFor iterates from start towards end, end excluded.
func opFor(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p forParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	start, end, step := x.forBounds(n, p)

	for v := start; (step > 0 && v < end) || (step < 0 && v > end); v += step {
		if name != "" {
			x.in.vars.Set(x.ctx, name, convert.Number(v))
		}
		if x.loopBody(n) {
			break
		}
	}
	return FlowNormal, nil
}

// opWhile repeats while Condition holds, at most MaxIterations times.
// Reaching the cap ends the loop like a false condition would.
func opWhile(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p whileParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	limit := x.in.maxWhile
	if s := strings.TrimSpace(x.text(p.MaxIterations)); s != "" {
		if v, ok := convert.ParseInt(s); ok && v > 0 {
			limit = int(v)
		} else {
			x.logger().Warn("invalid MaxIterations, using default", "value", s, "default", limit)
		}
	}

	for i := 0; ; i++ {
		if i >= limit {
			x.logger().Debug("while loop reached its iteration cap", "cap", limit, "condition", p.Condition)
			break
		}
		if !x.condition(p.Condition) {
			break
		}
		if x.loopBody(n) {
			break
		}
	}
	return FlowNormal, nil
}

// opForEach binds each element of a list, or each character of a string, to Variable.
func opForEach(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p forEachParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	name := x.name(p.Variable)
	if name == "" {
		return FlowNormal, errMissingVariable
	}
	source := x.name(p.In)
	if source == "" {
		return FlowNormal, fmt.Errorf("missing In attribute")
	}
	value, ok := x.in.vars.Get(source)
	if !ok {
		x.logger().Warn("foreach source not found", "key", source)
		return FlowNormal, nil
	}
	items, ok := convert.ToList(value)
	if !ok {
		x.logger().Warn("foreach source is not iterable", "key", source)
		return FlowNormal, nil
	}
	index := x.name(p.Index)

	for i, item := range items {
		x.in.vars.Set(x.ctx, name, item)
		if index != "" {
			x.in.vars.Set(x.ctx, index, int64(i))
		}
		if x.loopBody(n) {
			break
		}
	}
	return FlowNormal, nil
}

// opIf runs the non-Else children when Condition holds, otherwise the children
// of the first Else child. Break and Continue propagate to the enclosing loop.
func opIf(x *execution, n *domain.HandlerNode) (Flow, error) {
	var p ifParams
	if err := decode(n.Attrs, &p); err != nil {
		return FlowNormal, err
	}
	if x.condition(p.Condition) {
		return x.block(n.Children), nil
	}
	for _, c := range n.Children {
		if c.Is(domain.KindElse) {
			return x.block(c.Children), nil
		}
	}
	return FlowNormal, nil
}
