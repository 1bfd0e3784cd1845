package builtin

import (
	"context"
	"fmt"
	"math"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
)

// MathName is the name of the math plugin.
const MathName = "math"

// Math contributes numeric functions (abs, round, floor, ceil, min, max, sqrt, pow)
// and the Clamp command.
type Math struct {
	plugin.Base
	host plugin.Host
}

// NewMath creates the math plugin.
func NewMath() *Math {
	return &Math{Base: plugin.Base{Meta: plugin.Info{
		Name:        MathName,
		Version:     "1.0.0",
		Description: "Numeric functions and the Clamp command",
	}}}
}

// OnLoad registers the functions and commands.
func (p *Math) OnLoad(_ context.Context, h plugin.Host) error {
	p.host = h
	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"sqrt":  math.Sqrt,
	}
	for name, fn := range unary {
		h.RegisterFunction(name, unaryFunc(name, fn))
	}
	h.RegisterFunction("round", round)
	h.RegisterFunction("min", fold("min", math.Min))
	h.RegisterFunction("max", fold("max", math.Max))
	h.RegisterFunction("pow", pow)
	h.RegisterCommand("clamp", p.clamp)
	return nil
}

func unaryFunc(name string, fn func(float64) float64) func(string) (string, error) {
	return func(args string) (string, error) {
		n, ok := numbers(args)
		if !ok || len(n) != 1 {
			return "", fmt.Errorf("%s expects one number, got %q", name, args)
		}
		r := fn(n[0])
		if math.IsNaN(r) {
			return "", fmt.Errorf("%s(%s) is not a number", name, args)
		}
		return formatNumber(r), nil
	}
}

// round accepts "value" or "value,digits".
func round(args string) (string, error) {
	n, ok := numbers(args)
	if !ok || len(n) == 0 || len(n) > 2 {
		return "", fmt.Errorf("round expects value[,digits], got %q", args)
	}
	digits := 0.0
	if len(n) == 2 {
		digits = n[1]
	}
	scale := math.Pow(10, digits)
	return formatNumber(math.Round(n[0]*scale) / scale), nil
}

func fold(name string, fn func(a, b float64) float64) func(string) (string, error) {
	return func(args string) (string, error) {
		n, ok := numbers(args)
		if !ok || len(n) == 0 {
			return "", fmt.Errorf("%s expects numbers, got %q", name, args)
		}
		acc := n[0]
		for _, v := range n[1:] {
			acc = fn(acc, v)
		}
		return formatNumber(acc), nil
	}
}

func pow(args string) (string, error) {
	n, ok := numbers(args)
	if !ok || len(n) != 2 {
		return "", fmt.Errorf("pow expects base,exponent, got %q", args)
	}
	return formatNumber(math.Pow(n[0], n[1])), nil
}

// clamp keeps Variable within [Min, Max]. Missing bounds are unbounded.
func (p *Math) clamp(ctx context.Context, node *domain.HandlerNode, _ any) bool {
	name, _ := node.Attr("Variable")
	if name == "" || p.host == nil {
		return false
	}
	cur, _ := p.host.GetVariable(name)
	v, ok := convert.ToFloat(cur)
	if !ok {
		p.host.Logger().Warn("clamp on non numeric value", "key", name)
		return false
	}
	if s, ok := node.Attr("Min"); ok {
		if lo, ok := convert.ParseFloat(s); ok && v < lo {
			v = lo
		}
	}
	if s, ok := node.Attr("Max"); ok {
		if hi, ok := convert.ParseFloat(s); ok && v > hi {
			v = hi
		}
	}
	p.host.SetVariable(ctx, name, convert.Number(v))
	return true
}
