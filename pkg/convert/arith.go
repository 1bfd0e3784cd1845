package convert

import (
	"math"
	"strconv"
	"strings"
)

// Op is an arithmetic mutation understood by Arith.
type Op string

const (
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
	OpMultiply Op = "multiply"
	OpDivide   Op = "divide"
	OpModulo   Op = "modulo"
)

// Arith applies op to base and operand.
//
// An absent base counts as 0. When both sides are integers the operation runs
// in int64 and only an overflow or an inexact division promotes the result to
// float64. Other operands go through ToFloat, and the result is an int64 only
// when base, operand and result are all whole. Division or modulo by zero
// returns ok=false and the caller must leave the value untouched.
func Arith(op Op, base, operand any) (any, bool) {
	promoted := false
	if x, ok := exactInt(base); ok {
		if y, ok := exactInt(operand); ok {
			if (op == OpDivide || op == OpModulo) && y == 0 {
				return nil, false
			}
			if r, ok := intArith(op, x, y); ok {
				return r, true
			}
			promoted = true
		}
	}

	a, ok := ToFloat(base)
	if !ok {
		return nil, false
	}
	b, ok := ToFloat(operand)
	if !ok {
		return nil, false
	}

	var r float64
	switch op {
	case OpAdd:
		r = a + b
	case OpSubtract:
		r = a - b
	case OpMultiply:
		r = a * b
	case OpDivide:
		if b == 0 {
			return nil, false
		}
		r = a / b
	case OpModulo:
		if b == 0 {
			return nil, false
		}
		r = math.Mod(a, b)
	default:
		return nil, false
	}

	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, false
	}
	if !promoted && IsWhole(a) && IsWhole(b) && IsWhole(r) {
		return int64(r), true
	}
	return r, true
}

// exactInt returns v as int64 when it is an integer kind or an integer literal.
func exactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// intArith reports false on overflow or an inexact quotient.
func intArith(op Op, a, b int64) (int64, bool) {
	switch op {
	case OpAdd:
		r := a + b
		if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case OpSubtract:
		r := a - b
		if (a >= 0 && b < 0 && r < 0) || (a < 0 && b > 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case OpMultiply:
		if a == 0 || b == 0 {
			return 0, true
		}
		if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, false
		}
		r := a * b
		if r/b != a {
			return 0, false
		}
		return r, true
	case OpDivide:
		if b == -1 && a == math.MinInt64 {
			return 0, false
		}
		if a%b != 0 {
			return 0, false
		}
		return a / b, true
	case OpModulo:
		return a % b, true
	}
	return 0, false
}
