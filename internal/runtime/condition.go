package runtime

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/aretw0/weft/pkg/convert"
)

// EvaluateCondition is the default ConditionEvaluator.
//
// Grammar: literals (numbers, 'text', "text", true, false, null), identifiers
// and {tokens} resolved through lookup, comparisons (== = != <> < <= > >=),
// logic (&& || ! and or not) and parentheses. Both sides of a comparison are
// compared as numbers when both convert, as text otherwise. An absent
// identifier is null, which compares as 0.
func EvaluateCondition(_ context.Context, expression string, lookup Lookup) (bool, error) {
	toks, err := tokenize(expression)
	if err != nil {
		return false, err
	}
	p := &condParser{toks: toks, lookup: lookup}
	v, err := p.or()
	if err != nil {
		return false, err
	}
	if t := p.peek(); t.kind != tEOF {
		return false, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return truthy(v), nil
}

// condition evaluates an expression. Malformed input is a conversion failure:
// logged and false.
func (x *execution) condition(expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}
	ok, err := x.in.evaluator(x.ctx, expr, x.resolve)
	if err != nil {
		x.logger().Warn("condition not evaluated", "condition", expr, "err", err)
		return false
	}
	return ok
}

type tokKind int

const (
	tEOF tokKind = iota
	tNum
	tStr
	tIdent
	tBrace
	tOp
	tLParen
	tRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func tokenize(s string) ([]token, error) {
	var out []token
	r := []rune(s)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			out = append(out, token{tLParen, "(", i})
			i++
		case c == ')':
			out = append(out, token{tRParen, ")", i})
			i++
		case c == '{':
			j := i + 1
			for j < len(r) && r[j] != '}' {
				j++
			}
			if j >= len(r) {
				return nil, fmt.Errorf("unterminated token at offset %d", i)
			}
			out = append(out, token{tBrace, string(r[i+1 : j]), i})
			i = j + 1
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(r) && r[j] != c {
				j++
			}
			if j >= len(r) {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			out = append(out, token{tStr, string(r[i+1 : j]), i})
			i = j + 1
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(r) && unicode.IsDigit(r[i+1]) && startsOperand(out)):
			j := i + 1
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == '.') {
				j++
			}
			out = append(out, token{tNum, string(r[i:j]), i})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i + 1
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_' || r[j] == '.') {
				j++
			}
			out = append(out, token{tIdent, string(r[i:j]), i})
			i = j
		default:
			op := ""
			for _, cand := range []string{"==", "!=", "<>", "<=", ">=", "&&", "||", "=", "<", ">", "!"} {
				if strings.HasPrefix(string(r[i:]), cand) {
					op = cand
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
			out = append(out, token{tOp, op, i})
			i += len([]rune(op))
		}
	}
	return append(out, token{kind: tEOF, pos: len(r)}), nil
}

// startsOperand reports whether a '-' at this point begins a negative number.
func startsOperand(prev []token) bool {
	if len(prev) == 0 {
		return true
	}
	k := prev[len(prev)-1].kind
	return k == tOp || k == tLParen
}

type condParser struct {
	toks   []token
	pos    int
	lookup Lookup
}

func (p *condParser) peek() token {
	return p.toks[p.pos]
}

func (p *condParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *condParser) isKeyword(words ...string) bool {
	t := p.peek()
	if t.kind == tOp {
		for _, w := range words {
			if t.text == w {
				return true
			}
		}
	}
	if t.kind == tIdent {
		for _, w := range words {
			if strings.EqualFold(t.text, w) {
				return true
			}
		}
	}
	return false
}

func (p *condParser) or() (any, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("||", "or") {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *condParser) and() (any, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("&&", "and") {
		p.next()
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *condParser) not() (any, error) {
	if p.isKeyword("!", "not") {
		p.next()
		v, err := p.not()
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	return p.comparison()
}

func (p *condParser) comparison() (any, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tOp {
		return left, nil
	}
	switch t.text {
	case "==", "=", "!=", "<>", "<", "<=", ">", ">=":
	default:
		return left, nil
	}
	p.next()
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return compare(t.text, left, right), nil
}

func (p *condParser) operand() (any, error) {
	t := p.next()
	switch t.kind {
	case tLParen:
		v, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tRParen {
			return nil, fmt.Errorf("missing ')' for '(' at offset %d", t.pos)
		}
		return v, nil
	case tNum:
		f, ok := convert.ParseFloat(t.text)
		if !ok {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return f, nil
	case tStr:
		return t.text, nil
	case tBrace:
		v, _ := p.lookup(t.text)
		return v, nil
	case tIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "nil":
			return nil, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
		}
		v, _ := p.lookup(t.text)
		return v, nil
	case tEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func compare(op string, a, b any) bool {
	af, aok := convert.ToFloat(a)
	bf, bok := convert.ToFloat(b)
	if aok && bok {
		switch op {
		case "==", "=":
			return af == bf
		case "!=", "<>":
			return af != bf
		case "<":
			return af < bf
		case "<=":
			return af <= bf
		case ">":
			return af > bf
		case ">=":
			return af >= bf
		}
		return false
	}
	as, bs := convert.ToString(a), convert.ToString(b)
	switch op {
	case "==", "=":
		return as == bs
	case "!=", "<>":
		return as != bs
	case "<":
		return as < bs
	case "<=":
		return as <= bs
	case ">":
		return as > bs
	case ">=":
		return as >= bs
	}
	return false
}

// truthy: booleans as is, numbers when non-zero, text when it parses as true
// or is non-empty and not a boolean/number word, lists when non-empty.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		if b, ok := convert.ToBool(t); ok {
			return b
		}
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	}
	if b, ok := convert.ToBool(v); ok {
		return b
	}
	return true
}
