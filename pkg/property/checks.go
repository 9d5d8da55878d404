package property

import (
	"fmt"
	"strconv"
	"strings"
)

// Declarative precondition checks.
//
// A check expression is a `;`-separated list of assertions. Each assertion
// compares two operands with one of == != < <= > >=. Operands are either a
// reference to another property of the same component written as {name},
// the reserved word `value` (set side only, the value being written), or a
// literal: a number, a single- or double-quoted string, true or false.
//
//	"{output} == true; value <= {voltage_limit}"
//
// Expressions are compiled once at property construction into a small list
// of parsed assertions; evaluation reads the referenced properties through
// the owner's full get pipeline, cache included.

type operandKind uint8

const (
	operandField operandKind = iota
	operandValue
	operandLiteral
)

type operand struct {
	kind  operandKind
	field string
	lit   any
}

type assertion struct {
	src   string
	left  operand
	op    string
	right operand
}

type checkProgram struct {
	asserts []assertion
}

// comparison operators, two-character forms first so "<=" is not split
// into "<" and a dangling "=".
var checkOps = []string{"==", "!=", "<=", ">=", "<", ">"}

// compileChecks parses expr into a program. allowValue permits the
// reserved `value` operand (set-side checks only).
func compileChecks(expr string, allowValue bool) (*checkProgram, error) {
	prog := &checkProgram{}
	for _, part := range strings.Split(expr, ";") {
		src := strings.TrimSpace(part)
		if src == "" {
			continue
		}
		a, err := parseAssertion(src, allowValue)
		if err != nil {
			return nil, err
		}
		prog.asserts = append(prog.asserts, a)
	}
	if len(prog.asserts) == 0 {
		return nil, fmt.Errorf("%w: empty check expression %q", ErrDeclaration, expr)
	}
	return prog, nil
}

func parseAssertion(src string, allowValue bool) (assertion, error) {
	op, idx := findOperator(src)
	if idx < 0 {
		return assertion{}, fmt.Errorf("%w: check %q has no comparison operator",
			ErrDeclaration, src)
	}

	left, err := parseOperand(strings.TrimSpace(src[:idx]), allowValue)
	if err != nil {
		return assertion{}, fmt.Errorf("%w in check %q", err, src)
	}
	right, err := parseOperand(strings.TrimSpace(src[idx+len(op):]), allowValue)
	if err != nil {
		return assertion{}, fmt.Errorf("%w in check %q", err, src)
	}

	return assertion{src: src, left: left, op: op, right: right}, nil
}

// findOperator locates the first comparison operator outside quotes.
func findOperator(src string) (string, int) {
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		for _, op := range checkOps {
			if strings.HasPrefix(src[i:], op) {
				return op, i
			}
		}
	}
	return "", -1
}

func parseOperand(tok string, allowValue bool) (operand, error) {
	switch {
	case tok == "":
		return operand{}, fmt.Errorf("%w: missing operand", ErrDeclaration)

	case strings.HasPrefix(tok, "{") && strings.HasSuffix(tok, "}"):
		name := strings.TrimSpace(tok[1 : len(tok)-1])
		if name == "" {
			return operand{}, fmt.Errorf("%w: empty property reference", ErrDeclaration)
		}
		return operand{kind: operandField, field: name}, nil

	case tok == "value":
		if !allowValue {
			return operand{}, fmt.Errorf("%w: `value` is only available in set-side checks",
				ErrDeclaration)
		}
		return operand{kind: operandValue}, nil

	case tok == "true":
		return operand{kind: operandLiteral, lit: true}, nil

	case tok == "false":
		return operand{kind: operandLiteral, lit: false}, nil

	case len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"'):
		if tok[len(tok)-1] != tok[0] {
			return operand{}, fmt.Errorf("%w: unterminated string %s", ErrDeclaration, tok)
		}
		return operand{kind: operandLiteral, lit: tok[1 : len(tok)-1]}, nil

	default:
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return operand{kind: operandLiteral, lit: n}, nil
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return operand{kind: operandLiteral, lit: f}, nil
		}
		return operand{}, fmt.Errorf("%w: cannot parse operand %q", ErrDeclaration, tok)
	}
}

// run evaluates every assertion; the first failing one aborts with an
// AssertionError naming the property, the assertion and the referenced
// values. value is the user value on the set side, nil on the get side.
func (c *checkProgram) run(p *Property, o Owner, value any) error {
	for _, a := range c.asserts {
		refs := make(map[string]any)

		lv, err := a.left.resolve(o, value, refs)
		if err != nil {
			return err
		}
		rv, err := a.right.resolve(o, value, refs)
		if err != nil {
			return err
		}

		ok, err := compareValues(lv, rv, a.op)
		if err != nil {
			return fmt.Errorf("%w: check %q of %s: %v", ErrValidation, a.src, p.name, err)
		}
		if !ok {
			return &AssertionError{Property: p.name, Expression: a.src, Values: refs}
		}
	}
	return nil
}

func (op operand) resolve(o Owner, value any, refs map[string]any) (any, error) {
	switch op.kind {
	case operandField:
		v, err := o.Member(op.field)
		if err != nil {
			return nil, fmt.Errorf("reading %s for check: %w", op.field, err)
		}
		refs[op.field] = v
		return v, nil
	case operandValue:
		return value, nil
	default:
		return op.lit, nil
	}
}

func compareValues(a, b any, op string) (bool, error) {
	// Numeric comparison when both sides flatten to numbers; quantities
	// compare by magnitude.
	fa, aok := comparableFloat(a)
	fb, bok := comparableFloat(b)
	if aok && bok {
		switch op {
		case "==":
			return fa == fb, nil
		case "!=":
			return fa != fb, nil
		case "<":
			return fa < fb, nil
		case "<=":
			return fa <= fb, nil
		case ">":
			return fa > fb, nil
		case ">=":
			return fa >= fb, nil
		}
	}

	// Strings support the full operator set.
	sa, saok := a.(string)
	sb, sbok := b.(string)
	if saok && sbok {
		switch op {
		case "==":
			return sa == sb, nil
		case "!=":
			return sa != sb, nil
		case "<":
			return sa < sb, nil
		case "<=":
			return sa <= sb, nil
		case ">":
			return sa > sb, nil
		case ">=":
			return sa >= sb, nil
		}
	}

	// Everything else only supports (in)equality.
	switch op {
	case "==":
		return a == b, nil
	case "!=":
		return a != b, nil
	}
	return false, fmt.Errorf("cannot order %T and %T with %s", a, b, op)
}
