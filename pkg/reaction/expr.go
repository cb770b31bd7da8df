// Package reaction implements the declarative reaction engine: condition
// expressions evaluated against widget data, template formatting, and the
// rule table with per-source cooldowns.
package reaction

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Condition strings are parsed into a small restricted AST instead of being
// executed as code. The language covers what reaction configs actually use:
// comparisons, boolean combinators, arithmetic, field lookups and literals.
// Both JavaScript-style strict (===, !==) and loose (==, !=) operators are
// accepted and behave identically.

// ErrEval is wrapped by all evaluation failures.
var ErrEval = errors.New("reaction: eval")

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

type lexer struct {
	src []rune
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case unicode.IsDigit(c) || (c == '.' && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1])):
		for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, fmt.Errorf("bad number %q at %d", text, start)
		}
		return token{kind: tokNumber, text: text, num: n, pos: start}, nil
	case c == '\'' || c == '"':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
			}
			sb.WriteRune(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("unterminated string at %d", start)
		}
		l.pos++ // closing quote
		return token{kind: tokString, text: sb.String(), pos: start}, nil
	case unicode.IsLetter(c) || c == '_':
		for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos]), pos: start}, nil
	case strings.ContainsRune("=!<>&|+-*/%", c):
		for l.pos < len(l.src) && strings.ContainsRune("=!<>&|+-*/%", l.src[l.pos]) {
			l.pos++
			// operators are at most three characters (===, !==)
			if l.pos-start == 3 {
				break
			}
		}
		op := string(l.src[start:l.pos])
		// Greedy scan can glue operators together ("!-", "<-"); back off
		// until a known operator remains.
		for len(op) > 1 && !knownOp(op) {
			op = op[:len(op)-1]
			l.pos--
		}
		if !knownOp(op) {
			return token{}, fmt.Errorf("unknown operator %q at %d", op, start)
		}
		return token{kind: tokOp, text: op, pos: start}, nil
	default:
		return token{}, fmt.Errorf("unexpected character %q at %d", string(c), start)
	}
}

func knownOp(op string) bool {
	switch op {
	case "==", "!=", "===", "!==", "<", "<=", ">", ">=",
		"&&", "||", "!", "+", "-", "*", "/", "%":
		return true
	}
	return false
}

// node is a parsed expression node.
type node interface {
	eval(data map[string]any) (value, error)
}

type litNode struct{ val value }

func (n litNode) eval(map[string]any) (value, error) { return n.val, nil }

type fieldNode struct{ name string }

func (n fieldNode) eval(data map[string]any) (value, error) {
	raw, ok := data[n.name]
	if !ok {
		return value{}, fmt.Errorf("%w: unknown field %q", ErrEval, n.name)
	}
	return toValue(raw)
}

type unaryNode struct {
	op    string
	child node
}

func (n unaryNode) eval(data map[string]any) (value, error) {
	v, err := n.child.eval(data)
	if err != nil {
		return value{}, err
	}
	switch n.op {
	case "!":
		return boolValue(!v.truthy()), nil
	case "-":
		if v.kind != numVal {
			return value{}, fmt.Errorf("%w: cannot negate %s", ErrEval, v.kindName())
		}
		return numValue(-v.num), nil
	}
	return value{}, fmt.Errorf("%w: bad unary %q", ErrEval, n.op)
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval(data map[string]any) (value, error) {
	// Short-circuit boolean combinators.
	if n.op == "&&" || n.op == "||" {
		l, err := n.left.eval(data)
		if err != nil {
			return value{}, err
		}
		if n.op == "&&" && !l.truthy() {
			return boolValue(false), nil
		}
		if n.op == "||" && l.truthy() {
			return boolValue(true), nil
		}
		r, err := n.right.eval(data)
		if err != nil {
			return value{}, err
		}
		return boolValue(r.truthy()), nil
	}

	l, err := n.left.eval(data)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(data)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case "==", "===":
		return boolValue(l.equals(r)), nil
	case "!=", "!==":
		return boolValue(!l.equals(r)), nil
	case "<", "<=", ">", ">=":
		cmp, err := l.compare(r)
		if err != nil {
			return value{}, err
		}
		switch n.op {
		case "<":
			return boolValue(cmp < 0), nil
		case "<=":
			return boolValue(cmp <= 0), nil
		case ">":
			return boolValue(cmp > 0), nil
		default:
			return boolValue(cmp >= 0), nil
		}
	case "+":
		if l.kind == strVal && r.kind == strVal {
			return strValue(l.str + r.str), nil
		}
		fallthrough
	case "-", "*", "/", "%":
		if l.kind != numVal || r.kind != numVal {
			return value{}, fmt.Errorf("%w: arithmetic on %s and %s", ErrEval, l.kindName(), r.kindName())
		}
		switch n.op {
		case "+":
			return numValue(l.num + r.num), nil
		case "-":
			return numValue(l.num - r.num), nil
		case "*":
			return numValue(l.num * r.num), nil
		case "/":
			if r.num == 0 {
				return value{}, fmt.Errorf("%w: division by zero", ErrEval)
			}
			return numValue(l.num / r.num), nil
		default:
			if r.num == 0 {
				return value{}, fmt.Errorf("%w: modulo by zero", ErrEval)
			}
			return numValue(float64(int64(l.num) % int64(r.num))), nil
		}
	}
	return value{}, fmt.Errorf("%w: bad operator %q", ErrEval, n.op)
}

// parser is a recursive-descent parser over the token stream.
type parser struct {
	lex  *lexer
	cur  token
	next token
}

func newParser(src string) (*parser, error) {
	p := &parser{lex: &lexer{src: []rune(src)}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	p.cur = p.next
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.next = tok
	return nil
}

func (p *parser) acceptOp(ops ...string) (string, bool, error) {
	if p.cur.kind != tokOp {
		return "", false, nil
	}
	for _, op := range ops {
		if p.cur.text == op {
			if err := p.advance(); err != nil {
				return "", false, err
			}
			return op, true, nil
		}
	}
	return "", false, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		op, ok, err := p.acceptOp("||")
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		op, ok, err := p.acceptOp("&&")
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	op, ok, err := p.acceptOp("===", "!==", "==", "!=", "<=", ">=", "<", ">")
	if err != nil {
		return nil, err
	}
	if !ok {
		return left, nil
	}
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok, err := p.acceptOp("+", "-")
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok, err := p.acceptOp("*", "/", "%")
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	op, ok, err := p.acceptOp("!", "-")
	if err != nil {
		return nil, err
	}
	if ok {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.cur.kind {
	case tokNumber:
		n := litNode{val: numValue(p.cur.num)}
		return n, p.advance()
	case tokString:
		n := litNode{val: strValue(p.cur.text)}
		return n, p.advance()
	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch name {
		case "true":
			return litNode{val: boolValue(true)}, nil
		case "false":
			return litNode{val: boolValue(false)}, nil
		case "null", "undefined":
			return litNode{val: value{kind: nullVal}}, nil
		}
		return fieldNode{name: name}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("missing ) at %d", p.cur.pos)
		}
		return inner, p.advance()
	}
	return nil, fmt.Errorf("unexpected token %q at %d", p.cur.text, p.cur.pos)
}

// Condition is a parsed, reusable condition expression.
type Condition struct {
	src  string
	root node
}

// ParseCondition parses a condition string into a reusable expression.
func ParseCondition(src string) (*Condition, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("trailing input %q at %d", p.cur.text, p.cur.pos)
	}
	return &Condition{src: src, root: root}, nil
}

// String returns the original condition source.
func (c *Condition) String() string { return c.src }

// Eval evaluates the condition against a flat data record.
func (c *Condition) Eval(data map[string]any) (bool, error) {
	v, err := c.root.eval(data)
	if err != nil {
		return false, err
	}
	return v.truthy(), nil
}

// Evaluate parses and evaluates a condition against data. Any parse or
// evaluation fault counts as a non-match; it is never propagated.
func Evaluate(condition string, data map[string]any) bool {
	c, err := ParseCondition(condition)
	if err != nil {
		return false
	}
	ok, err := c.Eval(data)
	if err != nil {
		return false
	}
	return ok
}
