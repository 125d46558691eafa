// Package filter compiles the boolean "where" expressions used to select
// users by group membership and id shape.
package filter

import (
	"strings"

	"gopkg.in/src-d/go-errors.v1"

	"github.com/verte-zerg/topy/internal/groups"
	"github.com/verte-zerg/topy/internal/words"
)

// ErrExpression wraps every compile failure.
var ErrExpression = errors.NewKind("[boolean expression error] %s")

// Context is what an expression is evaluated against.
type Context struct {
	Group uint32
	// ID is set only when users are identified by strings.
	ID    string
	HasID bool
}

// Node is a compiled expression. Nodes are immutable once built.
type Node interface {
	Match(ctx Context) bool
}

// Resolver looks up group names.
type Resolver interface {
	ParseFilter(name string) groups.Group
}

type literal bool

func (l literal) Match(Context) bool { return bool(l) }

type not struct{ child Node }

func (n not) Match(ctx Context) bool { return !n.child.Match(ctx) }

type and struct{ left, right Node }

func (a and) Match(ctx Context) bool {
	l := a.left.Match(ctx)
	r := a.right.Match(ctx)
	return l && r
}

type or struct{ left, right Node }

func (o or) Match(ctx Context) bool {
	l := o.left.Match(ctx)
	r := o.right.Match(ctx)
	return l || r
}

type group struct{ filter groups.Group }

func (g group) Match(ctx Context) bool { return g.filter.Match(ctx.Group) }

type prefix string

func (p prefix) Match(ctx Context) bool {
	return ctx.HasID && strings.HasPrefix(ctx.ID, string(p))
}

type suffix string

func (s suffix) Match(ctx Context) bool {
	return ctx.HasID && strings.HasSuffix(ctx.ID, string(s))
}

// All matches every user.
var All Node = literal(true)

type parser struct {
	w      *words.Words
	groups Resolver
	stack  []Node
}

func (p *parser) push(n Node) { p.stack = append(p.stack, n) }

func (p *parser) pop() Node {
	n := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return n
}

func unexpected(tok string) error {
	if tok == "" {
		return ErrExpression.New("Unexpected end of expression")
	}
	return ErrExpression.New("Unexpected: " + tok)
}

func isBinary(tok string) bool {
	switch tok {
	case "and", "&&", "or", "||":
		return true
	}
	return false
}

// expr := element (binop element)*
func (p *parser) expr() error {
	if err := p.element(); err != nil {
		return err
	}
	for isBinary(p.w.Peek()) {
		op := p.w.Next()
		if err := p.element(); err != nil {
			return err
		}
		first, second := p.pop(), p.pop()
		if op == "and" || op == "&&" {
			p.push(and{left: first, right: second})
		} else {
			p.push(or{left: first, right: second})
		}
	}
	return nil
}

func (p *parser) element() error {
	tok := p.w.Next()
	switch {
	case tok == "(":
		if err := p.expr(); err != nil {
			return err
		}
		if p.w.Next() != ")" {
			return ErrExpression.New("Expected: ')'")
		}
	case tok == "[":
		var f groups.Group
		for name := p.w.Next(); name != "]"; name = p.w.Next() {
			if name == "" {
				return ErrExpression.New("Expected: ']'")
			}
			g := p.groups.ParseFilter(name)
			if g.ID == groups.Unknown {
				return ErrExpression.New("Unknown group: " + name)
			}
			f.Mask |= g.Mask
			f.ID |= g.ID
		}
		p.push(group{filter: f})
	case tok == "true":
		p.push(literal(true))
	case tok == "false":
		p.push(literal(false))
	case tok == "!" || tok == "not":
		if err := p.element(); err != nil {
			return err
		}
		p.push(not{child: p.pop()})
	case len(tok) > 1 && tok[0] == '^':
		p.push(prefix(tok[1:]))
	case len(tok) > 1 && tok[len(tok)-1] == '$':
		p.push(suffix(tok[:len(tok)-1]))
	default:
		return unexpected(tok)
	}
	return nil
}

// Parse compiles the expression starting at the next token of w. The cursor
// is left on the last token of the expression.
func Parse(w *words.Words, r Resolver) (Node, error) {
	p := &parser{w: w, groups: r}
	if err := p.expr(); err != nil {
		return nil, err
	}
	if len(p.stack) != 1 {
		return nil, ErrExpression.New("Invalid expression")
	}
	return p.stack[0], nil
}

// ParseString compiles a whole line.
func ParseString(s string, r Resolver) (Node, error) {
	w := words.New(s)
	n, err := Parse(w, r)
	if err != nil {
		return nil, err
	}
	if tok := w.Next(); tok != "" {
		return nil, unexpected(tok)
	}
	return n, nil
}
