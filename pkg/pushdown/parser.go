package pushdown

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePredicate parses a conjunction of comparisons:
//
//	a >= 3 AND b BETWEEN 1 AND 5 AND 'x' = c
//
// Operands are column names, numbers or quoted strings. Supported operators
// are =, ==, !=, <>, <, <=, > and >=. Terms may be parenthesized. An empty
// input yields a nil expression.
func ParsePredicate(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	tokens, err := (&lexer{input: input}).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	e, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.literal)
	}
	return e, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...interface{}) error {
	return fmt.Errorf("position %d: %s", tok.pos, fmt.Sprintf(format, args...))
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := And{first}
	for p.peek().typ == tokenAnd {
		p.advance()
		next, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return terms, nil
}

func (p *parser) parseTerm() (Expr, error) {
	if p.peek().typ == tokenLParen {
		p.advance()
		e, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if tok := p.advance(); tok.typ != tokenRParen {
			return nil, p.errorf(tok, "expected ')'")
		}
		return e, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.peek().typ == tokenBetween {
		between := p.advance()
		if !left.IsColumn() {
			return nil, p.errorf(between, "BETWEEN needs a column on the left")
		}
		low, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if tok := p.advance(); tok.typ != tokenAnd {
			return nil, p.errorf(tok, "expected AND in BETWEEN")
		}
		high, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return BetweenExpr{Column: left.Column, Low: low, High: high}, nil
	}

	opTok := p.advance()
	if opTok.typ != tokenOp {
		return nil, p.errorf(opTok, "expected comparison operator")
	}
	op, err := parseComparator(opTok.literal)
	if err != nil {
		return nil, p.errorf(opTok, "%v", err)
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return Comparison{Left: left, Op: op, Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	if p.peek().typ == tokenIdent {
		return Col(p.advance().literal), nil
	}
	v, err := p.parseLiteral()
	if err != nil {
		return Operand{}, err
	}
	return Lit(v), nil
}

func (p *parser) parseLiteral() (any, error) {
	tok := p.advance()
	switch tok.typ {
	case tokenString:
		return tok.literal, nil
	case tokenNumber:
		if i, err := strconv.ParseInt(tok.literal, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(tok.literal, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %q", tok.literal)
		}
		return f, nil
	case tokenEOF:
		return nil, p.errorf(tok, "unexpected end of predicate")
	default:
		return nil, p.errorf(tok, "expected a literal, got %q", tok.literal)
	}
}

func parseComparator(s string) (Comparator, error) {
	switch s {
	case "=", "==":
		return Equal, nil
	case "!=", "<>":
		return NotEqual, nil
	case ">":
		return Greater, nil
	case ">=":
		return GreaterOrEqual, nil
	case "<":
		return Less, nil
	case "<=":
		return LessOrEqual, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", s)
	}
}
