package pushdown

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOp
	tokenLParen
	tokenRParen
	tokenAnd
	tokenBetween
)

type token struct {
	typ     tokenType
	literal string
	pos     int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) tokenize() ([]token, error) {
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.typ == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{typ: tokenLParen, literal: "(", pos: start}, nil
	case ch == ')':
		l.pos++
		return token{typ: tokenRParen, literal: ")", pos: start}, nil
	case ch == '=' || ch == '<' || ch == '>' || ch == '!':
		return l.readOperator()
	case ch == '\'' || ch == '"':
		return l.readString(ch)
	case isDigit(ch) || (ch == '-' && l.pos+1 < len(l.input) && (isDigit(l.input[l.pos+1]) || l.input[l.pos+1] == '.')) || ch == '.':
		return l.readNumber()
	case isIdentStart(ch):
		return l.readIdentifier()
	default:
		return token{}, fmt.Errorf("position %d: unexpected character '%c'", start, ch)
	}
}

func (l *lexer) readOperator() (token, error) {
	start := l.pos
	for _, op := range []string{"<=", ">=", "!=", "<>", "==", "=", "<", ">"} {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return token{typ: tokenOp, literal: op, pos: start}, nil
		}
	}
	return token{}, fmt.Errorf("position %d: unexpected character '%c'", start, l.input[start])
}

func (l *lexer) readString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			// doubled quote is an escaped quote
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == quote {
				b.WriteByte(quote)
				l.pos += 2
				continue
			}
			l.pos++
			return token{typ: tokenString, literal: b.String(), pos: start}, nil
		}
		b.WriteByte(ch)
		l.pos++
	}
	return token{}, fmt.Errorf("position %d: unterminated string", start)
}

func (l *lexer) readNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isDigit(ch) || ch == '.' || ch == 'e' || ch == 'E' {
			l.pos++
			continue
		}
		if (ch == '+' || ch == '-') && (l.input[l.pos-1] == 'e' || l.input[l.pos-1] == 'E') {
			l.pos++
			continue
		}
		break
	}
	return token{typ: tokenNumber, literal: l.input[start:l.pos], pos: start}, nil
}

func (l *lexer) readIdentifier() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && (isIdentStart(l.input[l.pos]) || isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
		l.pos++
	}
	word := l.input[start:l.pos]
	switch strings.ToUpper(word) {
	case "AND":
		return token{typ: tokenAnd, literal: word, pos: start}, nil
	case "BETWEEN":
		return token{typ: tokenBetween, literal: word, pos: start}, nil
	}
	return token{typ: tokenIdent, literal: word, pos: start}, nil
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}
