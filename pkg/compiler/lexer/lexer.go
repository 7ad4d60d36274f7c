// Package lexer provides lexical analysis for cfgvm programs.
//
// The Lexer doubles as the token source consumed by the parser: Peek(k)
// looks k tokens ahead without consuming, GetToken consumes one.
package lexer

import (
	"github.com/zurustar/cfgvm/pkg/compiler/token"
)

// Lexer tokenizes cfgvm source code.
type Lexer struct {
	input        string
	position     int  // current position in input
	readPosition int  // current reading position (after current char)
	ch           byte // current char
	line         int  // current line number
	column       int  // current column number

	lookahead []token.Token
}

// New creates a new Lexer.
func New(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// Peek returns the k-th token ahead (k >= 1) without consuming it.
func (l *Lexer) Peek(k int) token.Token {
	if k < 1 {
		k = 1
	}
	for len(l.lookahead) < k {
		l.lookahead = append(l.lookahead, l.NextToken())
	}
	return l.lookahead[k-1]
}

// GetToken consumes and returns the next token.
func (l *Lexer) GetToken() token.Token {
	if len(l.lookahead) > 0 {
		tok := l.lookahead[0]
		l.lookahead = l.lookahead[1:]
		return tok
	}
	return l.NextToken()
}

// NextToken scans the next token from the input, bypassing the lookahead buffer.
// Once the input is exhausted it keeps returning EOF.
func (l *Lexer) NextToken() token.Token {
	var tok token.Token

	l.skipWhitespaceAndComments()

	tok.Line = l.line
	tok.Column = l.column

	switch l.ch {
	case '=':
		tok = l.newToken(token.EQUAL, l.ch)
	case '+':
		tok = l.newToken(token.PLUS, l.ch)
	case '-':
		tok = l.newToken(token.MINUS, l.ch)
	case '*':
		tok = l.newToken(token.MULT, l.ch)
	case '/':
		tok = l.newToken(token.DIV, l.ch)
	case '!':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = token.Token{Type: token.NOTEQUAL, Literal: string(ch) + string(l.ch), Line: tok.Line, Column: tok.Column}
		} else {
			tok = l.newToken(token.ERROR, l.ch)
		}
	case '<':
		if l.peekChar() == '>' {
			ch := l.ch
			l.readChar()
			tok = token.Token{Type: token.NOTEQUAL, Literal: string(ch) + string(l.ch), Line: tok.Line, Column: tok.Column}
		} else {
			tok = l.newToken(token.LESS, l.ch)
		}
	case '>':
		tok = l.newToken(token.GREATER, l.ch)
	case ':':
		tok = l.newToken(token.COLON, l.ch)
	case ',':
		tok = l.newToken(token.COMMA, l.ch)
	case ';':
		tok = l.newToken(token.SEMICOLON, l.ch)
	case '(':
		tok = l.newToken(token.LPAREN, l.ch)
	case ')':
		tok = l.newToken(token.RPAREN, l.ch)
	case '{':
		tok = l.newToken(token.LBRACE, l.ch)
	case '}':
		tok = l.newToken(token.RBRACE, l.ch)
	case '[':
		tok = l.newToken(token.LBRAC, l.ch)
	case ']':
		tok = l.newToken(token.RBRAC, l.ch)
	case 0:
		tok.Literal = ""
		tok.Type = token.EOF
		return tok
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			tok.Type = token.LookupIdent(tok.Literal)
			return tok
		} else if isDigit(l.ch) {
			tok.Literal = l.readNumber()
			tok.Type = token.NUM
			return tok
		}
		tok = l.newToken(token.ERROR, l.ch)
	}

	l.readChar()
	return tok
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// readIdentifier reads an identifier.
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readNumber reads a decimal integer.
func (l *Lexer) readNumber() string {
	position := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// skipWhitespaceAndComments skips blanks plus // and /* */ comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar() // consume /
			l.readChar() // consume *
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar() // consume *
				l.readChar() // consume /
			}
		default:
			return
		}
	}
}

// newToken creates a new token.
func (l *Lexer) newToken(tokenType token.TokenType, ch byte) token.Token {
	return token.Token{Type: tokenType, Literal: string(ch), Line: l.line, Column: l.column}
}

// isLetter checks if a character is a letter.
func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

// isDigit checks if a character is a digit.
func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
