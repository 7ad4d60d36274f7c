package lexer

import "github.com/zurustar/cfgvm/pkg/compiler/token"

// Tokenize scans the whole input and returns every token up to and including EOF.
func Tokenize(input string) []token.Token {
	l := New(input)
	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens
		}
	}
}

// Buffer replays a pre-scanned token stream with the same Peek/GetToken
// contract as Lexer. Reads past the end yield EOF.
type Buffer struct {
	tokens []token.Token
	pos    int
}

// NewBuffer creates a Buffer over tokens. The slice is not copied and must not be modified.
func NewBuffer(tokens []token.Token) *Buffer {
	return &Buffer{tokens: tokens}
}

// Peek returns the k-th token ahead (k >= 1) without consuming it.
func (b *Buffer) Peek(k int) token.Token {
	if k < 1 {
		k = 1
	}
	return b.at(b.pos + k - 1)
}

// GetToken consumes and returns the next token.
func (b *Buffer) GetToken() token.Token {
	tok := b.at(b.pos)
	if b.pos < len(b.tokens) {
		b.pos++
	}
	return tok
}

func (b *Buffer) at(i int) token.Token {
	if i < len(b.tokens) {
		return b.tokens[i]
	}
	line := 0
	if n := len(b.tokens); n > 0 {
		line = b.tokens[n-1].Line
	}
	return token.Token{Type: token.EOF, Line: line}
}
