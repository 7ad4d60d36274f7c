// Package token defines the lexical tokens of the cfgvm language.
package token

import "fmt"

type TokenType string

type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// String renders the token for diagnostics, e.g. `SEMICOLON ";"`.
func (t Token) String() string {
	if t.Type == EOF {
		return string(t.Type)
	}
	return fmt.Sprintf("%s %q", t.Type, t.Literal)
}

const (
	EOF   = "END_OF_FILE"
	ERROR = "ERROR"

	// Identifiers + Literals
	ID  = "ID"  // x, counter
	NUM = "NUM" // 0, 42

	// Keywords
	VAR     = "VAR"
	FOR     = "FOR"
	IF      = "IF"
	WHILE   = "WHILE"
	SWITCH  = "SWITCH"
	CASE    = "CASE"
	DEFAULT = "DEFAULT"
	PRINT   = "PRINT"
	ARRAY   = "ARRAY" // reserved, no grammar rule consumes it

	// Arithmetic operators
	PLUS  = "PLUS"
	MINUS = "MINUS"
	DIV   = "DIV"
	MULT  = "MULT"

	// Punctuation
	EQUAL     = "EQUAL"
	COLON     = "COLON"
	COMMA     = "COMMA"
	SEMICOLON = "SEMICOLON"
	LBRAC     = "LBRAC" // reserved
	RBRAC     = "RBRAC" // reserved
	LPAREN    = "LPAREN"
	RPAREN    = "RPAREN"
	LBRACE    = "LBRACE"
	RBRACE    = "RBRACE"

	// Relational operators
	NOTEQUAL = "NOTEQUAL"
	GREATER  = "GREATER"
	LESS     = "LESS"
)

var keywords = map[string]TokenType{
	"var":     VAR,
	"for":     FOR,
	"if":      IF,
	"while":   WHILE,
	"switch":  SWITCH,
	"case":    CASE,
	"default": DEFAULT,
	"print":   PRINT,
	"array":   ARRAY,
}

// LookupIdent returns the keyword type for ident, or ID.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return ID
}
