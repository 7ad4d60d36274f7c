// Package compiler provides the compilation pipeline for cfgvm programs.
// It transforms source code into an instruction graph in two phases:
// 1. Lexer: Tokenization
// 2. Parser: fused parsing and lowering to opcode.Program
//
// This package provides a unified API:
// - Compile: Compiles a source string
// - CompileFile: Loads, decodes and compiles a file
// - CompileTokens: Lowers a pre-scanned token stream
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zurustar/cfgvm/pkg/compiler/lexer"
	"github.com/zurustar/cfgvm/pkg/compiler/parser"
	"github.com/zurustar/cfgvm/pkg/compiler/symtab"
	"github.com/zurustar/cfgvm/pkg/compiler/token"
	"github.com/zurustar/cfgvm/pkg/dump"
	"github.com/zurustar/cfgvm/pkg/logger"
	"github.com/zurustar/cfgvm/pkg/opcode"
	"github.com/zurustar/cfgvm/pkg/script"
)

type config struct {
	capacity int
	encoding string
	log      *slog.Logger
}

// Option configures compilation.
type Option func(*config)

// WithMemoryCapacity bounds the number of slots any single scope may allocate.
func WithMemoryCapacity(cells int) Option {
	return func(c *config) {
		c.capacity = cells
	}
}

// WithEncoding sets the source encoding used by CompileFile.
func WithEncoding(enc string) Option {
	return func(c *config) {
		c.encoding = enc
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		capacity: symtab.DefaultCapacity,
		encoding: script.DefaultEncoding,
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles source code to a program.
// It chains the lexer → parser pipeline; lowering stops at the first error.
//
// Parameters:
//   - source: UTF-8 encoded source code string
//   - opts: Optional configuration
//
// Returns:
//   - *opcode.Program: The lowered program
//   - error: A *CompileError with source context on failure
func Compile(source string, opts ...Option) (*opcode.Program, error) {
	c := newConfig(opts)
	prog, err := lower(lexer.New(source), c)
	if err != nil {
		var perr *parser.ParserError
		if errors.As(err, &perr) {
			return nil, NewParserErrorWithContext(perr, source)
		}
		return nil, err
	}
	return prog, nil
}

// CompileFile compiles a file to a program.
// It reads the file, converts it from the configured encoding to UTF-8,
// and then compiles the content. Path "-" reads standard input.
func CompileFile(path string, opts ...Option) (*opcode.Program, error) {
	c := newConfig(opts)

	s, err := script.Load(path, c.encoding, nil)
	if err != nil {
		return nil, NewLoadError(path, err)
	}
	c.log.Debug("source loaded", "file", s.FileName, "bytes", s.Size, "encoding", c.encoding)

	return Compile(s.Content, opts...)
}

// CompileTokens lowers a pre-scanned token stream. Errors carry no source
// context since no source text is available.
func CompileTokens(tokens []token.Token, opts ...Option) (*opcode.Program, error) {
	c := newConfig(opts)
	prog, err := lower(lexer.NewBuffer(tokens), c)
	if err != nil {
		var perr *parser.ParserError
		if errors.As(err, &perr) {
			return nil, NewParserErrorWithContext(perr, "")
		}
		return nil, err
	}
	return prog, nil
}

func lower(src parser.TokenSource, c *config) (*opcode.Program, error) {
	p := parser.New(src,
		parser.WithMemoryCapacity(c.capacity),
		parser.WithLogger(c.log))

	prog, err := p.ParseProgram()
	if err != nil {
		return nil, fmt.Errorf("lowering failed: %w", err)
	}

	c.log.Debug("compilation completed",
		"nodes", prog.Graph.Len(),
		"functions", len(prog.Functions))
	if c.log.Enabled(context.Background(), slog.LevelDebug) {
		c.log.Debug("instruction graph\n" + dump.Disassemble(prog))
	}
	return prog, nil
}
