// Package parser lowers cfgvm source directly into an instruction graph.
//
// Parsing and code generation are fused: each grammar rule emits its
// opcode nodes as it is recognized and every variable reference is resolved
// to a frame slot on the spot. There is no intermediate AST.
package parser

import (
	"errors"
	"log/slog"

	"github.com/zurustar/cfgvm/pkg/compiler/symtab"
	"github.com/zurustar/cfgvm/pkg/compiler/token"
	"github.com/zurustar/cfgvm/pkg/logger"
	"github.com/zurustar/cfgvm/pkg/opcode"
)

// ReturnSlotName is the pseudo-variable that receives call results in the
// caller's frame before they are assigned to their destination.
const ReturnSlotName = "$ret"

// TokenSource yields classified tokens with lookahead.
// Peek(1) is the next token, Peek(2) the one after.
type TokenSource interface {
	Peek(k int) token.Token
	GetToken() token.Token
}

// Parser lowers a token stream into an opcode.Program.
type Parser struct {
	src      TokenSource
	prog     *opcode.Program
	graph    *opcode.Graph
	scope    *symtab.Scope
	capacity int
	log      *slog.Logger
}

// Option is a functional option for configuring the Parser.
type Option func(*Parser)

// WithMemoryCapacity bounds the number of slots a single scope may allocate.
func WithMemoryCapacity(cells int) Option {
	return func(p *Parser) {
		p.capacity = cells
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Parser) {
		p.log = log
	}
}

// New creates a new Parser reading from src.
func New(src TokenSource, opts ...Option) *Parser {
	p := &Parser{
		src:      src,
		capacity: symtab.DefaultCapacity,
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// chain is a lowered statement sequence. tail.Next is left unset so the
// caller can thread whatever follows.
type chain struct {
	head, tail opcode.NodeID
}

// ParseProgram lowers the whole token stream.
//
//	program → var_section func_decl* body EOF
func (p *Parser) ParseProgram() (*opcode.Program, error) {
	p.prog = opcode.NewProgram()
	p.graph = p.prog.Graph

	global := symtab.New("global", p.capacity)
	p.scope = global

	if p.atDeclarations() {
		if err := p.parseDeclarations(); err != nil {
			return nil, err
		}
	}

	for p.peek(1).Type == token.ID {
		if err := p.parseFuncDecl(); err != nil {
			return nil, err
		}
	}

	p.scope = global
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.EOF); err != nil {
		return nil, err
	}

	p.prog.Entry = body.head
	p.prog.Globals = global.Locals()

	p.log.Debug("program lowered",
		"nodes", p.graph.Len(),
		"globals", len(p.prog.Globals),
		"functions", len(p.prog.Functions))
	return p.prog, nil
}

// atDeclarations reports whether a var section starts here:
// an explicit VAR, or an identifier followed by ',' or ';'.
func (p *Parser) atDeclarations() bool {
	switch p.peek(1).Type {
	case token.VAR:
		return true
	case token.ID:
		next := p.peek(2).Type
		return next == token.COMMA || next == token.SEMICOLON
	}
	return false
}

// parseDeclarations declares every name of a var section in the open scope.
//
//	var_section → [VAR] id_list SEMICOLON
func (p *Parser) parseDeclarations() error {
	if p.peek(1).Type == token.VAR {
		p.src.GetToken()
	}
	ids, err := p.parseIDList()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.SEMICOLON); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := p.declare(id, 0); err != nil {
			return err
		}
	}
	return nil
}

// id_list → ID (COMMA ID)*
func (p *Parser) parseIDList() ([]token.Token, error) {
	first, err := p.expect(token.ID)
	if err != nil {
		return nil, err
	}
	ids := []token.Token{first}
	for p.peek(1).Type == token.COMMA {
		p.src.GetToken()
		id, err := p.expect(token.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseFuncDecl lowers one function into its own scope. The function is
// registered before its body so the body may call itself.
//
//	func_decl → ID LPAREN [id_list] RPAREN LBRACE [locals] stmt_list RBRACE
func (p *Parser) parseFuncDecl() error {
	name, err := p.expect(token.ID)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return err
	}

	scope := symtab.New(name.Literal, p.capacity)
	p.scope = scope
	if _, err := p.declare(name, 0); err != nil { // result cell, slot 0
		return err
	}

	var params []token.Token
	if p.peek(1).Type != token.RPAREN {
		if params, err = p.parseIDList(); err != nil {
			return err
		}
	}
	for _, param := range params {
		if _, exists := scope.Lookup(param.Literal); exists {
			return newError(ErrDuplicateParam, param, "parameter %q of %s is already declared", param.Literal, name.Literal)
		}
		if _, err := p.declare(param, 0); err != nil {
			return err
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return err
	}

	fn := &opcode.Function{
		Name:   name.Literal,
		Params: len(params),
		Entry:  opcode.NoNode,
		Line:   name.Line,
	}
	if _, ok := p.prog.AddFunction(fn); !ok {
		return newError(ErrDuplicateFunction, name, "function %q is already defined", name.Literal)
	}

	if _, err := p.expect(token.LBRACE); err != nil {
		return err
	}
	if p.atDeclarations() {
		if err := p.parseDeclarations(); err != nil {
			return err
		}
	}
	body, err := p.parseStmtList()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return err
	}

	fn.Entry = body.head
	fn.Locals = scope.Locals()

	p.log.Debug("function lowered",
		"name", fn.Name,
		"params", fn.Params,
		"frame", fn.FrameSize(),
		"entry", fn.Entry)
	return nil
}

// body → LBRACE stmt_list RBRACE
func (p *Parser) parseBody() (chain, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return chain{}, err
	}
	body, err := p.parseStmtList()
	if err != nil {
		return chain{}, err
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return chain{}, err
	}
	return body, nil
}

// parseStmtList chains statements through Next. An empty list lowers to a
// single Noop so every block has a head and a tail.
func (p *Parser) parseStmtList() (chain, error) {
	list := chain{head: opcode.NoNode, tail: opcode.NoNode}
	for startsStatement(p.peek(1).Type) {
		stmt, err := p.parseStmt()
		if err != nil {
			return chain{}, err
		}
		if list.head == opcode.NoNode {
			list = stmt
			continue
		}
		p.graph.SetNext(list.tail, stmt.head)
		list.tail = stmt.tail
	}
	if list.head == opcode.NoNode {
		noop := p.graph.Emit(&opcode.Noop{}, p.peek(1).Line)
		list = chain{head: noop, tail: noop}
	}
	return list, nil
}

func startsStatement(t token.TokenType) bool {
	switch t {
	case token.ID, token.PRINT, token.WHILE, token.IF, token.SWITCH, token.FOR:
		return true
	}
	return false
}

func (p *Parser) parseStmt() (chain, error) {
	switch p.peek(1).Type {
	case token.ID:
		if p.peek(2).Type == token.LPAREN {
			return p.parseCallStmt()
		}
		return p.parseAssignStmt(true)
	case token.PRINT:
		return p.parsePrintStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.IF:
		return p.parseIfStmt()
	case token.SWITCH:
		return p.parseSwitchStmt()
	case token.FOR:
		return p.parseForStmt()
	}
	return chain{}, syntaxError("statement", p.peek(1))
}

// parseAssignStmt lowers an assignment. When the right-hand side is a call
// the chain is Call → Assign, with the call result staged in the $ret slot.
//
//	assign_stmt → ID EQUAL rhs [SEMICOLON]
//	rhs         → primary | primary op primary | ID LPAREN [arg_list] RPAREN
func (p *Parser) parseAssignStmt(terminated bool) (chain, error) {
	lhs, err := p.expect(token.ID)
	if err != nil {
		return chain{}, err
	}
	dest, err := p.resolve(lhs)
	if err != nil {
		return chain{}, err
	}
	if _, err := p.expect(token.EQUAL); err != nil {
		return chain{}, err
	}

	var result chain
	if p.peek(1).Type == token.ID && p.peek(2).Type == token.LPAREN {
		ret, err := p.declare(token.Token{Literal: ReturnSlotName, Line: lhs.Line, Column: lhs.Column}, 0)
		if err != nil {
			return chain{}, err
		}
		call, err := p.parseCall(ret)
		if err != nil {
			return chain{}, err
		}
		assign := p.graph.Emit(&opcode.Assign{Dest: dest, Op: opcode.OpNone, Src1: ret, Src2: opcode.NoSlot}, lhs.Line)
		p.graph.SetNext(call, assign)
		result = chain{head: call, tail: assign}
	} else {
		inst := &opcode.Assign{Dest: dest, Op: opcode.OpNone, Src2: opcode.NoSlot}
		if inst.Src1, err = p.parsePrimary(); err != nil {
			return chain{}, err
		}
		if op, ok := arithOp(p.peek(1).Type); ok {
			p.src.GetToken()
			inst.Op = op
			if inst.Src2, err = p.parsePrimary(); err != nil {
				return chain{}, err
			}
		}
		node := p.graph.Emit(inst, lhs.Line)
		result = chain{head: node, tail: node}
	}

	if terminated {
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return chain{}, err
		}
	}
	return result, nil
}

// call_stmt → ID LPAREN [arg_list] RPAREN SEMICOLON
func (p *Parser) parseCallStmt() (chain, error) {
	call, err := p.parseCall(opcode.NoSlot)
	if err != nil {
		return chain{}, err
	}
	if _, err := p.expect(token.SEMICOLON); err != nil {
		return chain{}, err
	}
	return chain{head: call, tail: call}, nil
}

// parseCall emits a Call node. The callee must already be declared and the
// number of arguments must match its parameters.
func (p *Parser) parseCall(result opcode.Slot) (opcode.NodeID, error) {
	name, err := p.expect(token.ID)
	if err != nil {
		return opcode.NoNode, err
	}
	id, fn, ok := p.prog.LookupFunction(name.Literal)
	if !ok {
		return opcode.NoNode, newError(ErrUnknownFunction, name, "function %q is not declared", name.Literal)
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return opcode.NoNode, err
	}

	var args []opcode.Slot
	if p.peek(1).Type != token.RPAREN {
		for {
			arg, err := p.parsePrimary()
			if err != nil {
				return opcode.NoNode, err
			}
			args = append(args, arg)
			if p.peek(1).Type != token.COMMA {
				break
			}
			p.src.GetToken()
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return opcode.NoNode, err
	}
	if len(args) != fn.Params {
		return opcode.NoNode, newError(ErrArity, name, "function %q takes %d argument(s), got %d", fn.Name, fn.Params, len(args))
	}

	return p.graph.Emit(&opcode.Call{Func: id, Args: args, Result: result}, name.Line), nil
}

// print_stmt → PRINT ID SEMICOLON
func (p *Parser) parsePrintStmt() (chain, error) {
	kw, err := p.expect(token.PRINT)
	if err != nil {
		return chain{}, err
	}
	id, err := p.expect(token.ID)
	if err != nil {
		return chain{}, err
	}
	slot, err := p.resolve(id)
	if err != nil {
		return chain{}, err
	}
	if _, err := p.expect(token.SEMICOLON); err != nil {
		return chain{}, err
	}
	node := p.graph.Emit(&opcode.Print{Slot: slot}, kw.Line)
	return chain{head: node, tail: node}, nil
}

// if_stmt → IF condition body
//
//	CondJump → body → Noop(exit), CondJump.Target = exit
func (p *Parser) parseIfStmt() (chain, error) {
	kw, err := p.expect(token.IF)
	if err != nil {
		return chain{}, err
	}
	cond, err := p.parseCondition(kw.Line)
	if err != nil {
		return chain{}, err
	}
	body, err := p.parseBody()
	if err != nil {
		return chain{}, err
	}
	exit := p.graph.Emit(&opcode.Noop{}, kw.Line)

	p.graph.SetNext(cond, body.head)
	p.graph.SetNext(body.tail, exit)
	if err := p.graph.SetTarget(cond, exit); err != nil {
		return chain{}, err
	}
	return chain{head: cond, tail: exit}, nil
}

// while_stmt → WHILE condition body
//
//	CondJump → body → Jump(CondJump) → Noop(exit), CondJump.Target = exit
func (p *Parser) parseWhileStmt() (chain, error) {
	kw, err := p.expect(token.WHILE)
	if err != nil {
		return chain{}, err
	}
	cond, err := p.parseCondition(kw.Line)
	if err != nil {
		return chain{}, err
	}
	body, err := p.parseBody()
	if err != nil {
		return chain{}, err
	}
	back := p.graph.Emit(&opcode.Jump{Target: cond}, kw.Line)
	exit := p.graph.Emit(&opcode.Noop{}, kw.Line)

	p.graph.SetNext(cond, body.head)
	p.graph.SetNext(body.tail, back)
	p.graph.SetNext(back, exit)
	if err := p.graph.SetTarget(cond, exit); err != nil {
		return chain{}, err
	}
	return chain{head: cond, tail: exit}, nil
}

// for_stmt → FOR LPAREN assign_stmt condition SEMICOLON assignment [SEMICOLON] RPAREN body
//
//	init → CondJump → body → increment → Jump(CondJump) → Noop(exit)
func (p *Parser) parseForStmt() (chain, error) {
	kw, err := p.expect(token.FOR)
	if err != nil {
		return chain{}, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return chain{}, err
	}
	setup, err := p.parseAssignStmt(true)
	if err != nil {
		return chain{}, err
	}
	cond, err := p.parseCondition(kw.Line)
	if err != nil {
		return chain{}, err
	}
	if _, err := p.expect(token.SEMICOLON); err != nil {
		return chain{}, err
	}
	step, err := p.parseAssignStmt(false)
	if err != nil {
		return chain{}, err
	}
	if p.peek(1).Type == token.SEMICOLON {
		p.src.GetToken()
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return chain{}, err
	}
	body, err := p.parseBody()
	if err != nil {
		return chain{}, err
	}
	back := p.graph.Emit(&opcode.Jump{Target: cond}, kw.Line)
	exit := p.graph.Emit(&opcode.Noop{}, kw.Line)

	p.graph.SetNext(setup.tail, cond)
	p.graph.SetNext(cond, body.head)
	p.graph.SetNext(body.tail, step.head)
	p.graph.SetNext(step.tail, back)
	p.graph.SetNext(back, exit)
	if err := p.graph.SetTarget(cond, exit); err != nil {
		return chain{}, err
	}
	return chain{head: setup.head, tail: exit}, nil
}

// parseSwitchStmt lowers a switch into a chain of != tests. A test that
// fails (subject equals the constant) jumps into its case body; each body
// ends with a jump to the shared exit label.
//
//	switch_stmt → SWITCH ID LBRACE case case* [default_case] RBRACE
//	case        → CASE NUM COLON body
//	default_case→ DEFAULT COLON body
func (p *Parser) parseSwitchStmt() (chain, error) {
	kw, err := p.expect(token.SWITCH)
	if err != nil {
		return chain{}, err
	}
	subjectTok, err := p.expect(token.ID)
	if err != nil {
		return chain{}, err
	}
	subject, err := p.resolve(subjectTok)
	if err != nil {
		return chain{}, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return chain{}, err
	}
	if p.peek(1).Type != token.CASE {
		return chain{}, syntaxError(string(token.CASE), p.peek(1))
	}

	exit := p.graph.Emit(&opcode.Noop{}, kw.Line)
	first, last := opcode.NoNode, opcode.NoNode

	for p.peek(1).Type == token.CASE {
		caseTok := p.src.GetToken()
		num, err := p.expect(token.NUM)
		if err != nil {
			return chain{}, err
		}
		constant, err := p.declareLiteral(num)
		if err != nil {
			return chain{}, err
		}
		if _, err := p.expect(token.COLON); err != nil {
			return chain{}, err
		}
		body, err := p.parseBody()
		if err != nil {
			return chain{}, err
		}

		test := p.graph.Emit(&opcode.CondJump{
			Op:     opcode.CondNotEqual,
			Src1:   subject,
			Src2:   constant,
			Target: body.head,
		}, caseTok.Line)
		leave := p.graph.Emit(&opcode.Jump{Target: exit}, caseTok.Line)
		p.graph.SetNext(body.tail, leave)

		if first == opcode.NoNode {
			first = test
		} else {
			p.graph.SetNext(last, test)
		}
		last = test
	}

	if p.peek(1).Type == token.DEFAULT {
		p.src.GetToken()
		if _, err := p.expect(token.COLON); err != nil {
			return chain{}, err
		}
		body, err := p.parseBody()
		if err != nil {
			return chain{}, err
		}
		p.graph.SetNext(last, body.head)
		p.graph.SetNext(body.tail, exit)
	} else {
		p.graph.SetNext(last, exit)
	}

	if _, err := p.expect(token.RBRACE); err != nil {
		return chain{}, err
	}
	return chain{head: first, tail: exit}, nil
}

// parseCondition emits a CondJump with an unset target.
//
//	condition → primary relop primary
func (p *Parser) parseCondition(line int) (opcode.NodeID, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return opcode.NoNode, err
	}
	opTok := p.peek(1)
	op, ok := relOp(opTok.Type)
	if !ok {
		return opcode.NoNode, syntaxError("relational operator", opTok)
	}
	p.src.GetToken()
	right, err := p.parsePrimary()
	if err != nil {
		return opcode.NoNode, err
	}
	return p.graph.Emit(&opcode.CondJump{Op: op, Src1: left, Src2: right, Target: opcode.NoNode}, line), nil
}

// primary → ID | NUM
func (p *Parser) parsePrimary() (opcode.Slot, error) {
	tok := p.peek(1)
	switch tok.Type {
	case token.ID:
		p.src.GetToken()
		return p.resolve(tok)
	case token.NUM:
		p.src.GetToken()
		return p.declareLiteral(tok)
	}
	return opcode.NoSlot, syntaxError("ID or NUM", tok)
}

func arithOp(t token.TokenType) (opcode.ArithOp, bool) {
	switch t {
	case token.PLUS:
		return opcode.OpPlus, true
	case token.MINUS:
		return opcode.OpMinus, true
	case token.MULT:
		return opcode.OpMult, true
	case token.DIV:
		return opcode.OpDiv, true
	}
	return opcode.OpNone, false
}

func relOp(t token.TokenType) (opcode.RelOp, bool) {
	switch t {
	case token.GREATER:
		return opcode.CondGreater, true
	case token.LESS:
		return opcode.CondLess, true
	case token.NOTEQUAL:
		return opcode.CondNotEqual, true
	}
	return 0, false
}

func (p *Parser) resolve(id token.Token) (opcode.Slot, error) {
	slot, ok := p.scope.Lookup(id.Literal)
	if !ok {
		return opcode.NoSlot, newError(ErrUndeclared, id, "%q is not declared in scope %s", id.Literal, p.scope.Name())
	}
	return slot, nil
}

func (p *Parser) declare(id token.Token, init int64) (opcode.Slot, error) {
	slot, err := p.scope.Declare(id.Literal, init)
	if err != nil {
		return opcode.NoSlot, p.scopeError(id, err)
	}
	return slot, nil
}

func (p *Parser) declareLiteral(num token.Token) (opcode.Slot, error) {
	slot, err := p.scope.DeclareLiteral(num.Literal)
	if err != nil {
		if errors.Is(err, symtab.ErrCapacity) {
			return opcode.NoSlot, p.scopeError(num, err)
		}
		return opcode.NoSlot, newError(ErrSyntax, num, "%v", err)
	}
	return slot, nil
}

func (p *Parser) scopeError(tok token.Token, err error) error {
	if errors.Is(err, symtab.ErrCapacity) {
		return newError(ErrCapacity, tok, "cannot allocate %q: %v", tok.Literal, err)
	}
	return err
}

func (p *Parser) expect(t token.TokenType) (token.Token, error) {
	tok := p.peek(1)
	if tok.Type != t {
		return tok, syntaxError(string(t), tok)
	}
	return p.src.GetToken(), nil
}

func (p *Parser) peek(k int) token.Token {
	return p.src.Peek(k)
}
