package parser

import (
	"regexp"
	"tplc/internal/ast"
	"tplc/internal/diag"
	"tplc/internal/lexer"
)

// typedName splits a TYPED token into its type tag and name.
var typedName = regexp.MustCompile(`^([a-zA-Z]*[0-9]+)([a-zA-Z][a-zA-Z0-9_]*)$`)

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// ParseSource lexes and parses a whole program.
func ParseSource(src string) ([]ast.Instruction, error) {
	tokens, err := lexer.Lex(src)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

// Parse splits a token stream (as produced by lexer.Lex) into statements
// and turns each one into an instruction. Parsing stops at the first error.
func Parse(tokens []lexer.Token) ([]ast.Instruction, error) {
	var instrs []ast.Instruction
	for _, stmt := range splitStatements(tokens) {
		ins, err := parseStatement(stmt)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, ins)
	}
	return instrs, nil
}

// splitStatements cuts the stream at every ';', right after the '{' that
// ends a function header, and around every "}label" closer. Empty
// statements are dropped.
func splitStatements(tokens []lexer.Token) [][]lexer.Token {
	var stmts [][]lexer.Token
	var cur []lexer.Token
	flush := func() {
		if len(cur) > 0 {
			stmts = append(stmts, cur)
			cur = nil
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Type {
		case lexer.EOF, lexer.SEMICOLON:
			flush()
		case lexer.RBRACE:
			flush()
			cur = append(cur, tok)
			if isLabel(tokens, i+1) {
				cur = append(cur, tokens[i+1])
				i++
			}
			flush()
		case lexer.LBRACE:
			cur = append(cur, tok)
			if contains(cur, lexer.ARROW) {
				flush()
			}
		default:
			cur = append(cur, tok)
		}
	}
	flush()
	return stmts
}

// ---------------------------------------------------------------------------
// Statement classification
// ---------------------------------------------------------------------------

// parseStatement classifies one statement. The checks run in a fixed order
// and the first hit decides the statement kind:
//
//	"->"          function header
//	"="           declaration or mutation
//	"+="          increment
//	"(" and ")"   call (or if/while block opener)
//	leading "}"   block closer
func parseStatement(toks []lexer.Token) (ast.Instruction, error) {
	switch {
	case contains(toks, lexer.ARROW):
		return parseHeader(toks)
	case contains(toks, lexer.ASSIGN):
		return parseAssignment(toks)
	case contains(toks, lexer.PLUSASSIGN):
		return parseIncrement(toks)
	case contains(toks, lexer.LPAREN) && contains(toks, lexer.RPAREN):
		return parseCall(toks)
	case toks[0].Type == lexer.RBRACE:
		return parseCloser(toks)
	}
	return nil, diag.Errorf(diag.ParseError, toks[0].Pos, "unrecognised statement %q", joinTokens(toks))
}

// parseHeader: <rtype><name>:(<type><arg>,)*(<type><arg>)?->{
func parseHeader(toks []lexer.Token) (*ast.FunctionStart, error) {
	c := &cursor{toks: toks}
	head, err := c.expect(lexer.TYPED, "function header must start with <type><name>")
	if err != nil {
		return nil, err
	}
	rtype, name := splitTyped(head.Value)
	fn := &ast.FunctionStart{Name: name, ReturnType: rtype, Pos: head.Pos}

	if _, err := c.expect(lexer.COLON, "expected ':' after function name"); err != nil {
		return nil, err
	}
	for !c.check(lexer.ARROW) {
		arg, err := c.expect(lexer.TYPED, "expected <type><name> argument")
		if err != nil {
			return nil, err
		}
		typ, argName := splitTyped(arg.Value)
		fn.Args = append(fn.Args, ast.Param{Type: typ, Name: argName})
		if !c.match(lexer.COMMA) && !c.check(lexer.ARROW) {
			return nil, c.errorf("expected ',' or '->' after argument %s", argName)
		}
	}
	c.advance()
	if _, err := c.expect(lexer.LBRACE, "expected '{' after '->'"); err != nil {
		return nil, err
	}
	if err := c.expectEnd(); err != nil {
		return nil, err
	}
	return fn, nil
}

// parseAssignment: <type><name>=<expr> declares, <name>=<expr> mutates.
func parseAssignment(toks []lexer.Token) (ast.Instruction, error) {
	target := toks[0]
	if len(toks) < 2 || toks[1].Type != lexer.ASSIGN {
		return nil, diag.Errorf(diag.ParseError, target.Pos, "expected <name>= at the start of %q", joinTokens(toks))
	}
	rhs := toks[2:]
	if len(rhs) == 0 {
		return nil, diag.Errorf(diag.ParseError, toks[1].Pos, "missing value after '='")
	}

	switch target.Type {
	case lexer.TYPED:
		typ, name := splitTyped(target.Value)
		value, err := ParseExpr(rhs)
		if err != nil {
			// Fall back to a whole statement on the right: i8a=b=3.
			kind := diag.KindOf(err)
			if kind != diag.ParseError && kind != diag.UnsupportedExpression {
				return nil, err
			}
			inner, ierr := parseStatement(rhs)
			if ierr != nil {
				return nil, err
			}
			value = &ast.Nested{Instr: inner, Pos: rhs[0].Pos}
		}
		return &ast.VariableDef{Type: typ, Name: name, Value: value, Pos: target.Pos}, nil
	case lexer.IDENT:
		value, err := ParseExpr(rhs)
		if err != nil {
			return nil, err
		}
		return &ast.VariableMod{Name: target.Value, Value: value, Pos: target.Pos}, nil
	}
	return nil, diag.Errorf(diag.ParseError, target.Pos, "cannot assign to %s", target)
}

// parseIncrement: <name>+=<expr>
func parseIncrement(toks []lexer.Token) (*ast.VariableIncrement, error) {
	target := toks[0]
	if !isName(target) || len(toks) < 2 || toks[1].Type != lexer.PLUSASSIGN {
		return nil, diag.Errorf(diag.ParseError, target.Pos, "expected <name>+= at the start of %q", joinTokens(toks))
	}
	delta, err := ParseExpr(toks[2:])
	if err != nil {
		if len(toks) == 2 {
			return nil, diag.Errorf(diag.ParseError, toks[1].Pos, "missing value after '+='")
		}
		return nil, err
	}
	return &ast.VariableIncrement{Name: target.Value, Delta: delta, Pos: target.Pos}, nil
}

// parseCall: <name>(<arg>,<arg>,...)
func parseCall(toks []lexer.Token) (*ast.FunctionCall, error) {
	name := toks[0]
	if !isName(name) || len(toks) < 3 || toks[1].Type != lexer.LPAREN || toks[len(toks)-1].Type != lexer.RPAREN {
		return nil, diag.Errorf(diag.ParseError, name.Pos, "malformed call %q", joinTokens(toks))
	}
	call := &ast.FunctionCall{Name: name.Value, Pos: name.Pos}

	inner := toks[2 : len(toks)-1]
	if len(inner) == 0 {
		return call, nil
	}
	for {
		i, err := splitIndex(inner, func(t lexer.Token) bool { return t.Type == lexer.COMMA })
		if err != nil {
			return nil, err
		}
		part := inner
		if i >= 0 {
			part = inner[:i]
		}
		if len(part) == 0 {
			return nil, diag.Errorf(diag.ParseError, name.Pos, "empty argument in call to %s", name.Value)
		}
		arg, err := ParseExpr(part)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if i < 0 {
			return call, nil
		}
		inner = inner[i+1:]
		if len(inner) == 0 {
			return nil, diag.Errorf(diag.ParseError, name.Pos, "trailing ',' in call to %s", name.Value)
		}
	}
}

// parseCloser: }<label>
func parseCloser(toks []lexer.Token) (*ast.FunctionEnd, error) {
	end := &ast.FunctionEnd{Pos: toks[0].Pos}
	if len(toks) > 1 {
		end.Name = toks[1].Value
	}
	return end, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func splitTyped(s string) (typ, name string) {
	m := typedName.FindStringSubmatch(s)
	if m == nil {
		return "", s
	}
	return m[1], m[2]
}

// isLabel reports whether tokens[i] is the label of the closer before it:
// a name that ends the statement. In "} putc('b')" the name starts the
// next statement instead.
func isLabel(tokens []lexer.Token, i int) bool {
	if i >= len(tokens) || !isName(tokens[i]) {
		return false
	}
	if i+1 == len(tokens) {
		return true
	}
	switch tokens[i+1].Type {
	case lexer.SEMICOLON, lexer.RBRACE, lexer.EOF:
		return true
	}
	return false
}

func isName(t lexer.Token) bool {
	return t.Type == lexer.IDENT || t.Type == lexer.TYPED
}

func contains(toks []lexer.Token, typ string) bool {
	for _, t := range toks {
		if t.Type == typ {
			return true
		}
	}
	return false
}

// cursor walks the tokens of one statement.
type cursor struct {
	toks []lexer.Token
	pos  int
}

func (c *cursor) peek() lexer.Token {
	if c.pos < len(c.toks) {
		return c.toks[c.pos]
	}
	last := c.toks[len(c.toks)-1]
	return lexer.Token{Type: lexer.EOF, Pos: last.Pos}
}

func (c *cursor) advance() lexer.Token {
	tok := c.peek()
	if tok.Type != lexer.EOF {
		c.pos++
	}
	return tok
}

func (c *cursor) check(typ string) bool {
	return c.peek().Type == typ
}

func (c *cursor) match(typ string) bool {
	if c.check(typ) {
		c.advance()
		return true
	}
	return false
}

func (c *cursor) expect(typ string, msg string) (lexer.Token, error) {
	if c.check(typ) {
		return c.advance(), nil
	}
	return lexer.Token{}, c.errorf("%s (got %s)", msg, c.peek())
}

func (c *cursor) expectEnd() error {
	if c.pos < len(c.toks) {
		return c.errorf("unexpected %s; missing ';'?", c.peek())
	}
	return nil
}

func (c *cursor) errorf(format string, args ...interface{}) error {
	return diag.Errorf(diag.ParseError, c.peek().Pos, format, args...)
}
