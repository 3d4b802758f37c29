package parser

import (
	"strconv"
	"tplc/internal/ast"
	"tplc/internal/diag"
	"tplc/internal/lexer"
	"unicode"
)

var compareOps = map[string]ast.CompareOp{
	lexer.LT:  ast.OpLess,
	lexer.LTE: ast.OpLessEqual,
	lexer.GT:  ast.OpGreater,
	lexer.GTE: ast.OpGreaterEqual,
	lexer.EQ:  ast.OpEqual,
	lexer.NEQ: ast.OpNotEqual,
}

var charEscapes = map[byte]rune{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'0':  0,
	'\\': '\\',
	'\'': '\'',
}

// ParseLiteral lexes and parses a standalone expression string such as
// "x+1" or "'\n'".
func ParseLiteral(src string) (ast.Expr, error) {
	tokens, err := lexer.Lex(src)
	if err != nil {
		return nil, err
	}
	return ParseExpr(tokens[:len(tokens)-1])
}

// ParseExpr parses a token slice (without EOF) into an expression. The
// productions are tried in a fixed order and the first one that fits wins:
// integer, character, variable, addition, comparison. A call in expression
// position is recognised but reported as unsupported.
func ParseExpr(toks []lexer.Token) (ast.Expr, error) {
	if len(toks) == 0 {
		return nil, diag.Errorf(diag.ParseError, ast.Position{}, "expected an expression")
	}
	first := toks[0]

	if len(toks) == 1 {
		switch first.Type {
		case lexer.INT:
			v, err := strconv.ParseInt(first.Value, 10, 64)
			if err != nil {
				return nil, diag.Errorf(diag.ParseError, first.Pos, "integer literal %s out of range", first.Value)
			}
			return &ast.IntLit{Value: v, Pos: first.Pos}, nil
		case lexer.CHAR:
			r, err := unquoteChar(first)
			if err != nil {
				return nil, err
			}
			return &ast.CharLit{Value: r, Pos: first.Pos}, nil
		case lexer.IDENT, lexer.TYPED:
			if unicode.IsLetter(rune(first.Value[0])) {
				return &ast.VarRef{Name: first.Value, Pos: first.Pos}, nil
			}
		}
	}

	if i, err := splitIndex(toks, func(t lexer.Token) bool { return t.Type == lexer.PLUS }); err != nil {
		return nil, err
	} else if i >= 0 {
		left, right, err := parseOperands(toks, i)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryAdd{Left: left, Right: right, Pos: toks[i].Pos}, nil
	}

	if i, err := splitIndex(toks, func(t lexer.Token) bool { _, ok := compareOps[t.Type]; return ok }); err != nil {
		return nil, err
	} else if i >= 0 {
		left, right, err := parseOperands(toks, i)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: compareOps[toks[i].Type], Left: left, Right: right, Pos: toks[i].Pos}, nil
	}

	if isCallShape(toks) {
		return nil, diag.Errorf(diag.UnsupportedExpression, first.Pos,
			"call to %s cannot be used as a value", first.Value)
	}

	return nil, diag.Errorf(diag.ParseError, first.Pos, "not an expression: %s", joinTokens(toks))
}

// parseOperands parses the tokens on either side of the operator at index i.
func parseOperands(toks []lexer.Token, i int) (ast.Expr, ast.Expr, error) {
	if i == 0 || i == len(toks)-1 {
		return nil, nil, diag.Errorf(diag.ParseError, toks[i].Pos, "operator %s is missing an operand", toks[i].Value)
	}
	left, err := ParseExpr(toks[:i])
	if err != nil {
		return nil, nil, err
	}
	right, err := ParseExpr(toks[i+1:])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// splitIndex returns the index of the first token outside parentheses that
// satisfies match, or -1.
func splitIndex(toks []lexer.Token, match func(lexer.Token) bool) (int, error) {
	depth := 0
	for i, t := range toks {
		switch t.Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			depth--
			if depth < 0 {
				return -1, diag.Errorf(diag.ParseError, t.Pos, "unbalanced ')'")
			}
		default:
			if depth == 0 && match(t) {
				return i, nil
			}
		}
	}
	return -1, nil
}

func isCallShape(toks []lexer.Token) bool {
	return len(toks) >= 3 &&
		(toks[0].Type == lexer.IDENT || toks[0].Type == lexer.TYPED) &&
		toks[1].Type == lexer.LPAREN &&
		toks[len(toks)-1].Type == lexer.RPAREN
}

// unquoteChar decodes a CHAR token. Exactly one character must remain once
// escapes are resolved.
func unquoteChar(tok lexer.Token) (rune, error) {
	body := tok.Value[1 : len(tok.Value)-1]
	if len(body) == 2 && body[0] == '\\' {
		if r, ok := charEscapes[body[1]]; ok {
			return r, nil
		}
		return 0, diag.Errorf(diag.InvalidCharacterLiteral, tok.Pos, "unknown escape %s", tok.Value)
	}
	runes := []rune(body)
	if len(runes) != 1 {
		return 0, diag.Errorf(diag.InvalidCharacterLiteral, tok.Pos,
			"%s must hold exactly one character, has %d", tok.Value, len(runes))
	}
	return runes[0], nil
}

func joinTokens(toks []lexer.Token) string {
	s := ""
	for _, t := range toks {
		s += t.Value
	}
	return s
}
