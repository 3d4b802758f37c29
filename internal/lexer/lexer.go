package lexer

import (
	"fmt"
	"strings"
	"tplc/internal/ast"
	"tplc/internal/diag"

	plexer "github.com/alecthomas/participle/lexer"
)

const (
	// Special
	EOF = "EOF"

	// Names and literals
	TYPED = "TYPED" // type tag fused with a name: i8x, i8main, u8count
	IDENT = "IDENT" // x, putc, while1
	INT   = "INT"   // 0, 42
	CHAR  = "CHAR"  // 'a', '\n'

	// Delimiters
	LPAREN    = "LPAREN"    // (
	RPAREN    = "RPAREN"    // )
	LBRACE    = "LBRACE"    // {
	RBRACE    = "RBRACE"    // }
	SEMICOLON = "SEMICOLON" // ;
	COLON     = "COLON"     // :
	COMMA     = "COMMA"     // ,

	// Operators
	ARROW      = "ARROW"      // ->
	ASSIGN     = "ASSIGN"     // =
	PLUSASSIGN = "PLUSASSIGN" // +=
	PLUS       = "PLUS"       // +

	// Comparison operators
	EQ  = "EQ"  // ==
	NEQ = "NEQ" // !=
	LT  = "LT"  // <
	GT  = "GT"  // >
	LTE = "LTE" // <=
	GTE = "GTE" // >=
)

// Pattern is the token grammar, applied to source that has already had its
// whitespace stripped. Alternatives are tried in order, so TYPED must come
// before IDENT and the two-character operators before their prefixes.
const Pattern = `(?P<Typed>[a-zA-Z]*[0-9]+[a-zA-Z][a-zA-Z0-9_]*)|` +
	`(?P<Ident>[a-zA-Z][a-zA-Z0-9_]*)|` +
	`(?P<Int>[0-9]+)|` +
	`(?P<Char>'(?:\\.|[^'\\])*')|` +
	`(?P<Op>->|==|!=|<=|>=|\+=|[<>+=(){};:,])`

var definition = plexer.Must(plexer.Regexp(Pattern))

var groupTypes = map[string]string{
	"Typed": TYPED,
	"Ident": IDENT,
	"Int":   INT,
	"Char":  CHAR,
}

var operators = map[string]string{
	"->": ARROW,
	"==": EQ,
	"!=": NEQ,
	"<=": LTE,
	">=": GTE,
	"+=": PLUSASSIGN,
	"<":  LT,
	">":  GT,
	"+":  PLUS,
	"=":  ASSIGN,
	"(":  LPAREN,
	")":  RPAREN,
	"{":  LBRACE,
	"}":  RBRACE,
	";":  SEMICOLON,
	":":  COLON,
	",":  COMMA,
}

// Token represents a single lexical token. Pos refers to the original,
// unstripped source.
type Token struct {
	Type  string
	Value string
	Pos   ast.Position
}

func (t Token) String() string {
	if t.Type == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", t.Type, t.Value)
}

// ---------------------------------------------------------------------------
// Whitespace stripping
// ---------------------------------------------------------------------------

// Stripped is source text with every space, tab and line break removed,
// plus the original position of each remaining byte.
type Stripped struct {
	Text string
	pos  []ast.Position
	end  ast.Position
}

// Strip removes insignificant whitespace from src.
func Strip(src string) *Stripped {
	var b strings.Builder
	s := &Stripped{}
	line, col := 1, 1
	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch ch {
		case '\n':
			line++
			col = 1
			continue
		case ' ', '\t', '\r':
			col++
			continue
		}
		b.WriteByte(ch)
		s.pos = append(s.pos, ast.Position{Line: line, Column: col})
		col++
	}
	s.Text = b.String()
	s.end = ast.Position{Line: line, Column: col}
	return s
}

// Position maps a byte offset in Text back to the original source.
func (s *Stripped) Position(offset int) ast.Position {
	if offset >= 0 && offset < len(s.pos) {
		return s.pos[offset]
	}
	return s.end
}

// ---------------------------------------------------------------------------
// Lexing
// ---------------------------------------------------------------------------

// Lex strips whitespace from input and splits it into tokens. The last
// token is always EOF. The first unrecognised character aborts lexing.
func Lex(input string) ([]Token, error) {
	src := Strip(input)
	lx, err := definition.Lex(strings.NewReader(src.Text))
	if err != nil {
		return nil, diag.Errorf(diag.LexError, ast.Position{}, "%s", err)
	}

	names := make(map[rune]string, len(definition.Symbols()))
	for name, typ := range definition.Symbols() {
		names[typ] = name
	}

	var tokens []Token
	offset := 0
	for {
		tok, err := lx.Next()
		if err != nil {
			bad := ""
			if offset < len(src.Text) {
				bad = src.Text[offset : offset+1]
			}
			return nil, diag.Errorf(diag.LexError, src.Position(offset), "unexpected character %q", bad)
		}
		if tok.Type == plexer.EOF {
			break
		}
		typ, ok := groupTypes[names[tok.Type]]
		if !ok {
			typ = operators[tok.Value]
		}
		tokens = append(tokens, Token{
			Type:  typ,
			Value: tok.Value,
			Pos:   src.Position(tok.Pos.Offset),
		})
		offset = tok.Pos.Offset + len(tok.Value)
	}

	tokens = append(tokens, Token{Type: EOF, Pos: src.Position(len(src.Text))})
	return tokens, nil
}
