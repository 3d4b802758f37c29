package diag

import (
	"fmt"
	"tplc/internal/ast"
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// Kind classifies a compile failure. A Kind is itself an error so that
// callers can write errors.Is(err, diag.UndefinedVariable).
type Kind int

const (
	LexError Kind = iota + 1
	ParseError
	UndefinedVariable
	UndefinedFunction
	ArgumentCountMismatch
	InvalidCharacterLiteral
	UnsupportedType
	UnsupportedExpression
	DisplacementOverflow
	BlockMismatch
	ImmediateOverflow
)

var kindNames = map[Kind]string{
	LexError:                "lex error",
	ParseError:              "parse error",
	UndefinedVariable:       "undefined variable",
	UndefinedFunction:       "undefined function",
	ArgumentCountMismatch:   "argument count mismatch",
	InvalidCharacterLiteral: "invalid character literal",
	UnsupportedType:         "unsupported type",
	UnsupportedExpression:   "unsupported expression",
	DisplacementOverflow:    "displacement overflow",
	BlockMismatch:           "block mismatch",
	ImmediateOverflow:       "immediate out of range",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

func (k Kind) Error() string { return k.String() }

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

// Error is a single fatal compile error.
type Error struct {
	Kind    Kind
	Pos     ast.Position
	Message string
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("line %d, col %d: %s: %s", e.Pos.Line, e.Pos.Column, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches a bare Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf builds an Error of the given kind at pos.
func Errorf(kind Kind, pos ast.Position, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or 0 if err is not a *Error.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return 0
}
