package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Source position
// ---------------------------------------------------------------------------

// Position represents a line/column pair in the original source (1-based).
// The zero value means the position is unknown.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IsValid reports whether the position points into the source.
func (p Position) IsValid() bool {
	return p.Line > 0
}

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Node is implemented by every instruction and expression.
type Node interface {
	GetPos() Position
}

// Instruction is one parsed statement. The code generator consumes an
// ordered list of them.
type Instruction interface {
	Node
	instrNode()
}

// Expr is a literal or a small expression tree.
type Expr interface {
	Node
	exprNode()
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Param is one formal argument of a function header: <type><name>.
type Param struct {
	Type string
	Name string
}

// FunctionStart: <rtype><name>:(<type><arg>,)*(<type><arg>)?->{
type FunctionStart struct {
	Name       string
	ReturnType string
	Args       []Param
	Pos        Position
}

func (n *FunctionStart) GetPos() Position { return n.Pos }
func (n *FunctionStart) instrNode()       {}

// FunctionCall: <name>(<arg>,<arg>,...)
//
// Names starting with "while" or "if" open a control-flow block instead of
// calling anything; the rest of the name is the block label.
type FunctionCall struct {
	Name string
	Args []Expr
	Pos  Position
}

func (n *FunctionCall) GetPos() Position { return n.Pos }
func (n *FunctionCall) instrNode()       {}

// FunctionEnd: }<name>. An empty Name closes the innermost open block.
type FunctionEnd struct {
	Name string
	Pos  Position
}

func (n *FunctionEnd) GetPos() Position { return n.Pos }
func (n *FunctionEnd) instrNode()       {}

// VariableDef: <type><name>=<expr>
type VariableDef struct {
	Type  string
	Name  string
	Value Expr
	Pos   Position
}

func (n *VariableDef) GetPos() Position { return n.Pos }
func (n *VariableDef) instrNode()       {}

// VariableMod: <name>=<expr>
type VariableMod struct {
	Name  string
	Value Expr
	Pos   Position
}

func (n *VariableMod) GetPos() Position { return n.Pos }
func (n *VariableMod) instrNode()       {}

// VariableIncrement: <name>+=<expr>
type VariableIncrement struct {
	Name  string
	Delta Expr
	Pos   Position
}

func (n *VariableIncrement) GetPos() Position { return n.Pos }
func (n *VariableIncrement) instrNode()       {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// IntLit is a decimal integer literal.
type IntLit struct {
	Value int64
	Pos   Position
}

func (n *IntLit) GetPos() Position { return n.Pos }
func (n *IntLit) exprNode()        {}

// CharLit is a single quoted character; Value is its code point.
type CharLit struct {
	Value rune
	Pos   Position
}

func (n *CharLit) GetPos() Position { return n.Pos }
func (n *CharLit) exprNode()        {}

// VarRef names a variable.
type VarRef struct {
	Name string
	Pos  Position
}

func (n *VarRef) GetPos() Position { return n.Pos }
func (n *VarRef) exprNode()        {}

// BinaryAdd is <left>+<right>, split at the first top-level '+'.
type BinaryAdd struct {
	Left  Expr
	Right Expr
	Pos   Position
}

func (n *BinaryAdd) GetPos() Position { return n.Pos }
func (n *BinaryAdd) exprNode()        {}

// CompareOp is one of the six comparison tokens.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpEqual        CompareOp = "=="
	OpNotEqual     CompareOp = "!="
)

// Negate returns the operator that holds exactly when op does not.
func (op CompareOp) Negate() CompareOp {
	switch op {
	case OpLess:
		return OpGreaterEqual
	case OpLessEqual:
		return OpGreater
	case OpGreater:
		return OpLessEqual
	case OpGreaterEqual:
		return OpLess
	case OpEqual:
		return OpNotEqual
	case OpNotEqual:
		return OpEqual
	}
	return op
}

// Comparison is <left><op><right>.
type Comparison struct {
	Op    CompareOp
	Left  Expr
	Right Expr
	Pos   Position
}

func (n *Comparison) GetPos() Position { return n.Pos }
func (n *Comparison) exprNode()        {}

// Nested wraps a whole statement used as a declaration's right-hand side,
// e.g. the "b=3" in "i8a=b=3".
type Nested struct {
	Instr Instruction
	Pos   Position
}

func (n *Nested) GetPos() Position { return n.Pos }
func (n *Nested) exprNode()        {}

// ---------------------------------------------------------------------------
// Debug printing
// ---------------------------------------------------------------------------

// DebugString renders an instruction list, one per line, indented by block depth.
func DebugString(instrs []Instruction) string {
	var b strings.Builder
	depth := 0
	for i, ins := range instrs {
		if _, ok := ins.(*FunctionEnd); ok && depth > 0 {
			depth--
		}
		fmt.Fprintf(&b, "%3d %-6s %s%s\n", i, ins.GetPos(), strings.Repeat("  ", depth), InstrString(ins))
		switch n := ins.(type) {
		case *FunctionStart:
			depth++
		case *FunctionCall:
			if IsBlockOpener(n.Name) {
				depth++
			}
		}
	}
	return b.String()
}

// IsBlockOpener reports whether a call name opens an if/while block.
func IsBlockOpener(name string) bool {
	return strings.HasPrefix(name, "while") || strings.HasPrefix(name, "if")
}

// InstrString returns a compact one-line form of an instruction.
func InstrString(ins Instruction) string {
	switch n := ins.(type) {
	case *FunctionStart:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = a.Type + " " + a.Name
		}
		return fmt.Sprintf("FunctionStart %s %s(%s)", n.ReturnType, n.Name, strings.Join(args, ", "))
	case *FunctionCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = ExprString(a)
		}
		return fmt.Sprintf("FunctionCall %s(%s)", n.Name, strings.Join(args, ", "))
	case *FunctionEnd:
		if n.Name == "" {
			return "FunctionEnd <innermost>"
		}
		return "FunctionEnd " + n.Name
	case *VariableDef:
		return fmt.Sprintf("VariableDef %s %s = %s", n.Type, n.Name, ExprString(n.Value))
	case *VariableMod:
		return fmt.Sprintf("VariableMod %s = %s", n.Name, ExprString(n.Value))
	case *VariableIncrement:
		return fmt.Sprintf("VariableIncrement %s += %s", n.Name, ExprString(n.Delta))
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", ins)
	}
}

// ExprString returns a parenthesised form of an expression tree.
func ExprString(e Expr) string {
	switch n := e.(type) {
	case *IntLit:
		return strconv.FormatInt(n.Value, 10)
	case *CharLit:
		return strconv.QuoteRune(n.Value)
	case *VarRef:
		return n.Name
	case *BinaryAdd:
		return "(" + ExprString(n.Left) + " + " + ExprString(n.Right) + ")"
	case *Comparison:
		return "(" + ExprString(n.Left) + " " + string(n.Op) + " " + ExprString(n.Right) + ")"
	case *Nested:
		return "{" + InstrString(n.Instr) + "}"
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", e)
	}
}
