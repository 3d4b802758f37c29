package codegen

import (
	"tplc/internal/amd64"
	"tplc/internal/ast"
	"tplc/internal/diag"
)

// jumpConds maps a comparison to the jump taken when it holds. The
// comparison is "cmp word [var], rbx", so the variable is the left operand.
var jumpConds = map[ast.CompareOp]amd64.Cond{
	ast.OpLess:         amd64.CondL,
	ast.OpLessEqual:    amd64.CondLE,
	ast.OpGreater:      amd64.CondG,
	ast.OpGreaterEqual: amd64.CondGE,
	ast.OpEqual:        amd64.CondE,
	ast.OpNotEqual:     amd64.CondNE,
}

// jump encodes a two-byte jump taken when op holds. An operator without a
// condition code jumps unconditionally.
func jump(op ast.CompareOp, disp int8) []byte {
	if c, ok := jumpConds[op]; ok {
		return amd64.Jcc(c, disp)
	}
	return amd64.Jmp8(disp)
}

// blockCondition checks the single argument of a while/if opener.
func (g *Generator) blockCondition(n *ast.FunctionCall) (*ast.Comparison, error) {
	if len(n.Args) != 1 {
		return nil, diag.Errorf(diag.ArgumentCountMismatch, n.Pos, "%s takes 1 condition, got %d", n.Name, len(n.Args))
	}
	cond, ok := n.Args[0].(*ast.Comparison)
	if !ok {
		return nil, unsupported(n.Args[0], n.Name+" condition")
	}
	if _, ok := cond.Left.(*ast.VarRef); !ok {
		return nil, diag.Errorf(diag.UnsupportedExpression, cond.Left.GetPos(), "left side of %s must be a variable", ast.ExprString(cond))
	}
	if open, ok := g.pending[n.Name]; ok {
		return nil, diag.Errorf(diag.BlockMismatch, n.Pos, "%s is already open since %s", n.Name, open.pos)
	}
	return cond, nil
}

// compare emits the code that sets the flags for cond:
//
//	mov rax, rsp
//	add rax, off        ; only when off > 0
//	mov rbx, imm | mov rbx, [rsp+off2]
//	cmp word [rax], bx
func (g *Generator) compare(cond *ast.Comparison) error {
	left := cond.Left.(*ast.VarRef)
	lv, err := g.lookup(left.Name, left.Pos)
	if err != nil {
		return err
	}

	var load []byte
	if v, ok := literalValue(cond.Right); ok {
		if !amd64.FitsInt32(v) {
			return diag.Errorf(diag.ImmediateOverflow, cond.Right.GetPos(), "%d does not fit in 32 bits", v)
		}
		load = amd64.MovImm(amd64.RBX, int32(v))
	} else if ref, ok := cond.Right.(*ast.VarRef); ok {
		rv, err := g.lookup(ref.Name, ref.Pos)
		if err != nil {
			return err
		}
		load = amd64.MovLoadStack(amd64.RBX, int32(rv.offset))
	} else {
		return unsupported(cond.Right, "right side of condition")
	}

	g.emitAddress(amd64.RAX, lv.offset)
	g.emit(load, amd64.CmpMem16Reg(amd64.RAX, amd64.RBX))
	return nil
}

// openWhile only records where the loop starts. The condition is tested
// at the bottom, so the body always runs at least once.
func (g *Generator) openWhile(n *ast.FunctionCall) error {
	cond, err := g.blockCondition(n)
	if err != nil {
		return err
	}
	f := &frame{kind: whileFrame, label: n.Name, cond: cond, offset: len(g.code), pos: n.Pos}
	g.pending[n.Name] = f
	g.frames = append(g.frames, f)
	return nil
}

// closeWhile releases the body's locals, tests the condition and jumps
// back to the loop start while it holds.
func (g *Generator) closeWhile(f *frame, pos ast.Position) error {
	g.popLocals(f)
	if err := g.compare(f.cond); err != nil {
		return err
	}
	disp := f.offset - (len(g.code) + amd64.Jcc8Len)
	if !amd64.FitsInt8(int64(disp)) {
		return diag.Errorf(diag.DisplacementOverflow, pos, "%s body is too long: jump of %d bytes", f.label, disp)
	}
	g.emit(jump(f.cond.Op, int8(disp)))
	return nil
}

// openIf emits the negated test with a placeholder displacement; the
// closer patches it to skip the body.
func (g *Generator) openIf(n *ast.FunctionCall) error {
	cond, err := g.blockCondition(n)
	if err != nil {
		return err
	}
	negated := *cond
	negated.Op = cond.Op.Negate()
	if err := g.compare(&negated); err != nil {
		return err
	}
	g.emit(jump(negated.Op, 0))
	f := &frame{kind: ifFrame, label: n.Name, cond: cond, offset: len(g.code), pos: n.Pos}
	g.pending[n.Name] = f
	g.frames = append(g.frames, f)
	return nil
}

func (g *Generator) closeIf(f *frame, pos ast.Position) error {
	g.popLocals(f)
	disp := len(g.code) - f.offset
	if !amd64.FitsInt8(int64(disp)) {
		return diag.Errorf(diag.DisplacementOverflow, pos, "%s body is too long: jump of %d bytes", f.label, disp)
	}
	g.code[f.offset-1] = byte(disp)
	return nil
}
