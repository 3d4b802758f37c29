package codegen

import (
	"strings"

	"tplc/internal/amd64"
	"tplc/internal/ast"
	"tplc/internal/diag"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures a Generator.
type Options struct {
	// Entry is the function that runs first. Defaults to "main".
	Entry string
}

// DefaultOptions returns the defaults used when nil options are passed.
func DefaultOptions() *Options {
	return &Options{Entry: "main"}
}

// ---------------------------------------------------------------------------
// Compiler state
// ---------------------------------------------------------------------------

// slotSize is the size of every variable's stack slot.
const slotSize = 8

// byteTypes are the 8-bit class type tags; nothing else can be stored.
var byteTypes = map[string]bool{"i8": true, "u8": true}

type variable struct {
	name   string
	typ    string
	offset int // bytes from the current stack pointer
}

type function struct {
	offset int
	args   []ast.Param
}

type frameKind int

const (
	rootFrame frameKind = iota
	entryFrame
	funcFrame
	ifFrame
	whileFrame
)

// frame is one open function or block. Variables declared while it is the
// innermost frame are released when it closes.
type frame struct {
	kind   frameKind
	label  string
	cond   *ast.Comparison // if/while only
	offset int             // if: byte after the jump; while: loop start
	args   []*variable
	locals []*variable
	pos    ast.Position
}

// Generator turns an instruction stream into x86-64 machine code in a
// single forward pass. It owns all compiler state for one compilation.
type Generator struct {
	opts *Options
	code []byte

	vars      []*variable // live variables, oldest first
	functions map[string]*function
	pending   map[string]*frame // open if/while blocks by label
	frames    []*frame          // open frames, root first
	entrySeen bool
}

// New returns an empty Generator.
func New(opts *Options) *Generator {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Entry == "" {
		opts.Entry = "main"
	}
	return &Generator{
		opts:      opts,
		functions: make(map[string]*function),
		pending:   make(map[string]*frame),
		frames:    []*frame{{kind: rootFrame}},
	}
}

// Generate runs a fresh Generator over instrs and returns the code buffer.
func Generate(instrs []ast.Instruction, opts *Options) ([]byte, error) {
	g := New(opts)
	for _, ins := range instrs {
		if err := g.Emit(ins); err != nil {
			return nil, err
		}
	}
	return g.Finish()
}

// Code returns the bytes emitted so far. The slice is owned by g.
func (g *Generator) Code() []byte { return g.code }

// Len is the location counter: the number of bytes emitted so far.
func (g *Generator) Len() int { return len(g.code) }

// Offset returns the recorded stack offset of the innermost live variable
// called name.
func (g *Generator) Offset(name string) (int, bool) {
	if v := g.find(name); v != nil {
		return v.offset, true
	}
	return 0, false
}

// FunctionOffset returns the code offset a user function starts at.
func (g *Generator) FunctionOffset(name string) (int, bool) {
	fn, ok := g.functions[name]
	if !ok {
		return 0, false
	}
	return fn.offset, true
}

// Finish checks that every block was closed and that the entry point
// exists, then returns the code buffer.
func (g *Generator) Finish() ([]byte, error) {
	if top := g.top(); top.kind != rootFrame {
		return nil, diag.Errorf(diag.BlockMismatch, top.pos, "%s is never closed", top.label)
	}
	if !g.entrySeen {
		return nil, diag.Errorf(diag.UndefinedFunction, ast.Position{}, "entry point %s is never defined", g.opts.Entry)
	}
	return g.code, nil
}

// Emit generates code for one instruction. Only function headers and
// closers may appear outside a function.
func (g *Generator) Emit(ins ast.Instruction) error {
	switch ins.(type) {
	case *ast.FunctionStart, *ast.FunctionEnd:
	default:
		if g.top().kind == rootFrame {
			return diag.Errorf(diag.UnsupportedExpression, ins.GetPos(), "%s outside a function", ast.InstrString(ins))
		}
	}

	switch n := ins.(type) {
	case *ast.FunctionStart:
		return g.functionStart(n)
	case *ast.FunctionEnd:
		return g.functionEnd(n)
	case *ast.FunctionCall:
		return g.functionCall(n)
	case *ast.VariableDef:
		return g.variableDef(n)
	case *ast.VariableMod:
		return g.variableMod(n)
	case *ast.VariableIncrement:
		return g.variableIncrement(n)
	}
	return diag.Errorf(diag.UnsupportedExpression, ast.Position{}, "unknown instruction %s", ast.InstrString(ins))
}

// ---------------------------------------------------------------------------
// Buffer and symbol helpers
// ---------------------------------------------------------------------------

func (g *Generator) emit(parts ...[]byte) {
	for _, p := range parts {
		g.code = append(g.code, p...)
	}
}

func (g *Generator) top() *frame { return g.frames[len(g.frames)-1] }

func (g *Generator) find(name string) *variable {
	for i := len(g.vars) - 1; i >= 0; i-- {
		if g.vars[i].name == name {
			return g.vars[i]
		}
	}
	return nil
}

func (g *Generator) lookup(name string, pos ast.Position) (*variable, error) {
	v := g.find(name)
	if v == nil {
		return nil, diag.Errorf(diag.UndefinedVariable, pos, "%s is not declared", name)
	}
	return v, nil
}

// shift moves every live variable except skip by delta bytes.
func (g *Generator) shift(delta int, skip *variable) {
	for _, v := range g.vars {
		if v != skip {
			v.offset += delta
		}
	}
}

// declare records a variable whose value was just pushed: it sits at
// offset 0 and everything else moved one slot further away.
func (g *Generator) declare(name, typ string) *variable {
	v := &variable{name: name, typ: typ}
	g.shift(slotSize, v)
	g.vars = append(g.vars, v)
	top := g.top()
	top.locals = append(top.locals, v)
	return v
}

// reserveArg records a function argument. The return address is at
// offset 0, so the newest argument is at offset 8.
func (g *Generator) reserveArg(p ast.Param) *variable {
	v := &variable{name: p.Name, typ: p.Type, offset: slotSize}
	g.shift(slotSize, v)
	g.vars = append(g.vars, v)
	return v
}

// release forgets vs and moves every remaining variable one slot closer
// per released variable.
func (g *Generator) release(vs []*variable) {
	if len(vs) == 0 {
		return
	}
	gone := make(map[*variable]bool, len(vs))
	for _, v := range vs {
		gone[v] = true
	}
	kept := g.vars[:0]
	for _, v := range g.vars {
		if !gone[v] {
			kept = append(kept, v)
		}
	}
	g.vars = kept
	g.shift(-slotSize*len(vs), nil)
}

// popLocals discards the stack slots of a frame's locals.
func (g *Generator) popLocals(f *frame) {
	if len(f.locals) == 0 {
		return
	}
	g.emit(amd64.AddImm(amd64.RSP, int32(slotSize*len(f.locals))))
	g.release(f.locals)
	f.locals = nil
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (g *Generator) functionStart(n *ast.FunctionStart) error {
	if top := g.top(); top.kind != rootFrame {
		return diag.Errorf(diag.BlockMismatch, n.Pos, "function %s starts before %s is closed", n.Name, top.label)
	}

	if n.Name == g.opts.Entry {
		if g.entrySeen {
			return diag.Errorf(diag.ParseError, n.Pos, "entry point %s is defined twice", n.Name)
		}
		if len(n.Args) > 0 {
			return diag.Errorf(diag.ArgumentCountMismatch, n.Pos, "entry point %s takes no arguments", n.Name)
		}
		g.bootstrap()
		g.entrySeen = true
		g.frames = append(g.frames, &frame{kind: entryFrame, label: n.Name, pos: n.Pos})
		return nil
	}

	for _, p := range n.Args {
		if !byteTypes[p.Type] {
			return diag.Errorf(diag.UnsupportedType, n.Pos, "argument %s of %s has type %s", p.Name, n.Name, p.Type)
		}
	}
	g.functions[n.Name] = &function{offset: len(g.code), args: n.Args}
	f := &frame{kind: funcFrame, label: n.Name, pos: n.Pos}
	for _, p := range n.Args {
		f.args = append(f.args, g.reserveArg(p))
	}
	g.frames = append(g.frames, f)
	return nil
}

// bootstrap puts a jump over everything emitted so far in front of the
// buffer, so the entry point runs first whatever the declaration order.
func (g *Generator) bootstrap() {
	n := len(g.code)
	if n == 0 {
		return
	}
	var jmp []byte
	if amd64.FitsInt8(int64(n)) {
		jmp = amd64.Jmp8(int8(n))
	} else {
		jmp = amd64.Jmp32(int32(n))
	}
	g.code = append(jmp, g.code...)
	for _, fn := range g.functions {
		fn.offset += len(jmp)
	}
}

func (g *Generator) functionEnd(n *ast.FunctionEnd) error {
	top := g.top()
	if top.kind == rootFrame {
		return diag.Errorf(diag.BlockMismatch, n.Pos, "}%s closes nothing", n.Name)
	}
	if n.Name != "" && n.Name != top.label {
		if g.isOpen(n.Name) {
			return diag.Errorf(diag.BlockMismatch, n.Pos, "}%s while %s is still open", n.Name, top.label)
		}
		return diag.Errorf(diag.BlockMismatch, n.Pos, "}%s has no matching open block", n.Name)
	}
	g.frames = g.frames[:len(g.frames)-1]

	switch top.kind {
	case entryFrame:
		g.emit(
			amd64.MovImm32(amd64.RAX, 60),
			amd64.XorReg(amd64.RDI, amd64.RDI),
			amd64.Syscall(),
		)
		g.release(top.locals)
		return nil
	case funcFrame:
		g.popLocals(top)
		g.release(top.args)
		g.emit(amd64.Ret())
		return nil
	case whileFrame:
		delete(g.pending, top.label)
		return g.closeWhile(top, n.Pos)
	case ifFrame:
		delete(g.pending, top.label)
		return g.closeIf(top, n.Pos)
	}
	return nil
}

func (g *Generator) isOpen(label string) bool {
	for _, f := range g.frames {
		if f.label == label {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (g *Generator) functionCall(n *ast.FunctionCall) error {
	switch {
	case n.Name == "putc":
		return g.putc(n)
	case n.Name == "mod":
		return g.mod(n)
	case strings.HasPrefix(n.Name, "while"):
		return g.openWhile(n)
	case strings.HasPrefix(n.Name, "if"):
		return g.openIf(n)
	}
	return g.userCall(n)
}

// putc writes one byte to standard output with write(1, rsp+off, 1).
func (g *Generator) putc(n *ast.FunctionCall) error {
	if len(n.Args) != 1 {
		return diag.Errorf(diag.ArgumentCountMismatch, n.Pos, "putc takes 1 argument, got %d", len(n.Args))
	}
	arg := n.Args[0]
	if v, ok := literalValue(arg); ok {
		if err := checkRange(v, -128, 255, arg.GetPos()); err != nil {
			return err
		}
		g.emit(amd64.PushImm(int32(v)))
		g.emitWrite(0)
		g.emit(amd64.Pop(amd64.RAX))
		return nil
	}
	ref, ok := arg.(*ast.VarRef)
	if !ok {
		return unsupported(arg, "putc argument")
	}
	v, err := g.lookup(ref.Name, ref.Pos)
	if err != nil {
		return err
	}
	g.emitWrite(v.offset)
	return nil
}

func (g *Generator) emitWrite(off int) {
	g.emit(
		amd64.MovImm32(amd64.RAX, 1),
		amd64.MovImm32(amd64.RDI, 1),
		amd64.MovImm32(amd64.RDX, 1),
		amd64.MovReg(amd64.RSI, amd64.RSP),
	)
	if off > 0 {
		g.emit(amd64.AddImm(amd64.RSI, int32(off)))
	}
	g.emit(amd64.Syscall())
}

// mod loads its first operand into rax and its second into rbx and stops
// there: no division is emitted and no variable changes.
func (g *Generator) mod(n *ast.FunctionCall) error {
	if len(n.Args) != 2 {
		return diag.Errorf(diag.ArgumentCountMismatch, n.Pos, "mod takes 2 arguments, got %d", len(n.Args))
	}
	if err := g.loadOperand(n.Args[0], amd64.RAX); err != nil {
		return err
	}
	return g.loadOperand(n.Args[1], amd64.RBX)
}

func (g *Generator) loadOperand(e ast.Expr, r amd64.Reg) error {
	if v, ok := literalValue(e); ok {
		if !amd64.FitsInt32(v) {
			return diag.Errorf(diag.ImmediateOverflow, e.GetPos(), "%d does not fit in 32 bits", v)
		}
		g.emit(amd64.MovImm(r, int32(v)))
		return nil
	}
	ref, ok := e.(*ast.VarRef)
	if !ok {
		return unsupported(e, "mod operand")
	}
	v, err := g.lookup(ref.Name, ref.Pos)
	if err != nil {
		return err
	}
	g.emit(amd64.MovReg(amd64.RSI, amd64.RSP))
	if v.offset > 0 {
		g.emit(amd64.AddImm(amd64.RSI, int32(v.offset)))
	}
	g.emit(amd64.MovLoad(r, amd64.RSI))
	return nil
}

// userCall pushes the arguments left to right, calls, then pops them.
func (g *Generator) userCall(n *ast.FunctionCall) error {
	fn, ok := g.functions[n.Name]
	if !ok {
		return diag.Errorf(diag.UndefinedFunction, n.Pos, "%s is not defined", n.Name)
	}
	if len(n.Args) != len(fn.args) {
		return diag.Errorf(diag.ArgumentCountMismatch, n.Pos, "%s takes %d arguments, got %d", n.Name, len(fn.args), len(n.Args))
	}
	for i, arg := range n.Args {
		if err := g.pushValue(arg, slotSize*i); err != nil {
			return err
		}
	}
	disp := int64(fn.offset) - int64(len(g.code)+amd64.Call32Len)
	if !amd64.FitsInt32(disp) {
		return diag.Errorf(diag.DisplacementOverflow, n.Pos, "call to %s is %d bytes away", n.Name, disp)
	}
	g.emit(amd64.Call32(int32(disp)))
	for range n.Args {
		g.emit(amd64.Pop(amd64.RAX))
	}
	return nil
}

// pushValue pushes a literal or a copy of a variable's slot. extra is the
// number of bytes pushed since the variable offsets were last updated.
func (g *Generator) pushValue(e ast.Expr, extra int) error {
	if v, ok := literalValue(e); ok {
		if err := checkRange(v, -128, 255, e.GetPos()); err != nil {
			return err
		}
		g.emit(amd64.PushImm(int32(v)))
		return nil
	}
	ref, ok := e.(*ast.VarRef)
	if !ok {
		return unsupported(e, "value")
	}
	v, err := g.lookup(ref.Name, ref.Pos)
	if err != nil {
		return err
	}
	g.emit(amd64.PushStack(int32(v.offset + extra)))
	return nil
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (g *Generator) variableDef(n *ast.VariableDef) error {
	if !byteTypes[n.Type] {
		return diag.Errorf(diag.UnsupportedType, n.Pos, "%s %s: only 8-bit types can be declared", n.Type, n.Name)
	}
	value := n.Value
	if nested, ok := value.(*ast.Nested); ok {
		var target string
		switch inner := nested.Instr.(type) {
		case *ast.VariableMod:
			target = inner.Name
		case *ast.VariableIncrement:
			target = inner.Name
		default:
			return diag.Errorf(diag.UnsupportedExpression, nested.Pos, "%s has no value", ast.InstrString(inner))
		}
		if err := g.Emit(nested.Instr); err != nil {
			return err
		}
		value = &ast.VarRef{Name: target, Pos: nested.Pos}
	}
	if err := g.pushValue(value, 0); err != nil {
		return err
	}
	g.declare(n.Name, n.Type)
	return nil
}

// variableMod stores a 16-bit immediate into the variable's slot. The
// store is wider than the 8-bit declared type.
func (g *Generator) variableMod(n *ast.VariableMod) error {
	v, err := g.lookupByte(n.Name, n.Pos)
	if err != nil {
		return err
	}
	val, ok := literalValue(n.Value)
	if !ok {
		return unsupported(n.Value, "assigned value")
	}
	if err := checkRange(val, -32768, 65535, n.Value.GetPos()); err != nil {
		return err
	}
	g.emitAddress(amd64.RAX, v.offset)
	g.emit(amd64.MovStore16(amd64.RAX, uint16(val)))
	return nil
}

func (g *Generator) variableIncrement(n *ast.VariableIncrement) error {
	v, err := g.lookupByte(n.Name, n.Pos)
	if err != nil {
		return err
	}
	val, ok := literalValue(n.Delta)
	if !ok {
		return unsupported(n.Delta, "increment")
	}
	if err := checkRange(val, -128, 127, n.Delta.GetPos()); err != nil {
		return err
	}
	g.emitAddress(amd64.RAX, v.offset)
	g.emit(amd64.AddMem16Imm8(amd64.RAX, int8(val)))
	return nil
}

func (g *Generator) lookupByte(name string, pos ast.Position) (*variable, error) {
	v, err := g.lookup(name, pos)
	if err != nil {
		return nil, err
	}
	if !byteTypes[v.typ] {
		return nil, diag.Errorf(diag.UnsupportedType, pos, "%s has type %s", name, v.typ)
	}
	return v, nil
}

// emitAddress loads rsp+off into r.
func (g *Generator) emitAddress(r amd64.Reg, off int) {
	g.emit(amd64.MovReg(r, amd64.RSP))
	if off > 0 {
		g.emit(amd64.AddImm(r, int32(off)))
	}
}

// ---------------------------------------------------------------------------
// Literal helpers
// ---------------------------------------------------------------------------

func literalValue(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.IntLit:
		return n.Value, true
	case *ast.CharLit:
		return int64(n.Value), true
	}
	return 0, false
}

func checkRange(v, lo, hi int64, pos ast.Position) error {
	if v < lo || v > hi {
		return diag.Errorf(diag.ImmediateOverflow, pos, "%d is outside %d..%d", v, lo, hi)
	}
	return nil
}

func unsupported(e ast.Expr, what string) error {
	return diag.Errorf(diag.UnsupportedExpression, e.GetPos(), "%s %s cannot be compiled", what, ast.ExprString(e))
}
