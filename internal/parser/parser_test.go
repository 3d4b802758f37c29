package parser_test

import (
	"errors"
	"testing"
	"tplc/internal/ast"
	"tplc/internal/diag"
	"tplc/internal/parser"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseInput(t *testing.T, input string) []ast.Instruction {
	t.Helper()
	instrs, err := parser.ParseSource(input)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return instrs
}

func parseOne(t *testing.T, input string) ast.Instruction {
	t.Helper()
	instrs := parseInput(t, input)
	if len(instrs) != 1 {
		t.Fatalf("expected 1 instruction, got %d:\n%s", len(instrs), ast.DebugString(instrs))
	}
	return instrs[0]
}

// ---------------------------------------------------------------------------
// Function headers
// ---------------------------------------------------------------------------

func TestParseFunctionHeader(t *testing.T) {
	ins := parseOne(t, "i8 add: i8 a, u8 b, i8 c -> {")
	fn, ok := ins.(*ast.FunctionStart)
	if !ok {
		t.Fatalf("expected *ast.FunctionStart, got %T", ins)
	}
	if fn.Name != "add" || fn.ReturnType != "i8" {
		t.Errorf("got %s %s, want i8 add", fn.ReturnType, fn.Name)
	}
	want := []ast.Param{{Type: "i8", Name: "a"}, {Type: "u8", Name: "b"}, {Type: "i8", Name: "c"}}
	if len(fn.Args) != len(want) {
		t.Fatalf("args: got %v, want %v", fn.Args, want)
	}
	for i := range want {
		if fn.Args[i] != want[i] {
			t.Errorf("arg %d: got %v, want %v", i, fn.Args[i], want[i])
		}
	}
}

func TestParseHeaderWithoutArgs(t *testing.T) {
	fn := parseOne(t, "i8main:->{").(*ast.FunctionStart)
	if fn.Name != "main" || len(fn.Args) != 0 {
		t.Errorf("got %s with %d args", fn.Name, len(fn.Args))
	}
}

func TestParseHeaderTrailingComma(t *testing.T) {
	fn := parseOne(t, "i8f:i8a,->{").(*ast.FunctionStart)
	if len(fn.Args) != 1 || fn.Args[0].Name != "a" {
		t.Errorf("got args %v", fn.Args)
	}
}

func TestHeaderEndsStatement(t *testing.T) {
	// No ';' after '{': the body's first statement still stands alone.
	instrs := parseInput(t, "i8 main: -> { putc('A'); }main;")
	if len(instrs) != 3 {
		t.Fatalf("expected 3 instructions, got:\n%s", ast.DebugString(instrs))
	}
	if _, ok := instrs[1].(*ast.FunctionCall); !ok {
		t.Errorf("instr 1: got %T, want *ast.FunctionCall", instrs[1])
	}
	end, ok := instrs[2].(*ast.FunctionEnd)
	if !ok || end.Name != "main" {
		t.Errorf("instr 2: got %s, want FunctionEnd main", ast.InstrString(instrs[2]))
	}
}

func TestEmptyEntryFunction(t *testing.T) {
	instrs := parseInput(t, "i8main:->{}")
	if len(instrs) != 2 {
		t.Fatalf("expected 2 instructions, got:\n%s", ast.DebugString(instrs))
	}
	if end, ok := instrs[1].(*ast.FunctionEnd); !ok || end.Name != "" {
		t.Errorf("got %s, want an unlabelled FunctionEnd", ast.InstrString(instrs[1]))
	}
}

// ---------------------------------------------------------------------------
// Assignments
// ---------------------------------------------------------------------------

func TestParseDeclaration(t *testing.T) {
	def, ok := parseOne(t, "i8 x = 5;").(*ast.VariableDef)
	if !ok {
		t.Fatal("expected *ast.VariableDef")
	}
	if def.Type != "i8" || def.Name != "x" {
		t.Errorf("got %s %s, want i8 x", def.Type, def.Name)
	}
	if lit, ok := def.Value.(*ast.IntLit); !ok || lit.Value != 5 {
		t.Errorf("value: got %s, want 5", ast.ExprString(def.Value))
	}
}

func TestParseMutation(t *testing.T) {
	mod, ok := parseOne(t, "x = 'z';").(*ast.VariableMod)
	if !ok {
		t.Fatal("expected *ast.VariableMod")
	}
	if mod.Name != "x" || ast.ExprString(mod.Value) != "'z'" {
		t.Errorf("got %s", ast.InstrString(mod))
	}
}

func TestParseIncrement(t *testing.T) {
	inc, ok := parseOne(t, "x += 3;").(*ast.VariableIncrement)
	if !ok {
		t.Fatal("expected *ast.VariableIncrement")
	}
	if inc.Name != "x" || ast.ExprString(inc.Delta) != "3" {
		t.Errorf("got %s", ast.InstrString(inc))
	}
}

func TestDeclarationFallsBackToStatement(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"i8 a = b = 3;", "VariableDef i8 a = {VariableMod b = 3}"},
		{"i8 a = b += 1;", "VariableDef i8 a = {VariableIncrement b += 1}"},
		{"i8 a = foo(1);", "VariableDef i8 a = {FunctionCall foo(1)}"},
	}
	for _, tc := range tests {
		if got := ast.InstrString(parseOne(t, tc.src)); got != tc.want {
			t.Errorf("%q: got %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestMutationDoesNotFallBack(t *testing.T) {
	_, err := parser.ParseSource("x = y = 3;")
	if !errors.Is(err, diag.ParseError) {
		t.Fatalf("got %v, want a parse error", err)
	}
}

// ---------------------------------------------------------------------------
// Calls and blocks
// ---------------------------------------------------------------------------

func TestParseCall(t *testing.T) {
	call, ok := parseOne(t, "mod(x, 3);").(*ast.FunctionCall)
	if !ok {
		t.Fatal("expected *ast.FunctionCall")
	}
	if call.Name != "mod" || len(call.Args) != 2 {
		t.Fatalf("got %s", ast.InstrString(call))
	}
	if ast.ExprString(call.Args[0]) != "x" || ast.ExprString(call.Args[1]) != "3" {
		t.Errorf("got %s", ast.InstrString(call))
	}
}

func TestParseCallWithoutArgs(t *testing.T) {
	call := parseOne(t, "tick();").(*ast.FunctionCall)
	if len(call.Args) != 0 {
		t.Errorf("got %d args, want 0", len(call.Args))
	}
}

func TestParseBlockOpeners(t *testing.T) {
	instrs := parseInput(t, "while1(i < 10); if2(i == 3); }if2; }while1;")
	want := []string{
		"FunctionCall while1((i < 10))",
		"FunctionCall if2((i == 3))",
		"FunctionEnd if2",
		"FunctionEnd while1",
	}
	if len(instrs) != len(want) {
		t.Fatalf("got:\n%s", ast.DebugString(instrs))
	}
	for i := range want {
		if got := ast.InstrString(instrs[i]); got != want[i] {
			t.Errorf("instr %d: got %s, want %s", i, got, want[i])
		}
	}
	if !ast.IsBlockOpener("while1") || !ast.IsBlockOpener("if2") || ast.IsBlockOpener("putc") {
		t.Error("IsBlockOpener misclassified a name")
	}
}

func TestCloserSplitsStatements(t *testing.T) {
	instrs := parseInput(t, "i8f:->{putc('a')}f;i8main:->{f()}main")
	want := []string{
		"FunctionStart i8 f()",
		"FunctionCall putc('a')",
		"FunctionEnd f",
		"FunctionStart i8 main()",
		"FunctionCall f()",
		"FunctionEnd main",
	}
	if len(instrs) != len(want) {
		t.Fatalf("got:\n%s", ast.DebugString(instrs))
	}
	for i := range want {
		if got := ast.InstrString(instrs[i]); got != want[i] {
			t.Errorf("instr %d: got %s, want %s", i, got, want[i])
		}
	}
}

func TestBareCloserBeforeStatement(t *testing.T) {
	instrs := parseInput(t, "i8 main: -> { i8 x = 1; if1(x == 1); putc('a'); } putc('b'); }main")
	want := []string{
		"FunctionStart i8 main()",
		"VariableDef i8 x = 1",
		"FunctionCall if1((x == 1))",
		"FunctionCall putc('a')",
		"FunctionEnd <innermost>",
		"FunctionCall putc('b')",
		"FunctionEnd main",
	}
	if len(instrs) != len(want) {
		t.Fatalf("got:\n%s", ast.DebugString(instrs))
	}
	for i := range want {
		if got := ast.InstrString(instrs[i]); got != want[i] {
			t.Errorf("instr %d: got %s, want %s", i, got, want[i])
		}
	}
}

func TestCloserLabelEndsStatement(t *testing.T) {
	tests := []struct {
		src   string
		label string
	}{
		{"}main", "main"},
		{"}while1;", "while1"},
		{"}if1}", "if1"},
		{"}x+=1;", ""},
		{"}f(1);", ""},
	}
	for _, tc := range tests {
		instrs := parseInput(t, tc.src)
		end, ok := instrs[0].(*ast.FunctionEnd)
		if !ok || end.Name != tc.label {
			t.Errorf("%q: got %s, want closer %q", tc.src, ast.InstrString(instrs[0]), tc.label)
		}
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind diag.Kind
	}{
		{"unknown statement", "x;", diag.ParseError},
		{"header without type", "main:->{", diag.ParseError},
		{"header without colon", "i8main->{", diag.ParseError},
		{"header bad arg", "i8f:x->{", diag.ParseError},
		{"header missing brace", "i8f:->;", diag.ParseError},
		{"missing value", "i8x=;", diag.ParseError},
		{"bad char literal", "i8x='ab';", diag.InvalidCharacterLiteral},
		{"empty call arg", "putc(1,,2);", diag.ParseError},
		{"trailing call comma", "putc(1,);", diag.ParseError},
		{"call as mutation value", "x=foo(1);", diag.UnsupportedExpression},
		{"lex error", "x = 1 - 2;", diag.LexError},
		{"stray brace", "{;", diag.ParseError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parser.ParseSource(tc.src)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("got %v, want %s", err, tc.kind)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := parser.ParseSource("i8 main: -> {\n  x;\n}main;")
	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *diag.Error", err)
	}
	if de.Pos != (ast.Position{Line: 2, Column: 3}) {
		t.Errorf("error at %s, want 2:3", de.Pos)
	}
}
