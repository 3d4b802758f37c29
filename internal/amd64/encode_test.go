package amd64

import (
	"bytes"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
		op   x86asm.Op
	}{
		{"mov eax, 1", MovImm32(RAX, 1), []byte{0xB8, 0x01, 0x00, 0x00, 0x00}, x86asm.MOV},
		{"mov edi, 1", MovImm32(RDI, 1), []byte{0xBF, 0x01, 0x00, 0x00, 0x00}, x86asm.MOV},
		{"mov edx, 1", MovImm32(RDX, 1), []byte{0xBA, 0x01, 0x00, 0x00, 0x00}, x86asm.MOV},
		{"mov eax, 60", MovImm32(RAX, 60), []byte{0xB8, 0x3C, 0x00, 0x00, 0x00}, x86asm.MOV},
		{"mov rbx, 70", MovImm(RBX, 70), []byte{0x48, 0xC7, 0xC3, 0x46, 0x00, 0x00, 0x00}, x86asm.MOV},
		{"mov rax, -1", MovImm(RAX, -1), []byte{0x48, 0xC7, 0xC0, 0xFF, 0xFF, 0xFF, 0xFF}, x86asm.MOV},
		{"mov rax, rsp", MovReg(RAX, RSP), []byte{0x48, 0x89, 0xE0}, x86asm.MOV},
		{"mov rsi, rsp", MovReg(RSI, RSP), []byte{0x48, 0x89, 0xE6}, x86asm.MOV},
		{"mov rax, [rsi]", MovLoad(RAX, RSI), []byte{0x48, 0x8B, 0x06}, x86asm.MOV},
		{"mov rbx, [rsi]", MovLoad(RBX, RSI), []byte{0x48, 0x8B, 0x1E}, x86asm.MOV},
		{"mov rbx, [rsp+8]", MovLoadStack(RBX, 8), []byte{0x48, 0x8B, 0x5C, 0x24, 0x08}, x86asm.MOV},
		{"mov rbx, [rsp+0x200]", MovLoadStack(RBX, 0x200), []byte{0x48, 0x8B, 0x9C, 0x24, 0x00, 0x02, 0x00, 0x00}, x86asm.MOV},
		{"mov word [rax], 9", MovStore16(RAX, 9), []byte{0x66, 0xC7, 0x00, 0x09, 0x00}, x86asm.MOV},
		{"xor rdi, rdi", XorReg(RDI, RDI), []byte{0x48, 0x31, 0xFF}, x86asm.XOR},
		{"add rax, 16", AddImm(RAX, 16), []byte{0x48, 0x83, 0xC0, 0x10}, x86asm.ADD},
		{"add rsi, 8", AddImm(RSI, 8), []byte{0x48, 0x83, 0xC6, 0x08}, x86asm.ADD},
		{"add rsp, 0x400", AddImm(RSP, 0x400), []byte{0x48, 0x81, 0xC4, 0x00, 0x04, 0x00, 0x00}, x86asm.ADD},
		{"add word [rax], 3", AddMem16Imm8(RAX, 3), []byte{0x66, 0x83, 0x00, 0x03}, x86asm.ADD},
		{"cmp word [rax], bx", CmpMem16Reg(RAX, RBX), []byte{0x66, 0x39, 0x18}, x86asm.CMP},
		{"push 0x41", PushImm(0x41), []byte{0x6A, 0x41}, x86asm.PUSH},
		{"push 200", PushImm(200), []byte{0x68, 0xC8, 0x00, 0x00, 0x00}, x86asm.PUSH},
		{"push [rsp+16]", PushStack(16), []byte{0xFF, 0x74, 0x24, 0x10}, x86asm.PUSH},
		{"push [rsp]", PushStack(0), []byte{0xFF, 0x74, 0x24, 0x00}, x86asm.PUSH},
		{"pop rax", Pop(RAX), []byte{0x58}, x86asm.POP},
		{"jl -10", Jcc(CondL, -10), []byte{0x7C, 0xF6}, x86asm.JL},
		{"jle", Jcc(CondLE, 0), []byte{0x7E, 0x00}, x86asm.JLE},
		{"jg", Jcc(CondG, 0), []byte{0x7F, 0x00}, x86asm.JG},
		{"jge", Jcc(CondGE, 0), []byte{0x7D, 0x00}, x86asm.JGE},
		{"je", Jcc(CondE, 0), []byte{0x74, 0x00}, x86asm.JE},
		{"jne", Jcc(CondNE, 5), []byte{0x75, 0x05}, x86asm.JNE},
		{"jmp short", Jmp8(25), []byte{0xEB, 0x19}, x86asm.JMP},
		{"jmp near", Jmp32(300), []byte{0xE9, 0x2C, 0x01, 0x00, 0x00}, x86asm.JMP},
		{"call", Call32(-30), []byte{0xE8, 0xE2, 0xFF, 0xFF, 0xFF}, x86asm.CALL},
		{"ret", Ret(), []byte{0xC3}, x86asm.RET},
		{"syscall", Syscall(), []byte{0x0F, 0x05}, x86asm.SYSCALL},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !bytes.Equal(tc.got, tc.want) {
				t.Fatalf("bytes = % x; want % x", tc.got, tc.want)
			}
			inst, err := x86asm.Decode(tc.got, 64)
			if err != nil {
				t.Fatalf("decode % x: %v", tc.got, err)
			}
			if inst.Op != tc.op {
				t.Errorf("decoded op = %v; want %v", inst.Op, tc.op)
			}
			if inst.Len != len(tc.got) {
				t.Errorf("decoded length = %d; want %d", inst.Len, len(tc.got))
			}
		})
	}
}

func TestDecodedOperands(t *testing.T) {
	inst, err := x86asm.Decode(PushStack(24), 64)
	if err != nil {
		t.Fatal(err)
	}
	mem, ok := inst.Args[0].(x86asm.Mem)
	if !ok || mem.Base != x86asm.RSP || mem.Disp != 24 {
		t.Errorf("push operand = %v; want [rsp+24]", inst.Args[0])
	}

	inst, err = x86asm.Decode(MovReg(RSI, RSP), 64)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Args[0] != x86asm.RSI || inst.Args[1] != x86asm.RSP {
		t.Errorf("mov operands = %v, %v; want rsi, rsp", inst.Args[0], inst.Args[1])
	}
}

func TestLengthConstants(t *testing.T) {
	if len(Jcc(CondE, 0)) != Jcc8Len || len(Jmp8(0)) != Jmp8Len ||
		len(Jmp32(0)) != Jmp32Len || len(Call32(0)) != Call32Len {
		t.Fatal("length constants disagree with encodings")
	}
}

func TestFits(t *testing.T) {
	if !FitsInt8(127) || FitsInt8(128) || !FitsInt8(-128) || FitsInt8(-129) {
		t.Error("FitsInt8 boundaries wrong")
	}
	if !FitsInt32(1<<31-1) || FitsInt32(1<<31) {
		t.Error("FitsInt32 boundaries wrong")
	}
}

func TestMovLoadRejectsStackBase(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for [rsp] base")
		}
	}()
	MovLoad(RAX, RSP)
}

func TestRegString(t *testing.T) {
	if RSI.String() != "rsi" || Reg(9).String() != "reg9" {
		t.Error("unexpected register names")
	}
}
