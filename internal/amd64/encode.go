// Package amd64 encodes the handful of x86-64 instructions the code
// generator needs. Every function returns the raw bytes of exactly one
// instruction.
package amd64

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reg is a 64-bit general purpose register, numbered as in the ModRM byte.
type Reg byte

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
)

var regNames = [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi"}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("reg%d", byte(r))
}

// Cond is the condition nibble of a Jcc opcode.
type Cond byte

const (
	CondE  Cond = 0x4 // je
	CondNE Cond = 0x5 // jne
	CondL  Cond = 0xC // jl
	CondGE Cond = 0xD // jge
	CondLE Cond = 0xE // jle
	CondG  Cond = 0xF // jg
)

const rexW = 0x48

// Instruction lengths the generator needs before it can compute a
// displacement.
const (
	Jcc8Len   = 2
	Jmp8Len   = 2
	Jmp32Len  = 5
	Call32Len = 5
)

// FitsInt8 reports whether v can be encoded as a sign-extended byte.
func FitsInt8(v int64) bool { return v >= math.MinInt8 && v <= math.MaxInt8 }

// FitsInt32 reports whether v can be encoded as a sign-extended dword.
func FitsInt32(v int64) bool { return v >= math.MinInt32 && v <= math.MaxInt32 }

func modrm(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | rm&7 }

func le32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Moves
// ---------------------------------------------------------------------------

// MovImm32 is "mov r32, imm32"; the upper half of r is cleared.
func MovImm32(r Reg, v uint32) []byte {
	return join([]byte{0xB8 + byte(r)}, le32(int32(v)))
}

// MovImm is "mov r64, simm32".
func MovImm(r Reg, v int32) []byte {
	return join([]byte{rexW, 0xC7, modrm(3, 0, byte(r))}, le32(v))
}

// MovReg is "mov dst, src".
func MovReg(dst, src Reg) []byte {
	return []byte{rexW, 0x89, modrm(3, byte(src), byte(dst))}
}

// MovLoad is "mov dst, [base]". base must not be rsp or rbp, whose plain
// encodings mean something else.
func MovLoad(dst, base Reg) []byte {
	if base == RSP || base == RBP {
		panic("amd64: MovLoad base " + base.String())
	}
	return []byte{rexW, 0x8B, modrm(0, byte(dst), byte(base))}
}

// MovLoadStack is "mov dst, [rsp+disp]".
func MovLoadStack(dst Reg, disp int32) []byte {
	return join([]byte{rexW, 0x8B}, stackOperand(byte(dst), disp))
}

// MovStore16 is "mov word [base], imm16".
func MovStore16(base Reg, v uint16) []byte {
	return join([]byte{0x66, 0xC7, modrm(0, 0, byte(base))}, le16(v))
}

// XorReg is "xor dst, src".
func XorReg(dst, src Reg) []byte {
	return []byte{rexW, 0x31, modrm(3, byte(src), byte(dst))}
}

// ---------------------------------------------------------------------------
// Arithmetic and comparison
// ---------------------------------------------------------------------------

// AddImm is "add r, imm", using the sign-extended byte form when it fits.
func AddImm(r Reg, v int32) []byte {
	if FitsInt8(int64(v)) {
		return []byte{rexW, 0x83, modrm(3, 0, byte(r)), byte(int8(v))}
	}
	return join([]byte{rexW, 0x81, modrm(3, 0, byte(r))}, le32(v))
}

// AddMem16Imm8 is "add word [base], simm8".
func AddMem16Imm8(base Reg, v int8) []byte {
	return []byte{0x66, 0x83, modrm(0, 0, byte(base)), byte(v)}
}

// CmpMem16Reg is "cmp word [base], r16".
func CmpMem16Reg(base, src Reg) []byte {
	return []byte{0x66, 0x39, modrm(0, byte(src), byte(base))}
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

// PushImm pushes a sign-extended immediate, in the byte form when it fits.
func PushImm(v int32) []byte {
	if FitsInt8(int64(v)) {
		return []byte{0x6A, byte(int8(v))}
	}
	return join([]byte{0x68}, le32(v))
}

// PushStack is "push qword [rsp+disp]". The address uses rsp as it was
// before the push.
func PushStack(disp int32) []byte {
	return join([]byte{0xFF}, stackOperand(6, disp))
}

// Pop is "pop r".
func Pop(r Reg) []byte {
	return []byte{0x58 + byte(r)}
}

// stackOperand encodes a [rsp+disp] memory operand: ModRM, SIB, disp8/32.
func stackOperand(reg byte, disp int32) []byte {
	if FitsInt8(int64(disp)) {
		return []byte{modrm(1, reg, 4), 0x24, byte(int8(disp))}
	}
	return join([]byte{modrm(2, reg, 4), 0x24}, le32(disp))
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Jcc is a conditional jump with a one-byte displacement.
func Jcc(c Cond, disp int8) []byte {
	return []byte{0x70 | byte(c), byte(disp)}
}

// Jmp8 is a short unconditional jump.
func Jmp8(disp int8) []byte {
	return []byte{0xEB, byte(disp)}
}

// Jmp32 is a near unconditional jump.
func Jmp32(disp int32) []byte {
	return join([]byte{0xE9}, le32(disp))
}

// Call32 is a near relative call.
func Call32(disp int32) []byte {
	return join([]byte{0xE8}, le32(disp))
}

// Ret is "ret".
func Ret() []byte { return []byte{0xC3} }

// Syscall is "syscall".
func Syscall() []byte { return []byte{0x0F, 0x05} }
