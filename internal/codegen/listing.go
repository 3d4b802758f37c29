package codegen

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Listing disassembles code as if loaded at base, one instruction per
// line: address, raw bytes, Intel syntax.
func Listing(code []byte, base uint64) string {
	var sb strings.Builder
	noSymbols := func(uint64) (string, uint64) { return "", 0 }
	for pc := 0; pc < len(code); {
		addr := base + uint64(pc)
		inst, err := x86asm.Decode(code[pc:], 64)
		if err != nil || inst.Len == 0 {
			fmt.Fprintf(&sb, "%8x:  %-24s (bad)\n", addr, fmt.Sprintf("% x", code[pc:pc+1]))
			pc++
			continue
		}
		raw := fmt.Sprintf("% x", code[pc:pc+inst.Len])
		fmt.Fprintf(&sb, "%8x:  %-24s %s\n", addr, raw, x86asm.IntelSyntax(inst, addr, noSymbols))
		pc += inst.Len
	}
	return sb.String()
}
