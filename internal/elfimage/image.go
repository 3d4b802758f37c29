// Package elfimage wraps raw x86-64 machine code in a minimal statically
// loaded ELF64 executable: one header, one PT_LOAD segment, no sections.
package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
)

// Layout of the image. Code starts right after the two headers plus eight
// bytes of padding.
const (
	BaseAddr   = 0x400000
	CodeOffset = 0x80
	EntryAddr  = BaseAddr + CodeOffset
	Align      = 0x200000

	headerSize  = 64
	programSize = 56
)

// Legacy section fields. They point past the end of the file, so tools that
// read sections reject such images; the loader ignores them.
const (
	legacyShoff    = 0x198
	legacyShnum    = 5
	legacyShstrndx = 4
)

// Options controls details of the generated header.
type Options struct {
	// LegacySectionFields fills e_shoff, e_shnum and e_shstrndx with the
	// values older compilers wrote, for byte-identical output.
	LegacySectionFields bool
}

type header struct {
	Ident     [elf.EI_NIDENT]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type program struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Build returns the complete executable image for code.
func Build(code []byte, opts *Options) []byte {
	if opts == nil {
		opts = &Options{}
	}
	size := uint64(CodeOffset + len(code))

	h := header{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     EntryAddr,
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: programSize,
		Phnum:     1,
		Shentsize: 64,
	}
	copy(h.Ident[:], elf.ELFMAG)
	h.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	h.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	h.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	h.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	if opts.LegacySectionFields {
		h.Shoff = legacyShoff
		h.Shnum = legacyShnum
		h.Shstrndx = legacyShstrndx
	}

	p := program{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    0,
		Vaddr:  BaseAddr,
		Paddr:  BaseAddr,
		Filesz: size,
		Memsz:  size,
		Align:  Align,
	}

	var buf bytes.Buffer
	buf.Grow(int(size))
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, &h)
	_ = binary.Write(&buf, binary.LittleEndian, &p)
	buf.Write(make([]byte, CodeOffset-headerSize-programSize))
	buf.Write(code)
	return buf.Bytes()
}

// WriteFile writes an image built by Build to path as an executable file.
func WriteFile(path string, img []byte) error {
	if err := os.WriteFile(path, img, 0o755); err != nil {
		return fmt.Errorf("write executable: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("write executable: %w", err)
	}
	return nil
}
