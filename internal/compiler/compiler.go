// Package compiler runs the whole pipeline: source text to instruction
// stream to machine code to ELF image.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"tplc/internal/ast"
	"tplc/internal/codegen"
	"tplc/internal/elfimage"
	"tplc/internal/parser"
)

// ErrCannotExecute is returned by Execute on hosts that cannot run the
// produced images.
var ErrCannotExecute = errors.New("compiled images only run on linux/amd64")

// Options controls a compilation.
type Options struct {
	Entry        string    // entry function, default "main"
	LegacyHeader bool      // reproduce the historical section header fields
	Verbose      bool      // log each stage to Log
	Log          io.Writer // defaults to os.Stdout
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{Entry: "main", Log: os.Stdout}
}

// Result holds every stage's output of a successful compilation.
type Result struct {
	Instructions []ast.Instruction
	Code         []byte // raw machine code, loaded at elfimage.EntryAddr
	Image        []byte // complete executable
}

// Compile translates src into an executable image. The first error aborts
// the compilation.
func Compile(src string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Log == nil {
		opts.Log = os.Stdout
	}
	logf := func(format string, args ...interface{}) {
		if opts.Verbose {
			fmt.Fprintf(opts.Log, "[tplc] "+format+"\n", args...)
		}
	}

	logf("parsing %d bytes of source", len(src))
	instrs, err := parser.ParseSource(src)
	if err != nil {
		return nil, err
	}
	logf("parsed %d instructions", len(instrs))

	code, err := codegen.Generate(instrs, &codegen.Options{Entry: opts.Entry})
	if err != nil {
		return nil, err
	}
	logf("generated %d bytes of machine code", len(code))

	img := elfimage.Build(code, &elfimage.Options{LegacySectionFields: opts.LegacyHeader})
	logf("image is %d bytes, entry %#x", len(img), elfimage.EntryAddr)

	return &Result{Instructions: instrs, Code: code, Image: img}, nil
}

// WriteExecutable writes the image to path with execute permission.
func (r *Result) WriteExecutable(path string) error {
	return elfimage.WriteFile(path, r.Image)
}

// Execute runs a compiled executable, copying its standard output to
// stdout. It refuses to run on hosts that cannot execute the image.
func Execute(ctx context.Context, path string, stdout io.Writer) error {
	if !HostTarget().CanExecute() {
		return ErrCannotExecute
	}
	cmd := exec.CommandContext(ctx, path)
	cmd.Stdout = stdout

	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s failed: %w\n%s", path, err, stderr.String())
	}
	return nil
}
