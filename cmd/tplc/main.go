package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tplc/internal/ast"
	"tplc/internal/codegen"
	"tplc/internal/compiler"
	"tplc/internal/diag"
	"tplc/internal/elfimage"
	"tplc/internal/lexer"

	"github.com/davecgh/go-spew/spew"
	"github.com/logrusorgru/aurora"
)

const VERSION = "0.2.0"

const usage = "Usage: tplc [--debug] [--out=path] [--legacy-header] [--run] [--no-color] [file]"

var (
	debugMode = false
	au        = aurora.NewAurora(true)
)

func main() {
	start := time.Now()
	exitCode := run(os.Args[1:])
	if exitCode == 0 {
		printDebug(fmt.Sprintf("Compile time: %s", time.Since(start)))
	}
	os.Exit(exitCode)
}

func run(args []string) int {
	filePath := "test.tpl"
	outPath := "compiled"
	legacy, runAfter := false, false

	for _, arg := range args {
		switch {
		case arg == "--debug":
			debugMode = true
		case arg == "--legacy-header":
			legacy = true
		case arg == "--run":
			runAfter = true
		case arg == "--no-color":
			au = aurora.NewAurora(false)
		case arg == "--version":
			fmt.Println("tplc " + VERSION)
			return 0
		case arg == "--help" || arg == "-h":
			fmt.Println(usage)
			return 0
		case strings.HasPrefix(arg, "--out="):
			outPath = strings.TrimPrefix(arg, "--out=")
			if outPath == "" {
				printError("--out needs a path")
				return 1
			}
		case strings.HasPrefix(arg, "-"):
			printError("unknown flag " + arg)
			fmt.Println(usage)
			return 1
		default:
			filePath = arg
		}
	}
	printDebug("Using debug mode.")
	printDebug("Building using: " + filePath)

	content, err := os.ReadFile(filePath)
	if err != nil {
		printError(fmt.Sprintf("could not read %s: %v", filePath, err))
		return 1
	}

	if debugMode {
		printStage("Tokens")
		if tokens, err := lexer.Lex(string(content)); err == nil {
			printTokens(tokens)
		}
	}

	opts := compiler.DefaultOptions()
	opts.LegacyHeader = legacy
	opts.Verbose = debugMode
	res, err := compiler.Compile(string(content), opts)
	if err != nil {
		printCompileError(filePath, err)
		return 1
	}

	if debugMode {
		printStage("Instructions")
		fmt.Print(ast.DebugString(res.Instructions))
		for _, ins := range res.Instructions {
			fmt.Print(au.Faint(spew.Sdump(ins)))
		}
		printStage("Machine code")
		fmt.Print(codegen.Listing(res.Code, elfimage.EntryAddr))
	}

	if err := res.WriteExecutable(outPath); err != nil {
		printError(err.Error())
		return 1
	}
	fmt.Printf("%s %s (%d bytes)\n", au.Green("Wrote"), outPath, len(res.Image))

	if runAfter {
		if !strings.ContainsRune(outPath, os.PathSeparator) {
			outPath = "./" + outPath
		}
		printDebug("Running " + outPath)
		if err := compiler.Execute(context.Background(), outPath, os.Stdout); err != nil {
			printError(err.Error())
			return 1
		}
	}
	return 0
}

func printCompileError(filePath string, err error) {
	var de *diag.Error
	if errors.As(err, &de) && de.Pos.IsValid() {
		fmt.Printf("%s:%s: %s %s\n", filePath, de.Pos, au.Red(au.Bold(de.Kind.String())), de.Message)
		return
	}
	printError(err.Error())
}

func printError(message string) {
	fmt.Println(au.Red("Error: " + message))
}

func printStage(name string) {
	if !debugMode {
		return
	}
	fmt.Println(au.Cyan("--- " + name + " ---"))
}

func printDebug(message string) {
	if !debugMode {
		return
	}
	fmt.Println(au.Faint("[DEBUG] " + message))
}

func printTokens(tokens []lexer.Token) {
	if !debugMode {
		return
	}
	for _, token := range tokens {
		printDebug(fmt.Sprintf("Token: %s, Value: %s, Pos: %s", token.Type, token.Value, token.Pos))
	}
}
