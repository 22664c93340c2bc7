package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/funvibe/funweave/internal/config"
	"github.com/funvibe/funweave/internal/metadata"
	"github.com/funvibe/funweave/internal/modfile"
	"github.com/funvibe/funweave/internal/vm"
)

const usage = `Usage:
  funweave weave <module> [module...] [-o output] [-config file] [-v]
  funweave check <module> [module...] [-config file] [-v]
  funweave dump <module>
  funweave run <module> <Type> <method> [args...]

Modules are read as text (.fwm.yaml) or binary (.fwm) by extension.
The output format follows the extension of -o; without -o a module is
woven in place.
`

func handleHelp() bool {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "-help", "--help", "help", "-h":
		default:
			return false
		}
	}
	fmt.Print(usage)
	return true
}

func handleWeave() bool {
	if len(os.Args) < 2 || os.Args[1] != "weave" {
		return false
	}
	opts, err := parseOptions(os.Args[2:], true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}

	results, ok := weaveAll(opts)
	for _, r := range results {
		if r.ctx.Failed() {
			continue
		}
		fmt.Printf("Woven %s -> %s\n", r.input, r.output)
		fmt.Printf("  %s\n", summary(r))
	}
	if !ok {
		os.Exit(1)
	}
	return true
}

// handleCheck weaves without writing anything.
func handleCheck() bool {
	if len(os.Args) < 2 || os.Args[1] != "check" {
		return false
	}
	opts, err := parseOptions(os.Args[2:], false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}

	results, ok := weaveAll(opts)
	for _, r := range results {
		if !r.ctx.Failed() {
			fmt.Printf("ok  %s\n", r.input)
		}
	}
	if !ok {
		os.Exit(1)
	}
	return true
}

func handleDump() bool {
	if len(os.Args) < 2 || os.Args[1] != "dump" {
		return false
	}
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s dump <module>\n", os.Args[0])
		os.Exit(2)
	}
	m, err := modfile.ReadFile(os.Args[2])
	if err != nil {
		reportErrors(os.Args[2], []error{err})
		os.Exit(1)
	}
	fmt.Print(metadata.Disassemble(m))
	return true
}

// handleRun executes a static method of a module, woven or not.
func handleRun() bool {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		return false
	}
	if len(os.Args) < 5 {
		fmt.Fprintf(os.Stderr, "Usage: %s run <module> <Type> <method> [args...]\n", os.Args[0])
		os.Exit(2)
	}
	m, err := modfile.ReadFile(os.Args[2])
	if err != nil {
		reportErrors(os.Args[2], []error{err})
		os.Exit(1)
	}

	args := make([]vm.Value, 0, len(os.Args)-5)
	for _, a := range os.Args[5:] {
		args = append(args, parseArg(a))
	}

	result, err := vm.New(m).Call(os.Args[3], os.Args[4], args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	fmt.Println(vm.Format(result))
	return true
}

// parseArg reads a command-line argument as Int32, Boolean or String.
func parseArg(s string) vm.Value {
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(n)
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "This is a bug. Please report it.")
			os.Exit(1)
		}
	}()

	if len(os.Args) >= 2 && os.Args[1] == "check" {
		config.IsTestMode = true
	}

	if handleHelp() {
		return
	}
	if handleWeave() {
		return
	}
	if handleCheck() {
		return
	}
	if handleDump() {
		return
	}
	if handleRun() {
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
	fmt.Fprint(os.Stderr, usage)
	os.Exit(2)
}
