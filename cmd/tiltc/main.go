// cmd/tiltc/main.go
package main

import (
	"fmt"
	"os"

	"golang.org/x/mod/semver"

	"tilt/internal/diag"
	"tilt/internal/driver"
	"tilt/internal/lexer"
	"tilt/internal/lower"
	"tilt/internal/parser"
	"tilt/internal/value"
)

const version = "v0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "--version", "-v", "version":
		showVersion()
		return
	}

	if err := run(args); err != nil {
		fmt.Fprintln(os.Stderr, "tiltc:", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`usage: tiltc <file.tilt> [--vm|--jit|--both] [--arg N] [--show-ast] [--show-ir] [--verbose]

  --vm         run on the tree/IR interpreter only (default)
  --jit        run on the native JIT engine only
  --both       run on both engines and fail if they disagree
  --arg N      pass N (an integer) as main's sole argument, if it has one
  --show-ast   print the parsed AST and exit
  --show-ir    print a one-line summary of each lowered function and exit
  --verbose    print the module's build id and the engine(s) used`)
}

func showVersion() {
	if !semver.IsValid(version) {
		fmt.Fprintln(os.Stderr, "tiltc: internal error: malformed version string", version)
		os.Exit(1)
	}
	fmt.Println("tiltc", version)
}

type options struct {
	path    string
	engine  driver.Engine
	arg     int64
	hasArg  bool
	showAST bool
	showIR  bool
	verbose bool
}

func parseArgs(args []string) (*options, error) {
	opt := &options{engine: driver.VM}
	for i := 0; i < len(args); i++ {
		switch a := args[i]; a {
		case "--vm":
			opt.engine = driver.VM
		case "--jit":
			opt.engine = driver.JIT
		case "--both":
			opt.engine = driver.Both
		case "--show-ast":
			opt.showAST = true
		case "--show-ir":
			opt.showIR = true
		case "--verbose":
			opt.verbose = true
		case "--arg":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--arg requires a value")
			}
			i++
			var n int64
			if _, err := fmt.Sscanf(args[i], "%d", &n); err != nil {
				return nil, fmt.Errorf("--arg: invalid integer %q", args[i])
			}
			opt.arg, opt.hasArg = n, true
		default:
			if opt.path != "" {
				return nil, fmt.Errorf("unexpected argument %q", a)
			}
			opt.path = a
		}
	}
	if opt.path == "" {
		return nil, fmt.Errorf("no input file given")
	}
	return opt, nil
}

func run(args []string) error {
	opt, err := parseArgs(args)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(opt.path)
	if err != nil {
		return err
	}

	toks, lexErrs := lexer.New(opt.path, string(src)).Scan()
	if len(lexErrs) > 0 {
		return reportAll(lexErrs)
	}

	astMod, parseErrs := parser.New(opt.path, toks).Parse()
	if len(parseErrs) > 0 {
		return reportAll(parseErrs)
	}

	if opt.showAST {
		fmt.Printf("%+v\n", astMod)
		return nil
	}

	irMod, lowerErrs := lower.Lower(opt.path, astMod)
	if len(lowerErrs) > 0 {
		return reportAll(lowerErrs)
	}

	if opt.showIR {
		for _, fn := range irMod.Funcs {
			fmt.Printf("fn %s -> %s (%d SSA ids, %d blocks)\n", fn.Name, fn.RetType, fn.NumSSA, len(fn.Blocks))
		}
		return nil
	}

	if opt.verbose {
		fmt.Printf("build %s, engine %s\n", irMod.BuildID, opt.engine)
	}

	var callArgs []value.Value
	main := irMod.FuncByName("main")
	if main != nil && len(main.Params) == 1 {
		callArgs = []value.Value{value.FromInt64(main.Params[0].Type, opt.arg)}
	}

	res, err := driver.Run(irMod, "main", callArgs, opt.engine)
	if err != nil {
		return err
	}

	switch opt.engine {
	case driver.VM:
		fmt.Printf("Final result: %s\n", res.VMValue)
	case driver.JIT:
		fmt.Printf("Final result: %s\n", res.JITValue)
	case driver.Both:
		fmt.Printf("Final result: %s (vm and jit agree)\n", res.VMValue)
	}
	return nil
}

func reportAll(errs []*diag.Error) error {
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e.Error())
	}
	return fmt.Errorf("%d error(s)", len(errs))
}
