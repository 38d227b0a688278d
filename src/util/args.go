package util

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

type Options struct {
	Src         string // Path to source file.
	Out         string // Path to output file.
	Verbose     bool   // Set true if compiler should log stage timings to stdout.
	TokenStream bool   // Set true if compiler should output token stream and exit.
	EmitLLVM    bool   // Set true if compiler should dump the textual LLVM module and exit.
	CompileOnly bool   // Set true if compiler should stop after emitting the object file.
}

// ---------------------
// ----- Constants -----
// ---------------------

const appVersion = "brix compiler 0.4"

// ---------------------
// ----- functions -----
// ---------------------

// ParseArgs parses command line arguments.
func ParseArgs() (Options, error) {
	opt := Options{}
	args := os.Args[1:]
	for i1 := 0; i1 < len(args); i1++ {
		switch args[i1] {
		case "-h", "--h", "-help", "--help":
			// Help and usage.
			printHelp()
			os.Exit(0)
		case "-o":
			// Output file.
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			if strings.HasPrefix(args[i1+1], "-") {
				return opt, fmt.Errorf("expected output path, got new flag %s", args[i1+1])
			}
			opt.Out = args[i1+1]
			i1++
		case "-ts":
			// Output token stream.
			opt.TokenStream = true
		case "-emit-llvm":
			// Dump textual LLVM IR instead of compiling to an object.
			opt.EmitLLVM = true
		case "-c":
			// Stop after the object file; do not link and run.
			opt.CompileOnly = true
		case "-v", "--v", "-version", "--version":
			// Application version.
			fmt.Println(appVersion)
			os.Exit(0)
		case "-vb":
			// Verbose mode.
			opt.Verbose = true
		default:
			if strings.HasPrefix(args[i1], "-") {
				return opt, fmt.Errorf("unexpected flag: %s", args[i1])
			}
			if len(opt.Src) > 0 {
				return opt, fmt.Errorf("multiple source files given: %s and %s", opt.Src, args[i1])
			}
			opt.Src = args[i1]
		}
	}
	return opt, nil
}

// printHelp prints a helpful usage message to stdout.
func printHelp() {
	fmt.Println("usage: brix [flags] <source.bx>")
	w := tabwriter.NewWriter(os.Stdout, 6, 1, 1, 0, 0)
	_, _ = fmt.Fprintln(w, "-h, -help\tPrints this help message and exits the application.")
	_, _ = fmt.Fprintln(w, "-o\tPath and name of the output file.")
	_, _ = fmt.Fprintln(w, "-c\tCompile to an object file only; do not link and run.")
	_, _ = fmt.Fprintln(w, "-emit-llvm\tPrint the textual LLVM module and exit.")
	_, _ = fmt.Fprintln(w, "-ts\tOutput the tokens of the source code and exit.")
	_, _ = fmt.Fprintln(w, "-v, -version\tPrints application version and exits the application.")
	_, _ = fmt.Fprintln(w, "-vb\tVerbose mode: print stage timings to stdout.")
	_ = w.Flush()
}
