package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"brix/src/diag"
	"brix/src/frontend"
	ll "brix/src/ir/llvm"
	"brix/src/util"
)

// run reads source code and executes the compiler stages: lex and parse,
// LLVM code generation, object emission and, unless told otherwise,
// linking and running the produced binary. Behaviour is defined by the
// util.Options structure.
func run(opt util.Options) int {
	src, err := util.ReadSource(opt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read source code: %s\n", err)
		return 1
	}

	// If -ts flag was passed: output token stream and exit.
	if opt.TokenStream {
		out, derr := frontend.TokenStream(src)
		fmt.Print(out)
		if derr != nil {
			diag.Render(os.Stderr, src, opt.Src, derr)
			return derr.Kind.ExitCode()
		}
		return 0
	}

	// Generate the syntax tree by lexing and parsing source code.
	start := time.Now()
	prog, perr := frontend.Parse(src)
	if perr != nil {
		diag.Render(os.Stderr, src, opt.Src, perr)
		return perr.Kind.ExitCode()
	}
	if opt.Verbose {
		fmt.Printf("parse: %s\n", time.Since(start))
	}

	// Lower the syntax tree to LLVM IR and emit the object file.
	start = time.Now()
	if err := ll.GenLLVM(opt, prog, src); err != nil {
		var derr *diag.Error
		if errors.As(err, &derr) {
			diag.Render(os.Stderr, src, opt.Src, derr)
			return derr.Kind.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "error reported by LLVM: %s\n", err)
		return 1
	}
	if opt.Verbose {
		fmt.Printf("codegen: %s\n", time.Since(start))
	}

	if opt.EmitLLVM || opt.CompileOnly {
		return 0
	}

	// Link against the runtime and run the produced binary. The binary's
	// exit status becomes the compiler's exit status, so runtime traps
	// surface as exit code 1.
	return linkAndRun(opt)
}

// linkAndRun links the emitted object against the Brix runtime library
// with the system C compiler, executes the binary and propagates its exit
// status.
func linkAndRun(opt util.Options) int {
	obj := opt.Out
	if len(obj) == 0 {
		obj = fmt.Sprintf("./%s.o", strings.TrimSuffix(filepath.Base(opt.Src), filepath.Ext(opt.Src)))
	}
	bin := strings.TrimSuffix(obj, filepath.Ext(obj))

	cc := os.Getenv("CC")
	if len(cc) == 0 {
		cc = "cc"
	}
	link := exec.Command(cc, obj, "-o", bin, "-lbrixrt", "-llapack", "-lm")
	link.Stderr = os.Stderr
	if err := link.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "link error: %s\n", err)
		return 1
	}

	cmd := exec.Command(bin)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return ee.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "could not run %s: %s\n", bin, err)
		return 1
	}
	return 0
}

func main() {
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "command line argument error: %s\n", err)
		os.Exit(1)
	}

	os.Exit(run(opt))
}
