// Package diag defines the structured error values produced by the
// compiler and renders them as contextual source reports. Codegen errors
// carry a fixed code in the E100-E105 range; lex and parse errors render
// as syntax errors. The exit-code discipline of the compiler process is
// owned here as well.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"brix/src/ir"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Kind enumerates the error categories.
type Kind int

const (
	General Kind = iota // E100: otherwise-unclassified compiler failure.
	LLVM                // E101: an IR-builder operation refused the request.
	Type                // E102: implicit conversion or operator not permitted.
	Undefined           // E103: referenced name not in scope.
	Invalid             // E104: legal syntax but forbidden action.
	Missing             // E105: sub-expression produced no value.
	Lex                 // Unrecognised character or malformed literal.
	Parse               // Token stream does not match the grammar.
)

// Error is a structured compiler error with a source span.
type Error struct {
	Kind Kind
	Msg  string
	Span ir.Span
}

// ---------------------
// ----- functions -----
// ---------------------

// Code returns the diagnostic code, e.g. "E103". Lex and parse errors have
// no code.
func (k Kind) Code() string {
	switch k {
	case General:
		return "E100"
	case LLVM:
		return "E101"
	case Type:
		return "E102"
	case Undefined:
		return "E103"
	case Invalid:
		return "E104"
	case Missing:
		return "E105"
	}
	return ""
}

// Label returns the short human-readable label of the kind.
func (k Kind) Label() string {
	switch k {
	case General:
		return "General"
	case LLVM:
		return "LLVMError"
	case Type:
		return "TypeError"
	case Undefined:
		return "UndefinedSymbol"
	case Invalid:
		return "InvalidOperation"
	case Missing:
		return "MissingValue"
	case Lex:
		return "SyntaxError"
	case Parse:
		return "SyntaxError"
	}
	return "Unknown"
}

// ExitCode returns the compiler process exit code for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case General:
		return 100
	case LLVM:
		return 101
	case Type:
		return 102
	case Undefined:
		return 103
	case Invalid:
		return 104
	case Missing:
		return 105
	case Lex, Parse:
		return 2
	}
	return 1
}

func (e *Error) Error() string {
	if code := e.Kind.Code(); code != "" {
		return fmt.Sprintf("%s %s: %s", code, e.Kind.Label(), e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Label(), e.Msg)
}

// Errorf builds an error of the given kind with a formatted message.
func Errorf(k Kind, sp ir.Span, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Span: sp}
}

// Generalf builds an E100 error.
func Generalf(sp ir.Span, format string, args ...interface{}) *Error {
	return Errorf(General, sp, format, args...)
}

// LLVMf builds an E101 error.
func LLVMf(sp ir.Span, format string, args ...interface{}) *Error {
	return Errorf(LLVM, sp, format, args...)
}

// Typef builds an E102 error from the actual and expected types.
func Typef(sp ir.Span, actual, expected string) *Error {
	return Errorf(Type, sp, "expected %s, got %s", expected, actual)
}

// TypeOpf builds an E102 error for an operator applied to unsupported types.
func TypeOpf(sp ir.Span, format string, args ...interface{}) *Error {
	return Errorf(Type, sp, format, args...)
}

// Undefinedf builds an E103 error for an unresolved name.
func Undefinedf(sp ir.Span, name string) *Error {
	return Errorf(Undefined, sp, "undefined symbol %q", name)
}

// Invalidf builds an E104 error.
func Invalidf(sp ir.Span, format string, args ...interface{}) *Error {
	return Errorf(Invalid, sp, format, args...)
}

// Missingf builds an E105 error.
func Missingf(sp ir.Span, format string, args ...interface{}) *Error {
	return Errorf(Missing, sp, format, args...)
}

// Parsef builds a parse error.
func Parsef(sp ir.Span, format string, args ...interface{}) *Error {
	return Errorf(Parse, sp, format, args...)
}

// Lexf builds a lex error.
func Lexf(sp ir.Span, format string, args ...interface{}) *Error {
	return Errorf(Lex, sp, format, args...)
}

// LineCol converts a byte offset into 1-based line and column numbers
// against the source buffer.
func LineCol(src string, off int) (line, col int) {
	if off > len(src) {
		off = len(src)
	}
	line = 1
	col = 1
	for _, r := range src[:off] {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// lineAt returns the full source line containing byte offset off and the
// offset of its first byte.
func lineAt(src string, off int) (string, int) {
	if off > len(src) {
		off = len(src)
	}
	start := strings.LastIndexByte(src[:off], '\n') + 1
	end := strings.IndexByte(src[start:], '\n')
	if end < 0 {
		return src[start:], start
	}
	return src[start : start+end], start
}

// Render writes the contextual source report for err: a colour-coded
// header, the offending source line with a caret underline, and the
// file position.
func Render(w io.Writer, src, file string, err *Error) {
	header := color.New(color.FgRed, color.Bold)
	if code := err.Kind.Code(); code != "" {
		_, _ = header.Fprintf(w, "error[%s] %s", code, err.Kind.Label())
	} else {
		_, _ = header.Fprintf(w, "error %s", err.Kind.Label())
	}
	_, _ = fmt.Fprintf(w, ": %s\n", err.Msg)

	renderContext(w, src, file, err.Span)
}

// Warnf writes a yellow warning with the same source context as Render.
func Warnf(w io.Writer, src, file string, sp ir.Span, format string, args ...interface{}) {
	header := color.New(color.FgYellow, color.Bold)
	_, _ = header.Fprint(w, "warning")
	_, _ = fmt.Fprintf(w, ": %s\n", fmt.Sprintf(format, args...))
	renderContext(w, src, file, sp)
}

// renderContext prints the source line, a caret underline at the span and
// the file:line:col trailer.
func renderContext(w io.Writer, src, file string, sp ir.Span) {
	line, col := LineCol(src, sp.Start)
	text, lineStart := lineAt(src, sp.Start)

	_, _ = fmt.Fprintf(w, "%5d | %s\n", line, text)

	// Underline the span, clamped to the line.
	n := sp.End - sp.Start
	if n < 1 {
		n = 1
	}
	if rest := len(text) - (sp.Start - lineStart); n > rest && rest > 0 {
		n = rest
	}
	pad := strings.Repeat(" ", col-1)
	_, _ = fmt.Fprintf(w, "      | %s%s\n", pad, color.RedString(strings.Repeat("^", n)))
	_, _ = fmt.Fprintf(w, "      --> %s:%d:%d\n", file, line, col)
}
