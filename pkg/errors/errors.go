package errors

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// LynxError is the interface implemented by all errors surfaced by the engine
// at the embedding boundary.
type LynxError interface {
	error
	Pos() Position
	Kind() string // "Syntax", "Link", "Runtime", "Engine"
	// Message returns the error message without position info.
	Message() string
	Unwrap() error
}

// --- Concrete Error Types ---

// SyntaxError reports malformed assembler text. Position.Function holds the
// source file name.
type SyntaxError struct {
	Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Syntax Error at %s:%d: %s", e.Function, e.Line, e.Msg)
}
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "Syntax" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return nil }

// LinkError reports a compiled unit the engine refused to load: an unresolved
// block, an out-of-range pool id, a regex that failed to compile.
type LinkError struct {
	Position
	Msg   string
	Cause error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("Link Error in %s: %s", e.Position, e.Msg)
}
func (e *LinkError) Pos() Position   { return e.Position }
func (e *LinkError) Kind() string    { return "Link" }
func (e *LinkError) Message() string { return e.Msg }
func (e *LinkError) Unwrap() error   { return e.Cause }
func (e *LinkError) CausedBy(cause error) *LinkError {
	e.Cause = cause
	return e
}

// BacktraceFrame is one activation in a RuntimeError backtrace, innermost first.
type BacktraceFrame struct {
	Position
}

// RuntimeError represents a script exception nobody caught. Thrown is the
// rendered thrown value; Cause is the engine's *vm.Exception carrying it.
type RuntimeError struct {
	Position
	Msg       string
	Backtrace []BacktraceFrame
	Cause     error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("Uncaught %s", e.Msg)
}
func (e *RuntimeError) Pos() Position   { return e.Position }
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }
func (e *RuntimeError) CausedBy(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// EngineCode identifies a class of engine invariant violation.
type EngineCode int

// Stable codes - do not renumber.
const (
	EngineStaleHandle     EngineCode = 2001 // handle generation does not match its slab cell
	EngineBadHandle       EngineCode = 2002 // handle refers to the wrong kind of cell
	EngineUnresolvedBlock EngineCode = 2003 // jump to a block that was never created
	EngineStackUnderflow  EngineCode = 2004 // temp, handler or iterator stack popped empty
	EngineWindowOverflow  EngineCode = 2005 // stack offset outside the activation window
	EngineBadOperand      EngineCode = 2006 // operand outside the declared pools or slots
	EngineBadOpcode       EngineCode = 2007 // opcode the interpreter does not know
	EngineThreadAffinity  EngineCode = 2008 // runtime used from a goroutine that is not attached
	EngineCoroutine       EngineCode = 2009 // coroutine resumed in an impossible state
)

func (c EngineCode) String() string {
	return fmt.Sprintf("E%d", int(c))
}

// EngineError is a fatal engine defect. It is raised with panic, never
// returned, because it means the compiler or the engine broke a contract.
type EngineError struct {
	Position
	Code EngineCode
	Msg  string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine defect %s: %s", e.Code, e.Msg)
}
func (e *EngineError) Pos() Position   { return e.Position }
func (e *EngineError) Kind() string    { return "Engine" }
func (e *EngineError) Message() string { return e.Msg }
func (e *EngineError) Unwrap() error   { return nil }

// Fatal panics with an EngineError.
func Fatal(code EngineCode, format string, args ...any) {
	panic(&EngineError{Code: code, Msg: fmt.Sprintf(format, args...)})
}

// --- Error Reporting ---

var (
	kindColor = color.New(color.FgRed, color.Bold)
	posColor  = color.New(color.FgCyan)
	dimColor  = color.New(color.Faint)
)

// DisplayErrors writes a list of engine errors to w, one block per error,
// including the backtrace of runtime errors.
func DisplayErrors(w io.Writer, errs []LynxError) {
	for _, err := range errs {
		kindColor.Fprintf(w, "%s Error", err.Kind())
		fmt.Fprintf(w, ": %s\n", err.Message())
		if pos := err.Pos(); pos.Function != "" || pos.PC != 0 {
			fmt.Fprint(w, "  at ")
			posColor.Fprintln(w, pos.String())
		}
		if rt, ok := err.(*RuntimeError); ok && len(rt.Backtrace) > 1 {
			var sb strings.Builder
			for i, frame := range rt.Backtrace[1:] {
				fmt.Fprintf(&sb, "  %d: %s\n", i+1, frame.Position)
			}
			dimColor.Fprint(w, sb.String())
		}
		fmt.Fprintln(w)
	}
}
