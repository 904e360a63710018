// Package diag implements TILT's structured error taxonomy (spec §7).
// Lowering errors are collected as values and returned, never panicked;
// runtime errors are returned from the VM/JIT Run entry points as ordinary
// Go errors and turned into a process exit code only at the CLI boundary.
package diag

import "fmt"

// Kind classifies an Error per the taxonomy in spec §7.
type Kind string

const (
	LexError      Kind = "LexError"
	ParseError    Kind = "ParseError"
	NameError     Kind = "NameError"
	TypeError     Kind = "TypeError"
	CFGError      Kind = "CFGError"
	UnknownOp     Kind = "UnknownOp"
	UnknownImport Kind = "UnknownImport"
	DivByZero     Kind = "DivByZero"
	MemoryFault   Kind = "MemoryFault"
	HostABIError  Kind = "HostABIError"
)

// Pos is a location in source text. A zero Pos (Line == 0) means "unknown".
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.Line == 0 {
		return ""
	}
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Error is a structured TILT diagnostic. It implements the error interface
// so it composes with ordinary Go error handling, but lowering never panics
// with one -- they are constructed and returned as values.
type Error struct {
	Kind    Kind
	Message string
	Pos     Pos
}

func (e *Error) Error() string {
	if loc := e.Pos.String(); loc != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Message, loc)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an Error with no location information.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At builds an Error located at pos.
func At(kind Kind, pos Pos, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos}
}
