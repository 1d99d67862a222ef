package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies compile failures.
type ErrorKind int

const (
	// KindParse: the syntax tree does not have the shape the grammar
	// position requires.
	KindParse ErrorKind = iota + 1
	// KindType: the program is ill-typed.
	KindType
	// KindInternal: code generation met a program the checker should have
	// rejected. Always a compiler defect.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse error"
	case KindType:
		return "type error"
	case KindInternal:
		return "internal error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a compile failure with its source span.
type Error struct {
	Kind ErrorKind
	Span Span
	Msg  string
}

func (e *Error) Error() string {
	if e.Span.Start.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s at line %d:%d: %s", e.Kind, e.Span.Start.Line, e.Span.Start.Column, e.Msg)
}

func parseErrorf(span Span, format string, args ...interface{}) *Error {
	return &Error{Kind: KindParse, Span: span, Msg: fmt.Sprintf(format, args...)}
}

func typeErrorf(span Span, format string, args ...interface{}) *Error {
	return &Error{Kind: KindType, Span: span, Msg: fmt.Sprintf(format, args...)}
}

func internalErrorf(span Span, format string, args ...interface{}) *Error {
	err := &Error{Kind: KindInternal, Span: span, Msg: fmt.Sprintf(format, args...)}
	log.Criticalf("%s", err)
	return err
}

// KindOf returns the kind of a compile error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return 0
}

// Render formats err with a caret snippet of src when it carries a
// position. Other errors render as their message.
func Render(err error, src string) string {
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Span.Start.Line == 0 {
		return err.Error()
	}
	header := strings.ToUpper(cerr.Kind.String())
	return snippet(src, header, cerr.Span.Start.Line, cerr.Span.Start.Column, cerr.Msg)
}

// snippet shows the offending line with one line of context either side
// and a caret under the column.
func snippet(src, header string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	if col < 1 {
		col = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) && strings.TrimSpace(lines[line]) != "" {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
