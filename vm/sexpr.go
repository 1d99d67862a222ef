package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// S-expression reader for WebAssembly text
// ---------------------------------------------------------------------------

// sexpr is an atom or a parenthesized list.
type sexpr struct {
	atom   string
	quoted bool // atom came from a string literal
	list   []*sexpr
	isList bool
	line   int
}

func (s *sexpr) String() string {
	if !s.isList {
		if s.quoted {
			return fmt.Sprintf("%q", s.atom)
		}
		return s.atom
	}
	parts := make([]string, len(s.list))
	for i, c := range s.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// head returns the leading keyword of a list, or "".
func (s *sexpr) head() string {
	if !s.isList || len(s.list) == 0 || s.list[0].isList {
		return ""
	}
	return s.list[0].atom
}

type reader struct {
	src  string
	pos  int
	line int
}

// readSexprs reads every top-level form in src.
func readSexprs(src string) ([]*sexpr, error) {
	r := &reader{src: src, line: 1}
	var out []*sexpr
	for {
		if err := r.skipSpace(); err != nil {
			return nil, err
		}
		if r.pos >= len(r.src) {
			return out, nil
		}
		s, err := r.read()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

func (r *reader) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("wat: line %d: %s", r.line, fmt.Sprintf(format, args...))
}

// skipSpace skips whitespace, line comments (;;) and block comments ((; ;)).
func (r *reader) skipSpace() error {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == '\n':
			r.line++
			r.pos++
		case c == ' ' || c == '\t' || c == '\r':
			r.pos++
		case strings.HasPrefix(r.src[r.pos:], ";;"):
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
		case strings.HasPrefix(r.src[r.pos:], "(;"):
			end := strings.Index(r.src[r.pos:], ";)")
			if end < 0 {
				return r.errorf("unterminated block comment")
			}
			r.line += strings.Count(r.src[r.pos:r.pos+end], "\n")
			r.pos += end + 2
		default:
			return nil
		}
	}
	return nil
}

func (r *reader) read() (*sexpr, error) {
	line := r.line
	switch c := r.src[r.pos]; c {
	case '(':
		r.pos++
		list := &sexpr{isList: true, line: line}
		for {
			if err := r.skipSpace(); err != nil {
				return nil, err
			}
			if r.pos >= len(r.src) {
				return nil, fmt.Errorf("wat: line %d: unclosed parenthesis", line)
			}
			if r.src[r.pos] == ')' {
				r.pos++
				return list, nil
			}
			child, err := r.read()
			if err != nil {
				return nil, err
			}
			list.list = append(list.list, child)
		}
	case ')':
		return nil, r.errorf("unexpected )")
	case '"':
		r.pos++
		var b strings.Builder
		for r.pos < len(r.src) && r.src[r.pos] != '"' {
			if r.src[r.pos] == '\\' && r.pos+1 < len(r.src) {
				r.pos++
			}
			if r.src[r.pos] == '\n' {
				r.line++
			}
			b.WriteByte(r.src[r.pos])
			r.pos++
		}
		if r.pos >= len(r.src) {
			return nil, fmt.Errorf("wat: line %d: unterminated string", line)
		}
		r.pos++
		return &sexpr{atom: b.String(), quoted: true, line: line}, nil
	default:
		start := r.pos
		for r.pos < len(r.src) {
			c := r.src[r.pos]
			if c == '(' || c == ')' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '"' || c == ';' {
				break
			}
			r.pos++
		}
		return &sexpr{atom: r.src[start:r.pos], line: line}, nil
	}
}
