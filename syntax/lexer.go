package syntax

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: indentation-aware tokenizer
// ---------------------------------------------------------------------------

const tabWidth = 8

// Lexer tokenizes source text, turning leading whitespace into
// INDENT/DEDENT tokens and line ends into NEWLINE tokens.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int
	col     int

	indents     []int
	pending     []Token
	depth       int // open parentheses; newlines inside are ignored
	atLineStart bool
	last        TokenType
	done        bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:       input,
		line:        1,
		indents:     []int{0},
		atLineStart: true,
		last:        TokenNewline,
	}
	l.readChar()
	l.col = 1
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else if l.pos < l.readPos {
		l.col++
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) emit(t Token) Token {
	l.last = t.Type
	return t
}

// NextToken returns the next token. After EOF has been returned it keeps
// returning EOF.
func (l *Lexer) NextToken() Token {
	if len(l.pending) > 0 {
		t := l.pending[0]
		l.pending = l.pending[1:]
		return l.emit(t)
	}
	if l.done {
		return Token{Type: TokenEOF, Pos: l.position(), End: len(l.input)}
	}

	if l.atLineStart && l.depth == 0 {
		if t, ok := l.readIndentation(); ok {
			return l.emit(t)
		}
		if len(l.pending) > 0 {
			return l.NextToken()
		}
	}

	l.skipSpaceAndComments()
	pos := l.position()

	switch {
	case l.ch == 0:
		return l.finish(pos)

	case l.ch == '\n':
		l.readChar()
		if l.depth > 0 {
			return l.NextToken()
		}
		l.atLineStart = true
		return l.emit(Token{Type: TokenNewline, Literal: "\n", Pos: pos, End: pos.Offset + 1})

	case l.ch == '\\' && (l.peekChar() == '\n' || l.peekChar() == '\r'):
		l.readChar()
		if l.ch == '\r' {
			l.readChar()
		}
		l.readChar()
		return l.NextToken()

	case isDigit(l.ch):
		return l.emit(l.readNumber(pos))

	case l.ch == '\'' || l.ch == '"':
		return l.emit(l.readString(pos))

	case isLetter(l.ch):
		return l.emit(l.readName(pos))
	}

	return l.emit(l.readOperator(pos))
}

// finish flushes the trailing NEWLINE and DEDENTs before EOF.
func (l *Lexer) finish(pos Position) Token {
	l.done = true
	if l.last != TokenNewline && l.last != TokenDedent && l.last != TokenIndent {
		l.pending = append(l.pending, Token{Type: TokenNewline, Pos: pos, End: pos.Offset})
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.pending = append(l.pending, Token{Type: TokenDedent, Pos: pos, End: pos.Offset})
	}
	l.pending = append(l.pending, Token{Type: TokenEOF, Pos: pos, End: pos.Offset})
	t := l.pending[0]
	l.pending = l.pending[1:]
	return l.emit(t)
}

// readIndentation measures the indentation of the next logical line.
// Blank and comment-only lines are skipped. It returns an INDENT or an
// error token directly, queues DEDENTs, or reports nothing to emit.
func (l *Lexer) readIndentation() (Token, bool) {
	for {
		width := 0
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\f' {
			switch l.ch {
			case '\t':
				width = (width/tabWidth + 1) * tabWidth
			case ' ':
				width++
			}
			l.readChar()
		}
		if l.ch == '#' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		}
		if l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '\n' {
			l.readChar()
			continue
		}
		if l.ch == 0 {
			return Token{}, false
		}

		l.atLineStart = false
		pos := l.position()
		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			return Token{Type: TokenIndent, Pos: pos, End: pos.Offset}, true
		case width < top:
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, Token{Type: TokenDedent, Pos: pos, End: pos.Offset})
			}
			if l.indents[len(l.indents)-1] != width {
				l.pending = nil
				l.done = true
				return Token{Type: TokenError, Literal: "unindent does not match any outer indentation level", Pos: pos, End: pos.Offset}, true
			}
		}
		return Token{}, false
	}
}

func (l *Lexer) skipSpaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\f' {
			l.readChar()
		}
		if l.ch == '#' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
}

func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	start := l.pos
	l.readChar()
	for l.ch != quote {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string literal", Pos: pos, End: l.pos}
		}
		if l.ch == '\\' {
			l.readChar()
		}
		l.readChar()
	}
	l.readChar()
	return Token{Type: TokenString, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
}

func (l *Lexer) readName(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	typ := TokenName
	if kw, ok := keywords[lit]; ok {
		typ = kw
	}
	return Token{Type: typ, Literal: lit, Pos: pos, End: l.pos}
}

// two-character operators first
var operators = []struct {
	lit string
	typ TokenType
}{
	{"//", TokenFloorDiv},
	{"==", TokenEq},
	{"!=", TokenNe},
	{"<=", TokenLe},
	{">=", TokenGe},
	{"->", TokenArrow},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{"%", TokenPercent},
	{"<", TokenLt},
	{">", TokenGt},
	{"=", TokenAssign},
	{"(", TokenLParen},
	{")", TokenRParen},
	{":", TokenColon},
	{",", TokenComma},
	{".", TokenDot},
}

func (l *Lexer) readOperator(pos Position) Token {
	rest := l.input[l.pos:]
	for _, op := range operators {
		if len(rest) >= len(op.lit) && rest[:len(op.lit)] == op.lit {
			for range op.lit {
				l.readChar()
			}
			switch op.typ {
			case TokenLParen:
				l.depth++
			case TokenRParen:
				if l.depth > 0 {
					l.depth--
				}
			}
			return Token{Type: op.typ, Literal: op.lit, Pos: pos, End: l.pos}
		}
	}
	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", ch), Pos: pos, End: l.pos}
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
