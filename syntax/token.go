package syntax

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Python-subset lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Layout
	TokenNewline
	TokenIndent
	TokenDedent

	// Literals
	TokenNumber // 42, 3.14
	TokenString // 'hi', "hi"
	TokenName   // foo, Bar

	// Keywords
	TokenDef
	TokenClass
	TokenIf
	TokenElif
	TokenElse
	TokenWhile
	TokenReturn
	TokenPass
	TokenTrue
	TokenFalse
	TokenNone
	TokenNot
	TokenAnd
	TokenOr
	TokenIs

	// Operators
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenFloorDiv // //
	TokenSlash    // /
	TokenPercent  // %
	TokenEq       // ==
	TokenNe       // !=
	TokenLe       // <=
	TokenGe       // >=
	TokenLt       // <
	TokenGt       // >
	TokenAssign   // =
	TokenArrow    // ->

	// Delimiters
	TokenLParen // (
	TokenRParen // )
	TokenColon  // :
	TokenComma  // ,
	TokenDot    // .
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "EOF",
	TokenError:    "ERROR",
	TokenNewline:  "NEWLINE",
	TokenIndent:   "INDENT",
	TokenDedent:   "DEDENT",
	TokenNumber:   "NUMBER",
	TokenString:   "STRING",
	TokenName:     "NAME",
	TokenDef:      "def",
	TokenClass:    "class",
	TokenIf:       "if",
	TokenElif:     "elif",
	TokenElse:     "else",
	TokenWhile:    "while",
	TokenReturn:   "return",
	TokenPass:     "pass",
	TokenTrue:     "True",
	TokenFalse:    "False",
	TokenNone:     "None",
	TokenNot:      "not",
	TokenAnd:      "and",
	TokenOr:       "or",
	TokenIs:       "is",
	TokenPlus:     "+",
	TokenMinus:    "-",
	TokenStar:     "*",
	TokenFloorDiv: "//",
	TokenSlash:    "/",
	TokenPercent:  "%",
	TokenEq:       "==",
	TokenNe:       "!=",
	TokenLe:       "<=",
	TokenGe:       ">=",
	TokenLt:       "<",
	TokenGt:       ">",
	TokenAssign:   "=",
	TokenArrow:    "->",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenColon:    ":",
	TokenComma:    ",",
	TokenDot:      ".",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in source text.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     int // byte offset just past the token
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline, TokenIndent, TokenDedent:
		return t.Type.String()
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

var keywords = map[string]TokenType{
	"def":    TokenDef,
	"class":  TokenClass,
	"if":     TokenIf,
	"elif":   TokenElif,
	"else":   TokenElse,
	"while":  TokenWhile,
	"return": TokenReturn,
	"pass":   TokenPass,
	"True":   TokenTrue,
	"False":  TokenFalse,
	"None":   TokenNone,
	"not":    TokenNot,
	"and":    TokenAnd,
	"or":     TokenOr,
	"is":     TokenIs,
}
