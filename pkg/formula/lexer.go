package formula

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of token in a compiled expression
type TokenType int

const (
	TokenIdentifier TokenType = iota // machine_time, Y100
	TokenNumber                      // 100, 1.5

	TokenPlus     // +
	TokenMinus    // -
	TokenMultiply // *
	TokenDivide   // /
	TokenPower    // **

	TokenLeftParen  // (
	TokenRightParen // )

	TokenEOF
	TokenIllegal
)

// Token represents a single token in the expression
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Byte offset in input string
}

// Lexer tokenizes compiled infix expressions
type Lexer struct {
	input   string
	pos     int  // current position
	readPos int  // next read position
	ch      rune // current character
}

// NewLexer creates a new lexer for the given expression
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar advances to the next rune
func (l *Lexer) readChar() {
	l.pos = l.readPos
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		return
	}
	r, width := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.readPos += width
}

// peekChar looks at the next rune without advancing
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	for unicode.IsSpace(l.ch) {
		l.readChar()
	}

	tok := Token{Pos: l.pos}

	switch {
	case l.ch == 0 && l.pos >= len(l.input):
		tok.Type = TokenEOF
		return tok
	case l.ch == '(':
		tok.Type, tok.Literal = TokenLeftParen, "("
	case l.ch == ')':
		tok.Type, tok.Literal = TokenRightParen, ")"
	case l.ch == '+':
		tok.Type, tok.Literal = TokenPlus, "+"
	case l.ch == '-':
		tok.Type, tok.Literal = TokenMinus, "-"
	case l.ch == '/':
		tok.Type, tok.Literal = TokenDivide, "/"
	case l.ch == '*':
		if l.peekChar() == '*' {
			l.readChar()
			tok.Type, tok.Literal = TokenPower, "**"
		} else {
			tok.Type, tok.Literal = TokenMultiply, "*"
		}
	case isIdentStart(l.ch):
		tok.Type = TokenIdentifier
		tok.Literal = l.readWord()
		return tok
	case unicode.IsDigit(l.ch):
		tok.Type = TokenNumber
		tok.Literal = l.readNumber()
		return tok
	default:
		tok.Type, tok.Literal = TokenIllegal, string(l.ch)
	}

	l.readChar()
	return tok
}

// readWord reads a maximal run of word runes
func (l *Lexer) readWord() string {
	pos := l.pos
	for isWord(l.ch) {
		l.readChar()
	}
	return l.input[pos:l.pos]
}

// readNumber reads a digit-led run. Trailing word runes belong to the number, so
// "2X" is one literal and never yields an identifier.
func (l *Lexer) readNumber() string {
	pos := l.pos
	for isWord(l.ch) || (l.ch == '.' && unicode.IsDigit(l.peekChar())) {
		l.readChar()
	}
	return l.input[pos:l.pos]
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isWord(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

// ValidateExpression checks that a compiled expression has balanced parentheses
// and no leftover placeholder syntax.
func ValidateExpression(expr string) error {
	l := NewLexer(expr)
	depth := 0

	for tok := l.NextToken(); tok.Type != TokenEOF; tok = l.NextToken() {
		switch tok.Type {
		case TokenLeftParen:
			depth++
		case TokenRightParen:
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unexpected ')' at offset %d of %q", ErrMalformedFormula, tok.Pos, expr)
			}
		case TokenIllegal:
			switch tok.Literal {
			case "°", "[", "]", ";":
				return fmt.Errorf("%w: unresolved placeholder syntax %q at offset %d of %q", ErrMalformedFormula, tok.Literal, tok.Pos, expr)
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("%w: %d unclosed '(' in %q", ErrMalformedFormula, depth, expr)
	}
	return nil
}
