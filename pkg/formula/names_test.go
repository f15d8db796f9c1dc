package formula

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractNames(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{expr: "X+Y100-100", want: []string{"X", "Y100"}},
		{expr: "(a + a) * b", want: []string{"a", "b"}},
		{expr: "2X + _y", want: []string{"_y"}},
		{expr: "1.5e10 * rate", want: []string{"rate"}},
		{expr: "((good_cycles / total_cycles) * 100)", want: []string{"good_cycles", "total_cycles"}},
		{expr: "température ** 2", want: []string{"température"}},
		{expr: "100", want: []string{}},
		{expr: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			require.Equal(t, tt.want, ExtractNames(tt.expr))
		})
	}
}

func TestExtractNames_NeverNumeric(t *testing.T) {
	names := ExtractNames("(1 + 22) * x1 - 333 / _4 + 5_5")
	require.Equal(t, []string{"x1", "_4"}, names)
}

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{
			input:    "machine_time",
			expected: []TokenType{TokenIdentifier, TokenEOF},
		},
		{
			input:    "(a ** 2) - b",
			expected: []TokenType{TokenLeftParen, TokenIdentifier, TokenPower, TokenNumber, TokenRightParen, TokenMinus, TokenIdentifier, TokenEOF},
		},
		{
			input:    "a / b * c + 1.5",
			expected: []TokenType{TokenIdentifier, TokenDivide, TokenIdentifier, TokenMultiply, TokenIdentifier, TokenPlus, TokenNumber, TokenEOF},
		},
		{
			input:    "x°[",
			expected: []TokenType{TokenIdentifier, TokenIllegal, TokenIllegal, TokenEOF},
		},
	}

	for _, tt := range tests {
		lexer := NewLexer(tt.input)
		for i, expectedType := range tt.expected {
			tok := lexer.NextToken()
			if tok.Type != expectedType {
				t.Errorf("Test %q token[%d]: expected %v, got %v (literal: %q)", tt.input, i, expectedType, tok.Type, tok.Literal)
			}
		}
	}
}

func TestLexer_Positions(t *testing.T) {
	lexer := NewLexer("°ab + 1")

	tok := lexer.NextToken()
	require.Equal(t, Token{Type: TokenIllegal, Literal: "°", Pos: 0}, tok)

	tok = lexer.NextToken()
	require.Equal(t, Token{Type: TokenIdentifier, Literal: "ab", Pos: 2}, tok)

	tok = lexer.NextToken()
	require.Equal(t, Token{Type: TokenPlus, Literal: "+", Pos: 5}, tok)

	tok = lexer.NextToken()
	require.Equal(t, Token{Type: TokenNumber, Literal: "1", Pos: 7}, tok)
}

func TestValidateExpression(t *testing.T) {
	require.NoError(t, ValidateExpression("((a + b) * 2)"))
	require.NoError(t, ValidateExpression(""))

	for _, bad := range []string{"(a + b", "a)", "x°", "a[b]", "a;b"} {
		require.ErrorIs(t, ValidateExpression(bad), ErrMalformedFormula, "expr %q", bad)
	}
}
