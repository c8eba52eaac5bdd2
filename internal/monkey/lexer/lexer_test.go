package lexer

import (
	"testing"

	"github.com/codefionn/ronkey/internal/monkey/token"
	"github.com/stretchr/testify/assert"
)

func TestNextToken(t *testing.T) {
	input := `let five = 5;
let add = fn(x, y) { x + y; };
!-/*5 < 10 > 5;
if (5 != 10) { return true; } else { return false; }
10 == 10;
"foo bar"
[1, 2];
{"a": 1}
@`

	expected := []struct {
		typ     token.Type
		literal string
	}{
		{token.LET, "let"},
		{token.IDENT, "five"},
		{token.ASSIGN, "="},
		{token.INT, "5"},
		{token.SEMICOLON, ";"},
		{token.LET, "let"},
		{token.IDENT, "add"},
		{token.ASSIGN, "="},
		{token.FUNCTION, "fn"},
		{token.LPAREN, "("},
		{token.IDENT, "x"},
		{token.COMMA, ","},
		{token.IDENT, "y"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.IDENT, "x"},
		{token.PLUS, "+"},
		{token.IDENT, "y"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.SEMICOLON, ";"},
		{token.BANG, "!"},
		{token.MINUS, "-"},
		{token.SLASH, "/"},
		{token.ASTERISK, "*"},
		{token.INT, "5"},
		{token.LT, "<"},
		{token.INT, "10"},
		{token.GT, ">"},
		{token.INT, "5"},
		{token.SEMICOLON, ";"},
		{token.IF, "if"},
		{token.LPAREN, "("},
		{token.INT, "5"},
		{token.NOT_EQ, "!="},
		{token.INT, "10"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.RETURN, "return"},
		{token.TRUE, "true"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.ELSE, "else"},
		{token.LBRACE, "{"},
		{token.RETURN, "return"},
		{token.FALSE, "false"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.INT, "10"},
		{token.EQ, "=="},
		{token.INT, "10"},
		{token.SEMICOLON, ";"},
		{token.STRING, "foo bar"},
		{token.LBRACKET, "["},
		{token.INT, "1"},
		{token.COMMA, ","},
		{token.INT, "2"},
		{token.RBRACKET, "]"},
		{token.SEMICOLON, ";"},
		{token.LBRACE, "{"},
		{token.STRING, "a"},
		{token.COLON, ":"},
		{token.INT, "1"},
		{token.RBRACE, "}"},
		{token.ILLEGAL, "@"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, want := range expected {
		tok := l.NextToken()
		assert.Equalf(t, want.typ, tok.Type, "token %d type", i)
		assert.Equalf(t, want.literal, tok.Literal, "token %d literal", i)
	}
}

func TestUnterminatedStringIsIllegal(t *testing.T) {
	l := New(`let s = "abc`)

	for _, want := range []token.Type{token.LET, token.IDENT, token.ASSIGN} {
		assert.Equal(t, want, l.NextToken().Type)
	}

	tok := l.NextToken()
	assert.Equal(t, token.ILLEGAL, tok.Type)
	assert.Equal(t, `"abc`, tok.Literal)
	assert.Equal(t, token.EOF, l.NextToken().Type)
}

func TestNULIsNotEndOfInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []token.Token
	}{
		{
			name:  "between statements",
			input: "1;\x00 let y = 2;",
			expected: []token.Token{
				{Type: token.INT, Literal: "1"},
				{Type: token.SEMICOLON, Literal: ";"},
				{Type: token.ILLEGAL, Literal: "\x00"},
				{Type: token.LET, Literal: "let"},
				{Type: token.IDENT, Literal: "y"},
				{Type: token.ASSIGN, Literal: "="},
				{Type: token.INT, Literal: "2"},
				{Type: token.SEMICOLON, Literal: ";"},
			},
		},
		{
			name:  "trailing",
			input: "x\x00",
			expected: []token.Token{
				{Type: token.IDENT, Literal: "x"},
				{Type: token.ILLEGAL, Literal: "\x00"},
			},
		},
		{
			name:  "inside a string",
			input: "\"a\x00b\"",
			expected: []token.Token{
				{Type: token.STRING, Literal: "a\x00b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.input)
			for i, want := range tt.expected {
				assert.Equalf(t, want, l.NextToken(), "token %d", i)
			}
			assert.Equal(t, token.EOF, l.NextToken().Type)
		})
	}
}
