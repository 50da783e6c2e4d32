package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapse spaces", "hello  world", "hello world"},
		{"tabs", "a\t\tb", "a b"},
		{"case boundary", "deepLearning models", "deep Learning models"},
		{"sentence join", "end.Next sentence", "end. Next sentence"},
		{"comma join", "apples,oranges", "apples, oranges"},
		{"blank lines", "para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"single blank kept", "a\n\nb", "a\n\nb"},
		{"spaces around newlines", "line one  \n  line two", "line one\nline two"},
		{"crlf", "a\r\nb", "a\nb"},
		{"trim", "  padded  ", "padded"},
		{"whitespace only", " \n\t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
