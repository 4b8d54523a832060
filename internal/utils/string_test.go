package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SanitizeString(t *testing.T) {
	testCases := []struct {
		name      string
		in        string
		maxLength int
		want      string
	}{
		{name: "plain text untouched", in: "print('hi')", maxLength: 100, want: "print('hi')"},
		{name: "keeps newline tab and cr", in: "a\nb\tc\rd", maxLength: 100, want: "a\nb\tc\rd"},
		{name: "strips nul", in: "a\x00b", maxLength: 100, want: "ab"},
		{name: "strips control chars", in: "a\x01\x02\x7fb", maxLength: 100, want: "ab"},
		{name: "strips escape sequences", in: "a\x1b[31mred", maxLength: 100, want: "a[31mred"},
		{name: "truncates", in: "abcdef", maxLength: 4, want: "abcd"},
		{name: "empty", in: "", maxLength: 10, want: ""},
		{name: "unicode survives", in: "héllo wörld", maxLength: 100, want: "héllo wörld"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeString(tc.in, tc.maxLength))
		})
	}
}

func Test_SanitizeString_truncatesByRunes(t *testing.T) {
	got := SanitizeString(strings.Repeat("é", 10), 5)
	assert.Equal(t, strings.Repeat("é", 5), got)
}

func Test_TruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 3))
	assert.Equal(t, "abc...xyz", TruncateString("abcdefghijklmnopqrstuvwxyz", 3))
	assert.Equal(t, "", TruncateString("", 3))
}
