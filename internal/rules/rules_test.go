package rules

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOpts() Options {
	return Options{
		Comment:   "#",
		Separator: "->",
		IsInputSymbol: func(r rune) bool {
			return (r >= 'a' && r <= 'z') || r == ':' || r == '@' || r == '⎵'
		},
		Wordbreak: '⎵',
	}
}

func TestParse_Basic(t *testing.T) {
	src := `
# a comment
:d@  ->  develop

:d@r -> developer
`
	rules, err := Parse(strings.NewReader(src), testOpts())
	require.NoError(t, err)
	require.Equal(t, []Rule{
		{Sequence: ":d@", Transform: "develop", Line: 3},
		{Sequence: ":d@r", Transform: "developer", Line: 5},
	}, rules)
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name, src, wantErr string
	}{
		{"missing separator", "abc\n", `1: invalid syntax: "abc"`},
		{"empty sequence", " -> word\n", `1: invalid syntax`},
		{"line number counts comments", "# c\n\nx y\n", `3: invalid syntax`},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.src), testOpts())
			var syntaxErr *SyntaxError
			require.ErrorAs(t, err, &syntaxErr)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestParse_InvalidSymbol(t *testing.T) {
	// The final symbol may be anything; any other symbol must be known.
	_, err := Parse(strings.NewReader("aXc@ -> word\n"), testOpts())
	var invalid *InvalidSymbolError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 1, invalid.Line)
	require.Equal(t, 'X', invalid.Symbol)

	rules, err := Parse(strings.NewReader("abcX -> word\n"), testOpts())
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestParse_TooLong(t *testing.T) {
	ok := strings.Repeat("a", MaxSequenceLen) + " -> word\n"
	rules, err := Parse(strings.NewReader(ok), testOpts())
	require.NoError(t, err)
	require.Len(t, rules, 1)

	bad := "x -> y\n" + strings.Repeat("a", MaxSequenceLen+1) + " -> word\n"
	_, err = Parse(strings.NewReader(bad), testOpts())
	var tooLong *TooLongError
	require.ErrorAs(t, err, &tooLong)
	require.Equal(t, 2, tooLong.Line)
}

func TestParse_Duplicates(t *testing.T) {
	src := "ab@ -> first\nab@ -> second\n"

	t.Run("warn and skip", func(t *testing.T) {
		var warnings []string
		opts := testOpts()
		opts.Warnf = func(format string, args ...any) {
			warnings = append(warnings, fmt.Sprintf(format, args...))
		}
		rules, err := Parse(strings.NewReader(src), opts)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		require.Equal(t, "first", rules[0].Transform)
		require.Len(t, warnings, 1)
		require.Contains(t, warnings[0], `duplicate sequence "ab@"`)
	})

	t.Run("fatal", func(t *testing.T) {
		opts := testOpts()
		opts.DuplicatesFatal = true
		_, err := Parse(strings.NewReader(src), opts)
		var dup *DuplicateError
		require.ErrorAs(t, err, &dup)
		require.Equal(t, 2, dup.Line)
	})
}

func TestParse_ImplicitLeadingWordbreak(t *testing.T) {
	opts := testOpts()
	opts.ImplicitLeadingWordbreak = true
	rules, err := Parse(strings.NewReader("⎵ab@ -> word\ncd@ -> other\n"), opts)
	require.NoError(t, err)
	require.Equal(t, "⎵word", rules[0].Transform)
	require.Equal(t, "other", rules[1].Transform)
}

func TestParse_RegexMode(t *testing.T) {
	src := `# REGEX_START
[abc]x@ -> x\1
# REGEX_END
`
	opts := testOpts()
	opts.IsInputSymbol = func(r rune) bool { return r >= 'a' && r <= 'z' }
	rules, err := Parse(strings.NewReader(src), opts)
	require.NoError(t, err)
	require.Equal(t, []Rule{
		{Sequence: "ax@", Transform: "xa", Line: 2},
		{Sequence: "bx@", Transform: "xb", Line: 2},
		{Sequence: "cx@", Transform: "xc", Line: 2},
	}, rules)
}

func TestParse_LiteralOutsideRegexMode(t *testing.T) {
	// The same line outside a regex region is taken literally, and '[' is
	// then subject to symbol validation.
	opts := testOpts()
	opts.IsInputSymbol = func(r rune) bool { return r >= 'a' && r <= 'z' }
	_, err := Parse(strings.NewReader(`[abc]x@ -> x\1`), opts)
	var invalid *InvalidSymbolError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, '[', invalid.Symbol)
}

func TestParse_RegexModeEnds(t *testing.T) {
	src := `# REGEX_START
(a|b)x@ -> y
# REGEX_END
cd@ -> literal
`
	opts := testOpts()
	opts.IsInputSymbol = func(r rune) bool { return r >= 'a' && r <= 'z' }
	rules, err := Parse(strings.NewReader(src), opts)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	require.Equal(t, "cd@", rules[2].Sequence)
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name      string
		seq       string
		transform string
		expected  []Rule
	}{
		{
			name: "no group",
			seq:  "abc", transform: "x",
			expected: []Rule{{Sequence: "abc", Transform: "x", Line: 1}},
		},
		{
			name: "character class",
			seq:  "[ab]c", transform: `c\1`,
			expected: []Rule{
				{Sequence: "ac", Transform: "ca", Line: 1},
				{Sequence: "bc", Transform: "cb", Line: 1},
			},
		},
		{
			name: "alternation",
			seq:  "(foo|ba)r", transform: `\1!`,
			expected: []Rule{
				{Sequence: "foor", Transform: "foo!", Line: 1},
				{Sequence: "bar", Transform: "ba!", Line: 1},
			},
		},
		{
			name: "optional alternation",
			seq:  "x(a|b)?", transform: "y",
			expected: []Rule{
				{Sequence: "xa", Transform: "y", Line: 1},
				{Sequence: "xb", Transform: "y", Line: 1},
				{Sequence: "x", Transform: "y", Line: 1},
			},
		},
		{
			name: "two groups expand recursively",
			seq:  "[ab][cd]", transform: "t",
			expected: []Rule{
				{Sequence: "ac", Transform: "t", Line: 1},
				{Sequence: "ad", Transform: "t", Line: 1},
				{Sequence: "bc", Transform: "t", Line: 1},
				{Sequence: "bd", Transform: "t", Line: 1},
			},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			got, err := expand(tc.seq, tc.transform, 1)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestExpand_Unclosed(t *testing.T) {
	for _, seq := range []string{"[ab", "(a|b", "[]"} {
		_, err := expand(seq, "t", 4)
		var syntaxErr *SyntaxError
		require.ErrorAs(t, err, &syntaxErr, seq)
		require.Equal(t, 4, syntaxErr.Line)
	}
}
