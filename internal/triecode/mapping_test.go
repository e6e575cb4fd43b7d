package triecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSymbols() Symbols {
	return Symbols{
		Tokens:         []Token{{'@', '*'}, {'#', '+'}},
		Wordbreak:      '⎵',
		WordbreakASCII: '_',
		OutputFuncs:    []rune{'😎', '😊'},
	}
}

func TestNewMapping_V3Codes(t *testing.T) {
	m, err := NewMapping(FormatV3, testSymbols())
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    rune
		expected uint16
	}{
		{"letter a", 'a', 0x04},
		{"letter z", 'z', 0x1D},
		{"digit 1", '1', 0x1E},
		{"digit 0", '0', 0x27},
		{"semicolon", ';', 0x33},
		{"colon is shifted semicolon", ':', ModLsft | 0x33},
		{"minus", '-', 0x2D},
		{"underscore is shifted minus", '_', ModLsft | 0x2D},
		{"bang is shifted 1", '!', ModLsft | 0x1E},
		{"first token", '@', TokenBaseV3},
		{"second token", '#', TokenBaseV3 + 1},
		{"wordbreak is the space keycode", '⎵', KcSpace},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			code, ok := m.InputCode(tc.input)
			require.True(t, ok)
			require.Equal(t, tc.expected, code)
		})
	}
}

func TestNewMapping_V3TokenShadowsShiftedKey(t *testing.T) {
	// '@' is both shifted '2' on the base map and the first token glyph; the
	// token wins, exactly like the original dictionary construction.
	m, err := NewMapping(FormatV3, testSymbols())
	require.NoError(t, err)

	code, ok := m.InputCode('@')
	require.True(t, ok)
	require.Equal(t, uint16(TokenBaseV3), code)
}

func TestNewMapping_V3_2Codes(t *testing.T) {
	syms := testSymbols()
	syms.Space = '␣'
	syms.Digit = '𝔡'
	syms.Alpha = '𝔞'
	syms.UpperAlpha = '𝔄'
	syms.Punct = '𝔭'
	syms.TerminatingPunct = '𝔱'
	syms.NonterminatingPunct = '𝔫'
	syms.Any = '𝔵'
	syms.TransformRefs = []rune{'①', '②'}

	m, err := NewMapping(FormatV3_2, syms)
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    rune
		expected uint16
	}{
		{"ascii identity", 'a', 'a'},
		{"ascii punctuation identity", '!', '!'},
		{"first token", '@', TokenBaseV3_2},
		{"second token", '#', TokenBaseV3_2 + 1},
		{"wordbreak metachar", '⎵', MetaWordbreak},
		{"alpha metachar", '𝔞', MetaAlpha},
		{"upper alpha metachar", '𝔄', MetaUpperAlpha},
		{"digit metachar", '𝔡', MetaDigit},
		{"punct metachar", '𝔭', MetaPunct},
		{"terminating punct metachar", '𝔱', MetaTerminatingPunct},
		{"nonterminating punct metachar", '𝔫', MetaNonterminatingPunct},
		{"any metachar", '𝔵', MetaAny},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			code, ok := m.InputCode(tc.input)
			require.True(t, ok)
			require.Equal(t, tc.expected, code)
		})
	}

	// Back-references live in the transform namespace only.
	code, ok := m.TransformCode('①')
	require.True(t, ok)
	require.Equal(t, uint16(BackrefBase), code)
	code, ok = m.TransformCode('②')
	require.True(t, ok)
	require.Equal(t, uint16(BackrefBase+1), code)
	require.False(t, m.IsInputSymbol('①'))
}

func TestNewMapping_OutputFuncs(t *testing.T) {
	m, err := NewMapping(FormatV3, testSymbols())
	require.NoError(t, err)
	require.Equal(t, uint8(1), m.OutputFunc('😎'))
	require.Equal(t, uint8(2), m.OutputFunc('😊'))
	require.Zero(t, m.OutputFunc('x'))
	require.Equal(t, 2, m.OutputFuncCount())
}

func TestNewMapping_TooManyOutputFuncs(t *testing.T) {
	syms := testSymbols()
	syms.OutputFuncs = []rune("abcdefgh") // 8 > 7
	_, err := NewMapping(FormatV3, syms)
	require.ErrorContains(t, err, "output function symbols")
}

func TestNewMapping_DuplicateTokenGlyph(t *testing.T) {
	syms := testSymbols()
	syms.Tokens = []Token{{'@', '*'}, {'@', '+'}}
	for _, format := range []Format{FormatV3, FormatV3_2} {
		_, err := NewMapping(format, syms)
		require.ErrorContains(t, err, "maps to both", format.String())
	}
}

func TestMapping_CompletionBytes(t *testing.T) {
	syms := testSymbols()
	syms.TransformRefs = []rune{'①'}
	m, err := NewMapping(FormatV3_2, syms)
	require.NoError(t, err)

	b, err := m.CompletionBytes("ab ①")
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 'b', ' ', BackrefBase}, b)

	_, err = m.CompletionBytes("aé")
	require.ErrorContains(t, err, "cannot appear in a completion")
}

func TestMapping_SequenceCodes(t *testing.T) {
	m, err := NewMapping(FormatV3, testSymbols())
	require.NoError(t, err)

	codes, err := m.SequenceCodes(":d@")
	require.NoError(t, err)
	require.Equal(t, []uint16{ModLsft | 0x33, 0x07, TokenBaseV3}, codes)

	_, err = m.SequenceCodes("aAz")
	require.ErrorContains(t, err, `symbol 'A' at index 1`)
}
