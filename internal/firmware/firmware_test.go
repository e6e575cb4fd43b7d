package firmware

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

func testMapping(t *testing.T) *triecode.Mapping {
	t.Helper()
	m, err := triecode.NewMapping(triecode.FormatV3, triecode.Symbols{
		Tokens:    []triecode.Token{{Glyph: '@', ASCII: '*'}, {Glyph: '#', ASCII: '+'}},
		Wordbreak: '⎵',
	})
	require.NoError(t, err)
	return m
}

// The hand-assembled image of a trie holding "ab@" with completion "c" plus
// the two default token matches.
func testTrieV3(t *testing.T) *V3 {
	t.Helper()
	return &V3{
		Data: []uint16{
			0x4101, 5, 0x0100, 7, 0, // root branch: '#'->5, '@'->7
			0x8000, 0, // '#': identity match, leaf
			0xC000, 0, 0x05, 0x04, 0, // '@': identity match, chain "b","a"
			0x8001, 0, // 'a': match, one completion byte at offset 0
		},
		Completions: []byte("c"),
		Mapping:     testMapping(t),
	}
}

func TestV3_LongestMatch(t *testing.T) {
	tr := testTrieV3(t)

	tests := []struct {
		name       string
		buffer     string
		found      bool
		backspaces int
		completion string
	}{
		{name: "full sequence", buffer: "ab@", found: true, backspaces: 0, completion: "c"},
		{name: "longer history", buffer: "xxab@", found: true, completion: "c"},
		{name: "token alone hits identity", buffer: "@", found: true, completion: ""},
		{name: "other token identity", buffer: "#", found: true, completion: ""},
		{name: "partial chain stops at the token identity", buffer: "b@", found: true, completion: ""},
		{name: "no path", buffer: "zz", found: false},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			match, ok := tr.LongestMatch([]rune(tc.buffer))
			require.Equal(t, tc.found, ok)
			if ok {
				require.Equal(t, tc.backspaces, match.Backspaces)
				require.Equal(t, tc.completion, string(match.Completion))
			}
		})
	}
}

func TestV3_Simulate(t *testing.T) {
	tr := testTrieV3(t)
	screen, err := tr.Simulate("ab@")
	require.NoError(t, err)
	// Zero backspaces: only the typed '@' is erased before "c" is appended.
	require.Equal(t, "abc", screen)
}

func TestMetacharMatches(t *testing.T) {
	tests := []struct {
		name     string
		class    uint16
		code     byte
		expected bool
	}{
		{"alpha lower", triecode.MetaAlpha, 'q', true},
		{"alpha upper", triecode.MetaAlpha, 'Q', true},
		{"alpha digit", triecode.MetaAlpha, '4', false},
		{"upper alpha", triecode.MetaUpperAlpha, 'Q', true},
		{"upper alpha lower", triecode.MetaUpperAlpha, 'q', false},
		{"digit", triecode.MetaDigit, '7', true},
		{"wordbreak", triecode.MetaWordbreak, ' ', true},
		{"terminating punct", triecode.MetaTerminatingPunct, '.', true},
		{"nonterminating punct", triecode.MetaNonterminatingPunct, ',', true},
		{"nonterminating excludes period", triecode.MetaNonterminatingPunct, '.', false},
		{"any", triecode.MetaAny, '%', true},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, metacharMatches(byte(tc.class), tc.code))
		})
	}
}
