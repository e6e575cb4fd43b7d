package binaryencoding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/firmware"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/rules"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/trie"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

func testMappingV3_2(t *testing.T) *triecode.Mapping {
	t.Helper()
	m, err := triecode.NewMapping(triecode.FormatV3_2, triecode.Symbols{
		Tokens:         []triecode.Token{{Glyph: '@', ASCII: '*'}, {Glyph: '#', ASCII: '+'}},
		Wordbreak:      '⎵',
		WordbreakASCII: '_',
		OutputFuncs:    []rune{'😎'},
		Space:          '␣',
		Digit:          '𝔡',
		Alpha:          '𝔞',
		UpperAlpha:     '𝔄',
		Punct:          '𝔭',
		TerminatingPunct: '𝔱',
		NonterminatingPunct: '𝔫',
		Any:            '𝔵',
	})
	require.NoError(t, err)
	return m
}

func TestEncodeV3_2_WireImage(t *testing.T) {
	m := testMappingV3_2(t)
	tr := trie.BuildV3_2([]rules.Rule{
		{Sequence: ":d@", Transform: "develop", Line: 1},
		{Sequence: ":d@r", Transform: "developer", Line: 2},
	}, m, nil)
	blob := buildBlob(t, tr, m)
	require.Equal(t, []byte("developer"), blob.Data)

	data, err := EncodeV3_2(tr, m, blob)
	require.NoError(t, err)

	require.Equal(t, []byte{
		// root: branch table over 'r' (0x72), '@' (0x80), '#' (0x81)
		0x40,
		0x72, 0x00, 11,
		0x80, 0x00, 18,
		0x81, 0x00, 32,
		0x00,
		// 'r' node: one chain match linking to the ":d@" record at 28:
		// backspace the typed "r", append "er" (blob offset 7)
		0x81, 0x00, 28, 0x01, 0x02, 0x00, 0x07,
		// '@' node: default identity match, then the chain run "d",":"
		0xE0, 0x80, 0x00, 0x00, 0x00, 0x01, 0x64, 0x3A, 0x00,
		// ':' node: the ":d@" match, 3 backspaces, "develop" at offset 0
		0xA0, 0x03, 0x07, 0x00, 0x00,
		// '#' node: default identity match
		0xA0, 0x00, 0x00, 0x00, 0x00,
	}, data)
}

func TestEncodeV3_2_RoundTrip(t *testing.T) {
	m := testMappingV3_2(t)
	ruleList := []rules.Rule{
		{Sequence: ":d@", Transform: "develop", Line: 1},
		{Sequence: ":d@r", Transform: "developer", Line: 2},
		{Sequence: ":d@rs", Transform: "developers", Line: 3},
		{Sequence: ":ex@", Transform: "example", Line: 4},
	}
	tr := trie.BuildV3_2(ruleList, m, nil)
	blob := buildBlob(t, tr, m)
	data, err := EncodeV3_2(tr, m, blob)
	require.NoError(t, err)

	sim := &firmware.V3_2{Data: data, Completions: blob.Data, Mapping: m}
	for _, rule := range ruleList {
		screen, err := sim.Simulate(rule.Sequence)
		require.NoError(t, err, rule.Sequence)
		require.Equal(t, rule.Transform, screen, "typing %q", rule.Sequence)
	}
}

func TestEncodeV3_2_ChainLinksResolve(t *testing.T) {
	m := testMappingV3_2(t)
	tr := trie.BuildV3_2([]rules.Rule{
		{Sequence: ":d@", Transform: "develop", Line: 1},
		{Sequence: ":d@r", Transform: "developer", Line: 2},
	}, m, nil)
	blob := buildBlob(t, tr, m)
	data, err := EncodeV3_2(tr, m, blob)
	require.NoError(t, err)

	dec := &firmware.V3_2{Data: data, Completions: blob.Data, Mapping: m}
	nodes, err := dec.Decode()
	require.NoError(t, err)

	matchOffsets := map[int][]byte{}
	var chains []firmware.ChainMatch
	for _, n := range nodes {
		if n.OwnMatch != nil {
			matchOffsets[n.OwnMatch.Offset] = n.OwnMatch.Completion
		}
		chains = append(chains, n.Chains...)
	}
	require.Len(t, chains, 1)
	// The chain's sub link lands exactly on the ":d@" match record.
	require.Equal(t, []byte("develop"), matchOffsets[chains[0].SubOffset])
	require.Equal(t, []byte("er"), chains[0].Match.Completion)
	require.Equal(t, 1, chains[0].Match.Backspaces)
}

func TestEncodeV3_2_MetacharBranch(t *testing.T) {
	// A branch whose children include a metacharacter is flagged
	// multi-branch, and children are sorted by numeric code.
	m := testMappingV3_2(t)
	tr := trie.BuildV3_2([]rules.Rule{
		{Sequence: "a𝔡@", Transform: "x", Line: 1},
		{Sequence: "ab@", Transform: "y", Line: 2},
	}, m, nil)
	blob := buildBlob(t, tr, m)
	data, err := EncodeV3_2(tr, m, blob)
	require.NoError(t, err)

	dec := &firmware.V3_2{Data: data, Completions: blob.Data, Mapping: m}
	nodes, err := dec.Decode()
	require.NoError(t, err)

	var multi *firmware.NodeV3_2
	for i := range nodes {
		if nodes[i].MultiBranch {
			multi = &nodes[i]
		}
	}
	require.NotNil(t, multi, "the '@' node branches over 'b' and the digit metachar")
}

func TestEncodeV3_2_FieldOverflowFunc(t *testing.T) {
	// v3_2 only has two func bits; functions 4..7 cannot be encoded.
	m, err := triecode.NewMapping(triecode.FormatV3_2, triecode.Symbols{
		Tokens:      []triecode.Token{{Glyph: '@', ASCII: '*'}},
		Wordbreak:   '⎵',
		OutputFuncs: []rune{'1', '2', '3', '4'},
		Space:       '␣',
	})
	require.NoError(t, err)

	tr := trie.BuildV3_2([]rules.Rule{
		{Sequence: "a@", Transform: "x4", Line: 1},
	}, m, nil)
	_, err = EncodeV3_2(tr, m, buildBlob(t, tr, m))
	var overflow *FieldOverflowError
	require.ErrorAs(t, err, &overflow)
	require.Equal(t, "output function", overflow.Field)
}

func TestEncodeV3_2_ChainCountHeader(t *testing.T) {
	// 16 chain matches on one node need the count overflow byte: sixteen
	// one-symbol sub-rules all extended by the same "zq" suffix anchor
	// their chains on the shared 'z' node below the root.
	var ruleList []rules.Rule
	for i := 0; i < 16; i++ {
		c := string(rune('a' + i))
		ruleList = append(ruleList,
			rules.Rule{Sequence: c, Transform: "s" + c, Line: 2*i + 1},
			rules.Rule{Sequence: c + "zq", Transform: "other" + c, Line: 2*i + 2},
		)
	}
	m := testMappingV3_2(t)
	tr := trie.BuildV3_2(ruleList, m, nil)
	blob := buildBlob(t, tr, m)
	data, err := EncodeV3_2(tr, m, blob)
	require.NoError(t, err)

	dec := &firmware.V3_2{Data: data, Completions: blob.Data, Mapping: m}
	nodes, err := dec.Decode()
	require.NoError(t, err)
	total := 0
	for _, n := range nodes {
		total += len(n.Chains)
	}
	require.Equal(t, 16, total)
}
