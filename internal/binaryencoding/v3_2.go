package binaryencoding

import (
	"fmt"
	"sort"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/completions"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/trie"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

// v3_2 wire format: 8-bit code units with multi-byte link fields.
const (
	// Node header byte, present when the node carries any match.
	hdrMatchBit         = 0x80
	hdrBranchBit        = 0x40
	hdrOwnMatchBit      = 0x20
	hdrCountOverflowBit = 0x10
	hdrCountMask        = 0x0F

	// Match code byte.
	moreBranchingBit = 0x80
	funcShift        = 5

	// Link region prefixes.
	chainRunMarker = 0x01
	branchBit      = 0x40
	multiBranchBit = 0x20

	maxChainCount = 4095

	v3_2MaxFunc          = 3
	v3_2MaxBackspaces    = 31
	v3_2MaxCompletionLen = 255
)

type v3_2Entry struct {
	node   *trie.Node
	chars  []rune // chain run or branch symbols
	links  []*v3_2Entry
	branch bool
	offset int
}

// EncodeV3_2 serializes the trie as bytes. Each node emits an optional
// header byte with its own match and chain match payloads, then a chain run
// marker or a branch table. Chain matches link to their sub-rule's match
// record by absolute offset; the link may point forwards, which the second
// pass resolves.
func EncodeV3_2(t *trie.Trie, m *triecode.Mapping, blob *completions.Blob) ([]byte, error) {
	var table []*v3_2Entry

	var traverse func(n *trie.Node) (*v3_2Entry, error)
	traverse = func(n *trie.Node) (*v3_2Entry, error) {
		if len(n.Chains()) > maxChainCount {
			return nil, &ChainCountOverflowError{Count: len(n.Chains())}
		}
		entry := &v3_2Entry{node: n}
		table = append(table, entry)

		switch n.ChildCount() {
		case 0:
		case 1:
			c := n.ChildSymbols()[0]
			child := n.Child(c)
			entry.chars = []rune{c}
			for child.ChildCount() == 1 && child.Match() == nil && len(child.Chains()) == 0 {
				c = child.ChildSymbols()[0]
				entry.chars = append(entry.chars, c)
				child = child.Child(c)
			}
			link, err := traverse(child)
			if err != nil {
				return nil, err
			}
			entry.links = []*v3_2Entry{link}
		default:
			entry.branch = true
			entry.chars = sortedByCode(n.ChildSymbols(), m)
			for _, c := range entry.chars {
				link, err := traverse(n.Child(c))
				if err != nil {
					return nil, err
				}
				entry.links = append(entry.links, link)
			}
		}
		return entry, nil
	}
	if _, err := traverse(t.Root()); err != nil {
		return nil, err
	}

	enc := &v3_2Encoder{mapping: m, blob: blob}

	// First pass assigns entry and match record offsets.
	offset := 0
	for _, e := range table {
		e.offset = offset
		out, err := enc.serialize(e, true)
		if err != nil {
			return nil, err
		}
		offset += len(out)
		if offset > MaxOffset {
			return nil, &OffsetOverflowError{Offset: offset}
		}
	}

	var out []byte
	for _, e := range table {
		b, err := enc.serialize(e, false)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

type v3_2Encoder struct {
	mapping *triecode.Mapping
	blob    *completions.Blob
}

// serialize emits one entry. In the measuring pass link offsets are not
// known yet; every field is fixed width, so both passes produce the same
// length.
func (enc *v3_2Encoder) serialize(e *v3_2Entry, measuring bool) ([]byte, error) {
	var out []byte

	n := e.node
	own := n.Match()
	chains := n.Chains()
	hasChildren := n.ChildCount() > 0

	if own != nil || len(chains) > 0 {
		header := byte(hdrMatchBit)
		if hasChildren {
			header |= hdrBranchBit
		}
		if own != nil {
			header |= hdrOwnMatchBit
		}
		count := len(chains)
		if count > maxChainCount {
			return nil, &ChainCountOverflowError{Count: count}
		}
		if count <= hdrCountMask {
			out = append(out, header|byte(count))
		} else {
			out = append(out, header|hdrCountOverflowBit|byte(count>>8), byte(count))
		}

		if own != nil {
			if measuring {
				own.WireOffset = e.offset + len(out)
			}
			record, err := enc.matchRecord(own, hasChildren)
			if err != nil {
				return nil, err
			}
			out = append(out, record...)
		}
		for _, chain := range chains {
			sub := chain.Sub
			if sub.WireOffset > MaxOffset {
				return nil, &OffsetOverflowError{Offset: sub.WireOffset}
			}
			out = append(out, byte(sub.WireOffset>>8), byte(sub.WireOffset))
			if measuring {
				chain.WireOffset = e.offset + len(out)
			}
			record, err := enc.matchRecord(chain, hasChildren)
			if err != nil {
				return nil, err
			}
			out = append(out, record...)
		}
	}

	switch {
	case len(e.links) == 0:
	case !e.branch:
		out = append(out, chainRunMarker)
		for _, c := range e.chars {
			code, err := enc.inputCode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, code)
		}
		out = append(out, 0)
	default:
		prefix := byte(branchBit)
		for _, c := range e.chars {
			if code, _ := enc.mapping.InputCode(c); triecode.IsMetachar(code) {
				prefix |= multiBranchBit
				break
			}
		}
		out = append(out, prefix)
		for i, c := range e.chars {
			code, err := enc.inputCode(c)
			if err != nil {
				return nil, err
			}
			link := e.links[i].offset
			out = append(out, code, byte(link>>8), byte(link))
		}
		out = append(out, 0)
	}
	return out, nil
}

// matchRecord packs one match into four bytes: the code byte, the
// completion length and the completion offset.
func (enc *v3_2Encoder) matchRecord(match *trie.Match, hasChildren bool) ([]byte, error) {
	completion, err := enc.mapping.CompletionBytes(match.Completion)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", match.Sequence, err)
	}
	off, ok := enc.blob.Offset(completion)
	if !ok {
		return nil, fmt.Errorf("rule %q: completion %q missing from blob", match.Sequence, match.Completion)
	}
	if off > MaxOffset {
		return nil, &OffsetOverflowError{Offset: off}
	}
	if err := checkField(match.Sequence, "output function", int(match.Func), v3_2MaxFunc); err != nil {
		return nil, err
	}
	if err := checkField(match.Sequence, "backspaces", match.Backspaces, v3_2MaxBackspaces); err != nil {
		return nil, err
	}
	if err := checkField(match.Sequence, "completion length", len(completion), v3_2MaxCompletionLen); err != nil {
		return nil, err
	}

	code := byte(match.Func)<<funcShift | byte(match.Backspaces)
	if hasChildren {
		code |= moreBranchingBit
	}
	return []byte{code, byte(len(completion)), byte(off >> 8), byte(off)}, nil
}

func (enc *v3_2Encoder) inputCode(c rune) (byte, error) {
	code, ok := enc.mapping.InputCode(c)
	if !ok {
		return 0, fmt.Errorf("no input code for symbol %q", c)
	}
	if code > 0xFF {
		return 0, fmt.Errorf("symbol %q has code 0x%04X, beyond one byte", c, code)
	}
	return byte(code), nil
}

// sortedByCode orders branch children by their numeric symbol code, the
// order the firmware scans a branch table in.
func sortedByCode(symbols []rune, m *triecode.Mapping) []rune {
	out := append([]rune{}, symbols...)
	sort.Slice(out, func(i, j int) bool {
		a, _ := m.InputCode(out[i])
		b, _ := m.InputCode(out[j])
		return a < b
	})
	return out
}
