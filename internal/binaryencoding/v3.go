package binaryencoding

import (
	"fmt"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/completions"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/trie"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

// v3 wire format: 16-bit code units.
const (
	v3MatchBit  = 0x8000
	v3BranchBit = 0x4000

	v3MaxFunc          = 7
	v3MaxBackspaces    = 15
	v3MaxCompletionLen = 127
)

// v3Entry is one table entry: an optional two-word match record, then a
// chain run or a branch table.
type v3Entry struct {
	data   []uint16 // match record, two code units if present
	chars  []rune   // chain or branch symbols
	links  []*v3Entry
	branch bool
	offset int
}

// EncodeV3 serializes the trie as 16-bit code units.
//
// Each node emits an optional match record, then its link region: nothing
// for a leaf, the coalesced symbol run for a single-child chain (the target
// node follows immediately in emission order), or a branch table of
// (symbol, absolute offset) pairs.
func EncodeV3(t *trie.Trie, m *triecode.Mapping, blob *completions.Blob) ([]uint16, error) {
	var table []*v3Entry

	var traverse func(n *trie.Node) (*v3Entry, error)
	traverse = func(n *trie.Node) (*v3Entry, error) {
		entry := &v3Entry{}
		if match := n.Match(); match != nil {
			record, err := v3MatchRecord(match, n.ChildCount() > 0, m, blob)
			if err != nil {
				return nil, err
			}
			entry.data = record
		}
		table = append(table, entry)

		switch n.ChildCount() {
		case 0:
		case 1:
			// Long chains of single-child nodes are common; the whole run
			// is coalesced into one entry.
			c := n.ChildSymbols()[0]
			child := n.Child(c)
			entry.chars = []rune{c}
			for child.ChildCount() == 1 && child.Match() == nil {
				c = child.ChildSymbols()[0]
				entry.chars = append(entry.chars, c)
				child = child.Child(c)
			}
			link, err := traverse(child)
			if err != nil {
				return nil, err
			}
			entry.links = []*v3Entry{link}
		default:
			entry.branch = true
			entry.chars = n.ChildSymbols()
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

	serialize := func(e *v3Entry) ([]uint16, error) {
		out := append([]uint16{}, e.data...)
		switch {
		case len(e.links) == 0:
		case !e.branch:
			for _, c := range e.chars {
				code, ok := m.InputCode(c)
				if !ok {
					return nil, fmt.Errorf("no input code for symbol %q", c)
				}
				out = append(out, code)
			}
			out = append(out, 0)
		default:
			for i, c := range e.chars {
				code, ok := m.InputCode(c)
				if !ok {
					return nil, fmt.Errorf("no input code for symbol %q", c)
				}
				if i == 0 {
					code |= v3BranchBit
				}
				out = append(out, code, uint16(e.links[i].offset))
			}
			out = append(out, 0)
		}
		return out, nil
	}

	// First pass assigns offsets without emitting.
	offset := 0
	for _, e := range table {
		e.offset = offset
		words, err := serialize(e)
		if err != nil {
			return nil, err
		}
		offset += len(words)
		if offset > MaxOffset {
			return nil, &OffsetOverflowError{Offset: offset}
		}
	}

	var out []uint16
	for _, e := range table {
		words, err := serialize(e)
		if err != nil {
			return nil, err
		}
		out = append(out, words...)
	}
	return out, nil
}

// v3MatchRecord packs a match into two code units: the bit-packed header
// and the completion offset.
func v3MatchRecord(match *trie.Match, hasChildren bool, m *triecode.Mapping, blob *completions.Blob) ([]uint16, error) {
	completion, err := m.CompletionBytes(match.Completion)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", match.Sequence, err)
	}
	off, ok := blob.Offset(completion)
	if !ok {
		return nil, fmt.Errorf("rule %q: completion %q missing from blob", match.Sequence, match.Completion)
	}
	if off > MaxOffset {
		return nil, &OffsetOverflowError{Offset: off}
	}
	if err := checkField(match.Sequence, "output function", int(match.Func), v3MaxFunc); err != nil {
		return nil, err
	}
	if err := checkField(match.Sequence, "backspaces", match.Backspaces, v3MaxBackspaces); err != nil {
		return nil, err
	}
	if err := checkField(match.Sequence, "completion length", len(completion), v3MaxCompletionLen); err != nil {
		return nil, err
	}

	code := uint16(v3MatchBit)
	if hasChildren {
		code |= v3BranchBit
	}
	code |= uint16(match.Func) << 11
	code |= uint16(match.Backspaces) << 7
	code |= uint16(len(completion))
	return []uint16{code, uint16(off)}, nil
}
