// Package completions packs every distinct completion string into one blob
// in which each completion occurs as a substring.
package completions

import (
	"bytes"
	"sort"
)

// Blob is the packed completions data plus the offset of every completion.
type Blob struct {
	Data    []byte
	offsets map[string]int
	maxLen  int
}

// Offset returns the byte offset of completion inside the blob.
func (b *Blob) Offset(completion []byte) (int, bool) {
	off, ok := b.offsets[string(completion)]
	return off, ok
}

// MaxLen returns the length of the longest completion.
func (b *Blob) MaxLen() int { return b.maxLen }

// Build packs the given completions, longest first, reusing an existing
// substring occurrence when one exists. The greedy order is not globally
// optimal but it is deterministic and adequate for dictionary-sized inputs.
// The empty completion is always present at offset zero.
func Build(completions [][]byte) *Blob {
	distinct := map[string]struct{}{"": {}}
	for _, c := range completions {
		distinct[string(c)] = struct{}{}
	}
	ordered := make([]string, 0, len(distinct))
	for c := range distinct {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	b := &Blob{offsets: make(map[string]int, len(ordered))}
	for _, c := range ordered {
		if i := bytes.Index(b.Data, []byte(c)); i >= 0 {
			b.offsets[c] = i
		} else {
			b.offsets[c] = len(b.Data)
			b.Data = append(b.Data, c...)
		}
		if len(c) > b.maxLen {
			b.maxLen = len(c)
		}
	}
	return b
}
