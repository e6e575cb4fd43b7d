package firmware

import (
	"fmt"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

const (
	v3MatchBit  = 0x8000
	v3BranchBit = 0x4000
)

// V3 walks a 16-bit code unit trie blob.
type V3 struct {
	Data        []uint16
	Completions []byte
	Mapping     *triecode.Mapping
}

// v3Pos is a walk position: a node entry offset, or (inChain) the offset of
// the next expected symbol inside a coalesced chain run.
type v3Pos struct {
	off     int
	inChain bool
}

// LongestMatch walks the buffer newest to oldest and returns the deepest
// match record encountered, like the firmware's history scan.
func (t *V3) LongestMatch(buffer []rune) (Match, bool) {
	var best Match
	found := false

	pos := v3Pos{off: 0}
	for i := len(buffer) - 1; i >= 0; i-- {
		code, ok := t.Mapping.InputCode(buffer[i])
		if !ok {
			break
		}
		next, match, ok := t.step(pos, code)
		if !ok {
			break
		}
		pos = next
		if match != nil {
			best = *match
			found = true
		}
	}
	return best, found
}

// step advances one symbol from pos, returning the new position and the
// match record of the arrived node, if any. Intermediate chain positions
// never carry matches; coalescing stops at every match node.
func (t *V3) step(pos v3Pos, code uint16) (v3Pos, *Match, bool) {
	if pos.inChain {
		return t.consumeChain(pos.off, code)
	}

	off := pos.off
	if off >= len(t.Data) {
		return pos, nil, false
	}
	p := off
	if t.Data[off]&v3MatchBit != 0 {
		if t.Data[off]&v3BranchBit == 0 {
			return pos, nil, false // leaf node
		}
		p = off + 2
	}

	if t.Data[p]&v3BranchBit != 0 {
		// Branch table: (symbol, offset) pairs, the first symbol carrying
		// the branch flag, terminated by a zero code unit.
		for i := p; t.Data[i] != 0; i += 2 {
			if t.Data[i]&^uint16(v3BranchBit) == code {
				return t.arriveEntry(int(t.Data[i+1]))
			}
		}
		return pos, nil, false
	}
	return t.consumeChain(p, code)
}

// consumeChain matches one chain symbol at offset p. The continuation node
// entry sits immediately after the chain's zero terminator.
func (t *V3) consumeChain(p int, code uint16) (v3Pos, *Match, bool) {
	if p >= len(t.Data) || t.Data[p] != code {
		return v3Pos{}, nil, false
	}
	if t.Data[p+1] == 0 {
		return t.arriveEntry(p + 2)
	}
	return v3Pos{off: p + 1, inChain: true}, nil, true
}

func (t *V3) arriveEntry(off int) (v3Pos, *Match, bool) {
	if off >= len(t.Data) {
		return v3Pos{}, nil, false
	}
	var match *Match
	if t.Data[off]&v3MatchBit != 0 {
		m, err := t.decodeMatch(off)
		if err != nil {
			return v3Pos{}, nil, false
		}
		match = &m
	}
	return v3Pos{off: off}, match, true
}

func (t *V3) decodeMatch(off int) (Match, error) {
	code := t.Data[off]
	compOff := int(t.Data[off+1])
	clen := int(code & 0x7F)
	if compOff+clen > len(t.Completions) {
		return Match{}, fmt.Errorf("completion offset %d+%d out of range", compOff, clen)
	}
	return Match{
		Func:       uint8(code >> 11 & 0x7),
		Backspaces: int(code >> 7 & 0xF),
		Completion: t.Completions[compOff : compOff+clen],
		Offset:     off,
	}, nil
}

// Simulate types the sequence one symbol at a time, firing the deepest
// match after every keystroke and rewriting the screen buffer, and returns
// the final screen content.
func (t *V3) Simulate(sequence string) (string, error) {
	var back, expanded []rune
	for _, c := range sequence {
		back = append(back, c)
		expanded = append(expanded, c)
		match, ok := t.LongestMatch(back)
		if !ok {
			match, ok = t.LongestMatch(expanded)
		}
		if ok {
			n := match.Backspaces + 1
			if n > len(expanded) {
				n = len(expanded)
			}
			expanded = expanded[:len(expanded)-n]
			expanded = append(expanded, []rune(string(match.Completion))...)
		}
	}
	return string(expanded), nil
}
