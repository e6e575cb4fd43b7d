package firmware

import (
	"fmt"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

const (
	hdrMatchBit         = 0x80
	hdrBranchBit        = 0x40
	hdrOwnMatchBit      = 0x20
	hdrCountOverflowBit = 0x10

	chainRunMarker = 0x01
	branchBit      = 0x40
	multiBranchBit = 0x20
)

// ChainMatch is a decoded chain match: a match record expressed relative to
// the already-fired sub-rule its SubOffset points at.
type ChainMatch struct {
	SubOffset int
	Match     Match
}

// NodeV3_2 is one decoded v3_2 node entry.
type NodeV3_2 struct {
	Offset      int
	OwnMatch    *Match
	Chains      []ChainMatch
	HasChildren bool
	MultiBranch bool

	// chainRun holds every symbol code of a single-child chain run and
	// chainNext the offset of the entry that follows the run; branches maps
	// each branch symbol code to its child entry offset.
	chainRun  []byte
	chainNext int
	branches  map[byte]int
}

// V3_2 walks an 8-bit code unit trie blob.
type V3_2 struct {
	Data        []byte
	Completions []byte
	Mapping     *triecode.Mapping
}

// Decode parses every node entry in emission order. Each match record's
// completion range is checked against the completions blob; branch links and
// chain sub-rule links are decoded but their targets are not checked.
func (t *V3_2) Decode() ([]NodeV3_2, error) {
	var nodes []NodeV3_2
	for off := 0; off < len(t.Data); {
		node, next, err := t.decodeEntry(off)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
		off = next
	}
	return nodes, nil
}

// decodeEntry parses the node entry at off and returns it plus the offset
// of the entry that follows.
func (t *V3_2) decodeEntry(off int) (NodeV3_2, int, error) {
	node := NodeV3_2{Offset: off}
	if off >= len(t.Data) {
		return node, off, fmt.Errorf("offset %d out of range", off)
	}
	p := off

	hadHeader := t.Data[p]&hdrMatchBit != 0
	if hadHeader {
		header := t.Data[p]
		p++
		node.HasChildren = header&hdrBranchBit != 0
		count := int(header & 0x0F)
		if header&hdrCountOverflowBit != 0 {
			count = count<<8 | int(t.Data[p])
			p++
		}
		if header&hdrOwnMatchBit != 0 {
			m, err := t.decodeMatch(p)
			if err != nil {
				return node, 0, err
			}
			node.OwnMatch = &m
			p += 4
		}
		for i := 0; i < count; i++ {
			subOff := int(t.Data[p])<<8 | int(t.Data[p+1])
			m, err := t.decodeMatch(p + 2)
			if err != nil {
				return node, 0, err
			}
			node.Chains = append(node.Chains, ChainMatch{SubOffset: subOff, Match: m})
			p += 6
		}
	}

	// A header with the branch bit clear ends the entry; whatever follows
	// belongs to the next one. Without a header the entry is nothing but
	// its link region.
	if (hadHeader && !node.HasChildren) || p >= len(t.Data) {
		return node, p, nil
	}
	switch {
	case t.Data[p] == chainRunMarker:
		node.HasChildren = true
		p++
		for t.Data[p] != 0 {
			node.chainRun = append(node.chainRun, t.Data[p])
			p++
		}
		p++
		node.chainNext = p
	case t.Data[p]&branchBit != 0:
		node.HasChildren = true
		node.MultiBranch = t.Data[p]&multiBranchBit != 0
		p++
		node.branches = map[byte]int{}
		for t.Data[p] != 0 {
			code := t.Data[p]
			node.branches[code] = int(t.Data[p+1])<<8 | int(t.Data[p+2])
			p += 3
		}
		p++
	default:
		return node, p, fmt.Errorf("offset %d: byte 0x%02X is neither a chain run nor a branch table", p, t.Data[p])
	}
	return node, p, nil
}

func (t *V3_2) decodeMatch(p int) (Match, error) {
	code := t.Data[p]
	clen := int(t.Data[p+1])
	compOff := int(t.Data[p+2])<<8 | int(t.Data[p+3])
	if compOff+clen > len(t.Completions) {
		return Match{}, fmt.Errorf("completion offset %d+%d out of range", compOff, clen)
	}
	return Match{
		Func:       code >> 5 & 0x3,
		Backspaces: int(code & 0x1F),
		Completion: t.Completions[compOff : compOff+clen],
		Offset:     p,
	}, nil
}

// v3_2Pos is a walk position: a node entry, or an index into a chain run.
type v3_2Pos struct {
	entry    int // offset of the owning entry
	chainIdx int // next expected symbol in the entry's chain run, -1 if at the entry itself
}

// fired is the sub-rule context a chain match needs: the record offset of
// the most recently fired match and how many keys ago it fired.
type fired struct {
	offset int
	keyAge int
}

// walkResult is the deepest firing candidate of one history walk.
type walkResult struct {
	match Match
	ok    bool
}

// lookup walks the typed history newest to oldest, collecting the deepest
// candidate: a plain match, or a chain match whose sub-rule is the most
// recently fired record at exactly the right distance.
func (t *V3_2) lookup(history []rune, last *fired) walkResult {
	var res walkResult
	pos := v3_2Pos{entry: 0, chainIdx: -1}
	depth := 0
	for i := len(history) - 1; i >= 0; i-- {
		code16, ok := t.Mapping.InputCode(history[i])
		if !ok || code16 > 0xFF {
			break
		}
		next, node, ok := t.step(pos, byte(code16))
		if !ok {
			break
		}
		pos = next
		depth++
		if node == nil {
			continue
		}
		if node.OwnMatch != nil {
			res = walkResult{match: *node.OwnMatch, ok: true}
		}
		for _, chain := range node.Chains {
			if last != nil && chain.SubOffset == last.offset && depth == last.keyAge {
				res = walkResult{match: chain.Match, ok: true}
			}
		}
	}
	return res
}

// step consumes one symbol. It returns the decoded node when the walk lands
// on a node entry; positions inside a chain run carry no matches.
func (t *V3_2) step(pos v3_2Pos, code byte) (v3_2Pos, *NodeV3_2, bool) {
	if pos.chainIdx >= 0 {
		node, _, err := t.decodeEntry(pos.entry)
		if err != nil {
			return pos, nil, false
		}
		return t.stepChain(pos.entry, node, pos.chainIdx, code)
	}

	node, _, err := t.decodeEntry(pos.entry)
	if err != nil {
		return pos, nil, false
	}
	switch {
	case node.branches != nil:
		child, ok := node.branches[code]
		if !ok && node.MultiBranch {
			for branchCode, off := range node.branches {
				if metacharMatches(branchCode, code) {
					child, ok = off, true
					break
				}
			}
		}
		if !ok {
			return pos, nil, false
		}
		return t.arriveEntry(child)
	case node.chainRun != nil:
		return t.stepChain(pos.entry, node, 0, code)
	}
	return pos, nil, false
}

func (t *V3_2) stepChain(entry int, node NodeV3_2, idx int, code byte) (v3_2Pos, *NodeV3_2, bool) {
	if idx >= len(node.chainRun) || node.chainRun[idx] != code {
		return v3_2Pos{}, nil, false
	}
	if idx == len(node.chainRun)-1 {
		return t.arriveEntry(node.chainNext)
	}
	return v3_2Pos{entry: entry, chainIdx: idx + 1}, nil, true
}

func (t *V3_2) arriveEntry(off int) (v3_2Pos, *NodeV3_2, bool) {
	node, _, err := t.decodeEntry(off)
	if err != nil {
		return v3_2Pos{}, nil, false
	}
	return v3_2Pos{entry: off, chainIdx: -1}, &node, true
}

// metacharMatches applies a metacharacter class code to a literal symbol
// code from the typed history.
func metacharMatches(class, code byte) bool {
	switch uint16(class) {
	case triecode.MetaWordbreak:
		return code == ' '
	case triecode.MetaAlpha:
		return (code >= 'a' && code <= 'z') || (code >= 'A' && code <= 'Z')
	case triecode.MetaUpperAlpha:
		return code >= 'A' && code <= 'Z'
	case triecode.MetaDigit:
		return code >= '0' && code <= '9'
	case triecode.MetaPunct:
		return isPunct(code)
	case triecode.MetaTerminatingPunct:
		return code == '.' || code == '!' || code == '?'
	case triecode.MetaNonterminatingPunct:
		return isPunct(code) && code != '.' && code != '!' && code != '?'
	case triecode.MetaAny:
		return true
	}
	return false
}

func isPunct(code byte) bool {
	switch code {
	case '.', ',', ';', ':', '!', '?', '\'', '"', '-':
		return true
	}
	return false
}

// Simulate types the sequence one symbol at a time, firing matches and
// rewriting the screen buffer, and returns the final screen content.
// Completions are literal; back-reference bytes resolve against the typed
// history position they capture.
func (t *V3_2) Simulate(sequence string) (string, error) {
	var screen, history []rune
	var last *fired

	for _, c := range sequence {
		history = append(history, c)
		screen = append(screen, c)
		if last != nil {
			last.keyAge++
		}
		res := t.lookup(history, last)
		if !res.ok {
			continue
		}
		n := res.match.Backspaces
		if n > len(screen) {
			n = len(screen)
		}
		screen = screen[:len(screen)-n]
		for _, b := range res.match.Completion {
			if int(b) >= triecode.BackrefBase && b < triecode.MetacharBase {
				idx := int(b) - triecode.BackrefBase
				if idx < len(history) {
					screen = append(screen, history[idx])
				}
				continue
			}
			screen = append(screen, rune(b))
		}
		last = &fired{offset: res.match.Offset, keyAge: 0}
	}
	return string(screen), nil
}
