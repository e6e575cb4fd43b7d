// Package trie builds the reverse-suffix trie over all rule sequences and
// resolves each match's backspace count and completion string.
//
// Sequences are inserted reversed because the firmware walks its keystroke
// history from newest to oldest.
package trie

import (
	"sort"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/rules"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

// unresolved marks a match whose backspaces and completion have not been
// computed yet.
const unresolved = -1

// Match is the record attached to a trie node for one rule.
type Match struct {
	Sequence string
	Target   string // transform with any output function symbol stripped
	Func     uint8
	Line     int

	Backspaces int
	Completion string
	resolving  bool

	// Sub is the shorter rule this match is expressed relative to, for
	// chain matches. Nil for plain matches.
	Sub *Match

	// WireOffset is the byte offset of this match's serialized record,
	// assigned during the serializer's measuring pass so chain matches can
	// link to their sub-rule.
	WireOffset int
}

// Resolved reports whether backspaces and completion have been computed.
func (m *Match) Resolved() bool { return m.Backspaces != unresolved }

// Node is one trie node: a map from a single symbol to a child, an optional
// match, and any chain matches anchored here.
type Node struct {
	children map[rune]*Node
	match    *Match
	chains   []*Match
}

// Match returns the node's own match, or nil.
func (n *Node) Match() *Match { return n.match }

// Chains returns the chain matches anchored at this node.
func (n *Node) Chains() []*Match { return n.chains }

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return len(n.children) }

// Child returns the child along symbol r, or nil.
func (n *Node) Child(r rune) *Node { return n.children[r] }

// ChildSymbols returns the child symbols sorted by glyph.
func (n *Node) ChildSymbols() []rune {
	out := make([]rune, 0, len(n.children))
	for r := range n.children {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (n *Node) descend(path []rune) *Node {
	node := n
	for _, r := range path {
		child := node.children[r]
		if child == nil {
			if node.children == nil {
				node.children = map[rune]*Node{}
			}
			child = &Node{}
			node.children[r] = child
		}
		node = child
	}
	return node
}

// Trie is the reverse-suffix trie plus the arena of all match records in
// insertion order.
type Trie struct {
	root    *Node
	matches []*Match
	mapping *triecode.Mapping
}

// Root returns the root node.
func (t *Trie) Root() *Node { return t.root }

// Matches returns every match record in insertion order.
func (t *Trie) Matches() []*Match { return t.matches }

// Wordbreak returns the word-break sentinel glyph.
func (t *Trie) Wordbreak() rune { return t.mapping.Wordbreak() }

// reversed returns the runes of s from last to first.
func reversed(s []rune) []rune {
	out := make([]rune, len(s))
	for i, r := range s {
		out[len(s)-1-i] = r
	}
	return out
}

func commonPrefixLen(a, b []rune) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}

// splitFunc strips a trailing output function symbol off the transform.
func splitFunc(transform string, m *triecode.Mapping) (target string, fn uint8) {
	runes := []rune(transform)
	if len(runes) == 0 {
		return transform, 0
	}
	if fn = m.OutputFunc(runes[len(runes)-1]); fn != 0 {
		return string(runes[:len(runes)-1]), fn
	}
	return transform, 0
}

// newMatch makes an unresolved match record for a rule and registers it in
// the arena.
func (t *Trie) newMatch(rule rules.Rule) *Match {
	target, fn := splitFunc(rule.Transform, t.mapping)
	match := &Match{
		Sequence:   rule.Sequence,
		Target:     target,
		Func:       fn,
		Line:       rule.Line,
		Backspaces: unresolved,
	}
	t.matches = append(t.matches, match)
	return match
}

// insertDefaultTokenMatches gives every sequence token with no explicit
// single-token rule a default identity match, so the firmware recognizes
// every token. An explicit rule shadowing a default is reported through
// warnf.
func (t *Trie) insertDefaultTokenMatches(warnf func(format string, args ...any)) {
	for _, tok := range t.mapping.Tokens() {
		node := t.root.descend([]rune{tok.Glyph})
		if node.match != nil {
			if warnf != nil {
				warnf("rule for sequence %q duplicates the default token insertion", string(tok.Glyph))
			}
			continue
		}
		match := &Match{
			Sequence:   string(tok.Glyph),
			Target:     "",
			Backspaces: 0,
			Completion: "",
		}
		node.match = match
		t.matches = append(t.matches, match)
	}
}
