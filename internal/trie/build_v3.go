package trie

import (
	"strings"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/rules"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

// BuildV3 inserts every rule into a reversed trie and resolves completions
// with the on-screen simulation of shorter rules firing along the way.
func BuildV3(ruleList []rules.Rule, m *triecode.Mapping, warnf func(format string, args ...any)) *Trie {
	t := &Trie{root: &Node{}, mapping: m}
	for _, rule := range ruleList {
		match := t.newMatch(rule)
		node := t.root.descend(reversed([]rune(rule.Sequence)))
		node.match = match
	}
	t.insertDefaultTokenMatches(warnf)
	t.resolveV3()
	return t
}

// resolveV3 visits every match depth first and computes its backspaces and
// completion. Resolution recurses into shorter sub-matches first; the
// recursion terminates because a sub-match always covers a strictly shorter
// prefix of the sequence.
func (t *Trie) resolveV3() {
	var completeMatch func(m *Match)

	// longestMatch finds the deepest match reached by walking the buffer
	// newest to oldest, resolving any unresolved match on the way.
	longestMatch := func(buffer []rune) *Match {
		var found *Match
		node := t.root
		for i := len(buffer) - 1; i >= 0; i-- {
			node = node.children[buffer[i]]
			if node == nil {
				break
			}
			if node.match != nil && !node.match.resolving {
				if !node.match.Resolved() {
					completeMatch(node.match)
				}
				found = node.match
			}
		}
		return found
	}

	completeMatch = func(m *Match) {
		m.resolving = true
		defer func() { m.resolving = false }()
		seq := []rune(m.Sequence)
		var back, expanded []rune
		for _, c := range seq[:len(seq)-1] {
			back = append(back, c)
			expanded = append(expanded, c)
			match := longestMatch(back)
			if match == nil {
				match = longestMatch(expanded)
			}
			if match != nil {
				n := match.Backspaces + 1
				if n > len(expanded) {
					n = len(expanded)
				}
				expanded = expanded[:len(expanded)-n]
				expanded = append(expanded, []rune(match.Completion)...)
			}
		}
		if len(expanded) > 0 && expanded[0] == t.Wordbreak() {
			expanded = expanded[1:]
		}
		target := []rune(m.Target)
		i := commonPrefixLen(expanded, target)
		m.Backspaces = len(expanded) - i
		m.Completion = strings.ReplaceAll(string(target[i:]), string(t.Wordbreak()), " ")
	}

	var walk func(n *Node)
	walk = func(n *Node) {
		if n.match != nil && !n.match.Resolved() {
			completeMatch(n.match)
		}
		for _, r := range n.ChildSymbols() {
			walk(n.children[r])
		}
	}
	walk(t.root)
}
