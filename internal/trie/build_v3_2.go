package trie

import (
	"sort"
	"strings"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/rules"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

// BuildV3_2 builds the trie with sub-rule chaining: shorter rules are
// inserted first, and a rule whose sequence extends an earlier rule becomes
// a chain match expressed relative to what that sub-rule leaves on screen.
func BuildV3_2(ruleList []rules.Rule, m *triecode.Mapping, warnf func(format string, args ...any)) *Trie {
	t := &Trie{root: &Node{}, mapping: m}

	ordered := make([]rules.Rule, len(ruleList))
	copy(ordered, ruleList)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len([]rune(ordered[i].Sequence)) < len([]rune(ordered[j].Sequence))
	})

	var inserted []*Match
	for _, rule := range ordered {
		match := t.newMatch(rule)

		sub := findSubRule(inserted, rule.Sequence)
		warnGaps(inserted, rule, sub, warnf)

		seq := []rune(rule.Sequence)
		target := []rune(match.Target)
		if sub == nil {
			// The whole typed sequence is on screen when the rule fires.
			i := commonPrefixLen(seq, target)
			match.Backspaces = len(seq) - i
			match.Completion = t.completion(target[i:])
			t.root.descend(reversed(seq)).match = match
		} else {
			match.Sub = sub
			suffix := seq[len([]rune(sub.Sequence)):]
			base := append([]rune(sub.Target), suffix...)
			i := commonPrefixLen(base, target)
			match.Backspaces = len(base) - i
			match.Completion = t.completion(target[i:])

			depth := i + 1
			if depth > len(suffix) {
				depth = len(suffix)
			}
			node := t.root.descend(reversed(suffix[:depth]))
			node.chains = append(node.chains, match)
		}
		inserted = append(inserted, match)
	}

	t.insertDefaultTokenMatches(warnf)
	return t
}

// completion renders the tail of a transform as the on-screen completion,
// with word breaks as literal spaces.
func (t *Trie) completion(tail []rune) string {
	return strings.ReplaceAll(string(tail), string(t.Wordbreak()), " ")
}

// findSubRule scans already-inserted rules newest first and returns the
// first whose sequence is a strict prefix of seq.
func findSubRule(inserted []*Match, seq string) *Match {
	for i := len(inserted) - 1; i >= 0; i-- {
		sub := inserted[i]
		if sub.Sequence != seq && strings.HasPrefix(seq, sub.Sequence) {
			return sub
		}
	}
	return nil
}

// warnGaps reports rule-set shapes the chain builder cannot take advantage
// of: a shorter rule embedded in the middle of the new sequence (missing
// intermediate rule), and a shorter rule that matches a suffix of the new
// sequence, which the firmware would fire first (missing prefix rule).
func warnGaps(inserted []*Match, rule rules.Rule, sub *Match, warnf func(format string, args ...any)) {
	if warnf == nil {
		return
	}
	for _, prev := range inserted {
		if prev == sub || len(prev.Sequence) >= len(rule.Sequence) {
			continue
		}
		switch {
		case strings.HasPrefix(rule.Sequence, prev.Sequence):
			// A shorter prefix rule than the selected sub-rule; harmless.
		case strings.HasSuffix(rule.Sequence, prev.Sequence):
			warnf("%d: sequence %q ends with rule %q; consider adding a rule for the missing prefix %q",
				rule.Line, rule.Sequence, prev.Sequence,
				rule.Sequence[:len(rule.Sequence)-len(prev.Sequence)])
		case strings.Contains(rule.Sequence, prev.Sequence):
			warnf("%d: sequence %q contains rule %q mid-sequence; consider adding the missing intermediate rule",
				rule.Line, rule.Sequence, prev.Sequence)
		}
	}
}
