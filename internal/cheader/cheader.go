// Package cheader frames the serialized blobs and their derived constants
// into the compile-unit header the firmware build includes, plus the test
// fixture header listing every rule.
package cheader

import (
	"fmt"
	"io"
	"strings"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

// Artifact is everything the emitter frames: the two blobs, the rule echo,
// and the constants derived during compilation.
type Artifact struct {
	Format      triecode.Format
	TrieWords   []uint16 // v3
	TrieBytes   []byte   // v3_2
	Completions []byte

	Rules []RuleEcho

	SequenceMinLen   int
	SequenceMaxLen   int
	TransformMaxLen  int
	CompletionMaxLen int
	MaxBackspaces    int
}

// RuleEcho is one rule as echoed into the headers: the sequence both as
// glyphs and as resolved codes, and the transform.
type RuleEcho struct {
	Sequence       string
	SequenceCodes  []uint16
	Transform      string
	TransformCodes []uint16
	HasFunc        bool
}

const (
	dataArrayWidth        = 135
	completionsArrayWidth = 100
)

// WriteData writes the data header: the dictionary echo, the derived
// constant defines, the symbol tables and both blobs.
func WriteData(w io.Writer, a *Artifact, m *triecode.Mapping, generatorVersion string) error {
	var b strings.Builder
	b.WriteString("#pragma once\n\n")
	fmt.Fprintf(&b, "// Generated by sequence_transform compiler v%s; do not edit.\n", generatorVersion)
	fmt.Fprintf(&b, "// Sequence transform dictionary (%d entries):\n", len(a.Rules))

	seqWidth := 0
	for _, r := range a.Rules {
		if n := len([]rune(r.Sequence)); n > seqWidth {
			seqWidth = n
		}
	}
	for _, r := range a.Rules {
		pad := strings.Repeat(" ", seqWidth-len([]rune(r.Sequence)))
		fmt.Fprintf(&b, "//   %s%s -> %s\n", r.Sequence, pad,
			strings.ReplaceAll(r.Transform, "\\", "\\ [escape]"))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "#define SPECIAL_KEY_TRIECODE_0 0x%04X\n", m.TokenBase())
	fmt.Fprintf(&b, "#define SEQUENCE_MIN_LENGTH %d\n", a.SequenceMinLen)
	fmt.Fprintf(&b, "#define SEQUENCE_MAX_LENGTH %d\n", a.SequenceMaxLen)
	fmt.Fprintf(&b, "#define TRANSFORM_MAX_LENGTH %d\n", a.TransformMaxLen)
	fmt.Fprintf(&b, "#define COMPLETION_MAX_LENGTH %d\n", a.CompletionMaxLen)
	fmt.Fprintf(&b, "#define MAX_BACKSPACES %d\n", a.MaxBackspaces)
	fmt.Fprintf(&b, "#define DICTIONARY_SIZE %d\n", a.trieLen())
	fmt.Fprintf(&b, "#define COMPLETIONS_SIZE %d\n", len(a.Completions))
	fmt.Fprintf(&b, "#define SEQUENCE_TRANSFORM_COUNT %d\n", len(m.Tokens()))
	b.WriteString("\n")

	writeTokenTables(&b, m)

	if a.Format == triecode.FormatV3_2 {
		b.WriteString("static const uint8_t sequence_transform_trie[DICTIONARY_SIZE] PROGMEM = {\n")
		writeWrapped(&b, hexBytes(a.TrieBytes), dataArrayWidth)
		b.WriteString("};\n\n")
	} else {
		b.WriteString("static const uint16_t sequence_transform_data[DICTIONARY_SIZE] PROGMEM = {\n")
		writeWrapped(&b, hexWords(a.TrieWords), dataArrayWidth)
		b.WriteString("};\n\n")
	}

	b.WriteString("static const uint8_t sequence_transform_completions_data[COMPLETIONS_SIZE] PROGMEM = {\n")
	writeWrapped(&b, hexBytes(a.Completions), completionsArrayWidth)
	b.WriteString("};\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteTest writes the test fixture header: parallel null-terminated arrays
// of sequence code arrays and transforms, excluding output function rules.
func WriteTest(w io.Writer, a *Artifact, m *triecode.Mapping, generatorVersion string) error {
	var b strings.Builder
	b.WriteString("#pragma once\n\n")
	fmt.Fprintf(&b, "// Generated by sequence_transform compiler v%s; do not edit.\n\n", generatorVersion)

	n := 0
	var names []string
	for _, r := range a.Rules {
		if r.HasFunc {
			continue
		}
		name := fmt.Sprintf("st_test_sequence_%d", n)
		fmt.Fprintf(&b, "static const uint16_t %s[] = {%s, 0};\n", name, codeList(r.SequenceCodes))
		names = append(names, name)
		n++
	}
	b.WriteString("\nstatic const uint16_t *sequence_transform_test_sequences[] = {\n")
	for _, name := range names {
		fmt.Fprintf(&b, "    %s,\n", name)
	}
	b.WriteString("    NULL,\n};\n\n")

	if a.Format == triecode.FormatV3_2 {
		n = 0
		var tnames []string
		for _, r := range a.Rules {
			if r.HasFunc {
				continue
			}
			name := fmt.Sprintf("st_test_transform_%d", n)
			fmt.Fprintf(&b, "static const uint16_t %s[] = {%s, 0};\n", name, codeList(r.TransformCodes))
			tnames = append(tnames, name)
			n++
		}
		b.WriteString("\nstatic const uint16_t *sequence_transform_test_transforms[] = {\n")
		for _, name := range tnames {
			fmt.Fprintf(&b, "    %s,\n", name)
		}
		b.WriteString("    NULL,\n};\n")
	} else {
		b.WriteString("static const char *sequence_transform_test_transforms[] = {\n")
		for _, r := range a.Rules {
			if r.HasFunc {
				continue
			}
			fmt.Fprintf(&b, "    %q,\n", r.Transform)
		}
		b.WriteString("    NULL,\n};\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (a *Artifact) trieLen() int {
	if a.Format == triecode.FormatV3_2 {
		return len(a.TrieBytes)
	}
	return len(a.TrieWords)
}

// writeTokenTables emits the token glyph and ASCII stand-in tables used by
// debug output and test harnesses.
func writeTokenTables(b *strings.Builder, m *triecode.Mapping) {
	tokens := m.Tokens()
	var ascii, glyphs []string
	for _, tok := range tokens {
		ascii = append(ascii, fmt.Sprintf("'%c'", tok.ASCII))
		glyphs = append(glyphs, fmt.Sprintf("%q", string(tok.Glyph)))
	}
	fmt.Fprintf(b, "static const char st_seq_token_ascii_chars[] = {%s};\n", strings.Join(ascii, ", "))
	fmt.Fprintf(b, "static const char *st_seq_token_utf8_chars[] = {%s};\n\n", strings.Join(glyphs, ", "))
}

func hexWords(words []uint16) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = fmt.Sprintf("0x%04X", w)
	}
	return out
}

func hexBytes(data []byte) []string {
	out := make([]string, len(data))
	for i, v := range data {
		out[i] = fmt.Sprintf("0x%02X", v)
	}
	return out
}

func codeList(codes []uint16) string {
	return strings.Join(hexWords(codes), ", ")
}

// writeWrapped joins items with commas, wrapping lines at width like the
// array formatting the firmware sources already use.
func writeWrapped(b *strings.Builder, items []string, width int) {
	line := "    "
	for i, item := range items {
		piece := item
		if i != len(items)-1 {
			piece += ","
		}
		if len(line)+len(piece)+1 > width && line != "    " {
			b.WriteString(strings.TrimRight(line, " ") + "\n")
			line = "    "
		}
		line += piece + " "
	}
	if strings.TrimSpace(line) != "" {
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
}
