package triecode

import (
	"fmt"
	"sort"
)

// Token is one user-chosen sequence token glyph and its ASCII stand-in used
// by test harnesses.
type Token struct {
	Glyph rune
	ASCII byte
}

// Symbols is the symbol alphabet read from the configuration document.
type Symbols struct {
	Tokens         []Token // ordered: index decides the token's code
	Wordbreak      rune
	WordbreakASCII byte
	OutputFuncs    []rune

	// v3_2 additions.
	Space               rune
	Digit               rune
	Alpha               rune
	UpperAlpha          rune
	Punct               rune
	TerminatingPunct    rune
	NonterminatingPunct rune
	Any                 rune
	TransformRefs       []rune
}

// Mapping holds the bidirectional symbol maps for one compile. All maps are
// built once and treated as immutable afterwards.
type Mapping struct {
	format Format
	syms   Symbols

	input      map[rune]uint16 // symbols usable inside sequences
	transform  map[rune]uint16 // symbols usable inside transforms
	outputFunc map[rune]uint8  // trigger symbol -> function code, 1-based
}

// NewMapping builds the symbol maps for the given format.
//
// Codes must not collide across categories within their code space; the
// symbol sets are checked glyph by glyph while the maps are filled.
func NewMapping(format Format, syms Symbols) (*Mapping, error) {
	m := &Mapping{
		format:     format,
		syms:       syms,
		input:      map[rune]uint16{},
		transform:  map[rune]uint16{},
		outputFunc: map[rune]uint8{},
	}

	if len(syms.OutputFuncs) > MaxOutputFuncs {
		return nil, fmt.Errorf("more than %d (%d) output function symbols were listed %q",
			MaxOutputFuncs, len(syms.OutputFuncs), string(syms.OutputFuncs))
	}
	for i, r := range syms.OutputFuncs {
		if _, ok := m.outputFunc[r]; ok {
			return nil, fmt.Errorf("duplicate output function symbol %q", r)
		}
		m.outputFunc[r] = uint8(1 + i)
	}

	var err error
	switch format {
	case FormatV3:
		err = m.buildV3()
	case FormatV3_2:
		err = m.buildV3_2()
	default:
		err = fmt.Errorf("unknown format %d", format)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// buildV3 fills the v3 keycode map: the same layout the firmware's key event
// queue uses, so sequences can be compared against raw keycodes at runtime.
func (m *Mapping) buildV3() error {
	addRange := func(start uint16, chars string) error {
		i := uint16(0)
		for _, r := range chars {
			if err := m.addInput(r, start+i); err != nil {
				return err
			}
			i++
		}
		return nil
	}

	if err := addRange(KcSemicolon, ";'`,./"); err != nil {
		return err
	}
	if err := addRange(shifted(KcSemicolon), ":\"~<>?"); err != nil {
		return err
	}
	if err := addRange(KcMinus, "-=[]\\"); err != nil {
		return err
	}
	if err := addRange(shifted(KcMinus), "_+{}|"); err != nil {
		return err
	}
	if err := addRange(Kc1, "1234567890"); err != nil {
		return err
	}
	if err := addRange(shifted(Kc1), "!@#$%^&*()"); err != nil {
		return err
	}
	for r := 'a'; r <= 'z'; r++ {
		if err := m.addInput(r, uint16(KcA+r-'a')); err != nil {
			return err
		}
	}
	// Tokens and the word-break sentinel deliberately shadow any base map
	// entry with the same glyph, e.g. a token spelled "@".
	for i, tok := range m.syms.Tokens {
		if err := m.setInput(tok.Glyph, uint16(TokenBaseV3+i)); err != nil {
			return err
		}
	}
	m.input[m.syms.Wordbreak] = KcSpace

	// v3 completions are stored as raw ASCII, so the transform namespace is
	// the identity over printable ASCII plus the word-break sentinel.
	for r := rune(0x20); r < 0x7F; r++ {
		m.transform[r] = uint16(r)
	}
	m.transform[m.syms.Wordbreak] = ' '
	return nil
}

// buildV3_2 fills the v3_2 byte-code map: printable ASCII is the identity,
// tokens and metacharacter classes sit above it.
func (m *Mapping) buildV3_2() error {
	for r := rune(0x20); r < 0x7F; r++ {
		if err := m.addInput(r, uint16(r)); err != nil {
			return err
		}
		m.transform[r] = uint16(r)
	}
	for i, tok := range m.syms.Tokens {
		if TokenBaseV3_2+i >= MetacharBase {
			return fmt.Errorf("too many sequence tokens (%d): token codes would collide with metacharacters", len(m.syms.Tokens))
		}
		if err := m.setInput(tok.Glyph, uint16(TokenBaseV3_2+i)); err != nil {
			return err
		}
	}

	metachars := []struct {
		glyph rune
		code  uint16
	}{
		{m.syms.Wordbreak, MetaWordbreak},
		{m.syms.Alpha, MetaAlpha},
		{m.syms.UpperAlpha, MetaUpperAlpha},
		{m.syms.Digit, MetaDigit},
		{m.syms.Punct, MetaPunct},
		{m.syms.TerminatingPunct, MetaTerminatingPunct},
		{m.syms.NonterminatingPunct, MetaNonterminatingPunct},
		{m.syms.Any, MetaAny},
	}
	for _, mc := range metachars {
		if mc.glyph == 0 {
			continue
		}
		if err := m.setInput(mc.glyph, mc.code); err != nil {
			return err
		}
	}

	if m.syms.Space != 0 {
		m.transform[m.syms.Space] = ' '
	}
	m.transform[m.syms.Wordbreak] = ' '
	for i, r := range m.syms.TransformRefs {
		if BackrefBase+i > 0xFF {
			return fmt.Errorf("too many transform reference symbols (%d)", len(m.syms.TransformRefs))
		}
		if _, ok := m.transform[r]; ok && r < 0x7F && r >= 0x20 {
			return fmt.Errorf("transform reference symbol %q collides with printable ASCII", r)
		}
		m.transform[r] = uint16(BackrefBase + i)
	}
	return nil
}

func (m *Mapping) addInput(r rune, code uint16) error {
	if old, ok := m.input[r]; ok {
		return fmt.Errorf("symbol %q maps to both code 0x%04X and 0x%04X", r, old, code)
	}
	m.input[r] = code
	return nil
}

// setInput shadows any base map entry for r, but still rejects two
// user-chosen symbols landing on the same glyph.
func (m *Mapping) setInput(r rune, code uint16) error {
	if old, ok := m.input[r]; ok && m.isUserCode(old) {
		return fmt.Errorf("symbol %q maps to both code 0x%04X and 0x%04X", r, old, code)
	}
	m.input[r] = code
	return nil
}

// isUserCode reports whether code belongs to a user-chosen category (token
// or metacharacter) as opposed to the fixed letter/punctuation base map.
func (m *Mapping) isUserCode(code uint16) bool {
	if m.format == FormatV3_2 {
		return code >= TokenBaseV3_2
	}
	return code >= TokenBaseV3 && code < ModLsft
}

// Format returns the wire format this mapping was built for.
func (m *Mapping) Format() Format { return m.format }

// Wordbreak returns the word-break sentinel glyph.
func (m *Mapping) Wordbreak() rune { return m.syms.Wordbreak }

// Tokens returns the ordered sequence token set.
func (m *Mapping) Tokens() []Token { return m.syms.Tokens }

// TokenBase returns the first sequence token code for the mapping's format.
func (m *Mapping) TokenBase() uint16 {
	if m.format == FormatV3_2 {
		return TokenBaseV3_2
	}
	return TokenBaseV3
}

// InputCode resolves a sequence symbol to its trie code.
func (m *Mapping) InputCode(r rune) (uint16, bool) {
	code, ok := m.input[r]
	return code, ok
}

// IsInputSymbol reports whether r may appear in a rule sequence.
func (m *Mapping) IsInputSymbol(r rune) bool {
	_, ok := m.input[r]
	return ok
}

// TransformCode resolves a transform symbol to the byte stored in the
// completions blob.
func (m *Mapping) TransformCode(r rune) (uint16, bool) {
	code, ok := m.transform[r]
	return code, ok
}

// OutputFunc resolves a trigger symbol to its output function code, or 0 if
// the symbol does not name an output function.
func (m *Mapping) OutputFunc(r rune) uint8 {
	return m.outputFunc[r]
}

// OutputFuncCount returns the number of configured output functions.
func (m *Mapping) OutputFuncCount() int { return len(m.outputFunc) }

// SequenceCodes resolves every symbol of a sequence. Symbols missing from
// the input map are reported with their index.
func (m *Mapping) SequenceCodes(seq string) ([]uint16, error) {
	codes := make([]uint16, 0, len(seq))
	for i, r := range seq {
		code, ok := m.input[r]
		if !ok {
			return nil, fmt.Errorf("symbol %q at index %d is not a known input symbol", r, i)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// CompletionBytes converts a resolved completion string to the bytes stored
// in the completions blob.
func (m *Mapping) CompletionBytes(completion string) ([]byte, error) {
	out := make([]byte, 0, len(completion))
	for _, r := range completion {
		code, ok := m.transform[r]
		if !ok {
			return nil, fmt.Errorf("symbol %q cannot appear in a completion", r)
		}
		if code > 0xFF {
			return nil, fmt.Errorf("symbol %q has transform code 0x%04X, beyond one byte", r, code)
		}
		out = append(out, byte(code))
	}
	return out, nil
}

// SortedInputSymbols returns the input glyphs ordered by their numeric code.
// Branch tables are emitted in this order in the v3_2 format.
func (m *Mapping) SortedInputSymbols() []rune {
	out := make([]rune, 0, len(m.input))
	for r := range m.input {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return m.input[out[i]] < m.input[out[j]] })
	return out
}
