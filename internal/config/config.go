// Package config loads the compiler's key/value configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
)

// MissingKeyError reports a required configuration key that is absent.
type MissingKeyError struct {
	Key string
}

// Error implements error.
func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("config: missing required key %q", e.Key)
}

// Config is the parsed configuration document. Values are resolved once at
// load time and immutable afterwards.
type Config struct {
	Format  triecode.Format
	Symbols triecode.Symbols

	CommentStr                        string
	SeparatorStr                      string
	RulesFileName                     string
	ImplicitTransformLeadingWordbreak bool

	// Dir is the directory the document was loaded from. The rules file and
	// default output paths resolve relative to it.
	Dir string
}

// RulesPath returns the rules file location, resolving a relative name
// against the config document's directory.
func (c *Config) RulesPath() string {
	if filepath.IsAbs(c.RulesFileName) {
		return c.RulesFileName
	}
	return filepath.Join(c.Dir, c.RulesFileName)
}

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{SeparatorStr: "->", Dir: "."}

	format, err := optionalString(raw, "format_version", "v3")
	if err != nil {
		return nil, err
	}
	switch format {
	case "v3":
		cfg.Format = triecode.FormatV3
	case "v3_2":
		cfg.Format = triecode.FormatV3_2
	default:
		return nil, fmt.Errorf("config: unknown format_version %q", format)
	}

	// sequence_token_symbols is an ordered glyph -> ASCII stand-in map; the
	// order decides token codes, so the object is decoded token by token.
	tokRaw, ok := raw["sequence_token_symbols"]
	if !ok {
		return nil, &MissingKeyError{"sequence_token_symbols"}
	}
	pairs, err := orderedStringPairs(tokRaw)
	if err != nil {
		return nil, fmt.Errorf("config: sequence_token_symbols: %w", err)
	}
	for _, p := range pairs {
		glyph, err := oneGlyph(p.key)
		if err != nil {
			return nil, fmt.Errorf("config: sequence_token_symbols: %w", err)
		}
		ascii, err := oneASCII(p.value)
		if err != nil {
			return nil, fmt.Errorf("config: sequence_token_symbols: %w", err)
		}
		cfg.Symbols.Tokens = append(cfg.Symbols.Tokens, triecode.Token{Glyph: glyph, ASCII: ascii})
	}

	wbRaw, ok := raw["wordbreak_symbol"]
	if !ok {
		return nil, &MissingKeyError{"wordbreak_symbol"}
	}
	wbPairs, err := orderedStringPairs(wbRaw)
	if err != nil || len(wbPairs) != 1 {
		return nil, fmt.Errorf("config: wordbreak_symbol must be a single glyph -> ASCII entry")
	}
	if cfg.Symbols.Wordbreak, err = oneGlyph(wbPairs[0].key); err != nil {
		return nil, fmt.Errorf("config: wordbreak_symbol: %w", err)
	}
	if cfg.Symbols.WordbreakASCII, err = oneASCII(wbPairs[0].value); err != nil {
		return nil, fmt.Errorf("config: wordbreak_symbol: %w", err)
	}

	funcs, err := outputFuncs(raw)
	if err != nil {
		return nil, err
	}
	cfg.Symbols.OutputFuncs = funcs

	if cfg.CommentStr, err = requiredString(raw, "comment_str"); err != nil {
		return nil, err
	}
	if cfg.SeparatorStr, err = optionalString(raw, "separator_str", "->"); err != nil {
		return nil, err
	}
	if cfg.RulesFileName, err = requiredString(raw, "rules_file_name"); err != nil {
		return nil, err
	}
	if v, ok := raw["implicit_transform_leading_wordbreak"]; ok {
		if err := json.Unmarshal(v, &cfg.ImplicitTransformLeadingWordbreak); err != nil {
			return nil, fmt.Errorf("config: implicit_transform_leading_wordbreak: %w", err)
		}
	}

	if cfg.Format == triecode.FormatV3_2 {
		if err := parseV3_2Symbols(raw, &cfg.Symbols); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// parseV3_2Symbols reads the metacharacter and transform reference symbols
// the v3_2 format adds.
func parseV3_2Symbols(raw map[string]json.RawMessage, syms *triecode.Symbols) error {
	glyphKeys := []struct {
		key  string
		dest *rune
	}{
		{"space_symbol", &syms.Space},
		{"digit_symbol", &syms.Digit},
		{"alpha_symbol", &syms.Alpha},
		{"upper_alpha_symbol", &syms.UpperAlpha},
		{"punct_symbol", &syms.Punct},
		{"nonterminating_punct_symbol", &syms.NonterminatingPunct},
		{"terminating_punct_symbol", &syms.TerminatingPunct},
		{"any_symbol", &syms.Any},
	}
	for _, gk := range glyphKeys {
		s, err := requiredString(raw, gk.key)
		if err != nil {
			return err
		}
		if *gk.dest, err = oneGlyph(s); err != nil {
			return fmt.Errorf("config: %s: %w", gk.key, err)
		}
	}

	refsRaw, ok := raw["transform_sequence_reference_symbols"]
	if !ok {
		return &MissingKeyError{"transform_sequence_reference_symbols"}
	}
	var refs []string
	if err := json.Unmarshal(refsRaw, &refs); err != nil {
		return fmt.Errorf("config: transform_sequence_reference_symbols: %w", err)
	}
	for _, s := range refs {
		r, err := oneGlyph(s)
		if err != nil {
			return fmt.Errorf("config: transform_sequence_reference_symbols: %w", err)
		}
		syms.TransformRefs = append(syms.TransformRefs, r)
	}
	return nil
}

// outputFuncs accepts either output_func_symbols or the legacy output_funcs
// key, holding a list of glyphs or a glyph -> name object.
func outputFuncs(raw map[string]json.RawMessage) ([]rune, error) {
	v, ok := raw["output_func_symbols"]
	if !ok {
		if v, ok = raw["output_funcs"]; !ok {
			return nil, &MissingKeyError{"output_func_symbols"}
		}
	}

	var asList []string
	if err := json.Unmarshal(v, &asList); err == nil {
		out := make([]rune, 0, len(asList))
		for _, s := range asList {
			r, err := oneGlyph(s)
			if err != nil {
				return nil, fmt.Errorf("config: output_func_symbols: %w", err)
			}
			out = append(out, r)
		}
		return out, nil
	}

	pairs, err := orderedStringPairs(v)
	if err != nil {
		return nil, fmt.Errorf("config: output_func_symbols: %w", err)
	}
	out := make([]rune, 0, len(pairs))
	for _, p := range pairs {
		r, err := oneGlyph(p.key)
		if err != nil {
			return nil, fmt.Errorf("config: output_func_symbols: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func requiredString(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", &MissingKeyError{key}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("config: %s: %w", key, err)
	}
	return s, nil
}

func optionalString(raw map[string]json.RawMessage, key, dflt string) (string, error) {
	if _, ok := raw[key]; !ok {
		return dflt, nil
	}
	return requiredString(raw, key)
}

func oneGlyph(s string) (rune, error) {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("%q is not a single glyph", s)
	}
	return r, nil
}

func oneASCII(s string) (byte, error) {
	if len(s) != 1 || s[0] > 0x7E || s[0] < 0x20 {
		return 0, fmt.Errorf("%q is not a single printable ASCII character", s)
	}
	return s[0], nil
}

type stringPair struct {
	key, value string
}

// orderedStringPairs decodes a JSON object into key/value pairs preserving
// document order, which encoding/json's map decoding would lose.
func orderedStringPairs(raw json.RawMessage) ([]stringPair, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}
	var pairs []stringPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("key %q: expected a string value: %w", key, err)
		}
		pairs = append(pairs, stringPair{key, value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}
