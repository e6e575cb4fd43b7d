// Package compiler runs the whole pipeline: configuration and rules in,
// serialized trie and completion blobs plus header files out. All state is
// carried explicitly; nothing here is process global.
package compiler

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/binaryencoding"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/cheader"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/completions"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/config"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/console"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/rules"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/trie"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/triecode"
	"github.com/Ikcelaks/qmk-sequence-transform/internal/version"
)

// Result is a finished compile, ready to be framed into headers.
type Result struct {
	Config   *config.Config
	Mapping  *triecode.Mapping
	Rules    []rules.Rule
	Trie     *trie.Trie
	Blob     *completions.Blob
	Artifact *cheader.Artifact
}

// Compile loads the rules file named by the configuration and runs the
// pipeline. Nothing is written to disk; see WriteHeaders.
func Compile(cfg *config.Config, cons *console.Console) (*Result, error) {
	f, err := os.Open(cfg.RulesPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return CompileReader(cfg, f, cons)
}

// CompileReader runs the pipeline over dictionary text from r.
func CompileReader(cfg *config.Config, r io.Reader, cons *console.Console) (*Result, error) {
	mapping, err := triecode.NewMapping(cfg.Format, cfg.Symbols)
	if err != nil {
		return nil, err
	}

	ruleList, err := rules.Parse(r, rules.Options{
		Comment:                  cfg.CommentStr,
		Separator:                cfg.SeparatorStr,
		IsInputSymbol:            mapping.IsInputSymbol,
		Wordbreak:                cfg.Symbols.Wordbreak,
		ImplicitLeadingWordbreak: cfg.ImplicitTransformLeadingWordbreak,
		DuplicatesFatal:          cfg.Format == triecode.FormatV3_2,
		Warnf:                    cons.Warnf,
	})
	if err != nil {
		return nil, err
	}

	var tr *trie.Trie
	if cfg.Format == triecode.FormatV3_2 {
		tr = trie.BuildV3_2(ruleList, mapping, cons.Warnf)
	} else {
		tr = trie.BuildV3(ruleList, mapping, cons.Warnf)
	}

	var outs [][]byte
	for _, match := range tr.Matches() {
		b, err := mapping.CompletionBytes(match.Completion)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", match.Sequence, err)
		}
		outs = append(outs, b)
	}
	blob := completions.Build(outs)

	artifact := &cheader.Artifact{
		Format:           cfg.Format,
		Completions:      blob.Data,
		CompletionMaxLen: blob.MaxLen(),
	}
	if cfg.Format == triecode.FormatV3_2 {
		artifact.TrieBytes, err = binaryencoding.EncodeV3_2(tr, mapping, blob)
	} else {
		artifact.TrieWords, err = binaryencoding.EncodeV3(tr, mapping, blob)
	}
	if err != nil {
		return nil, err
	}

	if err := fillStats(artifact, ruleList, tr, mapping); err != nil {
		return nil, err
	}

	cons.Infof("compiled %d rules: %d trie code units, %d completion bytes",
		len(ruleList), artifactTrieLen(artifact), len(blob.Data))

	return &Result{
		Config:   cfg,
		Mapping:  mapping,
		Rules:    ruleList,
		Trie:     tr,
		Blob:     blob,
		Artifact: artifact,
	}, nil
}

func artifactTrieLen(a *cheader.Artifact) int {
	if a.Format == triecode.FormatV3_2 {
		return len(a.TrieBytes)
	}
	return len(a.TrieWords)
}

// fillStats derives the constants the data header publishes and echoes the
// rules with their resolved codes.
func fillStats(a *cheader.Artifact, ruleList []rules.Rule, tr *trie.Trie, m *triecode.Mapping) error {
	for i, rule := range ruleList {
		seqLen := len([]rune(rule.Sequence))
		if i == 0 || seqLen < a.SequenceMinLen {
			a.SequenceMinLen = seqLen
		}
		if seqLen > a.SequenceMaxLen {
			a.SequenceMaxLen = seqLen
		}
		if n := len([]rune(rule.Transform)); n > a.TransformMaxLen {
			a.TransformMaxLen = n
		}

		echo := cheader.RuleEcho{Sequence: rule.Sequence, Transform: rule.Transform}
		codes, err := m.SequenceCodes(rule.Sequence)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Sequence, err)
		}
		echo.SequenceCodes = codes
		for _, r := range rule.Transform {
			if m.OutputFunc(r) != 0 {
				echo.HasFunc = true
				break
			}
			code, ok := m.TransformCode(r)
			if !ok {
				return fmt.Errorf("rule %q: transform symbol %q has no code", rule.Sequence, r)
			}
			echo.TransformCodes = append(echo.TransformCodes, code)
		}
		a.Rules = append(a.Rules, echo)
	}

	for _, match := range tr.Matches() {
		if match.Backspaces > a.MaxBackspaces {
			a.MaxBackspaces = match.Backspaces
		}
	}
	return nil
}

// WriteHeaders renders both headers next to each other. The data header is
// only rewritten when its content changed, keeping firmware rebuilds
// minimal; no file is touched if rendering fails.
func (res *Result) WriteHeaders(dataPath, testPath string) error {
	var data, test bytes.Buffer
	if err := cheader.WriteData(&data, res.Artifact, res.Mapping, version.String()); err != nil {
		return err
	}
	if err := cheader.WriteTest(&test, res.Artifact, res.Mapping, version.String()); err != nil {
		return err
	}

	if existing, err := os.ReadFile(dataPath); err != nil || !bytes.Equal(existing, data.Bytes()) {
		if err := os.WriteFile(dataPath, data.Bytes(), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(testPath, test.Bytes(), 0o644)
}
