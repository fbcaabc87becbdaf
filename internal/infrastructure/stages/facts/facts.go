// Package facts extracts configured fields from document text.
package facts

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed fields.yaml
var defaultFields []byte

// Field is one entry of the fields file. Keywords take precedence over Pattern
// when both are set.
type Field struct {
	Name     string   `yaml:"name"`
	Pattern  string   `yaml:"pattern"`
	Keywords []string `yaml:"keywords"`
}

type fieldFile struct {
	Fields []Field `yaml:"fields"`
}

type compiledField struct {
	name     string
	pattern  *regexp.Regexp
	badRegex bool
	keywords []string
}

type Extractor struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	fields []compiledField
}

// New loads fields from path, or the built-in set when path is empty.
func New(path string, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{path: strings.TrimSpace(path), logger: logger}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads the fields file. On failure the previous field set stays active.
func (e *Extractor) Reload() error {
	raw := defaultFields
	if e.path != "" {
		data, err := os.ReadFile(e.path)
		if err != nil {
			return fmt.Errorf("read fields file: %w", err)
		}
		raw = data
	}

	fields, err := parseFields(raw)
	if err != nil {
		return err
	}

	compiled := make([]compiledField, 0, len(fields))
	for _, f := range fields {
		cf := compiledField{name: f.Name}
		for _, kw := range f.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				cf.keywords = append(cf.keywords, kw)
			}
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				e.logger.Warn("fact_field_invalid_pattern", "field", f.Name, "error", err)
				cf.badRegex = true
			} else {
				cf.pattern = re
			}
		}
		compiled = append(compiled, cf)
	}

	e.mu.Lock()
	e.fields = compiled
	e.mu.Unlock()
	return nil
}

func parseFields(raw []byte) ([]Field, error) {
	var file fieldFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode fields file: %w", err)
	}
	if len(file.Fields) == 0 {
		return nil, errors.New("fields file defines no fields")
	}
	for i, f := range file.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if f.Pattern == "" && len(f.Keywords) == 0 {
			return nil, fmt.Errorf("field %q needs a pattern or keywords", f.Name)
		}
	}
	return file.Fields, nil
}

func (e *Extractor) Invoke(ctx context.Context, text string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	fields := e.fields
	e.mu.RUnlock()

	var sentences []string
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch {
		case len(f.keywords) > 0:
			if sentences == nil {
				sentences = splitSentences(text)
			}
			out[f.name] = sentencesMentioning(sentences, f.keywords)
		case f.badRegex:
			out[f.name] = []string{}
		default:
			out[f.name] = findAll(f.pattern, text)
		}
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode facts: %w", err)
	}
	return payload, nil
}

// findAll returns whole matches for patterns without groups, the group for
// single-group patterns and a list of groups otherwise.
func findAll(re *regexp.Regexp, text string) any {
	groups := re.NumSubexp()
	matches := re.FindAllStringSubmatch(text, -1)
	switch groups {
	case 0, 1:
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			out = append(out, m[groups])
		}
		return out
	default:
		out := make([][]string, 0, len(matches))
		for _, m := range matches {
			out = append(out, m[1:])
		}
		return out
	}
}

func sentencesMentioning(sentences, keywords []string) []string {
	out := make([]string, 0)
	for _, s := range sentences {
		lower := strings.ToLower(s)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// abbreviations never end a sentence.
var abbreviations = map[string]struct{}{
	"no": {}, "nos": {}, "rs": {}, "vs": {}, "v": {}, "sec": {}, "art": {}, "cl": {},
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "smt": {}, "shri": {}, "ltd": {}, "pvt": {},
	"co": {}, "hon'ble": {}, "etc": {}, "viz": {}, "i.e": {}, "e.g": {},
}

func endsWithAbbreviation(runes []rune, dot int) bool {
	start := dot
	for start > 0 && !unicode.IsSpace(runes[start-1]) && runes[start-1] != '(' {
		start--
	}
	word := strings.ToLower(string(runes[start:dot]))
	if len([]rune(word)) == 1 {
		return true
	}
	_, ok := abbreviations[word]
	return ok
}

// splitSentences cuts on terminal punctuation followed by whitespace and on blank lines.
func splitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0, 16)
	start := 0
	flush := func(end int) {
		s := strings.Join(strings.Fields(string(runes[start:end])), " ")
		if s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case (r == '.' || r == '!' || r == '?') && (next == 0 || unicode.IsSpace(next)):
			if r == '.' && endsWithAbbreviation(runes, i) {
				continue
			}
			flush(i + 1)
		case r == '\n' && next == '\n':
			flush(i + 1)
		}
	}
	flush(len(runes))
	return out
}
