// Package summary produces role-targeted summaries with a remote language model.
package summary

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/legal-lens/internal/core/ports"
)

//go:embed prompts/*.txt
var prompts embed.FS

const (
	textPlaceholder = "{{TEXT}}"

	DefaultMaxInputChars = 12000

	lawyerSystem  = "You are an Indian lawyer. Return only JSON."
	citizenSystem = "You are a helpful Indian legal advisor for the public. Return only JSON."
)

var ErrNotJSON = errors.New("model output is not a JSON object")

type Summarizer struct {
	name      string
	system    string
	template  string
	generator ports.ChatGenerator
	maxChars  int
}

func NewLawyer(generator ports.ChatGenerator, maxChars int) *Summarizer {
	return newSummarizer("lawyer", lawyerSystem, generator, maxChars)
}

func NewCitizen(generator ports.ChatGenerator, maxChars int) *Summarizer {
	return newSummarizer("citizen", citizenSystem, generator, maxChars)
}

func newSummarizer(name, system string, generator ports.ChatGenerator, maxChars int) *Summarizer {
	template, err := prompts.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		panic(fmt.Sprintf("summary: missing embedded prompt %q: %v", name, err))
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	return &Summarizer{
		name:      name,
		system:    system,
		template:  string(template),
		generator: generator,
		maxChars:  maxChars,
	}
}

// Prompt renders the user prompt for text, truncated to the input budget.
func (s *Summarizer) Prompt(text string) string {
	return strings.ReplaceAll(s.template, textPlaceholder, truncateRunes(text, s.maxChars))
}

func (s *Summarizer) Invoke(ctx context.Context, text string) (json.RawMessage, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("%s summary: no language model configured", s.name)
	}

	answer, err := s.generator.GenerateJSON(ctx, s.system, s.Prompt(text))
	if err != nil {
		return nil, fmt.Errorf("%s summary: %w", s.name, err)
	}

	trimmed := bytes.TrimSpace([]byte(answer))
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%s summary: %w", s.name, ErrNotJSON)
	}
	return json.RawMessage(trimmed), nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
