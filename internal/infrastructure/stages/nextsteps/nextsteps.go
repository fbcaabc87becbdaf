// Package nextsteps derives deadlines and named entities from document text.
package nextsteps

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

var deadlinePattern = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)

// Payload is the stage output: {"deadlines": [...], "entities": [[text, label], ...]}.
type Payload struct {
	Deadlines []string    `json:"deadlines"`
	Entities  [][2]string `json:"entities"`
}

type Extractor struct {
	recognizer *Recognizer
}

func New() *Extractor {
	return &Extractor{recognizer: NewRecognizer()}
}

func (e *Extractor) Invoke(ctx context.Context, text string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload := Payload{
		Deadlines: Deadlines(text),
		Entities:  make([][2]string, 0),
	}
	for _, ent := range e.recognizer.Recognize(text) {
		payload.Entities = append(payload.Entities, [2]string{ent.Text, ent.Label})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode next steps: %w", err)
	}
	return raw, nil
}

// Deadlines returns the distinct date-like strings of text in sorted order.
func Deadlines(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range deadlinePattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	sort.Strings(out)
	return out
}

// DeadlinesFromPayload reads the deadlines list of a stored next-steps payload.
func DeadlinesFromPayload(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p struct {
		Deadlines []string `json:"deadlines"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode next steps payload: %w", err)
	}
	return p.Deadlines, nil
}
