// Package classifier decides whether a text is a legal document.
//
// A logistic model over saturated term frequencies is loaded from a JSON file.
// Without a usable model the classifier falls back to a keyword heuristic.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"unicode"
)

const (
	defaultThreshold = 0.5
	// termSaturation bounds how much a repeated token can move the score.
	termSaturation = 1.2
	// minKeywordHits is the number of distinct legal keywords the heuristic needs.
	minKeywordHits = 2
)

// Model is the on-disk form of the logistic weights.
type Model struct {
	Bias      float64            `json:"bias"`
	Threshold float64            `json:"threshold"`
	Weights   map[string]float64 `json:"weights"`
}

type Classifier struct {
	model  *Model
	logger *slog.Logger
}

// New loads the model at modelPath. A missing, unreadable or empty model is not
// an error: the classifier then runs on the keyword heuristic.
func New(modelPath string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{logger: logger}
	if strings.TrimSpace(modelPath) == "" {
		logger.Info("classifier_heuristic_mode", "reason", "no model path")
		return c
	}

	model, err := LoadModel(modelPath)
	if err != nil {
		logger.Warn("classifier_heuristic_mode", "path", modelPath, "error", err)
		return c
	}
	c.model = model
	logger.Info("classifier_model_loaded", "path", modelPath, "features", len(model.Weights))
	return c
}

func LoadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier model: %w", err)
	}
	var model Model
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil, fmt.Errorf("decode classifier model: %w", err)
	}
	if len(model.Weights) == 0 {
		return nil, errors.New("classifier model has no weights")
	}
	return &model, nil
}

// UsesModel reports whether a statistical model is loaded.
func (c *Classifier) UsesModel() bool {
	return c.model != nil
}

func (c *Classifier) Classify(ctx context.Context, text string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tokens := tokenize(text)
	if c.model == nil {
		return keywordHits(tokens) >= minKeywordHits, nil
	}
	return c.model.Score(tokens) >= c.model.threshold(), nil
}

// Score returns the positive-class probability for already tokenized text.
func (m *Model) Score(tokens []string) float64 {
	tf := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		tf[token]++
	}

	z := m.Bias
	for token, freq := range tf {
		w, ok := m.Weights[token]
		if !ok {
			continue
		}
		z += w * (freq * (termSaturation + 1.0)) / (freq + termSaturation)
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

func (m *Model) threshold() float64 {
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return defaultThreshold
	}
	return m.Threshold
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 64)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
