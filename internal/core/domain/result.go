package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OutcomeKind tags the value carried by a stage Outcome.
type OutcomeKind string

const (
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeOK      OutcomeKind = "ok"
	OutcomeFailed  OutcomeKind = "error"
)

// Outcome is the result of one pipeline stage. On the wire an OK outcome is
// its payload object, a failed one is {"error": "..."} and a skipped one is {}.
type Outcome struct {
	Kind    OutcomeKind
	Payload json.RawMessage
	Error   string
}

func Ok(payload json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeOK, Payload: payload}
}

func Failed(message string) Outcome {
	return Outcome{Kind: OutcomeFailed, Error: message}
}

func Failedf(format string, args ...any) Outcome {
	return Failed(fmt.Sprintf(format, args...))
}

func Skipped() Outcome {
	return Outcome{Kind: OutcomeSkipped}
}

func (o Outcome) IsOK() bool     { return o.Kind == OutcomeOK }
func (o Outcome) IsFailed() bool { return o.Kind == OutcomeFailed }

func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutcomeOK:
		if len(bytes.TrimSpace(o.Payload)) == 0 {
			return []byte("{}"), nil
		}
		return o.Payload, nil
	case OutcomeFailed:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: o.Error})
	default:
		return []byte("{}"), nil
	}
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		*o = Skipped()
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("decode stage outcome: %w", err)
	}
	if raw, ok := fields["error"]; ok && len(fields) == 1 {
		var message string
		if err := json.Unmarshal(raw, &message); err == nil {
			*o = Failed(message)
			return nil
		}
	}

	payload := make(json.RawMessage, len(trimmed))
	copy(payload, trimmed)
	*o = Ok(payload)
	return nil
}

// Result is the combined output of one pipeline run. Its JSON shape always has
// the same four fields, whatever number of stages failed.
type Result struct {
	Lawyer    Outcome `json:"lawyer"`
	Citizen   Outcome `json:"citizen"`
	NextSteps Outcome `json:"next_steps"`
	Facts     Outcome `json:"facts"`

	RunID string `json:"-"`
}

const (
	NotLegalMessage = "Document is not legal in nature"

	StageClassification = "classification"
	StageFacts          = "facts"
	StageLawyer         = "lawyer_summary"
	StageCitizen        = "citizen_summary"
	StageNextSteps      = "next_steps"
)

// NotLegalResult is the terminal outcome for documents classified as out of scope.
func NotLegalResult() Result {
	return Result{
		Lawyer:    Failed(NotLegalMessage),
		Citizen:   Failed(NotLegalMessage),
		NextSteps: Skipped(),
		Facts:     Skipped(),
	}
}

// ClassificationFailedResult is the hard-stop outcome when the classifier errors.
func ClassificationFailedResult(detail string) Result {
	message := "Classification failed: " + detail
	return Result{
		Lawyer:    Failed(message),
		Citizen:   Failed(message),
		NextSteps: Skipped(),
		Facts:     Skipped(),
	}
}
