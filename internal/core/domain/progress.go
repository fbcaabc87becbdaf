package domain

type ProgressEventType string

const (
	ProgressEventProgress ProgressEventType = "progress"
	ProgressEventError    ProgressEventType = "error"
)

// ProgressEvent is an ephemeral stage-transition notification.
type ProgressEvent struct {
	Type       ProgressEventType `json:"type"`
	DocumentID string            `json:"file_id"`
	RunID      string            `json:"run_id,omitempty"`
	Stage      string            `json:"step"`
	Percent    int               `json:"progress"`
	Message    string            `json:"message"`
}

const (
	StepComplete   = "complete"
	StepClassified = "classified"
)
