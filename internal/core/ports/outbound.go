package ports

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// DocumentStore persists documents and their cached pipeline results.
type DocumentStore interface {
	GetOrCreate(ctx context.Context, doc *domain.Document) (*domain.Document, bool, error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	MarkError(ctx context.Context, id string, message string) error
	SaveResult(ctx context.Context, id string, result domain.Result) error
	GetCachedResult(ctx context.Context, id string) (*domain.Result, error)
	ResetForReprocess(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ObjectStorage archives original uploaded bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TextExtractor turns uploaded bytes into plain text based on the content type.
type TextExtractor interface {
	Extract(ctx context.Context, filename, contentType string, data []byte) (domain.ExtractedText, error)
}

// SummaryDispatcher schedules a summarize run outside the calling request.
type SummaryDispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// SummaryQueue consumes dispatched summarize requests.
type SummaryQueue interface {
	SubscribeSummaryRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// ProgressPublisher delivers progress events, best effort. It never fails the caller.
type ProgressPublisher interface {
	Publish(ctx context.Context, event domain.ProgressEvent)
}

// LegalClassifier decides whether a text is legal in nature.
type LegalClassifier interface {
	Classify(ctx context.Context, text string) (bool, error)
}

// Stage turns document text into one JSON object.
type Stage interface {
	Invoke(ctx context.Context, text string) (json.RawMessage, error)
}

// ChatGenerator asks a remote language model for a JSON answer.
type ChatGenerator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// StageObserver receives per-stage timings.
type StageObserver interface {
	ObserveStage(stage string, outcome domain.OutcomeKind, duration time.Duration)
}

// RunObserver is told when a claimed summarize run starts and ends.
type RunObserver interface {
	StartRun()
	FinishRun(duration time.Duration, err error)
}

// Pipeline runs the stage sequence for one document text.
type Pipeline interface {
	Run(ctx context.Context, documentID, text string) (*domain.Result, error)
	RunWithProgress(ctx context.Context, documentID, text string, progress ProgressPublisher) (*domain.Result, error)
}

// ResultSink receives committed results for secondary projections.
type ResultSink interface {
	Project(ctx context.Context, documentID string, result domain.Result) error
	Remove(ctx context.Context, documentID string) error
}
