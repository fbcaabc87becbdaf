package ports

import (
	"context"
	"io"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// UploadFile is one file of a multi-file upload.
type UploadFile struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// DocumentIngestor is the inbound contract for uploads and text submission.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (*domain.Document, error)
	UploadBatch(ctx context.Context, files []UploadFile) ([]*domain.Document, error)
	Submit(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	Enqueue(ctx context.Context, documentID string) error
}

// DocumentSummarizer runs (or returns the cached result of) the pipeline for a document.
type DocumentSummarizer interface {
	Summarize(ctx context.Context, documentID string) (*domain.Result, error)
	Reprocess(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document state and cached results.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]domain.Document, error)
	CachedResult(ctx context.Context, id string) (*domain.Result, error)
}

// DocumentRemover deletes a document together with its result.
type DocumentRemover interface {
	Delete(ctx context.Context, id string) error
}

// SummaryProcessor is the worker-side entry point for queued summarize requests.
type SummaryProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
