package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/infrastructure/progress"
)

const testDocumentID = "3f1c1b8e-3a51-4b53-9d0c-2a4f2f0d2c11"

type ingestFake struct {
	mu       sync.Mutex
	uploads  []string
	enqueued []string
	err      error
}

func (f *ingestFake) Upload(_ context.Context, filename, contentType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, filename)
	f.mu.Unlock()
	now := time.Now().UTC()
	return &domain.Document{
		ID:           testDocumentID,
		OriginalName: filename,
		Size:         int64(len(raw)),
		ContentType:  contentType,
		RawText:      string(raw),
		Status:       domain.StatusUploaded,
		UploadedAt:   now,
		UpdatedAt:    now,
	}, nil
}

func (f *ingestFake) UploadBatch(ctx context.Context, files []ports.UploadFile) ([]*domain.Document, error) {
	docs := make([]*domain.Document, 0, len(files))
	for _, file := range files {
		doc, err := f.Upload(ctx, file.Filename, file.ContentType, file.Body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (f *ingestFake) Submit(_ context.Context, doc *domain.Document) (*domain.Document, error) {
	return doc, nil
}

func (f *ingestFake) Enqueue(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, documentID)
	return nil
}

type summarizerFake struct {
	result      *domain.Result
	err         error
	reprocessed []string
}

func (f *summarizerFake) Summarize(context.Context, string) (*domain.Result, error) {
	return f.result, f.err
}

func (f *summarizerFake) Reprocess(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.reprocessed = append(f.reprocessed, documentID)
	return nil
}

type readerFake struct {
	doc    *domain.Document
	result *domain.Result
	err    error
}

func (f readerFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f readerFake) List(context.Context, int) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.doc == nil {
		return nil, nil
	}
	return []domain.Document{*f.doc}, nil
}

func (f readerFake) CachedResult(context.Context, string) (*domain.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return nil, domain.WrapError(domain.ErrResultNotFound, "get result", io.EOF)
	}
	return f.result, nil
}

type removerFake struct {
	deleted []string
	err     error
}

func (f *removerFake) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestRouter(t *testing.T, deps Dependencies, opts Options) http.Handler {
	t.Helper()
	if deps.Ingestor == nil {
		deps.Ingestor = &ingestFake{}
	}
	if deps.Summarizer == nil {
		deps.Summarizer = &summarizerFake{}
	}
	if deps.Reader == nil {
		deps.Reader = readerFake{}
	}
	if deps.Remover == nil {
		deps.Remover = &removerFake{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.NewHub(4, nil)
	}
	rt, err := NewRouter(context.Background(), deps, opts)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return rt.Handler()
}

func decodeBody(t *testing.T, body io.Reader, out any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
