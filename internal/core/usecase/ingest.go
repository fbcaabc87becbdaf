package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const uploadBatchConcurrency = 4

type IngestDocumentUseCase struct {
	store      ports.DocumentStore
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	dispatcher ports.SummaryDispatcher
	logger     *slog.Logger
}

func NewIngestDocumentUseCase(
	store ports.DocumentStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	dispatcher ports.SummaryDispatcher,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		store:      store,
		storage:    storage,
		extractor:  extractor,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Upload extracts, archives and records one file. Summarizing is left to the
// caller (see Enqueue).
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, contentType string,
	body io.Reader,
) (*domain.Document, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	}

	extracted, err := uc.extractor.Extract(ctx, filename, contentType, data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", err)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc, err := uc.Submit(ctx, &domain.Document{
		ID:           id,
		OriginalName: filepath.Base(filename),
		Size:         int64(len(data)),
		ContentType:  contentType,
		PageCount:    extracted.PageCount,
		StoragePath:  storageKey,
		RawText:      extracted.Text,
	})
	if err != nil {
		uc.discardObject(context.WithoutCancel(ctx), storageKey)
		return nil, err
	}
	return doc, nil
}

// UploadBatch ingests several files concurrently. Documents come back in input
// order. The batch is all or nothing: when one file fails, the files already
// stored are removed again.
func (uc *IngestDocumentUseCase) UploadBatch(ctx context.Context, files []ports.UploadFile) ([]*domain.Document, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload batch", errors.New("no files"))
	}

	docs := make([]*domain.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadBatchConcurrency)
	for i, file := range files {
		g.Go(func() error {
			doc, err := uc.Upload(gctx, file.Filename, file.ContentType, file.Body)
			if err != nil {
				return fmt.Errorf("upload %q: %w", file.Filename, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		uc.rollback(context.WithoutCancel(ctx), docs)
		return nil, err
	}
	return docs, nil
}

func (uc *IngestDocumentUseCase) rollback(ctx context.Context, docs []*domain.Document) {
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if err := uc.store.Delete(ctx, doc.ID); err != nil {
			uc.logger.Warn("upload_rollback_failed", "document_id", doc.ID, "error", err)
			continue
		}
		uc.discardObject(ctx, doc.StoragePath)
	}
}

func (uc *IngestDocumentUseCase) discardObject(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := uc.storage.Delete(ctx, key); err != nil {
		uc.logger.Warn("object_delete_failed", "key", key, "error", err)
	}
}

// Submit records a document whose text has already been extracted. Submitting
// an existing id returns the stored document unchanged.
func (uc *IngestDocumentUseCase) Submit(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("document id is required"))
	}

	now := time.Now().UTC()
	toStore := *doc
	toStore.Status = domain.StatusUploaded
	toStore.Error = ""
	toStore.ProcessedAt = nil
	if toStore.UploadedAt.IsZero() {
		toStore.UploadedAt = now
	}
	toStore.UpdatedAt = now

	stored, created, err := uc.store.GetOrCreate(ctx, &toStore)
	if err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if created {
		uc.logger.Info("document_submitted", "document_id", stored.ID, "text_length", stored.TextLength())
	}
	return stored, nil
}

func (uc *IngestDocumentUseCase) Enqueue(ctx context.Context, documentID string) error {
	if uc.dispatcher == nil {
		return domain.WrapError(domain.ErrTemporary, "enqueue summarize", errors.New("no summary dispatcher configured"))
	}
	if err := uc.dispatcher.Dispatch(ctx, documentID); err != nil {
		return fmt.Errorf("dispatch summarize: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
