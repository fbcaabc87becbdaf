package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type DocumentQueryUseCase struct {
	store   ports.DocumentStore
	storage ports.ObjectStorage
	runs    *RunRegistry
	sinks   []ports.ResultSink
	logger  *slog.Logger
}

func NewDocumentQueryUseCase(
	store ports.DocumentStore,
	storage ports.ObjectStorage,
	runs *RunRegistry,
	logger *slog.Logger,
	sinks ...ports.ResultSink,
) *DocumentQueryUseCase {
	if runs == nil {
		runs = NewRunRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentQueryUseCase{store: store, storage: storage, runs: runs, sinks: sinks, logger: logger}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("document id is required"))
	}
	doc, err := uc.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *DocumentQueryUseCase) List(ctx context.Context, limit int) ([]domain.Document, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	docs, err := uc.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// CachedResult never triggers a run.
func (uc *DocumentQueryUseCase) CachedResult(ctx context.Context, id string) (*domain.Result, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get result", errors.New("document id is required"))
	}
	result, err := uc.store.GetCachedResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch cached result: %w", err)
	}
	return result, nil
}

// Delete removes the document and then cancels its in-flight run. A run that
// outlives the delete cannot save, since SaveResult refuses missing documents.
// When the store delete fails the run is left alone and ends normally.
func (uc *DocumentQueryUseCase) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete document", errors.New("document id is required"))
	}
	doc, err := uc.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	if err := uc.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if uc.runs.Cancel(id) {
		uc.logger.Info("run_cancelled", "document_id", id)
	}

	if doc.StoragePath != "" && uc.storage != nil {
		if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
			uc.logger.Warn("object_delete_failed", "document_id", id, "key", doc.StoragePath, "error", err)
		}
	}
	for _, sink := range uc.sinks {
		if err := sink.Remove(ctx, id); err != nil {
			uc.logger.Warn("result_projection_remove_failed", "document_id", id, "error", err)
		}
	}
	return nil
}
