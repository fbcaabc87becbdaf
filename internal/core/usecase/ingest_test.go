package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

func TestIngestUploadSuccess(t *testing.T) {
	store := newStoreFake()
	storage := &storageFake{}
	dispatcher := &dispatcherFake{}
	uc := NewIngestDocumentUseCase(store, storage, &textExtractorFake{text: "The petitioner", pages: 2}, dispatcher, nil)

	doc, err := uc.Upload(context.Background(), "petition 1.pdf", "application/pdf", bytes.NewBufferString("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", doc.Status)
	}
	if doc.PageCount != 2 || doc.RawText != "The petitioner" || doc.Size != int64(len("%PDF-1.4")) {
		t.Fatalf("unexpected document metadata: %+v", doc)
	}
	if !strings.HasSuffix(doc.StoragePath, "_petition_1.pdf") {
		t.Fatalf("expected sanitized key suffix, got %s", doc.StoragePath)
	}
	if storage.saved[doc.StoragePath] != "%PDF-1.4" {
		t.Fatalf("expected original bytes archived, got %q", storage.saved[doc.StoragePath])
	}
	if len(dispatcher.ids) != 0 {
		t.Fatalf("upload must not dispatch by itself, got %v", dispatcher.ids)
	}
}

func TestIngestEnqueueDispatches(t *testing.T) {
	dispatcher := &dispatcherFake{}
	uc := NewIngestDocumentUseCase(newStoreFake(), &storageFake{}, &textExtractorFake{text: "x"}, dispatcher, nil)

	if err := uc.Enqueue(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(dispatcher.ids) != 1 || dispatcher.ids[0] != "doc-1" {
		t.Fatalf("expected one dispatch, got %v", dispatcher.ids)
	}
	if err := NewIngestDocumentUseCase(newStoreFake(), &storageFake{}, &textExtractorFake{}, nil, nil).Enqueue(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error without dispatcher, got %v", err)
	}
}

func TestIngestUploadRejectsEmptyAndUnreadable(t *testing.T) {
	uc := NewIngestDocumentUseCase(newStoreFake(), &storageFake{}, &textExtractorFake{}, nil, nil)
	if _, err := uc.Upload(context.Background(), "a.txt", "text/plain", strings.NewReader("")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty body, got %v", err)
	}

	uc = NewIngestDocumentUseCase(newStoreFake(), &storageFake{}, &textExtractorFake{err: errors.New("broken pdf")}, nil, nil)
	if _, err := uc.Upload(context.Background(), "a.pdf", "application/pdf", strings.NewReader("junk")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for extraction failure, got %v", err)
	}
}

func TestIngestUploadStorageError(t *testing.T) {
	store := newStoreFake()
	uc := NewIngestDocumentUseCase(store, &storageFake{err: errors.New("disk full")}, &textExtractorFake{text: "x"}, nil, nil)

	_, err := uc.Upload(context.Background(), "a.txt", "text/plain", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "save to object storage") {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(store.docs) != 0 {
		t.Fatalf("no metadata may be stored when archiving fails")
	}
}

func TestIngestUploadBatchKeepsInputOrder(t *testing.T) {
	uc := NewIngestDocumentUseCase(newStoreFake(), &storageFake{}, &textExtractorFake{text: "x"}, nil, nil)
	files := []ports.UploadFile{
		{Filename: "one.txt", ContentType: "text/plain", Body: strings.NewReader("1")},
		{Filename: "two.txt", ContentType: "text/plain", Body: strings.NewReader("2")},
		{Filename: "three.txt", ContentType: "text/plain", Body: strings.NewReader("3")},
	}

	docs, err := uc.UploadBatch(context.Background(), files)
	if err != nil {
		t.Fatalf("UploadBatch() error = %v", err)
	}
	for i, doc := range docs {
		if doc.OriginalName != files[i].Filename {
			t.Fatalf("doc %d = %s, want %s", i, doc.OriginalName, files[i].Filename)
		}
	}
}

type createFailingStore struct {
	*storeFake
}

func (createFailingStore) GetOrCreate(context.Context, *domain.Document) (*domain.Document, bool, error) {
	return nil, false, errors.New("db: connection reset")
}

func TestIngestUploadSubmitFailureDropsArchivedBytes(t *testing.T) {
	storage := &storageFake{}
	uc := NewIngestDocumentUseCase(createFailingStore{newStoreFake()}, storage, &textExtractorFake{text: "x"}, nil, nil)

	if _, err := uc.Upload(context.Background(), "a.txt", "text/plain", strings.NewReader("x")); err == nil {
		t.Fatalf("expected submit error")
	}
	if len(storage.saved) != 0 || len(storage.deleted) != 1 {
		t.Fatalf("archived bytes must be removed, saved=%v deleted=%v", storage.saved, storage.deleted)
	}
}

type extractByNameFake struct{}

func (extractByNameFake) Extract(_ context.Context, filename, _ string, _ []byte) (domain.ExtractedText, error) {
	if filename == "bad.txt" {
		return domain.ExtractedText{}, errors.New("unreadable")
	}
	return domain.ExtractedText{Text: "text of " + filename}, nil
}

func TestIngestUploadBatchRollsBackOnFailure(t *testing.T) {
	store := newStoreFake()
	storage := &storageFake{}
	uc := NewIngestDocumentUseCase(store, storage, extractByNameFake{}, nil, nil)
	files := []ports.UploadFile{
		{Filename: "good.txt", ContentType: "text/plain", Body: strings.NewReader("good")},
		{Filename: "bad.txt", ContentType: "text/plain", Body: strings.NewReader("bad")},
	}

	docs, err := uc.UploadBatch(context.Background(), files)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if docs != nil {
		t.Fatalf("failed batch must not return documents, got %v", docs)
	}
	if len(store.docs) != 0 {
		t.Fatalf("stored documents must be rolled back, got %d", len(store.docs))
	}
	if len(storage.saved) != 0 {
		t.Fatalf("archived bytes must be rolled back, got %v", storage.saved)
	}
}

func TestIngestSubmitIsIdempotent(t *testing.T) {
	store := newStoreFake()
	uc := NewIngestDocumentUseCase(store, &storageFake{}, &textExtractorFake{}, nil, nil)

	first, err := uc.Submit(context.Background(), &domain.Document{ID: "doc-1", RawText: "first"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := uc.Submit(context.Background(), &domain.Document{ID: "doc-1", RawText: "second"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second.RawText != "first" || !second.UploadedAt.Equal(first.UploadedAt) {
		t.Fatalf("resubmission must return the stored document, got %+v", second)
	}
	if _, err := uc.Submit(context.Background(), &domain.Document{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing id, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":   "passwd",
		"Notice (final).pdf": "Notice__final_.pdf",
		"":                   "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
