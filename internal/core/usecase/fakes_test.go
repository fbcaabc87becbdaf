package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

type stageFake struct {
	payload string
	err     error
	delay   time.Duration
	panics  bool
	calls   atomic.Int32
}

func (f *stageFake) Invoke(ctx context.Context, _ string) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.panics {
		panic("stage blew up")
	}
	if f.delay > 0 {
		// ignores ctx on purpose to prove the orchestrator enforces the budget itself
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.payload), nil
}

type legalClassifierFake struct {
	legal bool
	err   error
	calls atomic.Int32
}

func (f *legalClassifierFake) Classify(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return f.legal, f.err
}

type progressRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *progressRecorder) Publish(_ context.Context, event domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *progressRecorder) snapshot() []domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressEvent(nil), r.events...)
}

type observerFake struct {
	mu    sync.Mutex
	calls map[string]domain.OutcomeKind
}

func (o *observerFake) ObserveStage(stage string, outcome domain.OutcomeKind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]domain.OutcomeKind{}
	}
	o.calls[stage] = outcome
}

// storeFake is an in-memory DocumentStore with the same claim semantics as the SQL store.
type storeFake struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	results  map[string]domain.Result
	saveErr  error
	claimErr error
	saves    int
	claims   int
	errors   []string
	deleted  []string
}

func newStoreFake(docs ...*domain.Document) *storeFake {
	s := &storeFake{docs: map[string]*domain.Document{}, results: map[string]domain.Result{}}
	for _, d := range docs {
		copyDoc := *d
		s.docs[d.ID] = &copyDoc
	}
	return s
}

func (s *storeFake) GetOrCreate(_ context.Context, doc *domain.Document) (*domain.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.docs[doc.ID]; ok {
		copyDoc := *existing
		return &copyDoc, false, nil
	}
	copyDoc := *doc
	s.docs[doc.ID] = &copyDoc
	out := copyDoc
	return &out, true, nil
}

func (s *storeFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (s *storeFake) List(_ context.Context, limit int) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, *d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *storeFake) ClaimForProcessing(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimErr != nil {
		return false, s.claimErr
	}
	doc, ok := s.docs[id]
	if !ok || doc.Status != domain.StatusUploaded {
		return false, nil
	}
	doc.Status = domain.StatusProcessing
	return true, nil
}

func (s *storeFake) MarkError(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
	if doc, ok := s.docs[id]; ok {
		doc.Status = domain.StatusError
		doc.Error = message
	}
	return nil
}

func (s *storeFake) SaveResult(_ context.Context, id string, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	doc, ok := s.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save result", errors.New(id))
	}
	s.saves++
	s.results[id] = result
	doc.Status = domain.StatusProcessed
	return nil
}

func (s *storeFake) GetCachedResult(_ context.Context, id string) (*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrResultNotFound, "get result", errors.New(id))
	}
	return &result, nil
}

func (s *storeFake) ResetForReprocess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "reset document", errors.New(id))
	}
	if doc.Status == domain.StatusProcessing {
		return domain.WrapError(domain.ErrConflict, "reset document", errors.New("document is processing"))
	}
	delete(s.results, id)
	doc.Status = domain.StatusUploaded
	doc.Error = ""
	return nil
}

func (s *storeFake) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", errors.New(id))
	}
	delete(s.docs, id)
	delete(s.results, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type storageFake struct {
	mu      sync.Mutex
	saved   map[string]string
	deleted []string
	err     error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return io.NopCloser(strings.NewReader(f.saved[key])), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	delete(f.saved, key)
	return nil
}

type textExtractorFake struct {
	text  string
	pages int
	err   error
}

func (f *textExtractorFake) Extract(context.Context, string, string, []byte) (domain.ExtractedText, error) {
	if f.err != nil {
		return domain.ExtractedText{}, f.err
	}
	return domain.ExtractedText{Text: f.text, PageCount: f.pages}, nil
}

type dispatcherFake struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *dispatcherFake) Dispatch(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, documentID)
	return nil
}

type sinkFake struct {
	mu        sync.Mutex
	projected []string
	removed   []string
	err       error
}

func (f *sinkFake) Project(_ context.Context, documentID string, _ domain.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projected = append(f.projected, documentID)
	return f.err
}

func (f *sinkFake) Remove(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, documentID)
	return f.err
}

func legalStages() (PipelineStages, *legalClassifierFake, []*stageFake) {
	cls := &legalClassifierFake{legal: true}
	facts := &stageFake{payload: `{"parties":["A","B"]}`}
	lawyer := &stageFake{payload: `{"summary":"lawyer"}`}
	citizen := &stageFake{payload: `{"summary":"citizen"}`}
	next := &stageFake{payload: `{"deadlines":[]}`}
	return PipelineStages{
		Classifier: cls,
		Facts:      facts,
		Lawyer:     lawyer,
		Citizen:    citizen,
		NextSteps:  next,
	}, cls, []*stageFake{facts, lawyer, citizen, next}
}
