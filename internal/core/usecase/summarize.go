package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

// RunRegistry tracks the cancel function of every in-flight run by document id.
type RunRegistry struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{running: make(map[string]context.CancelFunc)}
}

func (r *RunRegistry) register(documentID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[documentID] = cancel
}

func (r *RunRegistry) unregister(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, documentID)
}

// Cancel aborts the in-flight run of a document, if any, and reports whether one existed.
func (r *RunRegistry) Cancel(documentID string) bool {
	r.mu.Lock()
	cancel, ok := r.running[documentID]
	delete(r.running, documentID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (r *RunRegistry) Running(documentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[documentID]
	return ok
}

type SummarizeDocumentUseCase struct {
	store      ports.DocumentStore
	pipeline   ports.Pipeline
	progress   ports.ProgressPublisher
	dispatcher ports.SummaryDispatcher
	runs       *RunRegistry
	sinks      []ports.ResultSink
	observer   ports.RunObserver
	logger     *slog.Logger

	group singleflight.Group
}

func NewSummarizeDocumentUseCase(
	store ports.DocumentStore,
	pipeline ports.Pipeline,
	progress ports.ProgressPublisher,
	dispatcher ports.SummaryDispatcher,
	runs *RunRegistry,
	logger *slog.Logger,
	sinks ...ports.ResultSink,
) *SummarizeDocumentUseCase {
	if runs == nil {
		runs = NewRunRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SummarizeDocumentUseCase{
		store:      store,
		pipeline:   pipeline,
		progress:   progress,
		dispatcher: dispatcher,
		runs:       runs,
		sinks:      sinks,
		logger:     logger,
	}
}

func (uc *SummarizeDocumentUseCase) WithRunObserver(observer ports.RunObserver) *SummarizeDocumentUseCase {
	uc.observer = observer
	return uc
}

func (uc *SummarizeDocumentUseCase) Summarize(ctx context.Context, documentID string) (*domain.Result, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "summarize", errors.New("document id is required"))
	}

	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	switch doc.Status {
	case domain.StatusProcessed:
		return uc.cachedResult(ctx, documentID)
	case domain.StatusError:
		return nil, domain.WrapError(
			domain.ErrConflict,
			"summarize",
			fmt.Errorf("previous run failed (%s); reprocess the document first", doc.Error),
		)
	}

	// The run outlives the request that started it; only Delete may cancel it.
	ch := uc.group.DoChan(documentID, func() (any, error) {
		return uc.claimAndRun(context.WithoutCancel(ctx), doc)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Result), nil
	}
}

// ProcessByID is the worker entry point. Runs that cannot proceed are
// acknowledged instead of retried.
func (uc *SummarizeDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	_, err := uc.Summarize(ctx, documentID)
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrConflict), domain.IsKind(err, domain.ErrDocumentNotFound):
		uc.logger.Info("summarize_skipped", "document_id", documentID, "reason", err.Error())
		return nil
	default:
		return err
	}
}

func (uc *SummarizeDocumentUseCase) Reprocess(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "reprocess", errors.New("document id is required"))
	}
	if uc.runs.Running(documentID) {
		return domain.WrapError(domain.ErrConflict, "reprocess", errors.New("document is being processed"))
	}
	if err := uc.store.ResetForReprocess(ctx, documentID); err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	uc.removeProjections(ctx, documentID)

	if uc.dispatcher == nil {
		return domain.WrapError(domain.ErrTemporary, "reprocess", errors.New("no summary dispatcher configured"))
	}
	if err := uc.dispatcher.Dispatch(ctx, documentID); err != nil {
		return fmt.Errorf("dispatch summarize: %w", err)
	}
	return nil
}

func (uc *SummarizeDocumentUseCase) claimAndRun(ctx context.Context, doc *domain.Document) (*domain.Result, error) {
	claimed, err := uc.store.ClaimForProcessing(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		current, err := uc.loadDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.StatusProcessed {
			return uc.cachedResult(ctx, doc.ID)
		}
		return nil, domain.WrapError(domain.ErrConflict, "summarize", errors.New("document is being processed"))
	}

	if uc.observer == nil {
		return uc.run(ctx, doc)
	}
	started := time.Now()
	uc.observer.StartRun()
	result, err := uc.run(ctx, doc)
	uc.observer.FinishRun(time.Since(started), err)
	return result, err
}

func (uc *SummarizeDocumentUseCase) run(ctx context.Context, doc *domain.Document) (*domain.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	uc.runs.register(doc.ID, cancel)
	defer func() {
		cancel()
		uc.runs.unregister(doc.ID)
	}()

	gate := &commitGate{next: uc.progress}
	result, err := uc.pipeline.RunWithProgress(runCtx, doc.ID, doc.RawText, gate)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, uc.abandon(ctx, doc.ID, "", gate)
		}
		return nil, uc.fail(ctx, doc.ID, "", gate, fmt.Errorf("run pipeline: %w", err))
	}

	if err := uc.persistResult(runCtx, doc.ID, *result); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) || runCtx.Err() != nil {
			return nil, uc.abandon(ctx, doc.ID, result.RunID, gate)
		}
		return nil, uc.fail(ctx, doc.ID, result.RunID, gate, err)
	}
	gate.release(ctx)

	uc.project(ctx, doc.ID, *result)
	uc.logger.Info("document_summarized", "document_id", doc.ID, "run_id", result.RunID)
	return result, nil
}

// abandon ends a cancelled run. The document normally is gone already; if it
// is still there it must not stay in processing, so the run is marked failed.
func (uc *SummarizeDocumentUseCase) abandon(ctx context.Context, documentID, runID string, gate *commitGate) error {
	_, err := uc.store.GetByID(ctx, documentID)
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		uc.logger.Info("run_abandoned", "document_id", documentID, "run_id", runID)
		return domain.WrapError(domain.ErrDocumentNotFound, "summarize", errors.New("document deleted during run"))
	}
	return uc.fail(ctx, documentID, runID, gate, domain.WrapError(domain.ErrTemporary, "summarize", errors.New("run cancelled")))
}

func (uc *SummarizeDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.store.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *SummarizeDocumentUseCase) cachedResult(ctx context.Context, documentID string) (*domain.Result, error) {
	result, err := uc.store.GetCachedResult(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch cached result: %w", err)
	}
	return result, nil
}

func (uc *SummarizeDocumentUseCase) persistResult(ctx context.Context, documentID string, result domain.Result) error {
	if err := uc.store.SaveResult(ctx, documentID, result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (uc *SummarizeDocumentUseCase) fail(
	ctx context.Context,
	documentID, runID string,
	gate *commitGate,
	processErr error,
) error {
	uc.logger.Error("summarize_failed", "document_id", documentID, "run_id", runID, "error", processErr)
	gate.fail(ctx, documentID, runID, processErr.Error())
	if markErr := uc.store.MarkError(ctx, documentID, processErr.Error()); markErr != nil {
		return fmt.Errorf("%w; mark error status: %v", processErr, markErr)
	}
	return processErr
}

func (uc *SummarizeDocumentUseCase) project(ctx context.Context, documentID string, result domain.Result) {
	for _, sink := range uc.sinks {
		if err := sink.Project(ctx, documentID, result); err != nil {
			uc.logger.Warn("result_projection_failed", "document_id", documentID, "error", err)
		}
	}
}

func (uc *SummarizeDocumentUseCase) removeProjections(ctx context.Context, documentID string) {
	for _, sink := range uc.sinks {
		if err := sink.Remove(ctx, documentID); err != nil {
			uc.logger.Warn("result_projection_remove_failed", "document_id", documentID, "error", err)
		}
	}
}

// commitGate holds back the terminal 100% event until the result is stored,
// so subscribers never see "complete" for a run whose save then fails.
type commitGate struct {
	next ports.ProgressPublisher

	mu   sync.Mutex
	held *domain.ProgressEvent
}

func (g *commitGate) Publish(ctx context.Context, event domain.ProgressEvent) {
	if g.next == nil {
		return
	}
	if event.Type == domain.ProgressEventProgress && event.Percent >= 100 {
		g.mu.Lock()
		g.held = &event
		g.mu.Unlock()
		return
	}
	g.next.Publish(ctx, event)
}

func (g *commitGate) release(ctx context.Context) {
	g.mu.Lock()
	held := g.held
	g.held = nil
	g.mu.Unlock()
	if held != nil && g.next != nil {
		g.next.Publish(ctx, *held)
	}
}

func (g *commitGate) fail(ctx context.Context, documentID, runID, message string) {
	g.mu.Lock()
	g.held = nil
	g.mu.Unlock()
	if g.next == nil {
		return
	}
	g.next.Publish(ctx, domain.ProgressEvent{
		Type:       domain.ProgressEventError,
		DocumentID: documentID,
		RunID:      runID,
		Stage:      domain.StepComplete,
		Percent:    100,
		Message:    message,
	})
}
