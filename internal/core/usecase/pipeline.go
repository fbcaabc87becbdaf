package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const DefaultStageTimeout = 60 * time.Second

// PipelineStages are the five stage invokers, in no particular order.
type PipelineStages struct {
	Classifier ports.LegalClassifier
	Facts      ports.Stage
	Lawyer     ports.Stage
	Citizen    ports.Stage
	NextSteps  ports.Stage
}

type PipelineOptions struct {
	StageTimeout time.Duration
	// Parallel runs the four post-classification stages concurrently. Progress
	// events then follow completion order instead of the fixed stage order.
	Parallel bool
	Observer ports.StageObserver
	Logger   *slog.Logger
}

// PipelineOrchestrator sequences the stages for one document text. It owns no
// storage; callers persist the Result it returns.
type PipelineOrchestrator struct {
	stages   PipelineStages
	timeout  time.Duration
	parallel bool
	observer ports.StageObserver
	logger   *slog.Logger
}

func NewPipelineOrchestrator(stages PipelineStages, opts PipelineOptions) *PipelineOrchestrator {
	timeout := opts.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineOrchestrator{
		stages:   stages,
		timeout:  timeout,
		parallel: opts.Parallel,
		observer: opts.Observer,
		logger:   logger,
	}
}

type stageSpec struct {
	name   string
	label  string
	stage  ports.Stage
	assign func(*domain.Result, domain.Outcome)
}

// completion percentages for the four isolated stages, by completion index.
var stagePercents = [...]int{40, 60, 80, 95}

func (p *PipelineOrchestrator) specs() []stageSpec {
	return []stageSpec{
		{
			name:   domain.StageFacts,
			label:  "Fact extraction",
			stage:  p.stages.Facts,
			assign: func(r *domain.Result, o domain.Outcome) { r.Facts = o },
		},
		{
			name:   domain.StageLawyer,
			label:  "Lawyer summary",
			stage:  p.stages.Lawyer,
			assign: func(r *domain.Result, o domain.Outcome) { r.Lawyer = o },
		},
		{
			name:   domain.StageCitizen,
			label:  "Citizen summary",
			stage:  p.stages.Citizen,
			assign: func(r *domain.Result, o domain.Outcome) { r.Citizen = o },
		},
		{
			name:   domain.StageNextSteps,
			label:  "Next steps",
			stage:  p.stages.NextSteps,
			assign: func(r *domain.Result, o domain.Outcome) { r.NextSteps = o },
		},
	}
}

func (p *PipelineOrchestrator) Run(ctx context.Context, documentID, text string) (*domain.Result, error) {
	return p.RunWithProgress(ctx, documentID, text, nil)
}

func (p *PipelineOrchestrator) RunWithProgress(
	ctx context.Context,
	documentID, text string,
	progress ports.ProgressPublisher,
) (*domain.Result, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run pipeline", errors.New("document id is required"))
	}

	runID := ulid.Make().String()
	reporter := newProgressReporter(documentID, runID, progress)
	logger := p.logger.With("document_id", documentID, "run_id", runID)

	reporter.step(ctx, domain.StageClassification, 10, "Classifying document")
	legal, err := p.classify(ctx, text)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("pipeline run abandoned: %w", ctxErr)
	}
	if err != nil {
		logger.Warn("classification_failed", "error", err)
		result := domain.ClassificationFailedResult(err.Error())
		result.RunID = runID
		reporter.complete(ctx, "Classification failed")
		return &result, nil
	}
	if !legal {
		logger.Info("document_not_legal")
		result := domain.NotLegalResult()
		result.RunID = runID
		reporter.complete(ctx, domain.NotLegalMessage)
		return &result, nil
	}
	reporter.step(ctx, domain.StepClassified, 20, "Document is legal in nature")

	result := domain.Result{RunID: runID}
	if p.parallel {
		p.runParallel(ctx, logger, text, &result, reporter)
	} else {
		p.runSequential(ctx, logger, text, &result, reporter)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("pipeline run abandoned: %w", ctxErr)
	}
	reporter.complete(ctx, "Processing complete")
	return &result, nil
}

func (p *PipelineOrchestrator) runSequential(
	ctx context.Context,
	logger *slog.Logger,
	text string,
	result *domain.Result,
	reporter *progressReporter,
) {
	for idx, spec := range p.specs() {
		outcome := p.runStage(ctx, logger, spec, text)
		spec.assign(result, outcome)
		reporter.step(ctx, spec.name, stagePercents[idx], stageMessage(spec.label, outcome))
	}
}

func (p *PipelineOrchestrator) runParallel(
	ctx context.Context,
	logger *slog.Logger,
	text string,
	result *domain.Result,
	reporter *progressReporter,
) {
	var (
		mu        sync.Mutex
		completed int
	)
	specs := p.specs()
	g := new(errgroup.Group)
	g.SetLimit(len(specs))
	for _, spec := range specs {
		g.Go(func() error {
			outcome := p.runStage(ctx, logger, spec, text)

			mu.Lock()
			defer mu.Unlock()
			spec.assign(result, outcome)
			reporter.step(ctx, spec.name, stagePercents[completed], stageMessage(spec.label, outcome))
			completed++
			return nil
		})
	}
	_ = g.Wait()
}

func (p *PipelineOrchestrator) runStage(ctx context.Context, logger *slog.Logger, spec stageSpec, text string) domain.Outcome {
	start := time.Now()
	outcome := p.invokeStage(ctx, spec, text)
	duration := time.Since(start)

	if p.observer != nil {
		p.observer.ObserveStage(spec.name, outcome.Kind, duration)
	}
	attrs := []any{
		"stage", spec.name,
		"outcome", string(outcome.Kind),
		"duration_ms", float64(duration.Microseconds()) / 1000.0,
	}
	if outcome.IsFailed() {
		logger.Warn("stage_failed", append(attrs, "error", outcome.Error)...)
	} else {
		logger.Info("stage_completed", attrs...)
	}
	return outcome
}

func (p *PipelineOrchestrator) invokeStage(ctx context.Context, spec stageSpec, text string) domain.Outcome {
	if spec.stage == nil {
		return domain.Failedf("%s failed: stage is not configured", spec.label)
	}
	payload, err := callWithBudget(ctx, p.timeout, func(stageCtx context.Context) (json.RawMessage, error) {
		return spec.stage.Invoke(stageCtx, text)
	})
	if err != nil {
		return domain.Failedf("%s failed: %v", spec.label, err)
	}
	if !isJSONObject(payload) {
		return domain.Failedf("%s failed: stage output is not a JSON object", spec.label)
	}
	// Decode the way a stored result is decoded: {"error": "..."} is the
	// stage reporting its own failure and {} is a stage with nothing to say.
	var outcome domain.Outcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return domain.Failedf("%s failed: %v", spec.label, err)
	}
	switch outcome.Kind {
	case domain.OutcomeFailed:
		return domain.Failedf("%s failed: %s", spec.label, outcome.Error)
	case domain.OutcomeSkipped:
		return domain.Skipped()
	}
	return domain.Ok(payload)
}

func (p *PipelineOrchestrator) classify(ctx context.Context, text string) (bool, error) {
	if p.stages.Classifier == nil {
		return false, errors.New("classifier is not configured")
	}
	start := time.Now()
	legal, err := callWithBudget(ctx, p.timeout, func(stageCtx context.Context) (bool, error) {
		return p.stages.Classifier.Classify(stageCtx, text)
	})
	if p.observer != nil {
		kind := domain.OutcomeOK
		if err != nil {
			kind = domain.OutcomeFailed
		}
		p.observer.ObserveStage(domain.StageClassification, kind, time.Since(start))
	}
	return legal, err
}

// callWithBudget runs fn on its own goroutine and gives up after timeout, so a
// stage that ignores cancellation cannot hold the run past its budget.
func callWithBudget[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		value T
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		value, err := fn(stageCtx)
		done <- reply{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-stageCtx.Done():
		var zero T
		if ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("timed out after %s", timeout)
		}
		return zero, stageCtx.Err()
	}
}

func isJSONObject(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

func stageMessage(label string, outcome domain.Outcome) string {
	if outcome.IsFailed() {
		return outcome.Error
	}
	return label + " complete"
}

// progressReporter keeps progress monotonic and emits 100 exactly once.
type progressReporter struct {
	documentID string
	runID      string
	publisher  ports.ProgressPublisher
	last       int
	done       bool
}

func newProgressReporter(documentID, runID string, publisher ports.ProgressPublisher) *progressReporter {
	return &progressReporter{documentID: documentID, runID: runID, publisher: publisher}
}

func (r *progressReporter) step(ctx context.Context, stage string, percent int, message string) {
	if r.done || percent < r.last || percent >= 100 {
		return
	}
	r.last = percent
	r.emit(ctx, domain.ProgressEventProgress, stage, percent, message)
}

func (r *progressReporter) complete(ctx context.Context, message string) {
	if r.done {
		return
	}
	r.done = true
	r.last = 100
	r.emit(ctx, domain.ProgressEventProgress, domain.StepComplete, 100, message)
}

func (r *progressReporter) emit(ctx context.Context, kind domain.ProgressEventType, stage string, percent int, message string) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(ctx, domain.ProgressEvent{
		Type:       kind,
		DocumentID: r.documentID,
		RunID:      r.runID,
		Stage:      stage,
		Percent:    percent,
		Message:    message,
	})
}
