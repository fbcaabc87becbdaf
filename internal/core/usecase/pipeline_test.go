package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

func TestPipelineRunAllStagesSucceed(t *testing.T) {
	stages, cls, invokers := legalStages()
	observer := &observerFake{}
	progress := &progressRecorder{}
	p := NewPipelineOrchestrator(stages, PipelineOptions{Observer: observer})

	result, err := p.RunWithProgress(context.Background(), "doc-1", "The petitioner filed a writ", progress)
	if err != nil {
		t.Fatalf("RunWithProgress() error = %v", err)
	}
	if cls.calls.Load() != 1 {
		t.Fatalf("expected one classifier call, got %d", cls.calls.Load())
	}
	for i, inv := range invokers {
		if inv.calls.Load() != 1 {
			t.Fatalf("stage %d invoked %d times", i, inv.calls.Load())
		}
	}
	if !result.Facts.IsOK() || string(result.Facts.Payload) != `{"parties":["A","B"]}` {
		t.Fatalf("unexpected facts: %+v", result.Facts)
	}
	if !result.Lawyer.IsOK() || !result.Citizen.IsOK() || !result.NextSteps.IsOK() {
		t.Fatalf("expected all ok outcomes, got %+v", result)
	}
	if result.RunID == "" {
		t.Fatalf("expected a run id")
	}

	events := progress.snapshot()
	wantSteps := []string{
		domain.StageClassification,
		domain.StepClassified,
		domain.StageFacts,
		domain.StageLawyer,
		domain.StageCitizen,
		domain.StageNextSteps,
		domain.StepComplete,
	}
	wantPercents := []int{10, 20, 40, 60, 80, 95, 100}
	if len(events) != len(wantSteps) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantSteps), len(events), events)
	}
	for i, ev := range events {
		if ev.Stage != wantSteps[i] || ev.Percent != wantPercents[i] {
			t.Fatalf("event %d = %s/%d, want %s/%d", i, ev.Stage, ev.Percent, wantSteps[i], wantPercents[i])
		}
		if ev.DocumentID != "doc-1" || ev.RunID != result.RunID {
			t.Fatalf("event %d has wrong ids: %+v", i, ev)
		}
	}
	if observer.calls[domain.StageFacts] != domain.OutcomeOK {
		t.Fatalf("expected facts observation, got %+v", observer.calls)
	}
}

func TestPipelineRunNotLegalShortCircuits(t *testing.T) {
	stages, cls, invokers := legalStages()
	cls.legal = false
	progress := &progressRecorder{}
	p := NewPipelineOrchestrator(stages, PipelineOptions{})

	result, err := p.RunWithProgress(context.Background(), "doc-1", "shopping list: eggs, milk", progress)
	if err != nil {
		t.Fatalf("RunWithProgress() error = %v", err)
	}
	for i, inv := range invokers {
		if inv.calls.Load() != 0 {
			t.Fatalf("stage %d must not run for non-legal text", i)
		}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"lawyer":{"error":"Document is not legal in nature"},"citizen":{"error":"Document is not legal in nature"},"next_steps":{},"facts":{}}`
	if string(raw) != want {
		t.Fatalf("unexpected result:\n got %s\nwant %s", raw, want)
	}

	events := progress.snapshot()
	if len(events) != 2 || events[1].Percent != 100 || events[1].Stage != domain.StepComplete {
		t.Fatalf("expected start + single completion event, got %+v", events)
	}
}

func TestPipelineRunClassifierFailureIsHardStop(t *testing.T) {
	stages, cls, invokers := legalStages()
	cls.err = errors.New("model file corrupt")
	p := NewPipelineOrchestrator(stages, PipelineOptions{})

	result, err := p.Run(context.Background(), "doc-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, inv := range invokers {
		if inv.calls.Load() != 0 {
			t.Fatalf("no stage may run after a classifier failure")
		}
	}
	if result.Lawyer.Error != "Classification failed: model file corrupt" {
		t.Fatalf("unexpected lawyer outcome: %+v", result.Lawyer)
	}
	if result.Citizen.Error != result.Lawyer.Error {
		t.Fatalf("citizen must carry the same message, got %+v", result.Citizen)
	}
	if result.Facts.Kind != domain.OutcomeSkipped || result.NextSteps.Kind != domain.OutcomeSkipped {
		t.Fatalf("expected skipped facts and next steps, got %+v", result)
	}
}

func TestPipelineRunIsolatesStageFailures(t *testing.T) {
	stages, _, invokers := legalStages()
	invokers[1].err = errors.New("upstream 502")
	invokers[2].panics = true
	p := NewPipelineOrchestrator(stages, PipelineOptions{})

	result, err := p.Run(context.Background(), "doc-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Facts.IsOK() || !result.NextSteps.IsOK() {
		t.Fatalf("healthy stages must keep their payloads: %+v", result)
	}
	if result.Lawyer.Error != "Lawyer summary failed: upstream 502" {
		t.Fatalf("unexpected lawyer error: %q", result.Lawyer.Error)
	}
	if !result.Citizen.IsFailed() || result.Citizen.Error == "" {
		t.Fatalf("expected a recovered citizen failure, got %+v", result.Citizen)
	}
	if invokers[3].calls.Load() != 1 {
		t.Fatalf("next steps must still run after earlier failures")
	}
}

func TestPipelineRunRejectsNonObjectOutput(t *testing.T) {
	stages, _, invokers := legalStages()
	invokers[0].payload = `["not","an","object"]`
	invokers[3].payload = `not json`
	p := NewPipelineOrchestrator(stages, PipelineOptions{})

	result, err := p.Run(context.Background(), "doc-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Facts.IsFailed() || !result.NextSteps.IsFailed() {
		t.Fatalf("expected failures for invalid output, got %+v", result)
	}
}

func TestPipelineRunTreatsErrorPayloadAsFailure(t *testing.T) {
	stages, _, invokers := legalStages()
	invokers[1].payload = `{"error":"model refused"}`
	invokers[2].payload = `{"error":"x","summary":"kept"}`
	p := NewPipelineOrchestrator(stages, PipelineOptions{})

	result, err := p.Run(context.Background(), "doc-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Lawyer.IsFailed() || !strings.Contains(result.Lawyer.Error, "model refused") {
		t.Fatalf("expected lawyer failure, got %+v", result.Lawyer)
	}
	if result.Citizen.IsFailed() {
		t.Fatalf("payload with extra keys must stay ok, got %+v", result.Citizen)
	}
}

func TestPipelineRunEmptyPayloadMatchesStoredForm(t *testing.T) {
	stages, _, invokers := legalStages()
	invokers[0].payload = ` {} `
	p := NewPipelineOrchestrator(stages, PipelineOptions{})

	result, err := p.Run(context.Background(), "doc-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Facts.Kind != domain.OutcomeSkipped {
		t.Fatalf("expected skipped facts, got %+v", result.Facts)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded domain.Result
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Facts.Kind != result.Facts.Kind || decoded.Lawyer.Kind != result.Lawyer.Kind {
		t.Fatalf("stored form differs: %+v vs %+v", decoded, result)
	}
}

func TestPipelineRunEnforcesStageTimeout(t *testing.T) {
	stages, _, invokers := legalStages()
	invokers[1].delay = 500 * time.Millisecond
	p := NewPipelineOrchestrator(stages, PipelineOptions{StageTimeout: 20 * time.Millisecond})

	start := time.Now()
	result, err := p.Run(context.Background(), "doc-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("run waited for the slow stage: %s", elapsed)
	}
	if !result.Lawyer.IsFailed() {
		t.Fatalf("expected lawyer timeout failure, got %+v", result.Lawyer)
	}
	if !result.Citizen.IsOK() || !result.NextSteps.IsOK() {
		t.Fatalf("stages after a timeout must still run: %+v", result)
	}
}

func TestPipelineRunEmptyDocumentID(t *testing.T) {
	stages, cls, _ := legalStages()
	p := NewPipelineOrchestrator(stages, PipelineOptions{})

	_, err := p.Run(context.Background(), "  ", "text")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if cls.calls.Load() != 0 {
		t.Fatalf("classifier must not run without a document id")
	}
}

func TestPipelineRunCancelledContext(t *testing.T) {
	stages, _, _ := legalStages()
	p := NewPipelineOrchestrator(stages, PipelineOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Run(ctx, "doc-1", "text"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPipelineRunParallelFillsEveryStage(t *testing.T) {
	stages, _, invokers := legalStages()
	invokers[0].delay = 30 * time.Millisecond
	progress := &progressRecorder{}
	p := NewPipelineOrchestrator(stages, PipelineOptions{Parallel: true})

	result, err := p.RunWithProgress(context.Background(), "doc-1", "text", progress)
	if err != nil {
		t.Fatalf("RunWithProgress() error = %v", err)
	}
	if !result.Facts.IsOK() || !result.Lawyer.IsOK() || !result.Citizen.IsOK() || !result.NextSteps.IsOK() {
		t.Fatalf("expected all ok outcomes, got %+v", result)
	}

	events := progress.snapshot()
	last := 0
	completions := 0
	for _, ev := range events {
		if ev.Percent < last {
			t.Fatalf("progress went backwards: %+v", events)
		}
		last = ev.Percent
		if ev.Percent == 100 {
			completions++
		}
	}
	if completions != 1 || len(events) != 7 {
		t.Fatalf("expected 7 events with one completion, got %+v", events)
	}
	if events[5].Stage != domain.StageFacts {
		t.Fatalf("slowest stage should report last, got %+v", events[5])
	}
}
