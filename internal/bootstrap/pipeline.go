package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/core/usecase"
	"github.com/kirillkom/legal-lens/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/legal-lens/internal/infrastructure/llm/openai"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/classifier"
	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/command"
	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/facts"
	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/nextsteps"
	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/summary"
)

// NewExecutor builds the shared retry/circuit-breaker policy from config.
func NewExecutor(cfg config.Config, logger *slog.Logger, onRetry resilience.RetryHook) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		BreakerEnabled:      cfg.ResilienceBreakerEnabled,
		BreakerOpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
		Operations:          resilience.DefaultOperations(),
	}).WithLogger(logger).WithRetryHook(onRetry)
}

// NewGenerator picks the remote model client for the summary stages.
func NewGenerator(cfg config.Config, executor *resilience.Executor) (ports.ChatGenerator, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderTogether:
		return openai.New(cfg.TogetherURL, openai.Options{
			APIKey:      cfg.TogetherKey,
			Model:       cfg.TogetherModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Timeout:     cfg.LLMTimeout,
			Executor:    executor,
		}), nil
	case config.LLMProviderOllama:
		return ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
			Timeout:     cfg.LLMTimeout,
			Temperature: cfg.LLMTemperature,
			Executor:    executor,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// NewPipeline assembles the five stages. A *_COMMAND setting replaces the
// built-in stage with an external process. When extraction fields come from a
// file, the file is watched for changes until ctx is done.
func NewPipeline(
	ctx context.Context,
	cfg config.Config,
	generator ports.ChatGenerator,
	observer ports.StageObserver,
	logger *slog.Logger,
) (*usecase.PipelineOrchestrator, error) {
	var stages usecase.PipelineStages
	var err error

	if cfg.ClassifierCommand != "" {
		if stages.Classifier, err = command.NewClassifier(cfg.ClassifierCommand, logger); err != nil {
			return nil, fmt.Errorf("classifier command: %w", err)
		}
	} else {
		stages.Classifier = classifier.New(cfg.ClassifierModelPath, logger)
	}

	if cfg.FactsCommand != "" {
		if stages.Facts, err = command.NewStage(cfg.FactsCommand, logger); err != nil {
			return nil, fmt.Errorf("facts command: %w", err)
		}
	} else {
		extractor, err := facts.New(cfg.ExtractionFieldsPath, logger)
		if err != nil {
			return nil, fmt.Errorf("load extraction fields: %w", err)
		}
		if cfg.ExtractionFieldsPath != "" {
			go func() {
				if err := extractor.Watch(ctx); err != nil {
					logger.Warn("fact_fields_watch_stopped", "path", cfg.ExtractionFieldsPath, "error", err)
				}
			}()
		}
		stages.Facts = extractor
	}

	if cfg.NextStepsCommand != "" {
		if stages.NextSteps, err = command.NewStage(cfg.NextStepsCommand, logger); err != nil {
			return nil, fmt.Errorf("next steps command: %w", err)
		}
	} else {
		stages.NextSteps = nextsteps.New()
	}

	if cfg.LawyerCommand != "" {
		if stages.Lawyer, err = command.NewStage(cfg.LawyerCommand, logger); err != nil {
			return nil, fmt.Errorf("lawyer command: %w", err)
		}
	} else {
		stages.Lawyer = summary.NewLawyer(generator, cfg.SummaryMaxInputChars)
	}

	if cfg.CitizenCommand != "" {
		if stages.Citizen, err = command.NewStage(cfg.CitizenCommand, logger); err != nil {
			return nil, fmt.Errorf("citizen command: %w", err)
		}
	} else {
		stages.Citizen = summary.NewCitizen(generator, cfg.SummaryMaxInputChars)
	}

	return usecase.NewPipelineOrchestrator(stages, usecase.PipelineOptions{
		StageTimeout: cfg.PipelineStageTimeout,
		Parallel:     cfg.PipelineParallelStages,
		Observer:     observer,
		Logger:       logger,
	}), nil
}
