package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-lens/internal/bootstrap"
	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/core/domain"
)

var (
	runParallel bool
	runTimeout  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Summarize a document and print the result as JSON",
	Long: `Run classifies the document and, when it is legal in nature, extracts
facts and next steps and asks the configured model for lawyer and citizen
summaries. Stages are configured through the same environment variables as
the API (LLM_PROVIDER, *_COMMAND, EXTRACTION_FIELDS_PATH, ...).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		cfg := config.Load()
		if cmd.Flags().Changed("parallel") {
			cfg.PipelineParallelStages = runParallel
		}

		extracted, err := extractFile(ctx, args[0])
		if err != nil {
			return err
		}

		logger := slog.Default()
		generator, err := bootstrap.NewGenerator(cfg, bootstrap.NewExecutor(cfg, logger, nil))
		if err != nil {
			return err
		}
		pipeline, err := bootstrap.NewPipeline(ctx, cfg, generator, nil, logger)
		if err != nil {
			return err
		}

		result, err := pipeline.RunWithProgress(ctx, uuid.NewString(), extracted.Text, progressPrinter{w: cmd.ErrOrStderr()})
		if err != nil {
			return fmt.Errorf("run pipeline: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// progressPrinter writes one line per progress event.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Publish(_ context.Context, event domain.ProgressEvent) {
	fmt.Fprintf(p.w, "[%3d%%] %-16s %s\n", event.Percent, event.Stage, event.Message)
}

func init() {
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "Run the post-classification stages concurrently")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "Overall time limit for the run")
	rootCmd.AddCommand(runCmd)
}
