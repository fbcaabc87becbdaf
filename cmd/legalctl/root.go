package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/extractor"
	"github.com/kirillkom/legal-lens/internal/observability/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "legalctl",
	Short: "Run the legal document pipeline locally",
	Long: `legalctl summarizes a legal document without the API: the file is
extracted, classified and passed through every stage in this process.
Results go to stdout, progress and logs to stderr.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if verbose {
			level = "debug"
		}
		slog.SetDefault(logging.New(cmd.ErrOrStderr(), "", level, true))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// extractFile reads a document from disk and returns its text.
func extractFile(ctx context.Context, path string) (domain.ExtractedText, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("read %s: %w", path, err)
	}
	extracted, err := extractor.New(slog.Default()).Extract(ctx, path, "", data)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract %s: %w", path, err)
	}
	return extracted, nil
}
