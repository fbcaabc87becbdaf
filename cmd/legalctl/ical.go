package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/nextsteps"
)

var icalOutput string

var icalCmd = &cobra.Command{
	Use:   "ical <file>",
	Short: "Export the deadlines found in a document as an iCalendar file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		extracted, err := extractFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		deadlines := nextsteps.Deadlines(extracted.Text)
		name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		calendar := nextsteps.ExportICal(name, deadlines, time.Now().UTC())

		if icalOutput == "" || icalOutput == "-" {
			_, err := cmd.OutOrStdout().Write(calendar)
			return err
		}
		if err := os.WriteFile(icalOutput, calendar, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", icalOutput, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d deadline(s) written to %s\n", len(deadlines), icalOutput)
		return nil
	},
}

func init() {
	icalCmd.Flags().StringVarP(&icalOutput, "output", "o", "", "Write the calendar to this file instead of stdout")
	rootCmd.AddCommand(icalCmd)
}
