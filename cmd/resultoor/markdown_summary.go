package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/merge"
	"github.com/ethpandaops/resultoor/pkg/report"
	"github.com/ethpandaops/resultoor/pkg/retention"
)

var generateMarkdownSummaryCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a markdown summary of the latest stored run",
	Long: `Read the history store and write a markdown summary of the most recent
retained run, with deep links into the published historical report.`,
	RunE: runGenerateMarkdownSummary,
}

var mdOutput string

func init() {
	rootCmd.AddCommand(generateMarkdownSummaryCmd)
	generateMarkdownSummaryCmd.Flags().StringVar(&mdOutput, "output", "",
		"Output file path (default: stdout)")
}

func runGenerateMarkdownSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	now, err := referenceTime(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hist, err := history.NewReader(log, store, cfg.Aggregate.ReadConcurrency).Load(ctx)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	window := retentionWindow(cfg)
	runs := retention.Filter(now, window, hist.RunsOnly())
	md := report.Markdown(merge.Merge(nil, runs), cfg.Aggregate.BaseURL, window)

	if mdOutput == "" {
		fmt.Print(md)

		return nil
	}

	if err := os.WriteFile(mdOutput, []byte(md), 0o644); err != nil { //nolint:gosec // user-supplied output path
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", mdOutput).Info("Markdown summary generated successfully")

	return nil
}
