package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/resultoor/pkg/aggregator"
	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/metrics"
	"github.com/ethpandaops/resultoor/pkg/report"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate result artifacts and render the report",
	Long: `Load the per-environment result artifacts of the current run and render
the report. In historical mode the run is merged with the retained history,
persisted to the store and expired run files are pruned. In table mode only
the current run is rendered and the store is not touched. With --publish the
document is uploaded afterwards, removing remote copies of pruned runs only.`,
	RunE: runAggregate,
}

var (
	aggMode         string
	aggArtifactsDir string
	aggSiteDir      string
	aggPRNumber     int
	aggNow          string
	aggStamp        bool
	aggPublish      bool
)

func init() {
	rootCmd.AddCommand(aggregateCmd)

	f := aggregateCmd.Flags()
	f.StringVar(&aggMode, "mode", "", "report mode (historical, table); overrides aggregate.mode")
	f.StringVar(&aggArtifactsDir, "artifacts-dir", "", "artifacts directory; overrides aggregate.artifacts_dir")
	f.StringVar(&aggSiteDir, "site-dir", "", "site directory; overrides aggregate.site_dir")
	f.IntVar(&aggPRNumber, "pr-number", 0, "pull request number shown in table mode")
	f.StringVar(&aggNow, "now", "", "reference time (RFC 3339); overrides aggregate.now")
	f.BoolVar(&aggStamp, "stamp", false, "include a generation timestamp in the report")
	f.BoolVar(&aggPublish, "publish", false, "upload the report to S3 after rendering (requires publish.s3.enabled)")
}

// applyAggregateFlags overlays explicitly set flags onto cfg.
func applyAggregateFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("mode") {
		cfg.Aggregate.Mode = aggMode
	}

	if f.Changed("artifacts-dir") {
		cfg.Aggregate.ArtifactsDir = aggArtifactsDir
	}

	if f.Changed("site-dir") {
		cfg.Aggregate.SiteDir = aggSiteDir
	}

	if f.Changed("pr-number") {
		cfg.Aggregate.PRNumber = aggPRNumber
	}

	if f.Changed("now") {
		cfg.Aggregate.Now = aggNow
	}
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	applyAggregateFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if aggPublish && !cfg.Publish.S3.Enabled {
		return fmt.Errorf("--publish requires publish.s3.enabled")
	}

	mode, err := report.ParseMode(cfg.Aggregate.Mode)
	if err != nil {
		return err
	}

	now, err := referenceTime(cfg)
	if err != nil {
		return err
	}

	site, err := openSite(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var store history.Store

	if mode == report.ModeHistorical {
		s, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		store = s
	}

	opts := aggregator.Options{
		ArtifactsDir:    cfg.Aggregate.ArtifactsDir,
		ArtifactPattern: cfg.Aggregate.ArtifactPattern,
		Mode:            mode,
		Window:          retentionWindow(cfg),
		Now:             now,
		RunID:           cfg.Aggregate.RunID,
		RunNumber:       cfg.Aggregate.RunNumber,
		Prune:           cfg.Aggregate.Prune,
		ReadConcurrency: cfg.Aggregate.ReadConcurrency,
		Report: report.Options{
			Title:    cfg.Aggregate.Title,
			BaseURL:  cfg.Aggregate.BaseURL,
			Columns:  cfg.Aggregate.TableColumns,
			PRNumber: cfg.Aggregate.PRNumber,
		},
	}

	if aggStamp {
		opts.Report.GeneratedAt = time.Now().UTC()
	}

	out, err := aggregator.New(log, store).Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("aggregating results: %w", err)
	}

	path, err := site.Write(mode, out.Document.HTML)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"mode": mode.String(),
		"path": path,
	}).Info("Report written")

	if err := writeSummary(cfg.Aggregate.SummaryFile, out.Markdown); err != nil {
		return err
	}

	if cfg.Aggregate.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Aggregate.MetricsFile, mode.String(), out.Run.ID,
			out.Stats, time.Now()); err != nil {
			return err
		}
	}

	if aggPublish {
		return publishReport(ctx, cfg, publishRequest(cfg, site, mode, now, out.PrunedRuns))
	}

	return nil
}

// writeSummary appends markdown to path, creating it when needed, the way
// CI step summaries accumulate. An empty path disables the summary.
func writeSummary(path, markdown string) error {
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating summary directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // configured path
	if err != nil {
		return fmt.Errorf("opening summary file: %w", err)
	}

	if _, err := f.WriteString(markdown); err != nil {
		_ = f.Close()

		return fmt.Errorf("writing summary file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing summary file: %w", err)
	}

	log.WithField("path", path).Info("Step summary written")

	return nil
}
