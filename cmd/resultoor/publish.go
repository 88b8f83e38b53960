package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/publish"
	"github.com/ethpandaops/resultoor/pkg/report"
	"github.com/ethpandaops/resultoor/pkg/retention"
)

var publishMode string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the rendered report to S3-compatible storage",
	Long: `Upload the report document of the given mode from the site directory. In
historical mode with the local store, run files are uploaded as well: remote
run files are never overwritten, and only those past the retention window are
removed. No other remote keys are modified.`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&publishMode, "mode", "", "report mode to publish; defaults to aggregate.mode")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("mode") {
		cfg.Aggregate.Mode = publishMode
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if !cfg.Publish.S3.Enabled {
		return fmt.Errorf("S3 publishing is not enabled in config (publish.s3.enabled)")
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

	return publishReport(ctx, cfg, publishRequest(cfg, site, mode, now, nil))
}

// publishRequest builds the upload request for mode. Only a local store has
// a run directory to upload; remote stores already hold the authoritative
// copy.
func publishRequest(
	cfg *config.Config,
	site *publish.Site,
	mode report.Mode,
	now time.Time,
	pruned map[string]string,
) publish.Request {
	req := publish.Request{
		SiteDir:  site.Dir(),
		Document: site.RelPath(mode),
	}

	if mode != report.ModeHistorical || cfg.Store.Driver != "local" {
		return req
	}

	req.RunsDir = cfg.Aggregate.ResolvedRunsDir()
	req.Pruned = pruned

	if window := retentionWindow(cfg); window >= 0 {
		req.ExpireBefore = retention.Cutoff(now, window)
	}

	return req
}

func publishReport(ctx context.Context, cfg *config.Config, req publish.Request) error {
	publisher := publish.NewS3Publisher(log, &cfg.Publish.S3)

	if err := publisher.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight check failed: %w", err)
	}

	res, err := publisher.Publish(ctx, req)
	if err != nil {
		return fmt.Errorf("publishing report: %w", err)
	}

	for _, c := range res.Collisions {
		log.WithField("collision", c.String()).Warn("Run file published under another name")
	}

	log.WithFields(logrus.Fields{
		"document":   res.DocumentKey,
		"uploaded":   len(res.Uploaded),
		"deleted":    len(res.Deleted),
		"collisions": len(res.Collisions),
	}).Info("Publish completed successfully")

	return nil
}
