package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/resultoor/pkg/aggregator"
)

var (
	forceCleanup  bool
	dryRunCleanup bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired and superseded run files from the history store",
	Long: `Remove run files that fall outside the retention window, and older copies
of runs that were persisted more than once. Corrupt run files are reported
but never removed.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVarP(&forceCleanup, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVar(&dryRunCleanup, "dry-run", false, "Only list the files that would be removed")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
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

	agg := aggregator.New(log, store)
	opts := aggregator.CleanupOptions{
		Window:          retentionWindow(cfg),
		Now:             now,
		ReadConcurrency: cfg.Aggregate.ReadConcurrency,
		DryRun:          true,
	}

	scan, err := agg.Cleanup(ctx, opts)
	if err != nil {
		return fmt.Errorf("scanning store: %w", err)
	}

	for _, w := range scan.Warnings {
		fmt.Printf("  ! %s\n", w)
	}

	if len(scan.Candidates) == 0 {
		log.Info("No run files to remove")

		return nil
	}

	fmt.Printf("\nRun files to be removed from %s (%d):\n", store.Location(), len(scan.Candidates))

	for _, name := range scan.Candidates {
		fmt.Printf("  - %s\n", name)
	}

	fmt.Println()

	if dryRunCleanup {
		return nil
	}

	if !forceCleanup {
		fmt.Print("Are you sure you want to remove these files? [y/N] ")

		reader := bufio.NewReader(os.Stdin)

		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			log.Info("Cleanup cancelled")

			return nil
		}
	}

	opts.DryRun = false

	res, err := agg.Cleanup(ctx, opts)
	if err != nil {
		return fmt.Errorf("cleaning store: %w", err)
	}

	if res.Failures > 0 {
		return fmt.Errorf("%d run files could not be removed", res.Failures)
	}

	log.WithField("removed", len(res.Removed)).Info("Cleanup completed")

	return nil
}
