package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/resultoor/pkg/preview"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the site directory for local preview",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address; overrides preview.listen")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("listen") {
		cfg.Preview.Listen = serveListen
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	srv := preview.NewServer(log, &cfg.Preview, cfg.Aggregate.SiteDir)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting preview server: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutting down preview server")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping preview server: %w", err)
	}

	return nil
}
