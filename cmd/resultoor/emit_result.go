package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/resultoor/pkg/envinfo"
	"github.com/ethpandaops/resultoor/pkg/fsutil"
	"github.com/ethpandaops/resultoor/pkg/result"
)

var emitResultCmd = &cobra.Command{
	Use:   "emit-result",
	Short: "Write a result artifact describing this environment",
	Long: `Collect host facts and write a per-environment result artifact that the
aggregate command can consume. Extra details are added with --detail.`,
	RunE: runEmitResult,
}

var (
	emitEnvironment string
	emitStatus      string
	emitOutput      string
	emitDetails     []string
)

func init() {
	rootCmd.AddCommand(emitResultCmd)

	f := emitResultCmd.Flags()
	f.StringVar(&emitEnvironment, "environment", "", "environment label, unique within the run")
	f.StringVar(&emitStatus, "status", "passed", "result status (passed, failed, errored)")
	f.StringVar(&emitOutput, "output", "result.json", "artifact file to write")
	f.StringArrayVar(&emitDetails, "detail", nil, "extra detail as key=value (repeatable)")

	if err := emitResultCmd.MarkFlagRequired("environment"); err != nil {
		panic(err)
	}
}

func runEmitResult(cmd *cobra.Command, _ []string) error {
	extra, err := envinfo.ParseExtra(emitDetails)
	if err != nil {
		return err
	}

	status := result.ParseStatus(emitStatus)
	if string(status) != emitStatus {
		log.WithField("status", emitStatus).Warnf("Status normalized to %q", status)
	}

	info, err := envinfo.Collect(cmd.Context(), log)
	if err != nil {
		return fmt.Errorf("collecting environment info: %w", err)
	}

	data, err := envinfo.Record(emitEnvironment, status, info, extra)
	if err != nil {
		return err
	}

	if emitOutput == "-" {
		_, err := os.Stdout.Write(data)

		return err
	}

	if err := fsutil.WriteFileAtomic(emitOutput, data, 0o644, nil); err != nil {
		return fmt.Errorf("writing %s: %w", emitOutput, err)
	}

	log.WithField("output", emitOutput).Info("Result artifact written")

	return nil
}
