package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/resultoor/pkg/config"
)

const redactedValue = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := cfg.Validate(); err != nil {
			log.WithError(err).Warn("Configuration is not valid")
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)

		if err := enc.Encode(redacted(cfg)); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}

		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// redacted returns a copy of cfg with credentials masked.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg

	for _, s3 := range []*config.S3Config{&out.Store.S3, &out.Publish.S3} {
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = redactedValue
		}
	}

	if out.Store.Database.Postgres.Password != "" {
		out.Store.Database.Postgres.Password = redactedValue
	}

	return &out
}
