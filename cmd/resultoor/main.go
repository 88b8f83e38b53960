package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Set through -ldflags by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFiles     []string
	logLevel     string
	logFormat    string
	versionShort bool
	log          = logrus.New()
)

func main() {
	log.SetOutput(os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}

var rootCmd = &cobra.Command{
	Use:   "resultoor",
	Short: "Historical and per-PR reports for CI matrix test results",
	Long: `resultoor turns the result artifacts of a CI matrix into static HTML.

  aggregate                   load artifacts, merge history, render and prune
  publish                     upload a rendered report (and run files) to S3
  cleanup                     remove expired or superseded run files
  generate-markdown-summary   print the latest run as markdown
  emit-result                 write one environment's result artifact
  serve                       preview the site directory over HTTP
  config                      print the effective configuration

Settings come from --config files and RESULTOOR_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return configureLogger(log, logLevel, logFormat)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(_ *cobra.Command, _ []string) {
		if versionShort {
			fmt.Println(version)

			return
		}

		fmt.Println(versionString())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringArrayVar(&cfgFiles, "config", nil,
		"config file path (repeatable, later files override earlier ones)")
	flags.StringVar(&logLevel, "log-level", "info",
		"log level ("+strings.Join(logLevels(), ", ")+")")
	flags.StringVar(&logFormat, "log-format", "text", "log output format (text, json)")

	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version")
	rootCmd.AddCommand(versionCmd)
}

// configureLogger applies the level and output format flags.
func configureLogger(l *logrus.Logger, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q (use text or json)", format)
	}

	l.SetLevel(lvl)

	return nil
}

func versionString() string {
	return fmt.Sprintf("resultoor %s (commit %s, built %s, %s %s/%s)",
		version, commit, date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}
