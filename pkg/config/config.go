package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment variable overrides, e.g.
	// RESULTOOR_AGGREGATE_RETENTION_DAYS.
	EnvPrefix = "RESULTOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultArtifactsDir is where per-environment result files are read from.
	DefaultArtifactsDir = "./artifacts"

	// DefaultArtifactPattern matches candidate artifact files by basename.
	DefaultArtifactPattern = "*.json"

	// DefaultSiteDir is the checkout of the published site.
	DefaultSiteDir = "./site"

	// DefaultRunsSubdir is the run-file directory relative to the site dir.
	DefaultRunsSubdir = "runs"

	// DefaultMode is the default report mode.
	DefaultMode = "historical"

	// DefaultRetentionDays is the default retention window in days.
	DefaultRetentionDays = 14

	// RetentionUnlimited as retention_days keeps every run.
	RetentionUnlimited = -1

	// DefaultHistoricalPath is the site-relative path of the historical report.
	DefaultHistoricalPath = "index.html"

	// DefaultTablePath is the site-relative path of the table report.
	DefaultTablePath = "pr/index.html"

	// DefaultReadConcurrency bounds parallel reads from the history store.
	DefaultReadConcurrency = 4

	// DefaultStoreDriver keeps run files next to the published site.
	DefaultStoreDriver = "local"

	// DefaultPreviewListen is the preview server listen address.
	DefaultPreviewListen = "127.0.0.1:8080"
)

// Config is the root configuration for resultoor.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
	Preview   PreviewConfig   `yaml:"preview" mapstructure:"preview"`
}

// GlobalConfig contains global application settings. FileOwner is an
// optional "UID:GID" applied to written files.
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	FileOwner string `yaml:"file_owner,omitempty" mapstructure:"file_owner"`
}

// AggregateConfig controls a single aggregation cycle.
type AggregateConfig struct {
	ArtifactsDir    string   `yaml:"artifacts_dir" mapstructure:"artifacts_dir"`
	ArtifactPattern string   `yaml:"artifact_pattern" mapstructure:"artifact_pattern"`
	SiteDir         string   `yaml:"site_dir" mapstructure:"site_dir"`
	RunsDir         string   `yaml:"runs_dir,omitempty" mapstructure:"runs_dir"`
	Mode            string   `yaml:"mode" mapstructure:"mode"`
	RetentionDays   int      `yaml:"retention_days" mapstructure:"retention_days"`
	Now             string   `yaml:"now,omitempty" mapstructure:"now"`
	RunID           string   `yaml:"run_id,omitempty" mapstructure:"run_id"`
	RunNumber       int64    `yaml:"run_number,omitempty" mapstructure:"run_number"`
	PRNumber        int      `yaml:"pr_number,omitempty" mapstructure:"pr_number"`
	BaseURL         string   `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Title           string   `yaml:"title,omitempty" mapstructure:"title"`
	HistoricalPath  string   `yaml:"historical_path" mapstructure:"historical_path"`
	TablePath       string   `yaml:"table_path" mapstructure:"table_path"`
	TableColumns    []string `yaml:"table_columns,omitempty" mapstructure:"table_columns"`
	Prune           bool     `yaml:"prune" mapstructure:"prune"`
	ReadConcurrency int      `yaml:"read_concurrency" mapstructure:"read_concurrency"`
	MetricsFile     string   `yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
	SummaryFile     string   `yaml:"summary_file,omitempty" mapstructure:"summary_file"`
}

// ResolvedRunsDir returns the run-file directory, defaulting to
// <site_dir>/runs.
func (a *AggregateConfig) ResolvedRunsDir() string {
	if a.RunsDir != "" {
		return a.RunsDir
	}

	return filepath.Join(a.SiteDir, DefaultRunsSubdir)
}

// StoreConfig selects and configures the history store backend.
type StoreConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	S3       S3Config       `yaml:"s3,omitempty" mapstructure:"s3"`
	Database DatabaseConfig `yaml:"database,omitempty" mapstructure:"database"`
}

// S3Config contains S3-compatible bucket settings.
type S3Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// DatabaseConfig contains database connection settings for the SQL store.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// PublishConfig configures where the rendered site is published.
type PublishConfig struct {
	S3 S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// PreviewConfig configures the local preview server.
type PreviewConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// defaults registers every known key so that environment overrides are
// picked up even when the key is absent from the config files.
var defaults = map[string]any{
	"global.log_level":                       DefaultLogLevel,
	"global.file_owner":                      "",
	"aggregate.artifacts_dir":                DefaultArtifactsDir,
	"aggregate.artifact_pattern":             DefaultArtifactPattern,
	"aggregate.site_dir":                     DefaultSiteDir,
	"aggregate.runs_dir":                     "",
	"aggregate.mode":                         DefaultMode,
	"aggregate.retention_days":               DefaultRetentionDays,
	"aggregate.now":                          "",
	"aggregate.run_id":                       "",
	"aggregate.run_number":                   0,
	"aggregate.pr_number":                    0,
	"aggregate.base_url":                     "",
	"aggregate.title":                        "",
	"aggregate.historical_path":              DefaultHistoricalPath,
	"aggregate.table_path":                   DefaultTablePath,
	"aggregate.table_columns":                []string{},
	"aggregate.prune":                        true,
	"aggregate.read_concurrency":             DefaultReadConcurrency,
	"aggregate.metrics_file":                 "",
	"aggregate.summary_file":                 "",
	"store.driver":                           DefaultStoreDriver,
	"store.s3.enabled":                       false,
	"store.s3.endpoint_url":                  "",
	"store.s3.region":                        "",
	"store.s3.bucket":                        "",
	"store.s3.prefix":                        "",
	"store.s3.access_key_id":                 "",
	"store.s3.secret_access_key":             "",
	"store.s3.force_path_style":              false,
	"store.s3.storage_class":                 "",
	"store.s3.acl":                           "",
	"store.database.driver":                  "sqlite",
	"store.database.sqlite.path":             "resultoor.db",
	"store.database.postgres.host":           "",
	"store.database.postgres.port":           5432,
	"store.database.postgres.user":           "",
	"store.database.postgres.password":       "",
	"store.database.postgres.database":       "",
	"store.database.postgres.ssl_mode":       "disable",
	"publish.s3.enabled":                     false,
	"publish.s3.endpoint_url":                "",
	"publish.s3.region":                      "",
	"publish.s3.bucket":                      "",
	"publish.s3.prefix":                      "",
	"publish.s3.access_key_id":               "",
	"publish.s3.secret_access_key":           "",
	"publish.s3.force_path_style":            false,
	"publish.s3.storage_class":               "",
	"publish.s3.acl":                         "",
	"preview.listen":                         DefaultPreviewListen,
	"preview.cors_origins":                   []string{},
	"preview.rate_limit.enabled":             false,
	"preview.rate_limit.requests_per_minute": 120,
}

// ciEnv maps config keys to CI-provided variables consulted after the
// RESULTOOR_ prefixed variable.
var ciEnv = map[string]string{
	"aggregate.run_id":     "GITHUB_RUN_ID",
	"aggregate.run_number": "GITHUB_RUN_NUMBER",
}

// Load reads and merges the given configuration files in order, then
// applies environment overrides and defaults. With no paths only defaults
// and the environment are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // user-supplied config path
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, ciVar := range ciEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, ciVar); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills values that were explicitly set to empty.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Aggregate.ArtifactPattern == "" {
		c.Aggregate.ArtifactPattern = DefaultArtifactPattern
	}

	if c.Aggregate.Mode == "" {
		c.Aggregate.Mode = DefaultMode
	}

	if c.Aggregate.HistoricalPath == "" {
		c.Aggregate.HistoricalPath = DefaultHistoricalPath
	}

	if c.Aggregate.TablePath == "" {
		c.Aggregate.TablePath = DefaultTablePath
	}

	if c.Aggregate.ReadConcurrency <= 0 {
		c.Aggregate.ReadConcurrency = DefaultReadConcurrency
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}

	if c.Preview.Listen == "" {
		c.Preview.Listen = DefaultPreviewListen
	}
}

var (
	validModes        = map[string]struct{}{"historical": {}, "table": {}}
	validStoreDrivers = map[string]struct{}{"local": {}, "s3": {}, "sql": {}}
	validDBDrivers    = map[string]struct{}{"sqlite": {}, "postgres": {}}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, ok := validModes[c.Aggregate.Mode]; !ok {
		return fmt.Errorf("aggregate.mode: unknown mode %q (use \"historical\" or \"table\")",
			c.Aggregate.Mode)
	}

	if c.Aggregate.RetentionDays < RetentionUnlimited {
		return fmt.Errorf("aggregate.retention_days must be %d (keep everything) or greater",
			RetentionUnlimited)
	}

	if c.Aggregate.ArtifactsDir == "" {
		return fmt.Errorf("aggregate.artifacts_dir is required")
	}

	if c.Aggregate.SiteDir == "" {
		return fmt.Errorf("aggregate.site_dir is required")
	}

	for name, p := range map[string]string{
		"aggregate.historical_path": c.Aggregate.HistoricalPath,
		"aggregate.table_path":      c.Aggregate.TablePath,
	} {
		if filepath.IsAbs(p) || strings.Contains(p, "..") {
			return fmt.Errorf("%s must be a relative path inside the site directory", name)
		}
	}

	if c.Aggregate.HistoricalPath == c.Aggregate.TablePath {
		return fmt.Errorf("aggregate.historical_path and aggregate.table_path must differ")
	}

	if _, ok := validStoreDrivers[c.Store.Driver]; !ok {
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	switch c.Store.Driver {
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for store.driver=s3")
		}
	case "sql":
		if _, ok := validDBDrivers[c.Store.Database.Driver]; !ok {
			return fmt.Errorf("store.database.driver: unknown driver %q", c.Store.Database.Driver)
		}
	}

	if c.Publish.S3.Enabled && c.Publish.S3.Bucket == "" {
		return fmt.Errorf("publish.s3.bucket is required when publishing to S3")
	}

	return nil
}
