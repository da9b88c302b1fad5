// Package config loads mdtcore settings from defaults, an optional
// mdtcore.yaml, MDTCORE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mdtcore/internal/blob"
	"mdtcore/internal/persistence"
)

// EnvPrefix prefixes every environment override, e.g. MDTCORE_STORAGE_DRIVER.
const EnvPrefix = "MDTCORE"

const (
	LogFormatZap  = "zap"
	LogFormatLogr = "logr"

	ExporterPrometheus = "prometheus"
	ExporterExpvar     = "expvar"
)

// Config is the resolved configuration.
type Config struct {
	Model    ModelConfig    `mapstructure:"model"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Log      LogConfig      `mapstructure:"log"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Trace    TraceConfig    `mapstructure:"trace"`
}

type ModelConfig struct {
	Name string `mapstructure:"name"`
	// RetrofitBudget caps per-component retrofit cost; 0 disables the cap.
	RetrofitBudget float64 `mapstructure:"retrofit_budget"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type BlobConfig struct {
	Driver     string `mapstructure:"driver"`
	FSRoot     string `mapstructure:"fs_root"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	PathStyle  bool   `mapstructure:"s3_path_style"`
}

// LogConfig covers both operational logging and diagnostics printing.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format selects the service logging adapter: zap or logr.
	Format     string `mapstructure:"format"`
	MaxEntries int    `mapstructure:"max_entries"`
	WriteTags  bool   `mapstructure:"write_tags"`
}

type CatalogConfig struct {
	SeedPath string `mapstructure:"seed_path"`
}

type ProfilesConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// TraceConfig points the JSON span writer at a file. "-" is stderr and an
// empty path disables tracing.
type TraceConfig struct {
	Path string `mapstructure:"path"`
}

var defaults = map[string]any{
	"model.name":            "model",
	"model.retrofit_budget": 0.0,
	"storage.driver":        "sqlite",
	"storage.sqlite_path":   "mdtcore.db",
	"storage.postgres_dsn":  "",
	"blob.driver":           "fs",
	"blob.fs_root":          "profiles",
	"blob.s3_bucket":        "",
	"blob.s3_region":        "us-east-1",
	"blob.s3_endpoint":      "",
	"blob.s3_prefix":        "",
	"blob.s3_path_style":    false,
	"log.level":             "info",
	"log.format":            "zap",
	"log.max_entries":       50,
	"log.write_tags":        true,
	"catalog.seed_path":     "",
	"profiles.concurrency":  8,
	"metrics.enabled":       false,
	"metrics.exporter":      "prometheus",
	"trace.path":            "",
}

// New returns a viper instance carrying the defaults and environment
// bindings. Callers may bind flags on it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. An explicit file must exist; without one
// mdtcore.yaml is looked up in the working directory and is optional. Flags
// are bound by their config key, e.g. a "log.level" flag.
func Load(v *viper.Viper, file string, flags *pflag.FlagSet) (Config, error) {
	if v == nil {
		v = New()
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("mdtcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var missing viper.ConfigFileNotFoundError
			if !errors.As(err, &missing) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can use.
func (c Config) Validate() error {
	switch persistence.Driver(strings.ToLower(c.Storage.Driver)) {
	case persistence.Memory, persistence.SQLite, persistence.Postgres:
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch blob.Driver(strings.ToLower(c.Blob.Driver)) {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
	default:
		return fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver)
	}
	if c.Log.MaxEntries < 0 {
		return fmt.Errorf("log.max_entries must be >= 0, got %d", c.Log.MaxEntries)
	}
	switch c.Log.Format {
	case LogFormatZap, LogFormatLogr:
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	switch c.Metrics.Exporter {
	case ExporterPrometheus, ExporterExpvar:
	default:
		return fmt.Errorf("metrics.exporter: unknown exporter %q", c.Metrics.Exporter)
	}
	if c.Model.RetrofitBudget < 0 {
		return fmt.Errorf("model.retrofit_budget must be >= 0, got %g", c.Model.RetrofitBudget)
	}
	if c.Profiles.Concurrency < 1 {
		return fmt.Errorf("profiles.concurrency must be >= 1, got %d", c.Profiles.Concurrency)
	}
	return nil
}

// PersistenceConfig returns the snapshot store settings.
func (c Config) PersistenceConfig() persistence.Config {
	return persistence.Config{
		Driver:      persistence.Driver(strings.ToLower(c.Storage.Driver)),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig returns the blob store settings.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(strings.ToLower(c.Blob.Driver)),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    c.Blob.S3Bucket,
			Region:    c.Blob.S3Region,
			Endpoint:  c.Blob.S3Endpoint,
			Prefix:    c.Blob.S3Prefix,
			PathStyle: c.Blob.PathStyle,
		},
	}
}
