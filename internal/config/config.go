package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// TagErrorPolicy controls what happens when a feature's other_tags blob
// does not decode.
type TagErrorPolicy string

const (
	// TagErrorSkipRow drops the offending row, logs it, and keeps the layer.
	TagErrorSkipRow TagErrorPolicy = "skip"
	// TagErrorFail aborts the layer on the first malformed blob.
	TagErrorFail TagErrorPolicy = "fail"
)

// Config holds the global configuration for extract acquisition and parsing
type Config struct {
	// Directory layout
	DataDir  string `yaml:"data_dir"`  // downloaded archives and extracts
	CacheDir string `yaml:"cache_dir"` // parsed dataset snapshots

	// Download settings
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	AssumeYes       bool          `yaml:"assume_yes"` // skip interactive confirmation
	Update          bool          `yaml:"update"`     // re-download even if present

	// Parsing settings
	Workers   int            `yaml:"workers"` // parallel PBF block decoders
	TagErrors TagErrorPolicy `yaml:"tag_errors"`

	// Database settings (export only)
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSchema   string `yaml:"db_schema"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:         "./osm_data",
		CacheDir:        filepath.Join("./osm_data", "cache"),
		DownloadTimeout: 10 * time.Minute,
		Workers:         runtime.NumCPU(),
		TagErrors:       TagErrorSkipRow,
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBSchema:        "public",
		MetricsInterval: 30 * time.Second,
	}
}

// fileConfig mirrors Config for YAML overlays: pointer fields so absent
// keys leave defaults alone, durations as parseable strings.
type fileConfig struct {
	DataDir         *string `yaml:"data_dir"`
	CacheDir        *string `yaml:"cache_dir"`
	DownloadTimeout *string `yaml:"download_timeout"`
	AssumeYes       *bool   `yaml:"assume_yes"`
	Update          *bool   `yaml:"update"`
	Workers         *int    `yaml:"workers"`
	TagErrors       *string `yaml:"tag_errors"`
	DBHost          *string `yaml:"db_host"`
	DBPort          *int    `yaml:"db_port"`
	DBName          *string `yaml:"db_name"`
	DBUser          *string `yaml:"db_user"`
	DBPassword      *string `yaml:"db_password"`
	DBSchema        *string `yaml:"db_schema"`
	Verbose         *bool   `yaml:"verbose"`
	LogFile         *string `yaml:"log_file"`
	MetricsInterval *string `yaml:"metrics_interval"`
}

// LoadFile overlays values from a YAML config file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}

	setString(&c.DataDir, f.DataDir)
	setString(&c.CacheDir, f.CacheDir)
	setBool(&c.AssumeYes, f.AssumeYes)
	setBool(&c.Update, f.Update)
	setInt(&c.Workers, f.Workers)
	setString(&c.DBHost, f.DBHost)
	setInt(&c.DBPort, f.DBPort)
	setString(&c.DBName, f.DBName)
	setString(&c.DBUser, f.DBUser)
	setString(&c.DBPassword, f.DBPassword)
	setString(&c.DBSchema, f.DBSchema)
	setBool(&c.Verbose, f.Verbose)
	setString(&c.LogFile, f.LogFile)

	if f.TagErrors != nil {
		c.TagErrors = TagErrorPolicy(*f.TagErrors)
	}
	if err := setDuration(&c.DownloadTimeout, f.DownloadTimeout); err != nil {
		return fmt.Errorf("invalid download_timeout: %w", err)
	}
	if err := setDuration(&c.MetricsInterval, f.MetricsInterval); err != nil {
		return fmt.Errorf("invalid metrics_interval: %w", err)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	switch c.TagErrors {
	case TagErrorSkipRow, TagErrorFail:
	default:
		return fmt.Errorf("unknown tag error policy %q", c.TagErrors)
	}
	return nil
}
