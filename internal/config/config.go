// Package config provides configuration for the TPC-H benchmark harness.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

// Config holds the full configuration of a benchmark invocation.
type Config struct {
	// DataDir is the base directory for the run catalog and local artifacts
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// ResultsDir is where results files are written, created on demand
	ResultsDir string `json:"results_dir" yaml:"results_dir"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`

	// Connection parameters shared by every matrix cell
	Connection ConnectionConfig `json:"connection" yaml:"connection"`

	// Benchmark selection and tuning
	Benchmark BenchmarkConfig `json:"benchmark" yaml:"benchmark"`

	// Artifact storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// LogConfig controls diagnostic output on stderr.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is console or json; empty picks console on a terminal
	Format string `json:"format" yaml:"format"`
}

// ConnectionConfig holds Postgres connection parameters.
type ConnectionConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`

	// MotherDuckDatabase overrides Database for the motherduck engine
	MotherDuckDatabase string `json:"motherduck_database" yaml:"motherduck_database"`

	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

// BenchmarkConfig holds what to run and how.
type BenchmarkConfig struct {
	// ScaleFactor is passed to dbgen, e.g. "1" or "0.1"
	ScaleFactor string `json:"scale_factor" yaml:"scale_factor"`

	// SchemaName overrides the schema derived from the scale factor
	SchemaName string `json:"schema_name" yaml:"schema_name"`

	// QueriesDir contains q01.sql ... q22.sql
	QueriesDir string `json:"queries_dir" yaml:"queries_dir"`

	// Queries restricts the run to these numeric ids; empty means all
	Queries []string `json:"queries" yaml:"queries"`

	// Timeout is the per-query statement timeout with an m or s suffix
	Timeout string `json:"timeout" yaml:"timeout"`

	// Engines is a non-empty subset of pg, duckdb, motherduck
	Engines []string `json:"engines" yaml:"engines"`

	// Thermals is a non-empty subset of cold, hot
	Thermals []string `json:"thermals" yaml:"thermals"`

	SkipGenerate bool `json:"skip_generate" yaml:"skip_generate"`
	SkipLoad     bool `json:"skip_load" yaml:"skip_load"`
	SkipExecute  bool `json:"skip_execute" yaml:"skip_execute"`

	// SchemaVariant is full, pk-only or no-indexes
	SchemaVariant string `json:"schema_variant" yaml:"schema_variant"`

	// SchemaDir overrides the embedded DDL files
	SchemaDir string `json:"schema_dir" yaml:"schema_dir"`

	// DumpDir is where generated data lives; defaults to the schema name
	DumpDir string `json:"dump_dir" yaml:"dump_dir"`

	// DuckDBBinary is the CLI used for data generation
	DuckDBBinary string `json:"duckdb_binary" yaml:"duckdb_binary"`

	// WorkMem sets work_mem for the benchmark session when non-empty
	WorkMem string `json:"work_mem" yaml:"work_mem"`

	// DisableNestLoop turns enable_nestloop off for the benchmark session
	DisableNestLoop bool `json:"disable_nested_loop_join" yaml:"disable_nested_loop_join"`

	// Chart is the comparison chart file name; derived when empty
	Chart string `json:"chart" yaml:"chart"`

	// NoChart disables the PNG chart
	NoChart bool `json:"no_chart" yaml:"no_chart"`
}

// StorageConfig holds artifact storage configuration.
type StorageConfig struct {
	// Type is the storage type: none, local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`

	// Compress snappy-encodes artifacts before upload
	Compress bool `json:"compress" yaml:"compress"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultTimeout is the per-query timeout when none is configured.
const DefaultTimeout = "5m"

// DefaultConfig returns the default configuration for a local Postgres.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./.tpchbench",
		ResultsDir: "results",
		Log: LogConfig{
			Level: "info",
		},
		Connection: ConnectionConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "postgres",
			User:     "postgres",
		},
		Benchmark: BenchmarkConfig{
			ScaleFactor:   "1",
			QueriesDir:    "../../third_party/duckdb/extension/tpch/dbgen/queries/",
			Timeout:       DefaultTimeout,
			SchemaVariant: "full",
			DuckDBBinary:  "duckdb",
		},
		Storage: StorageConfig{
			Type:   "none",
			Prefix: "tpch",
		},
	}
}

// Resolve fills in defaults that depend on other fields.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./.tpchbench"
	}
	if c.ResultsDir == "" {
		c.ResultsDir = "results"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
	if c.Storage.Type == "local" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "artifacts")
	}
	if c.Benchmark.Timeout == "" {
		c.Benchmark.Timeout = DefaultTimeout
	}
	if c.Benchmark.SchemaVariant == "" {
		c.Benchmark.SchemaVariant = "full"
	}
	if c.Benchmark.DuckDBBinary == "" {
		c.Benchmark.DuckDBBinary = "duckdb"
	}

	// Nothing selected means a cold PostgreSQL run.
	if len(c.Benchmark.Thermals) == 0 {
		c.Benchmark.Thermals = []string{"cold"}
	}
	if len(c.Benchmark.Engines) == 0 {
		c.Benchmark.Engines = []string{"pg"}
	}
}

// CatalogPath returns the path to the run catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// DumpName returns the dataset name derived from the scale factor, e.g. tpch01 for 0.1.
func (b *BenchmarkConfig) DumpName() string {
	return strings.ReplaceAll("tpch"+b.ScaleFactor, ".", "")
}

// TimeoutSeconds parses Timeout. Validate guarantees it succeeds.
func (b *BenchmarkConfig) TimeoutSeconds() int {
	secs, err := ParseTimeout(b.Timeout)
	if err != nil {
		return 0
	}
	return secs
}

// ParseTimeout parses a timeout with a mandatory minute or second suffix,
// e.g. "5m" or "300s", and returns seconds. Zero disables the timeout.
func ParseTimeout(s string) (int, error) {
	var mult int
	switch {
	case strings.HasSuffix(s, "m"):
		mult = 60
	case strings.HasSuffix(s, "s"):
		mult = 1
	default:
		return 0, benchErrors.NewConfigError(benchErrors.CodeInvalidTimeout,
			fmt.Sprintf("timeout must end with 's' (seconds) or 'm' (minutes): %s", s))
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, benchErrors.NewConfigError(benchErrors.CodeInvalidTimeout,
			fmt.Sprintf("timeout must be a non-negative integer followed by 's' or 'm': %s", s))
	}
	return n * mult, nil
}

// Validate validates the configuration. Every error it returns is a
// configuration error that must stop the program before any benchmarking.
func (c *Config) Validate() error {
	if _, err := ParseTimeout(c.Benchmark.Timeout); err != nil {
		return err
	}

	if sf, err := strconv.ParseFloat(c.Benchmark.ScaleFactor, 64); err != nil || sf <= 0 {
		return invalid("scale_factor must be a positive number, got %q", c.Benchmark.ScaleFactor)
	}

	if len(c.Benchmark.Engines) == 0 {
		return invalid("at least one engine is required")
	}
	seen := make(map[string]bool)
	for _, e := range c.Benchmark.Engines {
		switch e {
		case "pg", "duckdb", "motherduck":
		default:
			return invalid("invalid engine: %s (must be pg, duckdb or motherduck)", e)
		}
		if seen[e] {
			return invalid("engine %s listed twice", e)
		}
		seen[e] = true
	}

	if len(c.Benchmark.Thermals) == 0 {
		return invalid("at least one of cold or hot is required")
	}
	for _, th := range c.Benchmark.Thermals {
		if th != "cold" && th != "hot" {
			return invalid("invalid thermal state: %s (must be cold or hot)", th)
		}
		if seen["thermal:"+th] {
			return invalid("thermal state %s listed twice", th)
		}
		seen["thermal:"+th] = true
	}

	switch c.Benchmark.SchemaVariant {
	case "full", "pk-only", "no-indexes":
	default:
		return invalid("invalid schema variant: %s (must be full, pk-only or no-indexes)", c.Benchmark.SchemaVariant)
	}

	if c.Benchmark.QueriesDir == "" {
		return invalid("queries_dir is required")
	}
	if info, err := os.Stat(c.Benchmark.QueriesDir); err != nil || !info.IsDir() {
		return benchErrors.NewConfigError(benchErrors.CodeMissingDirectory,
			fmt.Sprintf("queries directory %s not found", c.Benchmark.QueriesDir))
	}

	for _, q := range c.Benchmark.Queries {
		if n, err := strconv.Atoi(strings.TrimSpace(q)); err != nil || n <= 0 {
			return invalid("query ids must be positive integers, got %q", q)
		}
	}

	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return invalid("invalid port: %d", c.Connection.Port)
	}

	return c.ValidateOutput()
}

// ValidateOutput checks only what reporting commands need: storage and
// logging. Benchmark settings are not looked at.
func (c *Config) ValidateOutput() error {
	switch c.Storage.Type {
	case "none", "local", "s3":
	default:
		return invalid("invalid storage type: %s (must be none, local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return invalid("s3.bucket is required when storage type is s3")
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		return invalid("invalid log format: %s (must be console or json)", c.Log.Format)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return benchErrors.NewConfigError(benchErrors.CodeInvalidValue, fmt.Sprintf(format, args...))
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file when it exists. Variables
// already present in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// LoadFromEnv loads configuration from environment variables.
// Harness variables use the TPCHBENCH_ prefix; the standard libpq
// PGUSER/PGPASSWORD/PGHOST/PGPORT/PGDATABASE variables are honoured too.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PGHOST"); v != "" {
		cfg.Connection.Host = v
	}
	if v := os.Getenv("PGPORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Connection.Port)
	}
	if v := os.Getenv("PGDATABASE"); v != "" {
		cfg.Connection.Database = v
	}
	if v := os.Getenv("PGUSER"); v != "" {
		cfg.Connection.User = v
	}
	if v := os.Getenv("PGPASSWORD"); v != "" {
		cfg.Connection.Password = v
	}

	if v := os.Getenv("TPCHBENCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TPCHBENCH_RESULTS_DIR"); v != "" {
		cfg.ResultsDir = v
	}
	if v := os.Getenv("TPCHBENCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TPCHBENCH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	if v := os.Getenv("TPCHBENCH_QUERIES_DIR"); v != "" {
		cfg.Benchmark.QueriesDir = v
	}
	if v := os.Getenv("TPCHBENCH_SCALE_FACTOR"); v != "" {
		cfg.Benchmark.ScaleFactor = v
	}
	if v := os.Getenv("TPCHBENCH_TIMEOUT"); v != "" {
		cfg.Benchmark.Timeout = v
	}
	if v := os.Getenv("TPCHBENCH_DUCKDB_BINARY"); v != "" {
		cfg.Benchmark.DuckDBBinary = v
	}
	if v := os.Getenv("TPCHBENCH_MOTHERDUCK_DATABASE"); v != "" {
		cfg.Connection.MotherDuckDatabase = v
	}

	// Storage configuration
	if v := os.Getenv("TPCHBENCH_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("TPCHBENCH_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TPCHBENCH_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("TPCHBENCH_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("TPCHBENCH_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.ResultsDir,
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
