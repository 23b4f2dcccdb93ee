package config

import (
	"os"
	"path/filepath"
	"testing"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"5m", 300, false},
		{"300s", 300, false},
		{"1s", 1, false},
		{"90s", 90, false},
		{"2m", 120, false},
		{"300", 0, true},
		{"5h", 0, true},
		{"m", 0, true},
		{"1.5m", 0, true},
		{"0s", 0, false},
		{"0m", 0, false},
		{"-1s", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseTimeout(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeout(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeout(%q) = %d, want %d", tt.in, got, tt.want)
		}
		if err != nil && benchErrors.GetCode(err) != benchErrors.CodeInvalidTimeout {
			t.Errorf("ParseTimeout(%q) code = %q, want %q", tt.in, benchErrors.GetCode(err), benchErrors.CodeInvalidTimeout)
		}
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Benchmark.QueriesDir = t.TempDir()
	cfg.Resolve()
	return cfg
}

func TestResolveDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Resolve()

	if len(cfg.Benchmark.Engines) != 1 || cfg.Benchmark.Engines[0] != "pg" {
		t.Errorf("expected default engine pg, got %v", cfg.Benchmark.Engines)
	}
	if len(cfg.Benchmark.Thermals) != 1 || cfg.Benchmark.Thermals[0] != "cold" {
		t.Errorf("expected default thermal cold, got %v", cfg.Benchmark.Thermals)
	}
	if cfg.Benchmark.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %q", cfg.Benchmark.Timeout)
	}
	if cfg.Storage.Type != "none" {
		t.Errorf("expected storage disabled by default, got %q", cfg.Storage.Type)
	}
}

func TestResolveLocalStoragePath(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/bench", Storage: StorageConfig{Type: "local"}}
	cfg.Resolve()
	if cfg.Storage.Path != filepath.Join("/tmp/bench", "artifacts") {
		t.Errorf("unexpected storage path %q", cfg.Storage.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad timeout", func(c *Config) { c.Benchmark.Timeout = "300" }, benchErrors.CodeInvalidTimeout},
		{"bad engine", func(c *Config) { c.Benchmark.Engines = []string{"oracle"} }, benchErrors.CodeInvalidValue},
		{"duplicate engine", func(c *Config) { c.Benchmark.Engines = []string{"pg", "pg"} }, benchErrors.CodeInvalidValue},
		{"bad thermal", func(c *Config) { c.Benchmark.Thermals = []string{"warm"} }, benchErrors.CodeInvalidValue},
		{"bad variant", func(c *Config) { c.Benchmark.SchemaVariant = "partial" }, benchErrors.CodeInvalidValue},
		{"missing queries dir", func(c *Config) { c.Benchmark.QueriesDir = "/does/not/exist" }, benchErrors.CodeMissingDirectory},
		{"bad scale factor", func(c *Config) { c.Benchmark.ScaleFactor = "big" }, benchErrors.CodeInvalidValue},
		{"bad query id", func(c *Config) { c.Benchmark.Queries = []string{"q1"} }, benchErrors.CodeInvalidValue},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, benchErrors.CodeInvalidValue},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, benchErrors.CodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.code == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error with code %s", tt.code)
			}
			if got := benchErrors.GetCode(err); got != tt.code {
				t.Errorf("code = %q, want %q (%v)", got, tt.code, err)
			}
			if !benchErrors.IsFatal(err) {
				t.Errorf("validation errors must be fatal: %v", err)
			}
		})
	}
}

func TestDumpName(t *testing.T) {
	tests := map[string]string{
		"1":   "tpch1",
		"0.1": "tpch01",
		"10":  "tpch10",
	}
	for sf, want := range tests {
		b := BenchmarkConfig{ScaleFactor: sf}
		if got := b.DumpName(); got != want {
			t.Errorf("DumpName(%q) = %q, want %q", sf, got, want)
		}
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	content := `
results_dir: out
connection:
  host: db.internal
  port: 6543
benchmark:
  scale_factor: "0.1"
  engines: [pg, duckdb]
  thermals: [cold, hot]
  timeout: 90s
  schema_variant: pk-only
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Connection.Host != "db.internal" || cfg.Connection.Port != 6543 {
		t.Errorf("unexpected connection %+v", cfg.Connection)
	}
	if cfg.Connection.Database != "postgres" {
		t.Errorf("defaults should survive file load, got database %q", cfg.Connection.Database)
	}
	if len(cfg.Benchmark.Engines) != 2 || cfg.Benchmark.Engines[1] != "duckdb" {
		t.Errorf("unexpected engines %v", cfg.Benchmark.Engines)
	}
	if cfg.Benchmark.TimeoutSeconds() != 90 {
		t.Errorf("expected 90s timeout, got %d", cfg.Benchmark.TimeoutSeconds())
	}
	if cfg.Benchmark.SchemaVariant != "pk-only" {
		t.Errorf("unexpected variant %q", cfg.Benchmark.SchemaVariant)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.json")
	if err := os.WriteFile(path, []byte(`{"benchmark": {"timeout": "2m"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Benchmark.TimeoutSeconds() != 120 {
		t.Errorf("expected 120s, got %d", cfg.Benchmark.TimeoutSeconds())
	}
}

func TestLoadFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PGUSER", "bench")
	t.Setenv("PGPASSWORD", "secret")
	t.Setenv("TPCHBENCH_TIMEOUT", "30s")
	t.Setenv("TPCHBENCH_STORAGE_TYPE", "local")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Connection.User != "bench" || cfg.Connection.Password != "secret" {
		t.Errorf("credentials not taken from env: %+v", cfg.Connection)
	}
	if cfg.Benchmark.Timeout != "30s" {
		t.Errorf("timeout not taken from env: %q", cfg.Benchmark.Timeout)
	}
	if cfg.Storage.Type != "local" {
		t.Errorf("storage type not taken from env: %q", cfg.Storage.Type)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TPCHBENCH_DOTENV_PROBE=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TPCHBENCH_DOTENV_PROBE", "")
	os.Unsetenv("TPCHBENCH_DOTENV_PROBE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if os.Getenv("TPCHBENCH_DOTENV_PROBE") != "loaded" {
		t.Error("expected variable from .env to be set")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := &Config{
		DataDir:    filepath.Join(base, "data"),
		ResultsDir: filepath.Join(base, "results"),
		Storage:    StorageConfig{Type: "local", Path: filepath.Join(base, "artifacts")},
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.ResultsDir, cfg.Storage.Path} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
}
