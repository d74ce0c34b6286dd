package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/ideaflow/domain/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	t.Setenv("IDEAFLOW_TEST_PG_PASSWORD", "s3cret")

	path := writeFile(t, "ideaflow.yaml", `
name: backlog
version: "1.0"
storage:
  backend: postgres
  postgres:
    host: ${IDEAFLOW_TEST_PG_HOST:-localhost}
    port: 5433
    database: ideas
    password: ${IDEAFLOW_TEST_PG_PASSWORD}
audit:
  backend: postgres
  resilience:
    enabled: true
    open_timeout: 45s
logging:
  level: debug
  format: json
`)

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "backlog" || cfg.Storage.Backend != domainconfig.BackendPostgres {
		t.Errorf("cfg = %+v", cfg)
	}
	pg := cfg.Storage.Postgres
	if pg.Host != "localhost" || pg.Port != 5433 || pg.Password != "s3cret" {
		t.Errorf("postgres = %+v", pg)
	}
	if !cfg.Audit.Resilience.Enabled || cfg.Audit.Resilience.OpenTimeout.Duration() != 45*time.Second {
		t.Errorf("resilience = %+v", cfg.Audit.Resilience)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Telemetry.Tracing.Exporter != "noop" {
		t.Errorf("telemetry default lost: %+v", cfg.Telemetry)
	}
}

func TestLoader_LoadString_JSON(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().LoadString(`{
  "name": "backlog",
  "version": "1.0",
  "storage": {"backend": "badger", "badger": {"in_memory": true}},
  "audit": {"backend": "jsonl", "path": "audit.jsonl"}
}`, FormatJSON)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if !cfg.Storage.Badger.InMemory || cfg.Audit.Path != "audit.jsonl" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().LoadString("name: minimal\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Storage.Backend != domainconfig.BackendMemory || cfg.Audit.Backend != domainconfig.AuditMemory {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		loader  *Loader
		content string
		format  Format
		wantErr error
	}{
		{"invalid yaml", NewLoader(), "name: [unterminated", FormatYAML, domainconfig.ErrInvalidFormat},
		{"invalid json", NewLoader(), "{", FormatJSON, domainconfig.ErrInvalidFormat},
		{"unsupported format", NewLoader(), "name: x", Format("toml"), domainconfig.ErrUnsupportedFormat},
		{"validation", NewLoader(), "storage:\n  backend: cassandra\n", FormatYAML, domainconfig.ErrValidationFailed},
		{"strict env", NewLoader(WithStrictEnv(true)), "name: ${IDEAFLOW_TEST_NEVER_SET}\n", FormatYAML, domainconfig.ErrMissingEnvVar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.loader.LoadString(tt.content, tt.format)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadString() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ValidationErrorsReachable(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().LoadString("storage:\n  backend: cassandra\n", FormatYAML)
	var errs domainconfig.ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	if errs[0].Path != "storage.backend" {
		t.Errorf("Path = %s", errs[0].Path)
	}
}

func TestLoader_OptionsDisableProcessing(t *testing.T) {
	t.Parallel()

	loader := NewLoader(WithEnvExpansion(false), WithValidation(false))
	cfg, err := loader.LoadString("name: $LITERAL\nstorage:\n  backend: cassandra\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Name != "$LITERAL" || cfg.Storage.Backend != "cassandra" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, domainconfig.ErrConfigNotFound) {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := NewLoader().LoadFile(writeFile(t, "config.toml", "")); !errors.Is(err, domainconfig.ErrUnsupportedFormat) {
		t.Errorf("toml error = %v", err)
	}
	dir := filepath.Join(t.TempDir(), "dir.yaml")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().LoadFile(dir); !errors.Is(err, domainconfig.ErrInvalidFormat) {
		t.Errorf("directory error = %v", err)
	}
}
