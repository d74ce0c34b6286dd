package config

import (
	"errors"
	"strings"
	"testing"

	domainconfig "github.com/felixgeelhaar/ideaflow/domain/config"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestEnvExpander_Expand(t *testing.T) {
	t.Parallel()

	env := fakeEnv(map[string]string{
		"HOST":  "db.internal",
		"EMPTY": "",
		"PRICE": "$5",
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bracket syntax", "${HOST}", "db.internal"},
		{"dollar syntax", "$HOST", "db.internal"},
		{"embedded in text", "postgres://${HOST}:5432", "postgres://db.internal:5432"},
		{"unset is empty", "[${NOPE}]", "[]"},
		{"default for unset", "${NOPE:-localhost}", "localhost"},
		{"default for empty", "${EMPTY:-fallback}", "fallback"},
		{"default with colon", "${NOPE:-http://localhost:8080}", "http://localhost:8080"},
		{"set ignores default", "${HOST:-other}", "db.internal"},
		{"escaped dollar", "cost $$10", "cost $10"},
		{"value not re-expanded", "${PRICE}", "$5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := &envExpander{lookup: env}
			got, err := e.Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvExpander_Missing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strict   bool
		input    string
		wantErr  bool
		contains string
	}{
		{"required unset", false, "${TOKEN:?token is required}", true, "TOKEN: token is required"},
		{"strict unset", true, "${TOKEN}", true, "TOKEN"},
		{"strict simple unset", true, "$TOKEN", true, "TOKEN"},
		{"strict with default", true, "${TOKEN:-x}", false, ""},
		{"lenient unset", false, "${TOKEN}", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := &envExpander{strict: tt.strict, lookup: fakeEnv(nil)}
			_, err := e.Expand(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
				t.Errorf("error = %v, want ErrMissingEnvVar", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
		})
	}
}

func TestExpandEnv_ProcessEnvironment(t *testing.T) {
	t.Setenv("IDEAFLOW_TEST_DIR", "/var/lib/ideaflow")

	if got := ExpandEnv("${IDEAFLOW_TEST_DIR}/ideas.db"); got != "/var/lib/ideaflow/ideas.db" {
		t.Errorf("ExpandEnv() = %q", got)
	}
	if _, err := ExpandEnvStrict("${IDEAFLOW_TEST_UNSET_VAR}"); err == nil {
		t.Error("ExpandEnvStrict() succeeded for unset variable")
	}
}
