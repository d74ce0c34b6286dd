package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	var r ResilienceConfig
	if err := json.Unmarshal([]byte(`{"open_timeout":"30s","timeout":null}`), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if r.OpenTimeout.Duration() != 30*time.Second {
		t.Errorf("OpenTimeout = %v, want 30s", r.OpenTimeout.Duration())
	}

	out, err := json.Marshal(Duration(1500 * time.Millisecond))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `"1.5s"` {
		t.Errorf("Marshal() = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"timeout":5}`), &r); err == nil {
		t.Error("Unmarshal(number) succeeded, want error")
	}
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var s SQLiteConfig
	if err := yaml.Unmarshal([]byte("busy_timeout: 250ms\n"), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.BusyTimeout.Duration() != 250*time.Millisecond {
		t.Errorf("BusyTimeout = %v", s.BusyTimeout.Duration())
	}

	if err := yaml.Unmarshal([]byte("busy_timeout: soon\n"), &s); err == nil {
		t.Error("Unmarshal(soon) succeeded, want error")
	}
}
