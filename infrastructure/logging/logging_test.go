package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if config.Level != "info" {
		t.Errorf("Level = %s, want info", config.Level)
	}
	if config.Format != "console" {
		t.Errorf("Format = %s, want console", config.Format)
	}
	if ProductionConfig().Format != "json" {
		t.Errorf("ProductionConfig().Format = %s, want json", ProductionConfig().Format)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"WARNING", bolt.WARN},
		{"error", bolt.ERROR},
		{"bogus", bolt.INFO},
		{"", bolt.INFO},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"", "debug", "Info", "error"} {
		if !ValidLevel(ok) {
			t.Errorf("ValidLevel(%q) = false", ok)
		}
	}
	if ValidLevel("loud") {
		t.Error("ValidLevel(loud) = true")
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := New(Config{Level: "debug", Format: "json", Output: buf})

	NewEvent(logger.Info()).Add(
		IdeaID("idea-1"),
		FromState("draft"),
		ToState("proposed"),
		Version(2),
		ExpectedVersion(1),
		Actor("ann"),
		Reason("ready"),
		AuditID(7),
		Backend("memory"),
		Component("lifecycle"),
		Operation("transition"),
		Status("proposed"),
		Duration(1500*time.Millisecond),
		Str("custom", "value"),
		ErrorField(nil),
	).Msg("idea transitioned")

	out := buf.String()
	for _, want := range []string{
		`"idea_id":"idea-1"`,
		`"from_state":"draft"`,
		`"to_state":"proposed"`,
		`"version":2`,
		`"expected_version":1`,
		`"actor":"ann"`,
		`"audit_id":7`,
		`"backend":"memory"`,
		`"duration_ms":1500`,
		`"custom":"value"`,
		"idea transitioned",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := New(Config{Level: "debug", Format: "json", Output: buf})
	NewEvent(logger.Error()).Add(ErrorField(errors.New("sink down"))).Msg("audit failed")

	if !strings.Contains(buf.String(), "sink down") {
		t.Errorf("log output missing error: %s", buf.String())
	}
}
