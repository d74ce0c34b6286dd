package api

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	infraconfig "github.com/felixgeelhaar/ideaflow/infrastructure/config"
)

func TestConfigFacade(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfigLoader(ConfigWithValidation(true)).LoadString(`
name: facade
version: "1"
storage:
  backend: memory
`, infraconfig.FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	rt, err := Build(context.Background(), cfg, infraconfig.WithLogOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if _, err := rt.Service.CreatePublished(context.Background(), Draft{Title: "via facade"}); err != nil {
		t.Errorf("CreatePublished() error = %v", err)
	}
}

func TestConfigFacade_Invalid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Name = ""
	if _, err := Build(context.Background(), cfg); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("Build() error = %v, want ErrValidationFailed", err)
	}
}

func TestAllowedTransitions(t *testing.T) {
	t.Parallel()

	if got := AllowedTransitions(StatusExperiment); !slices.Equal(got, []Status{StatusOutcome}) {
		t.Errorf("AllowedTransitions(experiment) = %v", got)
	}
	if got := AllowedTransitions(StatusReflection); len(got) != 0 {
		t.Errorf("AllowedTransitions(reflection) = %v, want none", got)
	}
	if _, ok := ParseStatus("nope"); ok {
		t.Error("ParseStatus(nope) should fail")
	}
}
