package configutil

import (
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/resep/pkg/errorsx"
)

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"api_key", "model"}, Optional: []string{"base_url"}}

	if err := ValidateSettings(map[string]any{"API-KEY": "k", "model": "gpt", "base_url": ""}, schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateAt("vendors.llm.settings", map[string]any{"api_key": " ", "region": "eu"}, schema)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "vendors.llm.settings: missing: api_key, model; unknown: region" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config reason")
	}
	var serr *SettingsError
	if !errors.As(err, &serr) || len(serr.Missing) != 2 {
		t.Fatalf("expected SettingsError, got %#v", err)
	}

	loose := Schema{Required: []string{"model"}, AllowUnknown: true}
	if err := ValidateSettings(map[string]any{"model": "m", "anything": 1}, loose); err != nil {
		t.Fatalf("unknown keys should be allowed: %v", err)
	}
}

func TestDecodeSettings(t *testing.T) {
	var out struct {
		APIKey     string        `mapstructure:"api_key"`
		Threshold  int           `mapstructure:"circuit_threshold"`
		Cooldown   time.Duration `mapstructure:"cooldown"`
		UseBreaker *bool         `mapstructure:"use_circuit_breaker"`
		Tools      []string      `mapstructure:"tools"`
	}
	err := DecodeSettings(map[string]any{
		"Api-Key":           "k",
		"circuit_threshold": "3",
		"cooldown":          "30s",
		"tools":             "calculator,get_current_time",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "k" || out.Threshold != 3 || out.Cooldown != 30*time.Second || len(out.Tools) != 2 {
		t.Fatalf("unexpected decode %+v", out)
	}
	if !Or(out.UseBreaker, true) {
		t.Fatalf("expected fallback true")
	}
	if err := DecodeSettings(nil, &out); err != nil {
		t.Fatalf("empty input should be a no-op: %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("RESEP_TEST_KEY", "secret")
	in := map[string]any{
		"api_key": "${RESEP_TEST_KEY}",
		"nested":  map[any]any{"k": "$RESEP_TEST_KEY", 1: "dropped"},
		"list":    []any{"${RESEP_TEST_KEY}", 2},
	}
	out := ExpandSettings(in)
	if out["api_key"] != "secret" {
		t.Fatalf("unexpected api_key %v", out["api_key"])
	}
	nested := out["nested"].(map[string]any)
	if nested["k"] != "secret" || len(nested) != 1 {
		t.Fatalf("unexpected nested %v", nested)
	}
	if out["list"].([]any)[0] != "secret" {
		t.Fatalf("unexpected list %v", out["list"])
	}
	if ExpandSettings(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString(" ", "vendors.llm.settings.model"); err == nil || err.Error() != "vendors.llm.settings.model is required" {
		t.Fatalf("unexpected %v", err)
	}
}
