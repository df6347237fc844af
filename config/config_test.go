package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UNKNOWN_ZONE_POLICY", "")
	t.Setenv("TUNING_PATH", "")
	t.Setenv("FEED_URLS", " https://example.com/a , ,https://example.com/b")
	t.Setenv("GEOCODER_RPS", "0.5")

	cfg := Load()

	if cfg.UnknownZonePolicy != PolicyFallback {
		t.Errorf("UnknownZonePolicy: got %q, want %q", cfg.UnknownZonePolicy, PolicyFallback)
	}
	if len(cfg.FeedURLs) != 2 || cfg.FeedURLs[1] != "https://example.com/b" {
		t.Errorf("FeedURLs: got %v", cfg.FeedURLs)
	}
	if cfg.GeocoderRPS != 0.5 {
		t.Errorf("GeocoderRPS: got %v, want 0.5", cfg.GeocoderRPS)
	}
	if cfg.Tuning != DefaultTuning() {
		t.Error("expected default tuning without TUNING_PATH")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		raw  string
		want UnknownZonePolicy
	}{
		{"reject", PolicyReject},
		{" REJECT ", PolicyReject},
		{"fallback", PolicyFallback},
		{"anything", PolicyFallback},
		{"", PolicyFallback},
	}
	for _, tt := range tests {
		if got := parsePolicy(tt.raw); got != tt.want {
			t.Errorf("parsePolicy(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLoadTuningOverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "estimator:\n  weights:\n    category: 0.5\n  max_comparables: 5\nzones:\n  high_cutoff: 80\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tuning.Estimator.Weights.Category != 0.5 {
		t.Errorf("category weight: got %v, want 0.5", tuning.Estimator.Weights.Category)
	}
	if tuning.Estimator.Weights.Zone != 0.25 {
		t.Errorf("zone weight should keep default 0.25, got %v", tuning.Estimator.Weights.Zone)
	}
	if tuning.Estimator.MaxComparables != 5 {
		t.Errorf("max comparables: got %d, want 5", tuning.Estimator.MaxComparables)
	}
	if tuning.Zones.HighCutoff != 80 || tuning.Zones.MediumCutoff != 45 {
		t.Errorf("cutoffs: got %v/%v, want 80/45", tuning.Zones.HighCutoff, tuning.Zones.MediumCutoff)
	}
}

func TestLoadTuningRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "estimator:\n  below_market_ratio: 1.5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tuning, err := LoadTuning(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if tuning != DefaultTuning() {
		t.Error("invalid file should yield default tuning")
	}
}

func TestLoadTuningMissingFile(t *testing.T) {
	if _, err := LoadTuning(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
