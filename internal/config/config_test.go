package config

import "testing"

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":9420" {
		t.Errorf("Listen = %q, want :9420", cfg.Listen)
	}
	if cfg.MaxScenes != 16 {
		t.Errorf("MaxScenes = %d, want 16", cfg.MaxScenes)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Errorf("Metrics.Enabled = false, want true by default")
	}
}

func TestLoadRejectsInvalidConfigFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/backend.yaml"); err == nil {
		t.Errorf("expected an error reading a nonexistent config file")
	}
}
