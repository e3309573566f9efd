package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.RateRPS != 20 || cfg.RateBurst != 40 || cfg.CallbackMaxAttempts != 10 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
port: "9090"
rate_rps: 5
admin_token: from-file
solver:
  label_budget: 5000
  time_budget_ms: 250
  parallelism: 2
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("SOLVER_MAX_COLUMNS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env must win over file: %q", cfg.Port)
	}
	if cfg.RateRPS != 5 || cfg.AdminToken != "from-file" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Solver.LabelBudget != 5000 || cfg.Solver.MaxColumns != 3 {
		t.Fatalf("solver section: %+v", cfg.Solver)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("bad yaml accepted")
	}
}

func TestSolverConfigPricing(t *testing.T) {
	s := SolverConfig{LabelBudget: 1000, TimeBudgetMs: 500, Parallelism: 3}
	cfg := s.Pricing()
	if cfg.LabelBudget != 1000 || cfg.TimeBudget != 500*time.Millisecond || cfg.Parallelism != 3 {
		t.Fatalf("conversion: %+v", cfg)
	}
	// Unset fields keep solver defaults.
	if cfg.MaxColumns != 10 || !cfg.Elementary || cfg.Epsilon <= 0 {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}
