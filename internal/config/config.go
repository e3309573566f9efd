// Package config loads service configuration from an optional YAML file with
// environment variable overrides. Env wins over file, file wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"vrppricing/internal/pricing"
)

// SolverConfig holds default labeling-search settings; per-request options
// may still override them call by call.
type SolverConfig struct {
	LabelBudget  int   `yaml:"label_budget"`
	TimeBudgetMs int   `yaml:"time_budget_ms"`
	MaxColumns   int   `yaml:"max_columns"`
	Elementary   *bool `yaml:"elementary"`
	Parallelism  int   `yaml:"parallelism"`
	MaxNeighbors int   `yaml:"max_neighbors"`
}

// Config is the full service configuration.
type Config struct {
	Port                string       `yaml:"port"`
	DatabaseURL         string       `yaml:"database_url"`
	RedisURL            string       `yaml:"redis_url"`
	AdminToken          string       `yaml:"admin_token"`
	RateRPS             float64      `yaml:"rate_rps"`
	RateBurst           int          `yaml:"rate_burst"`
	CallbackMaxAttempts int          `yaml:"callback_max_attempts"`
	Solver              SolverConfig `yaml:"solver"`
}

// Load reads path (if non-empty and present) and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		Port:                "8080",
		RateRPS:             20,
		RateBurst:           40,
		CallbackMaxAttempts: 10,
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	envStr(&cfg.Port, "PORT")
	envStr(&cfg.DatabaseURL, "DATABASE_URL")
	envStr(&cfg.RedisURL, "REDIS_URL")
	envStr(&cfg.AdminToken, "ADMIN_TOKEN")
	envFloat(&cfg.RateRPS, "RATE_RPS")
	envInt(&cfg.RateBurst, "RATE_BURST")
	envInt(&cfg.CallbackMaxAttempts, "CALLBACK_MAX_ATTEMPTS")
	envInt(&cfg.Solver.LabelBudget, "SOLVER_LABEL_BUDGET")
	envInt(&cfg.Solver.TimeBudgetMs, "SOLVER_TIME_BUDGET_MS")
	envInt(&cfg.Solver.MaxColumns, "SOLVER_MAX_COLUMNS")
	envInt(&cfg.Solver.Parallelism, "SOLVER_PARALLELISM")
	envInt(&cfg.Solver.MaxNeighbors, "SOLVER_MAX_NEIGHBORS")
	return cfg, nil
}

// Pricing converts the solver section into a pricing.Config.
func (s SolverConfig) Pricing() pricing.Config {
	cfg := pricing.DefaultConfig()
	if s.LabelBudget > 0 {
		cfg.LabelBudget = s.LabelBudget
	}
	if s.TimeBudgetMs > 0 {
		cfg.TimeBudget = time.Duration(s.TimeBudgetMs) * time.Millisecond
	}
	if s.MaxColumns > 0 {
		cfg.MaxColumns = s.MaxColumns
	}
	if s.Elementary != nil {
		cfg.Elementary = *s.Elementary
	}
	if s.Parallelism > 0 {
		cfg.Parallelism = s.Parallelism
	}
	if s.MaxNeighbors > 0 {
		cfg.MaxNeighbors = s.MaxNeighbors
	}
	return cfg
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
