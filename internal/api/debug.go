package api

import (
	"net/http"
	"time"

	"vrppricing/internal/buildinfo"
)

// DebugInfoHandler handles GET /debug/info with build and effective config.
func (s *Server) DebugInfoHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cachedSolvers := len(s.solvers)
	jobs := len(s.jobs)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":                  s.Cfg.Port,
			"rate_rps":              s.Cfg.RateRPS,
			"rate_burst":            s.Cfg.RateBurst,
			"callback_max_attempts": s.Cfg.CallbackMaxAttempts,
			"has_database_url":      s.Cfg.DatabaseURL != "",
			"has_redis_url":         s.Cfg.RedisURL != "",
			"solver":                s.Cfg.Solver,
		},
		"cached_solvers": cachedSolvers,
		"jobs":           jobs,
	})
}
