package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAdmin gates admin endpoints behind the static bearer token. With no
// token configured the endpoints are open, which suits single-tenant local use.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.Cfg.AdminToken == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.Cfg.AdminToken)) != 1 {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin token required", r.URL.Path)
		return false
	}
	return true
}
