package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Problem is an RFC7807 problem details response body. Type carries a stable
// per-status URN so pricing clients can match on it without parsing titles.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "urn:vrppricing:problem:" + strconv.Itoa(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// queryLimit parses ?limit= on listing endpoints, clamped to [1, 1000].
func queryLimit(r *http.Request, def int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}
