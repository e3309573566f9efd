package api

import (
	"errors"
	"net/url"

	"vrppricing/internal/model"
)

// validateSolveRequest checks request shape only; instance semantics are
// validated when the graph is built.
func validateSolveRequest(req *model.SolveRequest) error {
	if req.Instance == nil && req.InstanceID == "" {
		return errors.New("one of instance or instance_id is required")
	}
	if req.Instance != nil && req.InstanceID != "" {
		return errors.New("instance and instance_id are mutually exclusive")
	}
	if req.CallbackURL != "" {
		if !req.Async {
			return errors.New("callback_url requires async")
		}
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New("callback_url must be an http(s) URL")
		}
	}
	if opt := req.Options; opt != nil {
		if opt.LabelBudget < 0 || opt.TimeBudgetMs < 0 || opt.MaxColumns < 0 {
			return errors.New("options must be non-negative")
		}
		if opt.Parallelism < 0 || opt.MaxNeighbors < 0 {
			return errors.New("options must be non-negative")
		}
		if opt.MaxNeighbors > 0 && req.InstanceID != "" {
			return errors.New("max_neighbors applies when the graph is built; it cannot change a registered instance")
		}
	}
	return nil
}
