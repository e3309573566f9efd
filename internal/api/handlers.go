package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vrppricing/internal/graph"
	"vrppricing/internal/metrics"
	"vrppricing/internal/model"
	"vrppricing/internal/pricing"
	"vrppricing/internal/store"
)

// InstancesHandler handles POST/GET /v1/instances
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.RegisterInstanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.Instance == nil {
			writeProblem(w, http.StatusBadRequest, "Invalid instance", "instance is required", r.URL.Path)
			return
		}
		sv, err := pricing.New(req.Instance, s.Cfg.Solver.Pricing())
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
			return
		}
		id := "inst_" + uuid.NewString()
		if err := s.Store.SaveInstance(r.Context(), id, req.Instance); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save instance failed", err.Error(), r.URL.Path)
			return
		}
		s.cacheSolver(id, sv)
		writeJSON(w, http.StatusCreated, model.RegisterInstanceResponse{
			InstanceID: id,
			Customers:  len(req.Instance.Customers),
			Warehouses: len(req.Instance.Warehouses),
		})
	case http.MethodGet:
		ids, err := s.Store.ListInstances(r.Context(), queryLimit(r, 100))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": ids})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PriceHandler handles POST /v1/price
func (s *Server) PriceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid pricing request", err.Error(), r.URL.Path)
		return
	}

	var sv *pricing.Solver
	var err error
	if req.Instance != nil {
		cfg := s.Cfg.Solver.Pricing()
		if req.Options != nil && req.Options.MaxNeighbors > 0 {
			cfg.MaxNeighbors = req.Options.MaxNeighbors
		}
		sv, err = pricing.New(req.Instance, cfg)
	} else {
		sv, err = s.solver(r.Context(), req.InstanceID)
	}
	if err != nil {
		status := http.StatusInternalServerError
		title := "Solver setup failed"
		if errors.Is(err, graph.ErrInvalidInstance) {
			status, title = http.StatusBadRequest, "Invalid instance"
			metrics.PricingCalls.WithLabelValues("invalid").Inc()
		} else if errors.Is(err, store.ErrNotFound) {
			status, title = http.StatusNotFound, "Unknown instance"
		}
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}

	if req.Async {
		job := &Job{
			ID:         "job_" + uuid.NewString(),
			InstanceID: req.InstanceID,
			Status:     "running",
			CreatedAt:  time.Now().UTC(),
		}
		s.putJob(job)
		go s.runAsync(job, sv, &req)
		writeJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID, "status": job.Status})
		return
	}

	resp := s.price(r.Context(), sv, &req)
	writeJSON(w, http.StatusOK, resp)
}

// price runs one pricing call and records the run, its columns, and metrics.
func (s *Server) price(ctx context.Context, sv *pricing.Solver, req *model.SolveRequest) *model.SolveResponse {
	start := time.Now()
	routes, stats, err := sv.Price(ctx, req.DualValues, req.Options)
	resp := &model.SolveResponse{ID: req.ID, InstanceID: req.InstanceID, Stats: &stats}

	outcome := "columns"
	switch {
	case err == nil:
		resp.Routes = routes
	case errors.Is(err, pricing.ErrNoImprovingColumn):
		resp.NoImprovingColumn = true
		outcome = "no_improving_column"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		resp.Error = err.Error()
		outcome = "canceled"
	default:
		resp.Error = err.Error()
		outcome = "invalid"
	}
	metrics.PricingCalls.WithLabelValues(outcome).Inc()
	metrics.ObserveSolve(stats.LabelsCreated, stats.LabelsDominated, len(routes), stats.Truncated, time.Since(start).Seconds())

	run := store.PricingRun{
		ID:         "run_" + uuid.NewString(),
		InstanceID: req.InstanceID,
		RequestID:  req.ID,
		Outcome:    outcome,
		Columns:    len(routes),
		Stats:      stats,
		CreatedAt:  start.UTC(),
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.RecordRun(sctx, run); err == nil && len(routes) > 0 {
		_ = s.Store.InsertColumns(sctx, run.ID, req.InstanceID, routes)
	}
	return resp
}

// runAsync prices in the background, streams progress events, and queues the
// result callback if one was requested.
func (s *Server) runAsync(job *Job, sv *pricing.Solver, req *model.SolveRequest) {
	s.Broker.Publish(job.ID, JobEvent{Type: "job.started", Data: map[string]any{"jobId": job.ID, "instanceId": job.InstanceID}})

	resp := s.price(context.Background(), sv, req)

	s.mu.Lock()
	job.Result = resp
	if resp.Error != "" {
		job.Status = "failed"
	} else {
		job.Status = "done"
	}
	status := job.Status
	s.mu.Unlock()

	s.Broker.Publish(job.ID, JobEvent{Type: "job." + status, Data: map[string]any{
		"jobId":             job.ID,
		"columns":           len(resp.Routes),
		"noImprovingColumn": resp.NoImprovingColumn,
		"truncated":         resp.Stats != nil && resp.Stats.Truncated,
	}})

	if req.CallbackURL != "" {
		payload, _ := json.Marshal(resp)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.Store.EnqueueCallback(ctx, job.ID, req.CallbackURL, req.CallbackSecret, payload); err == nil {
			metrics.CallbackDeliveries.WithLabelValues("enqueued").Inc()
		}
	}
}

// JobsHandler handles GET /v1/jobs/{id} and /v1/jobs/{id}/stream
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id := parts[0]
	if len(parts) > 1 && parts[1] == "stream" {
		s.streamJob(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	job, ok := s.getJob(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Unknown job", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HealthHandler handles /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles /readyz; readiness means the store answers.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.Store.ListInstances(ctx, 1); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// AdminRunsHandler handles GET /v1/admin/runs
func (s *Server) AdminRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	items, err := s.Store.ListRuns(r.Context(), r.URL.Query().Get("instanceId"), queryLimit(r, 100))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AdminColumnsHandler handles GET /v1/admin/columns
func (s *Server) AdminColumnsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	items, err := s.Store.ListColumns(r.Context(), r.URL.Query().Get("instanceId"), queryLimit(r, 100))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List columns failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AdminCallbacksHandler handles GET /v1/admin/callbacks
func (s *Server) AdminCallbacksHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	items, err := s.Store.ListCallbacks(r.Context(), r.URL.Query().Get("status"), queryLimit(r, 100))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List callbacks failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
