// Package worker runs the solver as a long-lived child process speaking
// line-delimited JSON on stdin/stdout. A master problem registers an instance
// once, then issues pricing calls with fresh dual vectors; the built graph is
// reused across calls.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"vrppricing/internal/metrics"
	"vrppricing/internal/model"
	"vrppricing/internal/pricing"
)

// Request is one line on the worker's stdin.
type Request struct {
	ID         string              `json:"id,omitempty"`
	Op         string              `json:"op"` // register, price, drop, shutdown
	Instance   *model.Instance     `json:"instance,omitempty"`
	InstanceID string              `json:"instance_id,omitempty"`
	DualValues map[string]float64  `json:"dual_values,omitempty"`
	Options    *model.SolveOptions `json:"options,omitempty"`
}

// Runner owns the instance registry for one worker process.
type Runner struct {
	in   io.Reader
	out  io.Writer
	base pricing.Config

	solvers map[string]*pricing.Solver
}

func New(in io.Reader, out io.Writer, base pricing.Config) *Runner {
	return &Runner{in: in, out: out, base: base, solvers: map[string]*pricing.Solver{}}
}

// buildConfig applies the graph-build options a request may carry; everything
// else in SolveOptions is merged per pricing call instead.
func (r *Runner) buildConfig(opt *model.SolveOptions) pricing.Config {
	cfg := r.base
	if opt != nil && opt.MaxNeighbors > 0 {
		cfg.MaxNeighbors = opt.MaxNeighbors
	}
	return cfg
}

// Run reads requests until EOF, a shutdown op, or ctx cancellation. Requests
// are handled sequentially; pricing calls inherit ctx so a signal interrupts
// a running search.
func (r *Runner) Run(ctx context.Context) error {
	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	enc := json.NewEncoder(r.out)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(model.SolveResponse{Error: "invalid json: " + err.Error()})
			continue
		}
		if req.Op == "shutdown" {
			_ = enc.Encode(model.SolveResponse{ID: req.ID})
			return nil
		}
		resp := r.handle(ctx, &req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return sc.Err()
}

func (r *Runner) handle(ctx context.Context, req *Request) model.SolveResponse {
	switch req.Op {
	case "register":
		return r.register(req)
	case "price", "":
		return r.price(ctx, req)
	case "drop":
		delete(r.solvers, req.InstanceID)
		return model.SolveResponse{ID: req.ID, InstanceID: req.InstanceID}
	default:
		return model.SolveResponse{ID: req.ID, Error: "unknown op: " + req.Op}
	}
}

func (r *Runner) register(req *Request) model.SolveResponse {
	if req.Instance == nil {
		return model.SolveResponse{ID: req.ID, Error: "register requires instance"}
	}
	sv, err := pricing.New(req.Instance, r.buildConfig(req.Options))
	if err != nil {
		metrics.PricingCalls.WithLabelValues("invalid").Inc()
		return model.SolveResponse{ID: req.ID, Error: err.Error()}
	}
	id := req.InstanceID
	if id == "" {
		id = "inst_" + uuid.NewString()
	}
	r.solvers[id] = sv
	g := sv.Graph()
	log.Printf("registered instance %s (%d nodes, %d arcs)", id, len(g.Nodes), len(g.Arcs))
	return model.SolveResponse{ID: req.ID, InstanceID: id}
}

func (r *Runner) price(ctx context.Context, req *Request) model.SolveResponse {
	var sv *pricing.Solver
	id := req.InstanceID
	switch {
	case req.Instance != nil:
		var err error
		sv, err = pricing.New(req.Instance, r.buildConfig(req.Options))
		if err != nil {
			metrics.PricingCalls.WithLabelValues("invalid").Inc()
			return model.SolveResponse{ID: req.ID, Error: err.Error()}
		}
	case id != "":
		if req.Options != nil && req.Options.MaxNeighbors > 0 {
			return model.SolveResponse{ID: req.ID, InstanceID: id, Error: "max_neighbors applies at registration, not against a registered instance"}
		}
		sv = r.solvers[id]
		if sv == nil {
			return model.SolveResponse{ID: req.ID, InstanceID: id, Error: "unknown instance: " + id}
		}
	default:
		return model.SolveResponse{ID: req.ID, Error: "price requires instance or instance_id"}
	}

	start := time.Now()
	routes, stats, err := sv.Price(ctx, req.DualValues, req.Options)
	resp := model.SolveResponse{ID: req.ID, InstanceID: id, Stats: &stats}
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
	return resp
}
