// Package pricing solves the VRP pricing subproblem: an elementary shortest
// path search with resource constraints (capacity, time windows, stop count)
// over reduced arc costs, returning delivery routes with negative reduced
// cost for the master problem's column generation loop.
package pricing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"vrppricing/internal/graph"
	"vrppricing/internal/model"
)

// ErrNoImprovingColumn is the normal terminal outcome of a pricing call that
// found no route with negative reduced cost. It is not a failure.
var ErrNoImprovingColumn = errors.New("no improving column")

// Config carries resolved solver settings. Zero values are filled by normalize.
type Config struct {
	LabelBudget  int
	TimeBudget   time.Duration
	MaxColumns   int
	Elementary   bool
	Parallelism  int
	MaxNeighbors int
	Epsilon      float64

	// Copied from the instance at construction.
	MaxStops    int
	MaxCapacity float64
}

// DefaultConfig returns the stock solver settings.
func DefaultConfig() Config {
	return Config{
		LabelBudget: 200_000,
		TimeBudget:  10 * time.Second,
		MaxColumns:  10,
		Elementary:  true,
		Parallelism: 1,
		Epsilon:     1e-9,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.LabelBudget <= 0 {
		c.LabelBudget = d.LabelBudget
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = d.TimeBudget
	}
	if c.MaxColumns <= 0 {
		c.MaxColumns = d.MaxColumns
	}
	if c.Parallelism <= 0 {
		c.Parallelism = d.Parallelism
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
}

// merge overlays per-call options onto a copy of the base config.
func (c Config) merge(opt *model.SolveOptions) Config {
	if opt == nil {
		return c
	}
	if opt.LabelBudget > 0 {
		c.LabelBudget = opt.LabelBudget
	}
	if opt.TimeBudgetMs > 0 {
		c.TimeBudget = time.Duration(opt.TimeBudgetMs) * time.Millisecond
	}
	if opt.MaxColumns > 0 {
		c.MaxColumns = opt.MaxColumns
	}
	if opt.Elementary != nil {
		c.Elementary = *opt.Elementary
	}
	if opt.Parallelism > 0 {
		c.Parallelism = opt.Parallelism
	}
	return c
}

// Solver prices one instance. The graph is built once; Price may be called
// repeatedly with fresh dual vectors and only rewrites arc reduced costs.
// Calls are serialized internally; each call gets a private arena and frontier.
type Solver struct {
	mu   sync.Mutex
	g    *graph.Graph
	inst *model.Instance
	cfg  Config
}

// New validates the instance, builds the network, and returns a reusable solver.
func New(inst *model.Instance, cfg Config) (*Solver, error) {
	cfg.normalize()
	cfg.MaxStops = inst.MaxStops
	cfg.MaxCapacity = inst.MaxCapacity
	g, err := graph.Build(inst, cfg.MaxNeighbors)
	if err != nil {
		return nil, err
	}
	return &Solver{g: g, inst: inst, cfg: cfg}, nil
}

// Graph exposes the built network, mainly for diagnostics and tests.
func (s *Solver) Graph() *graph.Graph { return s.g }

// Price runs one labeling search under the supplied dual prices and returns
// routes sorted by reduced cost ascending (most negative first), capped at
// MaxColumns. Returns ErrNoImprovingColumn when nothing negative exists
// within budget; ctx cancellation surfaces as the context's error with
// whatever was found so far discarded by the caller's choice.
func (s *Solver) Price(ctx context.Context, duals map[string]float64, opt *model.SolveOptions) ([]model.Route, model.SolveStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.merge(opt)
	start := time.Now()
	s.g.Reprice(duals)

	srch := newSearch(s.g, cfg)
	srch.deadline = start.Add(cfg.TimeBudget)
	var ctxErr error
	for wh := int32(0); wh < int32(s.g.Warehouses); wh++ {
		if err := srch.run(ctx, wh); err != nil {
			ctxErr = err
			break
		}
		if srch.truncated {
			break
		}
	}

	stats := srch.stats
	stats.Truncated = srch.truncated
	stats.RoutesCompleted = len(srch.completed)
	stats.DurationMs = time.Since(start).Milliseconds()

	if len(srch.completed) == 0 {
		if ctxErr != nil {
			return nil, stats, ctxErr
		}
		return nil, stats, ErrNoImprovingColumn
	}

	sort.Slice(srch.completed, func(i, j int) bool {
		return srch.completed[i].rcost < srch.completed[j].rcost
	})
	n := len(srch.completed)
	if n > cfg.MaxColumns {
		n = cfg.MaxColumns
	}
	routes := make([]model.Route, 0, n)
	for _, c := range srch.completed[:n] {
		r := model.Route{
			Path:        srch.path(c),
			Cost:        c.cost,
			ReducedCost: c.rcost,
			Load:        c.load,
			Stops:       int(c.stops),
		}
		if s.inst.AllowViolateTimeWindow {
			s.refine(&r, duals)
		}
		routes = append(routes, r)
	}
	if s.inst.AllowViolateTimeWindow {
		// Refinement can reorder stops and shift reduced costs.
		sort.Slice(routes, func(i, j int) bool { return routes[i].ReducedCost < routes[j].ReducedCost })
	}
	return routes, stats, nil
}
