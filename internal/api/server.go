// Package api exposes the pricing solver as a long-lived HTTP service:
// instance registration, synchronous and asynchronous pricing calls, job
// progress streams, and admin bookkeeping endpoints.
package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vrppricing/internal/callback"
	"vrppricing/internal/config"
	"vrppricing/internal/model"
	"vrppricing/internal/pricing"
	"vrppricing/internal/store"
)

// Job tracks one asynchronous pricing call.
type Job struct {
	ID         string               `json:"id"`
	InstanceID string               `json:"instanceId,omitempty"`
	Status     string               `json:"status"` // running, done, failed
	Result     *model.SolveResponse `json:"result,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Server holds the service dependencies and the per-instance solver cache.
type Server struct {
	Cfg     config.Config
	Store   store.Store
	Broker  EventBroker
	Limiter *rate.Limiter

	mu      sync.Mutex
	solvers map[string]*pricing.Solver
	jobs    map[string]*Job
}

// NewServer wires the store (memory unless DATABASE_URL is set), the event
// broker (in-process unless REDIS_URL is set), and the rate limiter.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Cfg:     cfg,
		Store:   s,
		Broker:  broker,
		Limiter: rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		solvers: map[string]*pricing.Solver{},
		jobs:    map[string]*Job{},
	}, nil
}

// NewCallbackWorker creates the background deliverer for async results.
func (s *Server) NewCallbackWorker() *callback.Worker {
	return callback.NewWorker(s.Store, s.Cfg.CallbackMaxAttempts)
}

// solver returns the cached solver for an instance id, building it from the
// store on a cache miss (e.g. after a restart with a Postgres store).
func (s *Server) solver(ctx context.Context, instanceID string) (*pricing.Solver, error) {
	s.mu.Lock()
	if sv, ok := s.solvers[instanceID]; ok {
		s.mu.Unlock()
		return sv, nil
	}
	s.mu.Unlock()

	inst, err := s.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	sv, err := pricing.New(inst, s.Cfg.Solver.Pricing())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.solvers[instanceID] = sv
	s.mu.Unlock()
	return sv, nil
}

func (s *Server) cacheSolver(id string, sv *pricing.Solver) {
	s.mu.Lock()
	s.solvers[id] = sv
	s.mu.Unlock()
}

func (s *Server) putJob(j *Job) {
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
}

// getJob returns a snapshot; async runs mutate the stored Job under s.mu.
func (s *Server) getJob(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}
