package store

import (
	"context"
	"errors"
	"time"

	"vrppricing/internal/model"
)

// PricingRun is the persisted record of one pricing call.
type PricingRun struct {
	ID         string           `json:"id"`
	InstanceID string           `json:"instanceId"`
	RequestID  string           `json:"requestId,omitempty"`
	Outcome    string           `json:"outcome"` // columns, no_improving_column, invalid, canceled
	Columns    int              `json:"columns"`
	Stats      model.SolveStats `json:"stats"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Column is one persisted generated route.
type Column struct {
	ID         string      `json:"id"`
	RunID      string      `json:"runId"`
	InstanceID string      `json:"instanceId"`
	Route      model.Route `json:"route"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// CallbackDelivery is one queued async-result callback attempt.
type CallbackDelivery struct {
	ID       string
	JobID    string
	URL      string
	Secret   string
	Payload  []byte
	Status   string // pending, delivered, failed
	Attempts int
}

// Store is the persistence interface used by the serve mode. The solver core
// never touches it; all state here is bookkeeping around pricing calls.
type Store interface {
	// Instances
	SaveInstance(ctx context.Context, id string, inst *model.Instance) error
	GetInstance(ctx context.Context, id string) (*model.Instance, error)
	ListInstances(ctx context.Context, limit int) ([]string, error)

	// Runs & columns
	RecordRun(ctx context.Context, run PricingRun) error
	ListRuns(ctx context.Context, instanceID string, limit int) ([]PricingRun, error)
	InsertColumns(ctx context.Context, runID, instanceID string, routes []model.Route) error
	ListColumns(ctx context.Context, instanceID string, limit int) ([]Column, error)

	// Async result callbacks
	EnqueueCallback(ctx context.Context, jobID, url, secret string, payload []byte) (string, error)
	FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error)
	MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
	FailCallback(ctx context.Context, id string, lastError string, responseCode int) error
	ListCallbacks(ctx context.Context, status string, limit int) ([]map[string]any, error)
}

var ErrNotFound = errors.New("not found")
