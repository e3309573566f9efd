package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vrppricing/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	instances map[string]*model.Instance
	instOrder []string
	runs      []PricingRun
	columns   []Column
	callbacks map[string]*memCallback
	cbOrder   []string
}

// memCallback augments CallbackDelivery with scheduling state.
type memCallback struct {
	CallbackDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		instances: map[string]*model.Instance{},
		callbacks: map[string]*memCallback{},
	}
}

func (m *Memory) SaveInstance(ctx context.Context, id string, inst *model.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		m.instOrder = append(m.instOrder, id)
	}
	m.instances[id] = inst
	return nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (*model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst, nil
}

func (m *Memory) ListInstances(ctx context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.instOrder...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RecordRun(ctx context.Context, run PricingRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = "run_" + uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(ctx context.Context, instanceID string, limit int) ([]PricingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PricingRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if instanceID != "" && m.runs[i].InstanceID != instanceID {
			continue
		}
		out = append(out, m.runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) InsertColumns(ctx context.Context, runID, instanceID string, routes []model.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, r := range routes {
		m.columns = append(m.columns, Column{
			ID:         "col_" + uuid.NewString(),
			RunID:      runID,
			InstanceID: instanceID,
			Route:      r,
			CreatedAt:  now,
		})
	}
	return nil
}

func (m *Memory) ListColumns(ctx context.Context, instanceID string, limit int) ([]Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Column
	for i := len(m.columns) - 1; i >= 0; i-- {
		if instanceID != "" && m.columns[i].InstanceID != instanceID {
			continue
		}
		out = append(out, m.columns[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	// Most attractive first within the listing window.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Route.ReducedCost < out[j].Route.ReducedCost
	})
	return out, nil
}

func (m *Memory) EnqueueCallback(ctx context.Context, jobID, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "cb_" + uuid.NewString()
	m.callbacks[id] = &memCallback{
		CallbackDelivery: CallbackDelivery{
			ID: id, JobID: jobID, URL: url, Secret: secret,
			Payload: payload, Status: "pending",
		},
	}
	m.cbOrder = append(m.cbOrder, id)
	return id, nil
}

func (m *Memory) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []CallbackDelivery
	for _, id := range m.cbOrder {
		cb := m.callbacks[id]
		if cb.Status != "pending" || cb.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, cb.CallbackDelivery)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.callbacks[id]
	if !ok {
		return ErrNotFound
	}
	cb.Attempts++
	cb.LastError = lastError
	cb.ResponseCode = responseCode
	if success {
		cb.Status = "delivered"
		now := time.Now().UTC()
		cb.DeliveredAt = &now
	} else if nextAttemptAt != nil {
		cb.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailCallback(ctx context.Context, id string, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.callbacks[id]
	if !ok {
		return ErrNotFound
	}
	cb.Attempts++
	cb.Status = "failed"
	cb.LastError = lastError
	cb.ResponseCode = responseCode
	return nil
}

func (m *Memory) ListCallbacks(ctx context.Context, status string, limit int) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]any
	for i := len(m.cbOrder) - 1; i >= 0; i-- {
		cb := m.callbacks[m.cbOrder[i]]
		if status != "" && cb.Status != status {
			continue
		}
		out = append(out, map[string]any{
			"id":           cb.ID,
			"jobId":        cb.JobID,
			"url":          cb.URL,
			"status":       cb.Status,
			"attempts":     cb.Attempts,
			"lastError":    cb.LastError,
			"responseCode": cb.ResponseCode,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
