package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vrppricing/internal/model"
)

// Postgres persists pricing bookkeeping when DATABASE_URL is set.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the schema if missing. Idempotent; dev helper like the
// rest of the bootstrap path.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS pricing_runs (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			request_id TEXT,
			outcome TEXT NOT NULL,
			columns INT NOT NULL,
			stats JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS columns (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			route JSONB NOT NULL,
			reduced_cost DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS columns_instance_idx ON columns (instance_id, reduced_cost)`,
		`CREATE TABLE IF NOT EXISTS callback_deliveries (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT,
			payload BYTEA NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			response_code INT,
			delivered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) SaveInstance(ctx context.Context, id string, inst *model.Instance) error {
	payload, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO instances (id, payload) VALUES ($1,$2)
		 ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`, id, payload)
	return err
}

func (p *Postgres) GetInstance(ctx context.Context, id string) (*model.Instance, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM instances WHERE id=$1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var inst model.Instance
	if err := json.Unmarshal(payload, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (p *Postgres) ListInstances(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM instances ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordRun(ctx context.Context, run PricingRun) error {
	if run.ID == "" {
		run.ID = "run_" + uuid.NewString()
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO pricing_runs (id, instance_id, request_id, outcome, columns, stats) VALUES ($1,$2,$3,$4,$5,$6)`,
		run.ID, run.InstanceID, run.RequestID, run.Outcome, run.Columns, stats)
	return err
}

func (p *Postgres) ListRuns(ctx context.Context, instanceID string, limit int) ([]PricingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, instance_id, COALESCE(request_id,''), outcome, columns, stats, created_at
		 FROM pricing_runs WHERE ($1 = '' OR instance_id = $1)
		 ORDER BY created_at DESC LIMIT $2`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PricingRun
	for rows.Next() {
		var r PricingRun
		var stats []byte
		if err := rows.Scan(&r.ID, &r.InstanceID, &r.RequestID, &r.Outcome, &r.Columns, &stats, &r.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(stats, &r.Stats)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertColumns(ctx context.Context, runID, instanceID string, routes []model.Route) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range routes {
		route, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO columns (id, run_id, instance_id, route, reduced_cost) VALUES ($1,$2,$3,$4,$5)`,
			"col_"+uuid.NewString(), runID, instanceID, route, r.ReducedCost)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListColumns(ctx context.Context, instanceID string, limit int) ([]Column, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, run_id, instance_id, route, created_at FROM columns
		 WHERE ($1 = '' OR instance_id = $1)
		 ORDER BY reduced_cost ASC LIMIT $2`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Column
	for rows.Next() {
		var c Column
		var route []byte
		if err := rows.Scan(&c.ID, &c.RunID, &c.InstanceID, &route, &c.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(route, &c.Route)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueCallback(ctx context.Context, jobID, url, secret string, payload []byte) (string, error) {
	id := "cb_" + uuid.NewString()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO callback_deliveries (id, job_id, url, secret, payload) VALUES ($1,$2,$3,$4,$5)`,
		id, jobID, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, job_id, url, COALESCE(secret,''), payload, status, attempts
		 FROM callback_deliveries
		 WHERE status = 'pending' AND next_attempt_at <= now()
		 ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CallbackDelivery
	for rows.Next() {
		var cb CallbackDelivery
		if err := rows.Scan(&cb.ID, &cb.JobID, &cb.URL, &cb.Secret, &cb.Payload, &cb.Status, &cb.Attempts); err != nil {
			return nil, err
		}
		out = append(out, cb)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE callback_deliveries SET status='delivered', attempts=attempts+1,
			 last_error=$2, response_code=$3, delivered_at=now() WHERE id=$1`,
			id, lastError, responseCode)
		return err
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE callback_deliveries SET attempts=attempts+1, last_error=$2, response_code=$3,
		 next_attempt_at=COALESCE($4, next_attempt_at) WHERE id=$1`,
		id, lastError, responseCode, nextAttemptAt)
	return err
}

func (p *Postgres) FailCallback(ctx context.Context, id string, lastError string, responseCode int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE callback_deliveries SET status='failed', attempts=attempts+1,
		 last_error=$2, response_code=$3 WHERE id=$1`, id, lastError, responseCode)
	return err
}

func (p *Postgres) ListCallbacks(ctx context.Context, status string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, job_id, url, status, attempts, COALESCE(last_error,''), COALESCE(response_code,0)
		 FROM callback_deliveries WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var id, jobID, url, st, lastErr string
		var attempts, code int
		if err := rows.Scan(&id, &jobID, &url, &st, &attempts, &lastErr, &code); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id": id, "jobId": jobID, "url": url, "status": st,
			"attempts": attempts, "lastError": lastErr, "responseCode": code,
		})
	}
	return out, rows.Err()
}
