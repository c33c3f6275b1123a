package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS task_runs (
	id            TEXT PRIMARY KEY,
	device_serial TEXT NOT NULL,
	task          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	steps         INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_runs_device ON task_runs(device_serial, started_at);
`

type postgresStore struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) SaveTask(ctx context.Context, rec *TaskRecord) error {
	if rec.ID == "" {
		rec.ID = NewTaskID()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_runs (id, device_serial, task, status, message, steps, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.DeviceSerial, rec.Task, rec.Status, rec.Message, rec.Steps, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("store: save task: %w", err)
	}
	return nil
}

func (s *postgresStore) ListTasks(ctx context.Context, deviceSerial string, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, device_serial, task, status, message, steps, started_at, finished_at
		 FROM task_runs WHERE device_serial = $1 ORDER BY started_at DESC LIMIT $2`,
		deviceSerial, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		if err := rows.Scan(&rec.ID, &rec.DeviceSerial, &rec.Task, &rec.Status,
			&rec.Message, &rec.Steps, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
