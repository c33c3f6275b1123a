package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS task_runs (
	id            TEXT PRIMARY KEY,
	device_serial TEXT NOT NULL,
	task          TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	steps         INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_runs_device ON task_runs(device_serial, started_at);
`

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(dsn string) (Store, error) {
	if dsn == "" {
		dsn = "phone-pilot.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

// newSQLStore wraps an existing database handle. Used by tests.
func newSQLStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) SaveTask(ctx context.Context, rec *TaskRecord) error {
	if rec.ID == "" {
		rec.ID = NewTaskID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, device_serial, task, status, message, steps, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceSerial, rec.Task, rec.Status, rec.Message, rec.Steps, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("store: save task: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, deviceSerial string, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_serial, task, status, message, steps, started_at, finished_at
		 FROM task_runs WHERE device_serial = ? ORDER BY started_at DESC LIMIT ?`,
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

func (s *sqliteStore) Close() error { return s.db.Close() }
