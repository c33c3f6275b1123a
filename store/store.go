// Package store persists task run history. Backends are selected by a
// driver tag in the config: sqlite (default), postgres, or mongo.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TaskRecord is one completed (or terminated) task run.
type TaskRecord struct {
	ID           string    `json:"id" bson:"_id"`
	DeviceSerial string    `json:"device_serial" bson:"device_serial"`
	Task         string    `json:"task" bson:"task"`
	Status       string    `json:"status" bson:"status"` // finished | aborted | max_steps_reached | error
	Message      string    `json:"message" bson:"message"`
	Steps        int       `json:"steps" bson:"steps"`
	StartedAt    time.Time `json:"started_at" bson:"started_at"`
	FinishedAt   time.Time `json:"finished_at" bson:"finished_at"`
}

// Store records task runs for later inspection.
type Store interface {
	SaveTask(ctx context.Context, rec *TaskRecord) error
	ListTasks(ctx context.Context, deviceSerial string, limit int) ([]TaskRecord, error)
	Close() error
}

// Open builds a store for the given driver and DSN.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return openSQLite(dsn)
	case "postgres":
		return openPostgres(ctx, dsn)
	case "mongo":
		return openMongo(ctx, dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q (sqlite, postgres, mongo)", driver)
	}
}

// NewTaskID returns a short random hex identifier.
func NewTaskID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
