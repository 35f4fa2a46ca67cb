// Package tasks implements the bot's scheduled housekeeping tasks.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/assistbot/internal/config"
)

// MaintenanceStore is the part of database.Store the tasks use.
type MaintenanceStore interface {
	RunSQLMaintenance(ctx context.Context) error
	PurgeCancelledReminders(ctx context.Context, before time.Time) (int64, error)
	FinishStaleGames(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper drops expired dialogue state. *kv.MemoryStore implements it.
type Sweeper interface {
	Sweep() int
}

// BucketCleaner drops idle rate limit buckets. *ratelimit.MemoryBackend
// implements it.
type BucketCleaner interface {
	CleanupStale(maxAge time.Duration) int
}

// TaskDeps contains all dependencies required by scheduled tasks.
// State and Buckets are nil when the state lives in Redis, which expires
// keys on its own.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   MaintenanceStore
	State   Sweeper
	Buckets []BucketCleaner
	Config  *config.Config
	Now     func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
