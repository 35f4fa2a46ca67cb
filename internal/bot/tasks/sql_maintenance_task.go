package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSQLMaintenanceTask purges old cancelled reminders, finishes games left
// open and then runs database maintenance.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task...")
		startTime := time.Now()
		now := deps.now()

		if retention := deps.Config.Database.CancelledRetention; retention > 0 {
			n, err := deps.Store.PurgeCancelledReminders(ctx, now.Add(-retention))
			if err != nil {
				log.ErrorContext(ctx, "Failed to purge cancelled reminders", "error", err)
				return fmt.Errorf("purge cancelled reminders: %w", err)
			}
			log.InfoContext(ctx, "Purged cancelled reminders", "count", n)
		}

		if staleAge := deps.Config.Database.StaleGameAge; staleAge > 0 {
			n, err := deps.Store.FinishStaleGames(ctx, now.Add(-staleAge))
			if err != nil {
				log.ErrorContext(ctx, "Failed to finish stale games", "error", err)
				return fmt.Errorf("finish stale games: %w", err)
			}
			log.InfoContext(ctx, "Finished stale games", "count", n)
		}

		err := deps.Store.RunSQLMaintenance(ctx)
		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully", "duration", duration)
		return nil
	}
}
