package tasks

import (
	"context"
	"time"
)

// newStateSweepTask drops expired in-memory dialogue state and idle rate
// limit buckets.
func newStateSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "state_sweep")

	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		startTime := time.Now()

		states := 0
		if deps.State != nil {
			states = deps.State.Sweep()
		}

		buckets := 0
		if maxAge := deps.Config.Scheduler.StaleBucketAge; maxAge > 0 {
			for _, b := range deps.Buckets {
				buckets += b.CleanupStale(maxAge)
			}
		}

		log.DebugContext(ctx, "State sweep completed", "expired_states", states, "stale_buckets", buckets, "duration", time.Since(startTime))
		return nil
	}
}
