package queue

import (
	"context"
	"time"
)

// runJanitor periodically evicts expired cache entries and terminal jobs
// past the retention window. Jobs still queued or processing are never
// evicted regardless of age; ones older than the window are logged so a
// stuck pipeline is visible instead of silently erased.
func (e *Engine) runJanitor(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := e.cache.Purge(ctx, now); err != nil {
		e.logger.Warn("janitor: cache purge failed", "error", err)
	} else if n > 0 {
		e.logger.Info("janitor: purged cache entries", "count", n)
	}

	cutoff := now.Add(-e.cfg.JobRetention)
	if n := e.table.DeleteTerminalBefore(cutoff); n > 0 {
		e.logger.Info("janitor: evicted finished jobs", "count", n)
	}

	for _, id := range e.table.StaleNonTerminal(cutoff) {
		e.logger.Warn("janitor: job stuck past retention window", "job_id", id)
	}
}
