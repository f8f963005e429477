package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/scribed/scribed/internal/config"
	"github.com/scribed/scribed/internal/ingest"
	"github.com/scribed/scribed/internal/job"
	"github.com/scribed/scribed/internal/queue"
)

// startWatcher consumes the drop-folder event stream and submits each new
// audio file on behalf of the configured watch owner. Files stay in place;
// the engine works from its own spooled copy.
func startWatcher(ctx context.Context, cfg *config.Config, engine *queue.Engine) error {
	events, err := ingest.Watch(ctx, cfg.WatchDir, 500*time.Millisecond, slog.Default())
	if err != nil {
		return err
	}

	go func() {
		for path := range events {
			submitFile(ctx, cfg, engine, path)
		}
	}()

	slog.Info("watching drop folder", "dir", cfg.WatchDir, "owner", cfg.WatchOwner)
	return nil
}

func submitFile(ctx context.Context, cfg *config.Config, engine *queue.Engine, path string) {
	mimeType, ok := ingest.TypeForPath(path)
	if !ok {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("watch: open", "path", path, "error", err)
		return
	}
	defer f.Close()

	res, err := engine.Submit(ctx, cfg.WatchOwner, mimeType, f, "")
	switch {
	case errors.Is(err, job.ErrQueueSaturated):
		// Leave the file alone; the next filesystem event or a manual
		// re-drop will retry it.
		slog.Warn("watch: queue saturated, skipping", "path", path)
		return
	case err != nil:
		slog.Warn("watch: submit", "path", path, "error", err)
		return
	}

	switch {
	case res.Cached:
		slog.Info("watch: already transcribed", "path", path)
	case res.Deduplicated:
		slog.Info("watch: attached to running job", "path", path, "job_id", res.JobID)
	default:
		slog.Info("watch: submitted", "path", path, "job_id", res.JobID)
	}
}
