package queue

import (
	"context"
	"os"

	"github.com/scribed/scribed/internal/job"
)

// Start launches the fixed worker pool and the janitor.
func (e *Engine) Start(ctx context.Context) {
	wctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	for range e.cfg.MaxParallel {
		e.wg.Add(1)
		go e.runWorker(wctx)
	}

	e.wg.Add(1)
	go e.runJanitor(wctx)
}

// Shutdown stops intake, cancels in-flight provider calls and waits for the
// pool to drain, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWorker is a worker loop: dequeues job IDs FIFO and processes each to a
// terminal state before pulling the next.
func (e *Engine) runWorker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-e.jobs:
			e.process(ctx, jobID)
		}
	}
}

func (e *Engine) process(ctx context.Context, jobID string) {
	// A worker panic must still drive the job terminal and free the slot.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("worker panic", "job_id", jobID, "panic", r)
			e.finalize(ctx, jobID, job.StatusFailed, "", job.FailGeneric)
		}
	}()

	if err := e.table.MarkProcessing(jobID); err != nil {
		e.logger.Error("worker: mark processing", "job_id", jobID, "error", err)
		return
	}
	e.notifySubs(jobID, Event{Name: "status", Data: `{"status":"processing"}`})

	j, ok := e.table.Get(jobID)
	if !ok {
		e.logger.Error("worker: job vanished", "job_id", jobID)
		return
	}

	audio, err := os.ReadFile(j.TempPath)
	if err != nil {
		e.logger.Error("worker: read spooled upload", "job_id", jobID, "error", err)
		e.finalize(ctx, jobID, job.StatusFailed, "", job.FailGeneric)
		return
	}

	text, failCode, err := e.adapter.Transcribe(ctx, audio, j.MimeType)
	if err != nil {
		e.logger.Warn("job failed",
			"job_id", jobID, "code", failCode, "error", err)
		e.finalize(ctx, jobID, job.StatusFailed, "", failCode)
		return
	}

	if cerr := e.cache.Put(ctx, j.Digest, text, e.cfg.CacheTTL); cerr != nil {
		e.logger.Warn("cache put failed", "digest", j.Digest, "error", cerr)
	}
	e.finalize(ctx, jobID, job.StatusSucceeded, text, "")
}

// finalize drives the job terminal: one table transition (which also drops
// the in-flight entry), one temp-file removal, one final event, one
// optional webhook.
func (e *Engine) finalize(ctx context.Context, jobID string, status job.Status, result, errMsg string) {
	tempPath, err := e.table.Finalize(jobID, status, result, errMsg)
	if err != nil {
		e.logger.Error("finalize", "job_id", jobID, "error", err)
		return
	}
	e.removeTemp(tempPath)

	j, ok := e.table.Get(jobID)
	if !ok {
		return
	}

	e.logger.Info("job finished",
		"job_id", jobID,
		"status", status,
		"error", errMsg,
	)
	e.notifyAndClose(jobID, Event{Name: "result", Data: ResultPayload(j)})

	if j.CallbackURL != "" && e.notifier != nil {
		// ctx is the pool context from Start: it lives past this job but is
		// cancelled on Shutdown, so deliveries stop when the engine does.
		e.notifier.JobFinished(ctx, j.CallbackURL, j)
	}
}
