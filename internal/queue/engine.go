// Package queue is the transcription engine: it admits uploads under a
// depth ceiling, deduplicates identical in-flight content, dispatches FIFO
// to a fixed worker pool, and reclaims finished state on a timer.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scribed/scribed/internal/cache"
	"github.com/scribed/scribed/internal/config"
	"github.com/scribed/scribed/internal/ingest"
	"github.com/scribed/scribed/internal/job"
	"github.com/scribed/scribed/internal/notify"
	"github.com/scribed/scribed/internal/provider"
)

// Event is one server-sent frame for a job's subscribers.
type Event struct {
	Name string // "status" or "result"
	Data string // JSON string
}

// Engine owns the job table, result cache, in-flight index and worker pool.
// It is constructed explicitly and passed by reference; there is no ambient
// global state.
type Engine struct {
	cfg      *config.Config
	table    *job.Table
	cache    cache.Store
	adapter  *provider.Adapter
	notifier *notify.Notifier
	logger   *slog.Logger

	jobs chan string

	mu   sync.RWMutex
	subs map[string][]chan Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, table *job.Table, store cache.Store, adapter *provider.Adapter, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		table:    table,
		cache:    store,
		adapter:  adapter,
		notifier: notifier,
		logger:   logger,
		jobs:     make(chan string, cfg.MaxQueueDepth),
		subs:     make(map[string][]chan Event),
	}
}

// SubmitResult is the synchronous answer to an upload.
type SubmitResult struct {
	JobID        string
	Status       job.Status
	Cached       bool
	Deduplicated bool
	Text         string
}

// Submit runs the admission pipeline for one upload: MIME allow-list and
// depth ceiling before any byte is read, then spool-and-hash, then result
// cache, then in-flight attach, then enqueue. Everything up to the enqueue
// is synchronous; errors here never leave a job record behind.
//
// The depth check is best-effort: two concurrent submissions can both pass
// it and transiently exceed the ceiling by one. That soft bound is accepted;
// the enqueue channel, sized to the ceiling, is the hard backstop.
func (e *Engine) Submit(ctx context.Context, ownerID, declaredType string, body io.Reader, callbackURL string) (*SubmitResult, error) {
	mimeType, ok := ingest.CanonicalType(declaredType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", job.ErrUnsupportedType, declaredType)
	}

	if e.table.Depth() >= e.cfg.MaxQueueDepth {
		return nil, job.ErrQueueSaturated
	}

	spooled, err := ingest.Spool(ctx, body, e.cfg.MaxUploadBytes, e.cfg.TmpDir)
	if err != nil {
		return nil, err
	}

	if text, hit, cerr := e.cache.Lookup(ctx, spooled.Digest); cerr != nil {
		e.logger.Warn("cache lookup failed", "digest", spooled.Digest, "error", cerr)
	} else if hit {
		e.removeTemp(spooled.Path)
		return &SubmitResult{Cached: true, Text: text, Status: job.StatusSucceeded}, nil
	}

	j := &job.Job{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Digest:      spooled.Digest,
		MimeType:    mimeType,
		SizeBytes:   spooled.Size,
		Status:      job.StatusQueued,
		CallbackURL: callbackURL,
		TempPath:    spooled.Path,
		CreatedAt:   time.Now().UTC(),
	}

	id, attached := e.table.AdmitOrAttach(j)
	if attached {
		// The running job owns its own spooled copy; this one is surplus.
		e.removeTemp(spooled.Path)
		status := job.StatusQueued
		if cur, ok := e.table.Get(id); ok {
			status = cur.Status
		}
		return &SubmitResult{JobID: id, Deduplicated: true, Status: status}, nil
	}

	select {
	case e.jobs <- j.ID:
	default:
		// Lost the admission race hard: the wait list itself is full.
		// Back the record out entirely; saturation is a synchronous
		// rejection and must not leave a job behind.
		e.table.Remove(j.ID)
		e.removeTemp(spooled.Path)
		return nil, job.ErrQueueSaturated
	}

	e.logger.Info("job admitted",
		"job_id", j.ID,
		"owner", ownerID,
		"digest", j.Digest,
		"size_bytes", j.SizeBytes,
		"mime_type", mimeType,
	)
	return &SubmitResult{JobID: j.ID, Status: job.StatusQueued}, nil
}

// Depth reports waiting + processing jobs, for health reporting.
func (e *Engine) Depth() int {
	return e.table.Depth()
}

func (e *Engine) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("failed to remove temp file", "path", path, "error", err)
	}
}

// Subscribe creates a buffered event channel for a job.
func (e *Engine) Subscribe(jobID string) chan Event {
	ch := make(chan Event, 16)
	e.mu.Lock()
	e.subs[jobID] = append(e.subs[jobID], ch)
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes an event channel from the map.
func (e *Engine) Unsubscribe(jobID string, ch chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chans := e.subs[jobID]
	for i, c := range chans {
		if c == ch {
			e.subs[jobID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(e.subs[jobID]) == 0 {
		delete(e.subs, jobID)
	}
}

// notifySubs sends an event to all subscribers of a job without blocking.
func (e *Engine) notifySubs(jobID string, event Event) {
	e.mu.RLock()
	chans := e.subs[jobID]
	e.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
}

// notifyAndClose sends the final event and closes all channels for the job.
func (e *Engine) notifyAndClose(jobID string, event Event) {
	e.mu.Lock()
	chans := e.subs[jobID]
	delete(e.subs, jobID)
	e.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
		close(ch)
	}
}

// ResultPayload is the outward JSON for a terminal job: succeeded jobs
// carry "text" (null when nothing usable was detected), failed jobs carry
// the failure classification.
func ResultPayload(j job.Job) string {
	m := map[string]any{"status": j.Status}
	switch j.Status {
	case job.StatusSucceeded:
		if j.Result == job.ResultNone {
			m["text"] = nil
		} else {
			m["text"] = j.Result
		}
	case job.StatusFailed:
		m["error"] = j.Error
	}
	data, _ := json.Marshal(m)
	return string(data)
}
