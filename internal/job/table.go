package job

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type flightKey struct {
	owner  string
	digest string
}

// Table is the in-memory authoritative record of every job, plus the
// (owner, digest) in-flight index used to attach concurrent identical
// uploads to one job. All state is process-local and disposable.
type Table struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	inflight map[flightKey]string
}

func NewTable() *Table {
	return &Table{
		jobs:     make(map[string]*Job),
		inflight: make(map[flightKey]string),
	}
}

// AdmitOrAttach either registers j as a new queued job or, if the owner
// already has a non-terminal job for the same digest, returns that job's ID.
// The in-flight lookup and the insert happen in one critical section so a
// concurrent second upload observes the first.
func (t *Table) AdmitOrAttach(j *Job) (id string, attached bool) {
	key := flightKey{owner: j.OwnerID, digest: j.Digest}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.inflight[key]; ok {
		return existing, true
	}
	t.jobs[j.ID] = j
	t.inflight[key] = j.ID
	return j.ID, false
}

// Remove drops a job record and its in-flight entry outright, as if the
// admission never happened. It backs out a job that could not be enqueued;
// the caller still owns the spooled temp file.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return
	}
	delete(t.inflight, flightKey{owner: j.OwnerID, digest: j.Digest})
	delete(t.jobs, id)
}

// Get returns a snapshot of the job, or false if it does not exist.
func (t *Table) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// GetOwned returns the job only if it belongs to owner. A foreign owner
// gets the same answer as an unknown ID.
func (t *Table) GetOwned(owner, id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok || j.OwnerID != owner {
		return Job{}, false
	}
	return *j, true
}

// MarkProcessing transitions a queued job to processing and stamps StartedAt.
func (t *Table) MarkProcessing(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusQueued {
		return fmt.Errorf("invalid transition: %s -> %s", j.Status, StatusProcessing)
	}
	now := time.Now().UTC()
	j.Status = StatusProcessing
	j.StartedAt = &now
	return nil
}

// Finalize drives the job into a terminal state exactly once: stamps
// FinishedAt, records result or error, and drops the in-flight entry so a
// later identical upload starts fresh. The job's temp path is returned and
// cleared; the caller deletes the file. A second Finalize is rejected.
func (t *Table) Finalize(id string, status Status, result, errMsg string) (tempPath string, err error) {
	if !status.IsTerminal() {
		return "", fmt.Errorf("finalize with non-terminal status %s", status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return "", ErrNotFound
	}
	if j.Status.IsTerminal() {
		return "", fmt.Errorf("job %s already terminal (%s)", id, j.Status)
	}

	now := time.Now().UTC()
	j.Status = status
	j.Result = result
	j.Error = errMsg
	j.FinishedAt = &now

	delete(t.inflight, flightKey{owner: j.OwnerID, digest: j.Digest})

	tempPath = j.TempPath
	j.TempPath = ""
	return tempPath, nil
}

// Depth counts non-terminal jobs (waiting + processing). This is the value
// checked against the admission ceiling.
func (t *Table) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, j := range t.jobs {
		if !j.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// ListOwned returns the owner's jobs newest-first with pagination, plus the
// owner's total count.
func (t *Table) ListOwned(owner string, limit, offset int) ([]Job, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	t.mu.RLock()
	var all []Job
	for _, j := range t.jobs {
		if j.OwnerID == owner {
			all = append(all, *j)
		}
	}
	t.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool {
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []Job{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total
}

// DeleteTerminalBefore removes terminal jobs whose FinishedAt is before
// cutoff and returns how many were removed. Non-terminal jobs are never
// touched regardless of age.
func (t *Table) DeleteTerminalBefore(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, j := range t.jobs {
		if j.Status.IsTerminal() && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(t.jobs, id)
			n++
		}
	}
	return n
}

// StaleNonTerminal returns IDs of jobs still queued or processing that were
// created before cutoff. The janitor logs these; it must not delete them.
func (t *Table) StaleNonTerminal(cutoff time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ids []string
	for id, j := range t.jobs {
		if !j.Status.IsTerminal() && j.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
