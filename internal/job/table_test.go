package job

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newJob(id, owner, digest string) *Job {
	return &Job{
		ID:        id,
		OwnerID:   owner,
		Digest:    digest,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAdmitOrAttach_SecondUploadAttaches(t *testing.T) {
	tbl := NewTable()

	id1, attached := tbl.AdmitOrAttach(newJob("j1", "alice", "d1"))
	if attached || id1 != "j1" {
		t.Fatalf("first admit: id=%q attached=%v", id1, attached)
	}

	id2, attached := tbl.AdmitOrAttach(newJob("j2", "alice", "d1"))
	if !attached {
		t.Fatal("second admit for same (owner, digest) should attach")
	}
	if id2 != "j1" {
		t.Errorf("attached id = %q, want j1", id2)
	}
	if _, ok := tbl.Get("j2"); ok {
		t.Error("attached request must not create a job record")
	}
}

func TestAdmitOrAttach_ScopedByOwnerAndDigest(t *testing.T) {
	tbl := NewTable()
	tbl.AdmitOrAttach(newJob("j1", "alice", "d1"))

	// Different owner, same content: independent job.
	if id, attached := tbl.AdmitOrAttach(newJob("j2", "bob", "d1")); attached || id != "j2" {
		t.Errorf("other owner: id=%q attached=%v, want new job", id, attached)
	}
	// Same owner, different content: independent job.
	if id, attached := tbl.AdmitOrAttach(newJob("j3", "alice", "d2")); attached || id != "j3" {
		t.Errorf("other digest: id=%q attached=%v, want new job", id, attached)
	}
}

func TestAdmitOrAttach_Concurrent(t *testing.T) {
	tbl := NewTable()

	const n = 50
	var wg sync.WaitGroup
	attachCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, attached := tbl.AdmitOrAttach(newJob(fmt.Sprintf("j%d", i), "alice", "d1"))
			attachCount <- attached
		}(i)
	}
	wg.Wait()
	close(attachCount)

	admitted := 0
	for attached := range attachCount {
		if !attached {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("admitted %d jobs for identical (owner, digest), want exactly 1", admitted)
	}
}

func TestRemove_DropsRecordAndInFlight(t *testing.T) {
	tbl := NewTable()
	tbl.AdmitOrAttach(newJob("j1", "alice", "d1"))

	tbl.Remove("j1")

	if _, ok := tbl.Get("j1"); ok {
		t.Fatal("removed job still retrievable")
	}

	// The in-flight entry must go with it: a re-upload of the same content
	// admits a fresh job instead of attaching to the backed-out one.
	id, attached := tbl.AdmitOrAttach(newJob("j2", "alice", "d1"))
	if attached || id != "j2" {
		t.Errorf("AdmitOrAttach after Remove = (%q, %v), want fresh admit", id, attached)
	}

	// Removing an unknown id is a no-op.
	tbl.Remove("does-not-exist")
}

func TestFinalize_ReleasesTempPathExactlyOnce(t *testing.T) {
	tbl := NewTable()
	j := newJob("j1", "alice", "d1")
	j.TempPath = "/tmp/upload-1"
	tbl.AdmitOrAttach(j)

	if err := tbl.MarkProcessing("j1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	path, err := tbl.Finalize("j1", StatusSucceeded, "hello", "")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if path != "/tmp/upload-1" {
		t.Errorf("temp path = %q, want /tmp/upload-1", path)
	}

	// Second finalize must be rejected and must not hand out the path again.
	if _, err := tbl.Finalize("j1", StatusFailed, "", FailGeneric); err == nil {
		t.Fatal("second Finalize should fail")
	}

	got, _ := tbl.Get("j1")
	if got.Status != StatusSucceeded || got.Result != "hello" {
		t.Errorf("job after finalize = %+v", got)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not stamped")
	}
	if got.TempPath != "" {
		t.Error("TempPath should be cleared on finalize")
	}
}

func TestFinalize_ClearsInFlightEvenOnFailure(t *testing.T) {
	tbl := NewTable()
	j := newJob("j1", "alice", "d1")
	tbl.AdmitOrAttach(j)
	tbl.MarkProcessing("j1")

	if _, err := tbl.Finalize("j1", StatusFailed, "", FailTimeout); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// A later identical upload must not attach to the dead job.
	id, attached := tbl.AdmitOrAttach(newJob("j2", "alice", "d1"))
	if attached {
		t.Errorf("attached to finished job %s; in-flight entry not cleared", id)
	}
}

func TestFinalize_RejectsNonTerminalStatus(t *testing.T) {
	tbl := NewTable()
	tbl.AdmitOrAttach(newJob("j1", "alice", "d1"))
	if _, err := tbl.Finalize("j1", StatusProcessing, "", ""); err == nil {
		t.Fatal("Finalize with non-terminal status should fail")
	}
}

func TestMarkProcessing_OnlyFromQueued(t *testing.T) {
	tbl := NewTable()
	tbl.AdmitOrAttach(newJob("j1", "alice", "d1"))

	if err := tbl.MarkProcessing("j1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := tbl.MarkProcessing("j1"); err == nil {
		t.Error("second MarkProcessing should fail")
	}
	if err := tbl.MarkProcessing("nope"); err != ErrNotFound {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}

	got, _ := tbl.Get("j1")
	if got.StartedAt == nil {
		t.Error("StartedAt not stamped")
	}
}

func TestGetOwned_NoCrossOwnerLeak(t *testing.T) {
	tbl := NewTable()
	tbl.AdmitOrAttach(newJob("j1", "alice", "d1"))

	if _, ok := tbl.GetOwned("bob", "j1"); ok {
		t.Error("bob must not see alice's job")
	}
	if _, ok := tbl.GetOwned("alice", "j1"); !ok {
		t.Error("alice should see her own job")
	}
}

func TestDepth_CountsNonTerminalOnly(t *testing.T) {
	tbl := NewTable()
	tbl.AdmitOrAttach(newJob("j1", "alice", "d1"))
	tbl.AdmitOrAttach(newJob("j2", "alice", "d2"))
	tbl.AdmitOrAttach(newJob("j3", "alice", "d3"))
	tbl.MarkProcessing("j2")
	tbl.MarkProcessing("j3")
	tbl.Finalize("j3", StatusSucceeded, "x", "")

	if got := tbl.Depth(); got != 2 {
		t.Errorf("Depth() = %d, want 2 (one queued, one processing)", got)
	}
}

func TestDeleteTerminalBefore_SparesNonTerminal(t *testing.T) {
	tbl := NewTable()

	old := newJob("old-done", "alice", "d1")
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	tbl.AdmitOrAttach(old)
	tbl.MarkProcessing("old-done")
	tbl.Finalize("old-done", StatusSucceeded, "x", "")
	// Backdate the finish stamp past the cutoff.
	tbl.mu.Lock()
	finished := time.Now().Add(-2 * time.Hour)
	tbl.jobs["old-done"].FinishedAt = &finished
	tbl.mu.Unlock()

	stuck := newJob("old-stuck", "alice", "d2")
	stuck.CreatedAt = time.Now().Add(-2 * time.Hour)
	tbl.AdmitOrAttach(stuck)
	tbl.MarkProcessing("old-stuck")

	fresh := newJob("fresh", "alice", "d3")
	tbl.AdmitOrAttach(fresh)
	tbl.MarkProcessing("fresh")
	tbl.Finalize("fresh", StatusFailed, "", FailGeneric)

	cutoff := time.Now().Add(-time.Hour)
	if n := tbl.DeleteTerminalBefore(cutoff); n != 1 {
		t.Errorf("deleted %d jobs, want 1", n)
	}
	if _, ok := tbl.Get("old-done"); ok {
		t.Error("old terminal job should be evicted")
	}
	if _, ok := tbl.Get("old-stuck"); !ok {
		t.Error("stuck processing job must never be evicted")
	}
	if _, ok := tbl.Get("fresh"); !ok {
		t.Error("recently finished job should be retained")
	}

	stale := tbl.StaleNonTerminal(cutoff)
	if len(stale) != 1 || stale[0] != "old-stuck" {
		t.Errorf("StaleNonTerminal = %v, want [old-stuck]", stale)
	}
}
