package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/common"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/models"
)

func setupJobStorage(t *testing.T) interfaces.JobStorage {
	t.Helper()

	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "badger"),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewJobStorage(db, arbor.NewLogger())
}

func testJob(id string) *models.Job {
	return models.NewJob(id, "label.pdf", 2048, "hash", "blob-"+id, models.ParsingTypeAuto, models.PriorityNormal)
}

func TestJobStorageCreateAndGet(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	job := testJob("job_create")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != models.JobStatePending || got.Filename != "label.pdf" {
		t.Errorf("got = %+v", got)
	}

	if err := store.Create(ctx, testJob("job_create")); !errors.Is(err, interfaces.ErrConflict) {
		t.Errorf("duplicate Create() error = %v, want conflict", err)
	}

	if _, err := store.Get(ctx, "job_missing"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("missing Get() error = %v, want not found", err)
	}
}

func TestJobStorageTransitionCAS(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	job := testJob("job_cas")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	queued, err := store.Transition(ctx, job.ID, []models.JobState{models.JobStatePending}, models.JobStateQueued, nil)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if queued.State != models.JobStateQueued {
		t.Errorf("state = %v", queued.State)
	}
	if !queued.UpdatedAt.After(job.UpdatedAt) {
		t.Error("updated_at did not advance")
	}

	// A second pending->queued transition must lose the race
	if _, err := store.Transition(ctx, job.ID, []models.JobState{models.JobStatePending}, models.JobStateQueued, nil); !errors.Is(err, interfaces.ErrConflict) {
		t.Errorf("stale Transition() error = %v, want conflict", err)
	}
}

func TestJobStorageTransitionMutateAbort(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	job := testJob("job_abort")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	boom := errors.New("mutate rejected")
	if _, err := store.Transition(ctx, job.ID, []models.JobState{models.JobStatePending}, models.JobStateQueued, func(j *models.Job) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Transition() error = %v, want mutate error", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != models.JobStatePending {
		t.Errorf("state after aborted mutate = %v, want pending", got.State)
	}
}

func TestJobStorageTerminalInvariants(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	job := testJob("job_terminal")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for _, step := range []struct {
		from []models.JobState
		to   models.JobState
		mut  func(*models.Job) error
	}{
		{[]models.JobState{models.JobStatePending}, models.JobStateQueued, nil},
		{[]models.JobState{models.JobStateQueued}, models.JobStateLeased, func(j *models.Job) error {
			j.LeaseOwner = "worker-1"
			j.LeaseDeadline = &deadline
			j.Attempts++
			return nil
		}},
		{[]models.JobState{models.JobStateLeased}, models.JobStateRunning, nil},
	} {
		if _, err := store.Transition(ctx, job.ID, step.from, step.to, step.mut); err != nil {
			t.Fatalf("Transition(%v) error = %v", step.to, err)
		}
	}

	done, err := store.Transition(ctx, job.ID, []models.JobState{models.JobStateRunning}, models.JobStateCompleted, func(j *models.Job) error {
		j.Result = &models.Result{Type: models.ResultTypeNutritionLabel}
		return nil
	})
	if err != nil {
		t.Fatalf("terminal Transition() error = %v", err)
	}

	if done.Progress != 100 {
		t.Errorf("progress = %d, want 100", done.Progress)
	}
	if done.LeaseOwner != "" || done.LeaseDeadline != nil {
		t.Error("lease not cleared on terminal transition")
	}
	if done.FinishedAt == nil {
		t.Error("finished_at not set")
	}

	// A worker still holding the old lease cannot move the job again
	if _, err := store.Transition(ctx, job.ID, []models.JobState{models.JobStateRunning}, models.JobStateFailed, nil); !errors.Is(err, interfaces.ErrConflict) {
		t.Errorf("post-terminal Transition() error = %v, want conflict", err)
	}
}

func TestJobStorageProgress(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	job := testJob("job_progress")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Progress only writes while leased or running
	if err := store.UpdateProgress(ctx, job.ID, "extract_text", 20); !errors.Is(err, interfaces.ErrConflict) {
		t.Errorf("pending UpdateProgress() error = %v, want conflict", err)
	}

	if _, err := store.Transition(ctx, job.ID, []models.JobState{models.JobStatePending}, models.JobStateQueued, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Transition(ctx, job.ID, []models.JobState{models.JobStateQueued}, models.JobStateRunning, nil); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateProgress(ctx, job.ID, "extract_text", 40); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}

	// Non-decreasing: a late lower write keeps the high-water mark
	if err := store.UpdateProgress(ctx, job.ID, "detect_type", 15); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Progress)
	}
	if got.Stage != "detect_type" {
		t.Errorf("stage = %q", got.Stage)
	}

	// 100 is reserved for terminal transitions
	if err := store.UpdateProgress(ctx, job.ID, "commit", 100); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.Progress != 99 {
		t.Errorf("progress = %d, want clamp to 99", got.Progress)
	}
}

func TestJobStorageDeleteTombstone(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	job := testJob("job_delete")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if store.WasDeleted(ctx, job.ID) {
		t.Error("WasDeleted() = true before delete")
	}

	if err := store.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Get(ctx, job.ID); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Get() after delete = %v, want not found", err)
	}
	if !store.WasDeleted(ctx, job.ID) {
		t.Error("WasDeleted() = false after delete")
	}
	if store.WasDeleted(ctx, "job_never_existed") {
		t.Error("WasDeleted() = true for unknown job")
	}

	if err := store.Delete(ctx, "job_never_existed"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Delete() missing = %v, want not found", err)
	}
}

func TestJobStorageListFilters(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	for i, spec := range []struct {
		id    string
		batch string
		ptype models.ParsingType
		state models.JobState
	}{
		{"job_l1", "batch_a", models.ParsingTypeNutritionLabel, models.JobStateCompleted},
		{"job_l2", "batch_a", models.ParsingTypeRecipe, models.JobStateFailed},
		{"job_l3", "", models.ParsingTypeNutritionLabel, models.JobStatePending},
	} {
		job := testJob(spec.id)
		job.BatchID = spec.batch
		job.ParsingType = spec.ptype
		job.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
		if err := store.Create(ctx, job); err != nil {
			t.Fatal(err)
		}
		if spec.state != models.JobStatePending {
			if _, err := store.Transition(ctx, spec.id, []models.JobState{models.JobStatePending}, spec.state, nil); err != nil {
				t.Fatal(err)
			}
		}
	}

	jobs, total, err := store.List(ctx, &interfaces.JobListOptions{
		States: []models.JobState{models.JobStateCompleted, models.JobStateFailed},
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(jobs) != 2 {
		t.Errorf("terminal filter: total = %d, len = %d", total, len(jobs))
	}

	jobs, total, err = store.List(ctx, &interfaces.JobListOptions{BatchID: "batch_a"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("batch filter total = %d", total)
	}

	jobs, total, err = store.List(ctx, &interfaces.JobListOptions{ParsingType: models.ParsingTypeNutritionLabel})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("type filter total = %d", total)
	}

	// Newest first with paging
	jobs, total, err = store.List(ctx, &interfaces.JobListOptions{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(jobs) != 2 {
		t.Fatalf("paged: total = %d, len = %d", total, len(jobs))
	}
	if !jobs[0].CreatedAt.After(jobs[1].CreatedAt) {
		t.Error("list not sorted newest first")
	}

	jobs, _, err = store.List(ctx, &interfaces.JobListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("last page len = %d, want 1", len(jobs))
	}
}

func TestJobStorageCleanup(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	old := testJob("job_old")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := store.Create(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Transition(ctx, old.ID, []models.JobState{models.JobStatePending}, models.JobStateCompleted, nil); err != nil {
		t.Fatal(err)
	}

	active := testJob("job_active_old")
	active.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := store.Create(ctx, active); err != nil {
		t.Fatal(err)
	}

	fresh := testJob("job_fresh")
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Transition(ctx, fresh.ID, []models.JobState{models.JobStatePending}, models.JobStateCompleted, nil); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.Cleanup(ctx, time.Now().Add(-24*time.Hour), nil)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != "job_old" {
		t.Fatalf("deleted = %+v, want only job_old", deleted)
	}

	// Non-terminal jobs survive even past the cutoff
	if _, err := store.Get(ctx, active.ID); err != nil {
		t.Errorf("active job removed: %v", err)
	}
	if _, err := store.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh job removed: %v", err)
	}
}

func TestJobStorageBatch(t *testing.T) {
	store := setupJobStorage(t)
	ctx := context.Background()

	batch := &models.Batch{
		ID:        "batch_test",
		JobIDs:    []string{"job_b1", "job_b2"},
		CreatedAt: time.Now(),
	}
	if err := store.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	got, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if len(got.JobIDs) != 2 {
		t.Errorf("job ids = %v", got.JobIDs)
	}

	if _, err := store.GetBatch(ctx, "batch_missing"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("missing GetBatch() error = %v, want not found", err)
	}
}
