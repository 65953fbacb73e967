package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bolagsradar/internal/models"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job_storage_test.db")
	db, err := Open(arbor.NewLogger(), &Config{
		Path:          path,
		Environment:   "development",
		BusyTimeoutMS: 5000,
		CacheSizeMB:   4,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewJobStore(db, arbor.NewLogger())
}

func TestAddJobsDeduplicatesOrgNumbers(t *testing.T) {
	store := newTestStore(t)
	orgNrs := []models.OrgNumber{"5560360793", "6969697979"}

	n, err := store.AddJobs(context.Background(), orgNrs, 1, models.StageDiscovery)
	if err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if n != 2 {
		t.Fatalf("AddJobs() = %d, want 2 new rows", n)
	}

	n, err = store.AddJobs(context.Background(), orgNrs, 1, models.StageDiscovery)
	if err != nil {
		t.Fatalf("AddJobs (repeat): %v", err)
	}
	if n != 0 {
		t.Errorf("AddJobs() on already-known org numbers = %d, want 0", n)
	}
}

func TestClaimNextOrdersByPriorityThenAge(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{"5560360793"}, 1, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs low priority: %v", err)
	}
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{"6969697979"}, 5, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs high priority: %v", err)
	}

	jobs, err := store.ClaimNext(context.Background(), models.StageDiscovery, 10)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("ClaimNext() = %d jobs, want 2", len(jobs))
	}
	if jobs[0].OrgNr != "6969697979" {
		t.Errorf("ClaimNext()[0] = %s, want the higher-priority job first", jobs[0].OrgNr)
	}
	if jobs[0].Status != models.StatusInProgress {
		t.Errorf("claimed job status = %s, want in_progress", jobs[0].Status)
	}
}

func TestClaimNextExcludesCooledDownJobs(t *testing.T) {
	store := newTestStore(t)
	orgNr := models.OrgNumber("5560360793")
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{orgNr}, 0, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if err := store.BlockJob(context.Background(), orgNr, "example.se", "captcha", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("BlockJob: %v", err)
	}

	jobs, err := store.ClaimNext(context.Background(), models.StageDiscovery, 10)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("ClaimNext() while blocked = %d jobs, want 0", len(jobs))
	}
}

func TestCompleteStageAdvancesToNextStageAndResetsAttempts(t *testing.T) {
	store := newTestStore(t)
	orgNr := models.OrgNumber("5560360793")
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{orgNr}, 0, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if _, err := store.ClaimNext(context.Background(), models.StageDiscovery, 10); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := store.CompleteStage(context.Background(), orgNr, models.StageDiscovery, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	jobs, err := store.ClaimNext(context.Background(), models.StageRegistry, 10)
	if err != nil {
		t.Fatalf("ClaimNext(registry): %v", err)
	}
	if len(jobs) != 1 || jobs[0].OrgNr != orgNr {
		t.Fatalf("job did not advance to the registry stage: %+v", jobs)
	}

	payload, err := store.GetStagePayload(context.Background(), orgNr, models.StageDiscovery)
	if err != nil {
		t.Fatalf("GetStagePayload: %v", err)
	}
	if string(payload.Payload) != `{"ok":true}` {
		t.Errorf("GetStagePayload().Payload = %q, want the written JSON", payload.Payload)
	}
}

func TestCompleteStageOnFinalStageMarksCompleted(t *testing.T) {
	store := newTestStore(t)
	orgNr := models.OrgNumber("5560360793")
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{orgNr}, 0, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if err := store.CompleteStage(context.Background(), orgNr, models.StageScraped, []byte(`{}`)); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Counts[models.StageScraped][models.StatusCompleted] != 1 {
		t.Errorf("Stats after completing the final stage: want 1 completed scraped job, got %+v", stats.Counts)
	}
}

func TestFailJobIncrementsAttemptsAndRespectsGiveUp(t *testing.T) {
	store := newTestStore(t)
	orgNr := models.OrgNumber("5560360793")
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{orgNr}, 0, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}

	if err := store.FailJob(context.Background(), orgNr, "boom", false); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	jobs, err := store.ClaimNext(context.Background(), models.StageDiscovery, 10)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Attempts != 1 {
		t.Fatalf("job after one non-give-up failure: want attempts=1 and still claimable, got %+v", jobs)
	}

	if err := store.FailJob(context.Background(), orgNr, "boom again", true); err != nil {
		t.Fatalf("FailJob (give up): %v", err)
	}
	jobs, err = store.ClaimNext(context.Background(), models.StageDiscovery, 10)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("job after giving up should no longer be claimable, got %+v", jobs)
	}
}

func TestResetBlockedReturnsCooledDownJobsToPending(t *testing.T) {
	store := newTestStore(t)
	orgNr := models.OrgNumber("5560360793")
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{orgNr}, 0, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if err := store.BlockJob(context.Background(), orgNr, "example.se", "captcha", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("BlockJob: %v", err)
	}

	n, err := store.ResetBlocked(context.Background())
	if err != nil {
		t.Fatalf("ResetBlocked: %v", err)
	}
	if n != 1 {
		t.Fatalf("ResetBlocked() = %d, want 1", n)
	}

	jobs, err := store.ClaimNext(context.Background(), models.StageDiscovery, 10)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("job should be claimable again after its cool-down elapsed, got %d", len(jobs))
	}
}

func TestResetInProgressRecoversStaleJobs(t *testing.T) {
	store := newTestStore(t)
	orgNr := models.OrgNumber("5560360793")
	if _, err := store.AddJobs(context.Background(), []models.OrgNumber{orgNr}, 0, models.StageDiscovery); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if _, err := store.ClaimNext(context.Background(), models.StageDiscovery, 10); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	n, err := store.ResetInProgress(context.Background(), -time.Hour)
	if err != nil {
		t.Fatalf("ResetInProgress: %v", err)
	}
	if n != 1 {
		t.Fatalf("ResetInProgress() = %d, want 1 recovered job", n)
	}

	jobs, err := store.ClaimNext(context.Background(), models.StageDiscovery, 10)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("recovered job should be claimable again, got %d", len(jobs))
	}
}

func TestLogRequestDoesNotError(t *testing.T) {
	store := newTestStore(t)
	orgNr := models.OrgNumber("5560360793")
	status := 200
	durationMs := 42
	err := store.LogRequest(context.Background(), &orgNr, "example.se", "https://example.se/x", &status, "ok", 1, &durationMs)
	if err != nil {
		t.Fatalf("LogRequest: %v", err)
	}
}

func TestGetStagePayloadNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetStagePayload(context.Background(), models.OrgNumber("5560360793"), models.StageDiscovery)
	if err != ErrJobNotFound {
		t.Errorf("GetStagePayload for an unwritten stage: want ErrJobNotFound, got %v", err)
	}
}
