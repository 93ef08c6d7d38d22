package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/model"
)

func seedTask(t *testing.T, m *Memory, status model.TaskStatus) model.ProcessingTask {
	t.Helper()
	ctx := context.Background()

	img, err := model.NewImage(uuid.New(), "in.jpg", "image/jpeg", 100, "originals/in.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Images().Create(ctx, img); err != nil {
		t.Fatal(err)
	}

	cfg, _ := model.NewProcessingConfig(true, 50, false)
	task, err := model.NewProcessingTask(img.ID, cfg)
	if err != nil {
		t.Fatal(err)
	}
	task.Status = status
	created, err := m.Tasks().Create(ctx, task)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestClaimProcessing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task := seedTask(t, m, model.TaskStatusPending)

	ok, err := m.Tasks().ClaimProcessing(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	// Second claim simulates a redelivery; it must not win.
	ok, err = m.Tasks().ClaimProcessing(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("claim of a non-pending task should fail")
	}

	got, _ := m.Tasks().GetByID(ctx, task.ID)
	if got.Status != model.TaskStatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
}

func TestMarkCompletedRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task := seedTask(t, m, model.TaskStatusPending)

	ok, err := m.Tasks().MarkCompleted(ctx, task.ID, "results/x.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("completing a pending task should be rejected")
	}

	if _, err := m.Tasks().ClaimProcessing(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	ok, err = m.Tasks().MarkCompleted(ctx, task.ID, "results/x.jpg")
	if err != nil || !ok {
		t.Fatalf("complete after claim: ok=%v err=%v", ok, err)
	}

	got, _ := m.Tasks().GetByID(ctx, task.ID)
	if got.ResultKey == nil || *got.ResultKey != "results/x.jpg" {
		t.Error("result key not recorded")
	}
	if got.CompletedAt == nil {
		t.Error("completed task must have a completion time")
	}

	// Terminal states are absorbing.
	ok, _ = m.Tasks().MarkFailed(ctx, task.ID, "late failure")
	if ok {
		t.Error("failing a completed task should be rejected")
	}
	got, _ = m.Tasks().GetByID(ctx, task.ID)
	if got.Status != model.TaskStatusCompleted {
		t.Errorf("terminal status regressed to %s", got.Status)
	}
}

func TestMarkFailedFromPendingAndProcessing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	pending := seedTask(t, m, model.TaskStatusPending)
	ok, err := m.Tasks().MarkFailed(ctx, pending.ID, "swept")
	if err != nil || !ok {
		t.Fatalf("fail pending: ok=%v err=%v", ok, err)
	}

	processing := seedTask(t, m, model.TaskStatusProcessing)
	ok, err = m.Tasks().MarkFailed(ctx, processing.ID, "boom")
	if err != nil || !ok {
		t.Fatalf("fail processing: ok=%v err=%v", ok, err)
	}

	got, _ := m.Tasks().GetByID(ctx, processing.ID)
	if got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Error("error message not recorded")
	}
	if got.CompletedAt == nil {
		t.Error("failed task must have a completion time")
	}
}

func TestFailStuck(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Now().UTC()
	m.Now = func() time.Time { return base.Add(-time.Hour) }
	old := seedTask(t, m, model.TaskStatusProcessing)

	m.Now = func() time.Time { return base }
	fresh := seedTask(t, m, model.TaskStatusProcessing)

	n, err := m.Tasks().FailStuck(ctx, model.TaskStatusProcessing, 30*time.Minute, "stuck in processing")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d tasks, want 1", n)
	}

	gotOld, _ := m.Tasks().GetByID(ctx, old.ID)
	if gotOld.Status != model.TaskStatusFailed {
		t.Error("old task should be force-failed")
	}
	gotFresh, _ := m.Tasks().GetByID(ctx, fresh.ID)
	if gotFresh.Status != model.TaskStatusProcessing {
		t.Error("fresh task should be untouched")
	}
}

func TestQuotaConsumeNeverOversubscribes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	userID := uuid.New()
	if err := m.Quotas().Ensure(ctx, userID); err != nil {
		t.Fatal(err)
	}

	const limit = 5
	var wg sync.WaitGroup
	consumed := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.Quotas().Consume(ctx, userID, limit)
			if err != nil {
				t.Error(err)
				return
			}
			consumed <- ok
		}()
	}
	wg.Wait()
	close(consumed)

	var wins int
	for ok := range consumed {
		if ok {
			wins++
		}
	}
	if wins != limit {
		t.Errorf("%d consumptions succeeded, want exactly %d", wins, limit)
	}

	q, _ := m.Quotas().Get(ctx, userID)
	if q.UsedToday != limit {
		t.Errorf("used_today = %d, want %d", q.UsedToday, limit)
	}
}

func TestOwnershipScoping(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task := seedTask(t, m, model.TaskStatusPending)

	img, _ := m.Images().GetByID(ctx, task.ImageID)

	if _, err := m.Tasks().GetByIDForOwner(ctx, task.ID, img.OwnerID); err != nil {
		t.Errorf("owner should see their task: %v", err)
	}
	if _, err := m.Tasks().GetByIDForOwner(ctx, task.ID, uuid.New()); err != ErrNotFound {
		t.Errorf("foreign caller should get ErrNotFound, got %v", err)
	}
	if _, err := m.Images().GetByIDAndOwner(ctx, img.ID, uuid.New()); err != ErrNotFound {
		t.Errorf("foreign caller should get ErrNotFound for image, got %v", err)
	}
}
