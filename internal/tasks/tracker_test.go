package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/flitdev/flit/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	dsn := fmt.Sprintf("file:tasks_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.StoredFile{}, &models.HashTask{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return NewTracker(db)
}

func TestEnqueueAndGet(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	task, err := tracker.Enqueue(ctx, 7, 100)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if task.ID == 0 {
		t.Error("task not persisted")
	}

	loaded, err := tracker.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.FileID != 7 {
		t.Errorf("FileID = %d, want 7", loaded.FileID)
	}
	if loaded.Status != models.HashStatusPending {
		t.Errorf("Status = %q, want pending", loaded.Status)
	}
	if loaded.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want schema default 3", loaded.MaxRetries)
	}

	if _, err := tracker.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestClaimNextOrdering(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	// Two tasks at default priority, one urgent
	first, err := tracker.Enqueue(ctx, 1, 100)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second, err := tracker.Enqueue(ctx, 2, 100)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	urgent, err := tracker.Enqueue(ctx, 3, 10)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	claimed, err := tracker.ClaimNext(ctx, "worker-1")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed.ID != urgent.ID {
		t.Errorf("claimed %d, want urgent task %d first", claimed.ID, urgent.ID)
	}
	if claimed.Status != models.HashStatusProcessing {
		t.Errorf("Status = %q, want processing", claimed.Status)
	}
	if claimed.WorkerID == nil || *claimed.WorkerID != "worker-1" {
		t.Errorf("WorkerID = %v, want worker-1", claimed.WorkerID)
	}

	// Equal priority falls back to insertion order
	claimed, err = tracker.ClaimNext(ctx, "worker-2")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed.ID != first.ID {
		t.Errorf("claimed %d, want oldest task %d", claimed.ID, first.ID)
	}

	claimed, err = tracker.ClaimNext(ctx, "worker-1")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed.ID != second.ID {
		t.Errorf("claimed %d, want %d", claimed.ID, second.ID)
	}

	if _, err := tracker.ClaimNext(ctx, "worker-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty queue: got %v, want ErrNotFound", err)
	}
}

func TestProgressAndCompletion(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	task, err := tracker.Enqueue(ctx, 1, 100)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := tracker.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	detail := models.TaskDetail{BytesHashed: 4096, ChunkSize: 1024}
	if err := tracker.UpdateProgress(ctx, task.ID, 40, detail); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	loaded, err := tracker.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Progress != 40 {
		t.Errorf("Progress = %d, want 40", loaded.Progress)
	}
	if got := loaded.Detail.Data(); got.BytesHashed != 4096 || got.ChunkSize != 1024 {
		t.Errorf("Detail = %+v, want recorded progress detail", got)
	}

	if err := tracker.MarkCompleted(ctx, task.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	loaded, err = tracker.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Status != models.HashStatusCompleted {
		t.Errorf("Status = %q, want completed", loaded.Status)
	}
	if loaded.Progress != 100 {
		t.Errorf("Progress = %d, want forced to 100", loaded.Progress)
	}
	if loaded.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestRetryBudget(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	task, err := tracker.Enqueue(ctx, 1, 100)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// pending tasks are not retryable
	if err := tracker.Retry(ctx, task.ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("retry pending: got %v, want ErrNotRetryable", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := tracker.ClaimNext(ctx, "worker-1"); err != nil {
			t.Fatalf("claim %d failed: %v", attempt, err)
		}
		if err := tracker.MarkFailed(ctx, task.ID, "checksum mismatch"); err != nil {
			t.Fatalf("fail %d failed: %v", attempt, err)
		}
		err := tracker.Retry(ctx, task.ID)
		if attempt < 3 {
			if err != nil {
				t.Fatalf("retry %d failed: %v", attempt, err)
			}
			loaded, err := tracker.Get(ctx, task.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if loaded.Status != models.HashStatusPending || loaded.RetryCount != attempt {
				t.Errorf("after retry %d: status=%q retries=%d", attempt, loaded.Status, loaded.RetryCount)
			}
			if loaded.WorkerID != nil || loaded.ErrorMessage != "" {
				t.Errorf("retry %d did not clear processing state", attempt)
			}
		} else {
			// MaxRetries defaults to 3 but the third claim happens at
			// RetryCount 2, so this final failure still has budget.
			if err != nil {
				t.Fatalf("retry %d failed: %v", attempt, err)
			}
		}
	}

	// Budget now exhausted: fail once more and retry must be refused.
	if _, err := tracker.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("final claim failed: %v", err)
	}
	if err := tracker.MarkFailed(ctx, task.ID, "checksum mismatch"); err != nil {
		t.Fatalf("final fail failed: %v", err)
	}
	if err := tracker.Retry(ctx, task.ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("retry past budget: got %v, want ErrNotRetryable", err)
	}

	if err := tracker.Retry(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("retry missing: got %v, want ErrNotFound", err)
	}
}
