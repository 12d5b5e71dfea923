// Package tasks tracks asynchronous digest-computation jobs. The content
// store currently hashes uploads synchronously, so nothing enqueues tasks in
// the default wiring; the tracker stands ready for an upload path that defers
// hashing of large files to background workers.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/flitdev/flit/internal/database/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a task id does not exist, or when ClaimNext
	// finds an empty queue.
	ErrNotFound = errors.New("task not found")
	// ErrNotRetryable is returned when Retry is called on a task that is not
	// failed or has exhausted its retry budget.
	ErrNotRetryable = errors.New("task cannot be retried")
)

// Tracker provides queue-shaped operations over hash tasks.
type Tracker struct {
	db *gorm.DB
}

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// Enqueue creates a pending task for a stored file. Lower priority values are
// claimed first.
func (t *Tracker) Enqueue(ctx context.Context, fileID uint, priority int) (models.HashTask, error) {
	task := models.HashTask{
		FileID:   fileID,
		Status:   models.HashStatusPending,
		Priority: priority,
	}
	if err := t.db.WithContext(ctx).Create(&task).Error; err != nil {
		return models.HashTask{}, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return task, nil
}

// Get returns a task by id.
func (t *Tracker) Get(ctx context.Context, id uint) (models.HashTask, error) {
	var task models.HashTask
	err := t.db.WithContext(ctx).First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.HashTask{}, ErrNotFound
	}
	return task, err
}

// ClaimNext atomically claims the pending task with the lowest priority value,
// oldest first within a priority. The claim marks the task processing and
// binds it to the worker. ErrNotFound means the queue is empty.
func (t *Tracker) ClaimNext(ctx context.Context, workerID string) (models.HashTask, error) {
	var task models.HashTask
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ?", models.HashStatusPending).
			Order("priority ASC").
			Order("created_at ASC").
			Order("id ASC").
			First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		task.MarkProcessing(workerID)

		// Guard the status in the WHERE clause so two workers racing for the
		// same row cannot both claim it.
		res := tx.Model(&models.HashTask{}).
			Where("id = ? AND status = ?", task.ID, models.HashStatusPending).
			Updates(map[string]any{
				"status":     task.Status,
				"started_at": task.StartedAt,
				"worker_id":  task.WorkerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return models.HashTask{}, err
	}
	return task, nil
}

// UpdateProgress records incremental hashing progress, clamped to [0, 100].
func (t *Tracker) UpdateProgress(ctx context.Context, id uint, progress int, detail models.TaskDetail) error {
	task, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	task.UpdateProgress(progress)
	task.Detail = datatypes.NewJSONType(detail)

	return t.db.WithContext(ctx).Model(&models.HashTask{}).Where("id = ?", id).
		Updates(map[string]any{
			"progress": task.Progress,
			"detail":   task.Detail,
		}).Error
}

// MarkCompleted finishes a task, forcing progress to 100.
func (t *Tracker) MarkCompleted(ctx context.Context, id uint) error {
	task, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	task.MarkCompleted()

	return t.db.WithContext(ctx).Model(&models.HashTask{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":       task.Status,
			"completed_at": task.CompletedAt,
			"progress":     task.Progress,
		}).Error
}

// MarkFailed finishes a task with an error message.
func (t *Tracker) MarkFailed(ctx context.Context, id uint, errMsg string) error {
	task, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	task.MarkFailed(errMsg)

	return t.db.WithContext(ctx).Model(&models.HashTask{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":        task.Status,
			"completed_at":  task.CompletedAt,
			"error_message": task.ErrorMessage,
		}).Error
}

// Retry resets a failed task to pending, clearing all processing state.
// Only allowed while status is failed and the retry budget is not exhausted.
func (t *Tracker) Retry(ctx context.Context, id uint) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.HashTask
		if err := tx.First(&task, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !task.Retry() {
			return fmt.Errorf("%w: status=%s retries=%d/%d",
				ErrNotRetryable, task.Status, task.RetryCount, task.MaxRetries)
		}

		return tx.Model(&models.HashTask{}).Where("id = ?", id).
			Updates(map[string]any{
				"status":        task.Status,
				"retry_count":   task.RetryCount,
				"started_at":    nil,
				"completed_at":  nil,
				"error_message": "",
				"progress":      0,
				"worker_id":     nil,
				"detail":        task.Detail,
			}).Error
	})
}
