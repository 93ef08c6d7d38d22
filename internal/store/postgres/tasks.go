package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/store"
)

// TaskStore needs the pool rather than DBTX because task creation opens a
// transaction covering the task row and its owned config row.
type TaskStore struct {
	pool *pgxpool.Pool
}

var _ store.TaskStore = (*TaskStore)(nil)

const taskColumns = `
	t.id, t.image_id, t.status, t.result_key, t.error_message,
	t.created_at, t.updated_at, t.completed_at,
	c.id, c.resize_enabled, c.resize_percentage, c.grayscale_enabled, c.created_at`

func scanTask(row pgx.Row) (model.ProcessingTask, error) {
	var (
		t   model.ProcessingTask
		cfg model.ProcessingConfig
	)
	err := row.Scan(
		&t.ID, &t.ImageID, &t.Status, &t.ResultKey, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
		&cfg.ID, &cfg.ResizeEnabled, &cfg.ResizePercentage, &cfg.GrayscaleEnabled, &cfg.CreatedAt,
	)
	if err != nil {
		return model.ProcessingTask{}, err
	}
	cfg.TaskID = t.ID
	t.Config = &cfg
	return t, nil
}

func (s *TaskStore) Create(ctx context.Context, task model.ProcessingTask) (model.ProcessingTask, error) {
	if task.Config == nil {
		return model.ProcessingTask{}, fmt.Errorf("create task: config is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.ProcessingTask{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO processing_tasks (id, image_id, status)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, task.ID, task.ImageID, model.TaskStatusPending)
	if err := row.Scan(&task.CreatedAt, &task.UpdatedAt); err != nil {
		return model.ProcessingTask{}, fmt.Errorf("insert task: %w", err)
	}
	task.Status = model.TaskStatusPending

	cfg := task.Config
	row = tx.QueryRow(ctx, `
		INSERT INTO processing_configs (id, task_id, resize_enabled, resize_percentage, grayscale_enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, cfg.ID, task.ID, cfg.ResizeEnabled, cfg.ResizePercentage, cfg.GrayscaleEnabled)
	if err := row.Scan(&cfg.CreatedAt); err != nil {
		return model.ProcessingTask{}, fmt.Errorf("insert config: %w", err)
	}
	cfg.TaskID = task.ID

	if err := tx.Commit(ctx); err != nil {
		return model.ProcessingTask{}, fmt.Errorf("commit: %w", err)
	}
	return task, nil
}

func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (model.ProcessingTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM processing_tasks t
		JOIN processing_configs c ON c.task_id = t.id
		WHERE t.id = $1
	`
	task, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return model.ProcessingTask{}, mapNoRows(err)
	}
	return task, nil
}

func (s *TaskStore) GetByIDForOwner(ctx context.Context, id, ownerID uuid.UUID) (model.ProcessingTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM processing_tasks t
		JOIN processing_configs c ON c.task_id = t.id
		JOIN images i ON i.id = t.image_id
		WHERE t.id = $1 AND i.owner_id = $2
	`
	task, err := scanTask(s.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		return model.ProcessingTask{}, mapNoRows(err)
	}
	return task, nil
}

func (s *TaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.ProcessingTask, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + taskColumns + `
		FROM processing_tasks t
		JOIN processing_configs c ON c.task_id = t.id
		JOIN images i ON i.id = t.image_id
		WHERE i.owner_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.ProcessingTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// ClaimProcessing is the redelivery guard: the WHERE clause on status makes
// the claim a compare-and-swap, so only one delivery ever wins.
func (s *TaskStore) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, model.TaskStatusProcessing, id, model.TaskStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *TaskStore) MarkCompleted(ctx context.Context, id uuid.UUID, resultKey string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks
		SET status = $1, result_key = $2, error_message = NULL,
		    completed_at = now(), updated_at = now()
		WHERE id = $3 AND status = $4
	`, model.TaskStatusCompleted, resultKey, id, model.TaskStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *TaskStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks
		SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, model.TaskStatusFailed, message, id, model.TaskStatusPending, model.TaskStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *TaskStore) FailStuck(ctx context.Context, status model.TaskStatus, olderThan time.Duration, message string) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_tasks
		SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		WHERE status = $3 AND updated_at < $4
	`, model.TaskStatusFailed, message, status, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stuck tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}
