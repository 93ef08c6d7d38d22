// Package processing owns task admission and the task lifecycle as seen
// by clients. Tasks are persisted before they are published so a broker
// outage never loses work.
package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/apperror"
	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/quota"
	"github.com/halftone-io/halftone/internal/storage"
	"github.com/halftone-io/halftone/internal/store"
)

// JobTypeProcessImage is the queue job type for image processing tasks.
const JobTypeProcessImage = "process_image"

// ProcessImagePayload carries only the task id. Everything else is read
// from the database at execution time so redeliveries always see current
// state.
type ProcessImagePayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// Broker publishes jobs to the queue.
type Broker interface {
	Enqueue(jobType string, payload any) (string, error)
}

type Service struct {
	images  store.ImageStore
	tasks   store.TaskStore
	ledger  *quota.Ledger
	broker  Broker
	objects storage.Storage

	presignExpirySeconds int
}

func NewService(images store.ImageStore, tasks store.TaskStore, ledger *quota.Ledger, broker Broker, objects storage.Storage, presignExpiry time.Duration) *Service {
	return &Service{
		images:               images,
		tasks:                tasks,
		ledger:               ledger,
		broker:               broker,
		objects:              objects,
		presignExpirySeconds: int(presignExpiry.Seconds()),
	}
}

type CreateTaskParams struct {
	ImageID          uuid.UUID
	ResizeEnabled    bool
	ResizePercentage int
	GrayscaleEnabled bool
}

// CreateTask admits a new processing task: the image must belong to the
// caller and the caller must have quota. The task row and its config are
// written atomically; publishing happens after, and a publish failure
// leaves the task pending for the stuck-task sweep to requeue or fail.
func (s *Service) CreateTask(ctx context.Context, userID uuid.UUID, params CreateTaskParams) (model.ProcessingTask, error) {
	log := logger.FromContext(ctx)

	img, err := s.images.GetByIDAndOwner(ctx, params.ImageID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.ProcessingTask{}, apperror.ErrNotFound
	}
	if err != nil {
		return model.ProcessingTask{}, fmt.Errorf("get image: %w", err)
	}

	if err := s.ledger.CheckAndConsume(ctx, userID); err != nil {
		return model.ProcessingTask{}, err
	}

	cfg, err := model.NewProcessingConfig(params.ResizeEnabled, params.ResizePercentage, params.GrayscaleEnabled)
	if err != nil {
		return model.ProcessingTask{}, apperror.WrapWithMessage(err, apperror.ErrInvalidConfiguration.Code, err.Error(), 400)
	}

	task, err := model.NewProcessingTask(img.ID, cfg)
	if err != nil {
		return model.ProcessingTask{}, apperror.WrapWithMessage(err, apperror.ErrInvalidConfiguration.Code, err.Error(), 400)
	}

	task, err = s.tasks.Create(ctx, task)
	if err != nil {
		return model.ProcessingTask{}, fmt.Errorf("create task: %w", err)
	}

	if _, err := s.broker.Enqueue(JobTypeProcessImage, ProcessImagePayload{TaskID: task.ID}); err != nil {
		log.Error("failed to publish task, left pending for sweep",
			"task_id", task.ID, "error", err)
		return task, nil
	}

	log.Info("task enqueued", "task_id", task.ID, "image_id", img.ID, "user_id", userID)
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, userID, taskID uuid.UUID) (model.ProcessingTask, error) {
	task, err := s.tasks.GetByIDForOwner(ctx, taskID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.ProcessingTask{}, apperror.ErrNotFound
	}
	if err != nil {
		return model.ProcessingTask{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *Service) ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.ProcessingTask, error) {
	tasks, err := s.tasks.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ResultURL returns a presigned download link for a completed task's
// artifact.
func (s *Service) ResultURL(ctx context.Context, userID, taskID uuid.UUID) (string, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return "", err
	}
	if task.Status != model.TaskStatusCompleted || task.ResultKey == nil {
		return "", apperror.New("result_not_ready", "task has no result to download", 409)
	}

	url, err := s.objects.GetPresignedURL(ctx, *task.ResultKey, s.presignExpirySeconds)
	if err != nil {
		return "", fmt.Errorf("presign result: %w", err)
	}
	return url, nil
}
