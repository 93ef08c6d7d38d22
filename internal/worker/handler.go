// Package worker executes processing tasks delivered over the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/metrics"
	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/notify"
	"github.com/halftone-io/halftone/internal/processing"
	"github.com/halftone-io/halftone/internal/store"
	"github.com/halftone-io/halftone/internal/transform"
)

type Dependencies struct {
	Tasks    store.TaskStore
	Images   store.ImageStore
	Users    store.UserStore
	Pipeline *transform.Pipeline
	Notifier notify.Notifier
}

// ProcessImageHandler consumes process_image jobs.
func ProcessImageHandler(deps *Dependencies) func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		log := logger.FromContext(ctx).With("job_id", j.ID, "job_type", processing.JobTypeProcessImage)

		var payload processing.ProcessImagePayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return middleware.Permanent(fmt.Errorf("invalid payload: %w", err))
		}

		return deps.ProcessTask(logger.WithLogger(ctx, log), payload.TaskID)
	}
}

// ProcessTask runs one delivery of a task through the full lifecycle.
// Redeliveries of tasks that already left PENDING are acknowledged without
// side effects; the conditional claim is the only gate.
func (deps *Dependencies) ProcessTask(ctx context.Context, taskID uuid.UUID) error {
	log := logger.FromContext(ctx).With("task_id", taskID.String())
	ctx = logger.WithTaskID(logger.WithLogger(ctx, log), taskID.String())
	log.Info("task processing started")
	start := time.Now()

	task, err := deps.Tasks.GetByID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("task no longer exists, dropping message")
		return nil
	}
	if err != nil {
		log.Error("failed to load task", "error", err)
		return fmt.Errorf("load task: %w", err)
	}

	claimed, err := deps.Tasks.ClaimProcessing(ctx, task.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("task disappeared before claim, dropping message")
			return nil
		}
		log.Error("failed to claim task", "error", err)
		return fmt.Errorf("claim task: %w", err)
	}
	if !claimed {
		log.Info("task already claimed or terminal, skipping redelivery", "status", task.Status)
		return nil
	}
	task.Status = model.TaskStatusProcessing

	img, err := deps.Images.GetByID(ctx, task.ImageID)
	if errors.Is(err, store.ErrNotFound) {
		return deps.failTask(ctx, task, errors.New("source image no longer exists"))
	}
	if err != nil {
		return deps.failTask(ctx, task, fmt.Errorf("load image: %w", err))
	}

	resultKey, err := deps.Pipeline.Run(ctx, task, img.StorageKey)
	if err != nil {
		return deps.failTask(ctx, task, err)
	}

	ok, err := deps.Tasks.MarkCompleted(ctx, task.ID, resultKey)
	if err != nil {
		log.Error("failed to record completion", "error", err)
		return fmt.Errorf("record completion: %w", err)
	}
	if !ok {
		// the sweep beat us to a terminal state; the result object stays
		// but the task's recorded outcome wins
		log.Warn("task left processing state before completion was recorded")
		return nil
	}
	task.Status = model.TaskStatusCompleted
	task.ResultKey = &resultKey

	metrics.TasksFinishedTotal.WithLabelValues("completed").Inc()
	metrics.TaskProcessingDuration.Observe(time.Since(start).Seconds())

	deps.notifyOutcome(ctx, img.OwnerID, task, img.OriginalFilename, "")

	log.Info("task completed", "result_key", resultKey, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// failTask records the failure and acknowledges the message. Retrying is
// pointless once the task is terminal, so the error goes back as permanent.
func (deps *Dependencies) failTask(ctx context.Context, task model.ProcessingTask, cause error) error {
	log := logger.FromContext(ctx)

	ok, err := deps.Tasks.MarkFailed(ctx, task.ID, cause.Error())
	if err != nil {
		log.Error("failed to record task failure", "cause", cause, "error", err)
		return fmt.Errorf("record failure: %w", err)
	}
	if !ok {
		log.Warn("task already terminal, failure not recorded", "cause", cause)
		return nil
	}

	metrics.TasksFinishedTotal.WithLabelValues("failed").Inc()
	log.Info("task failed", "reason", cause.Error())

	if img, imgErr := deps.Images.GetByID(ctx, task.ImageID); imgErr == nil {
		task.Status = model.TaskStatusFailed
		deps.notifyOutcome(ctx, img.OwnerID, task, img.OriginalFilename, cause.Error())
	}

	return middleware.Permanent(cause)
}

func (deps *Dependencies) notifyOutcome(ctx context.Context, ownerID uuid.UUID, task model.ProcessingTask, filename, reason string) {
	log := logger.FromContext(ctx)

	user, err := deps.Users.GetByID(ctx, ownerID)
	if err != nil {
		log.Warn("cannot notify task owner", "task_id", task.ID, "user_id", ownerID, "error", err)
		return
	}

	switch task.Status {
	case model.TaskStatusCompleted:
		deps.Notifier.TaskCompleted(ctx, user, task, filename)
	case model.TaskStatusFailed:
		deps.Notifier.TaskFailed(ctx, user, task, filename, reason)
	}
}
