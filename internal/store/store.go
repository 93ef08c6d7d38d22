// Package store defines per-entity repository interfaces over plain data
// records. Implementations live in store/postgres for durable persistence
// and in this package's memory.go for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/model"
)

var ErrNotFound = errors.New("store: not found")

type UserStore interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

type ImageStore interface {
	Create(ctx context.Context, img model.Image) (model.Image, error)
	// GetByID is unscoped; the worker resolves images without a caller.
	GetByID(ctx context.Context, id uuid.UUID) (model.Image, error)
	// GetByIDAndOwner returns ErrNotFound for images owned by someone else.
	GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (model.Image, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Image, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
}

type TaskStore interface {
	// Create persists the task and its owned config as one atomic unit.
	Create(ctx context.Context, task model.ProcessingTask) (model.ProcessingTask, error)
	// GetByID eager-loads the owned config.
	GetByID(ctx context.Context, id uuid.UUID) (model.ProcessingTask, error)
	// GetByIDForOwner scopes through the source image's owner.
	GetByIDForOwner(ctx context.Context, id, ownerID uuid.UUID) (model.ProcessingTask, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.ProcessingTask, error)

	// ClaimProcessing conditionally moves PENDING -> PROCESSING. It returns
	// false without error when the task is not PENDING, which is how a
	// redelivered message discovers it has nothing to do.
	ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkCompleted conditionally moves PROCESSING -> COMPLETED, recording
	// the result key and completion time and clearing any error message.
	MarkCompleted(ctx context.Context, id uuid.UUID, resultKey string) (bool, error)
	// MarkFailed conditionally moves PENDING or PROCESSING -> FAILED with a
	// human-readable message and a completion time.
	MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error)
	// FailStuck force-fails every task in the given transient status whose
	// last update is older than the cutoff. Returns the number failed.
	FailStuck(ctx context.Context, status model.TaskStatus, olderThan time.Duration, message string) (int64, error)
}

type QuotaStore interface {
	Get(ctx context.Context, userID uuid.UUID) (model.QuotaUsage, error)
	// Ensure lazily creates the user's row with a zero counter.
	Ensure(ctx context.Context, userID uuid.UUID) error
	// ResetIfStale zeroes the counter and advances last_reset_date when the
	// recorded reset predates staleBefore. Returns whether a reset happened.
	ResetIfStale(ctx context.Context, userID uuid.UUID, staleBefore time.Time) (bool, error)
	// Consume atomically increments used_today when it is below limit. The
	// returned usage reflects the row after the attempt; ok reports whether
	// the unit was consumed. Two racing callers can never both take the
	// last unit.
	Consume(ctx context.Context, userID uuid.UUID, limit int) (model.QuotaUsage, bool, error)
	// ResetAll zeroes every used counter and advances last_reset_date to
	// resetTime; last_reset_date never moves backwards. Returns the number
	// of rows changed. Each row update is atomic; the sweep as a whole is
	// not.
	ResetAll(ctx context.Context, resetTime time.Time) (int64, error)
}

type SubscriptionStore interface {
	// GetActivePlan resolves the user's single active subscription and its
	// plan; ErrNotFound when the user has none.
	GetActivePlan(ctx context.Context, userID uuid.UUID) (model.Subscription, model.Plan, error)
}
