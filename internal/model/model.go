package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Username  string
	CreatedAt time.Time
}

// Image is an immutable reference to uploaded content. Tasks point at
// images by id; deleting an image does not touch the tasks referencing it.
type Image struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	OriginalFilename string
	ContentType      string
	SizeBytes        int64
	StorageKey       string
	CreatedAt        time.Time
}

// ProcessingConfig is the requested operation set for a single task. It is
// exclusively owned by that task and deleted with it.
type ProcessingConfig struct {
	ID               uuid.UUID
	TaskID           uuid.UUID
	ResizeEnabled    bool
	ResizePercentage int
	GrayscaleEnabled bool
	CreatedAt        time.Time
}

// HasOperations reports whether at least one transform is requested. This
// is checked at execution time, not at admission; a task with an empty
// config is created normally and fails when the worker picks it up.
func (c ProcessingConfig) HasOperations() bool {
	return c.ResizeEnabled || c.GrayscaleEnabled
}

type ProcessingTask struct {
	ID           uuid.UUID
	ImageID      uuid.UUID
	Status       TaskStatus
	ResultKey    *string
	ErrorMessage *string
	Config       *ProcessingConfig
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// QuotaUsage is the per-user daily counter. One row per user, upserted
// lazily on first use.
type QuotaUsage struct {
	UserID        uuid.UUID
	UsedToday     int
	LastResetDate time.Time
	UpdatedAt     time.Time
}

type Plan struct {
	ID                uuid.UUID
	Name              string
	DailyQuota        int
	IsPremium         bool
	MonthlyPriceCents int64
}

type Subscription struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	PlanID    uuid.UUID
	StartDate time.Time
	EndDate   *time.Time
	Active    bool
}

// IsCurrent reports whether the subscription is active at the given time.
func (s Subscription) IsCurrent(at time.Time) bool {
	if !s.Active {
		return false
	}
	if at.Before(s.StartDate) {
		return false
	}
	if s.EndDate != nil && at.After(*s.EndDate) {
		return false
	}
	return true
}

// NewProcessingConfig validates parameter ranges. The at-least-one-operation
// rule is deliberately not enforced here; see HasOperations.
func NewProcessingConfig(resizeEnabled bool, resizePercentage int, grayscaleEnabled bool) (ProcessingConfig, error) {
	if resizeEnabled && (resizePercentage < 1 || resizePercentage > 100) {
		return ProcessingConfig{}, fmt.Errorf("resize percentage must be between 1 and 100, got %d", resizePercentage)
	}
	return ProcessingConfig{
		ID:               uuid.New(),
		ResizeEnabled:    resizeEnabled,
		ResizePercentage: resizePercentage,
		GrayscaleEnabled: grayscaleEnabled,
	}, nil
}

// NewProcessingTask builds a PENDING task owning the given config.
func NewProcessingTask(imageID uuid.UUID, cfg ProcessingConfig) (ProcessingTask, error) {
	if imageID == uuid.Nil {
		return ProcessingTask{}, fmt.Errorf("task requires a source image")
	}
	id := uuid.New()
	cfg.TaskID = id
	now := time.Now().UTC()
	return ProcessingTask{
		ID:        id,
		ImageID:   imageID,
		Status:    TaskStatusPending,
		Config:    &cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewImage validates the fields every stored image must carry.
func NewImage(ownerID uuid.UUID, filename, contentType string, sizeBytes int64, storageKey string) (Image, error) {
	if ownerID == uuid.Nil {
		return Image{}, fmt.Errorf("image requires an owner")
	}
	if storageKey == "" {
		return Image{}, fmt.Errorf("image requires a storage key")
	}
	if sizeBytes <= 0 {
		return Image{}, fmt.Errorf("image size must be positive, got %d", sizeBytes)
	}
	if filename == "" {
		filename = "unknown"
	}
	return Image{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		OriginalFilename: filename,
		ContentType:      contentType,
		SizeBytes:        sizeBytes,
		StorageKey:       storageKey,
		CreatedAt:        time.Now().UTC(),
	}, nil
}
