// Package images handles upload, listing, and deletion of source images.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/apperror"
	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/quota"
	"github.com/halftone-io/halftone/internal/storage"
	"github.com/halftone-io/halftone/internal/store"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

type Service struct {
	images  store.ImageStore
	ledger  *quota.Ledger
	objects storage.Storage

	maxUploadSize        int64
	presignExpirySeconds int
}

func NewService(images store.ImageStore, ledger *quota.Ledger, objects storage.Storage, maxUploadSize int64, presignExpiry time.Duration) *Service {
	return &Service{
		images:               images,
		ledger:               ledger,
		objects:              objects,
		maxUploadSize:        maxUploadSize,
		presignExpirySeconds: int(presignExpiry.Seconds()),
	}
}

// Upload stores a new image for the user. Uploads draw from the same
// daily allowance as processing tasks.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, filename string, reader io.Reader) (model.Image, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if err := s.ledger.CheckAndConsume(ctx, userID); err != nil {
		return model.Image{}, err
	}

	data, err := io.ReadAll(io.LimitReader(reader, s.maxUploadSize+1))
	if err != nil {
		return model.Image{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUploadSize {
		return model.Image{}, apperror.New("file_too_large",
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxUploadSize), 413)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Image{}, apperror.Wrap(err, apperror.ErrInvalidImage)
	}
	contentType := "image/" + format

	imageID := uuid.New()
	key := storage.OriginalKey(userID, imageID, filename)

	img, err := model.NewImage(userID, filename, contentType, int64(len(data)), key)
	if err != nil {
		return model.Image{}, apperror.WrapWithMessage(err, "bad_request", err.Error(), 400)
	}
	img.ID = imageID

	if err := s.objects.Upload(ctx, key, bytes.NewReader(data), contentType, int64(len(data))); err != nil {
		return model.Image{}, apperror.Wrap(err, apperror.ErrStorageFailed)
	}

	img, err = s.images.Create(ctx, img)
	if err != nil {
		// best effort cleanup of the orphaned object
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			log.Warn("failed to clean up orphaned upload", "key", key, "error", delErr)
		}
		return model.Image{}, fmt.Errorf("create image: %w", err)
	}

	log.Info("image uploaded",
		"image_id", img.ID,
		"user_id", userID,
		"size", img.SizeBytes,
		"format", format,
		"width", cfg.Width,
		"height", cfg.Height,
		"duration_ms", time.Since(start).Milliseconds())
	return img, nil
}

func (s *Service) Get(ctx context.Context, userID, imageID uuid.UUID) (model.Image, error) {
	img, err := s.images.GetByIDAndOwner(ctx, imageID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Image{}, apperror.ErrNotFound
	}
	if err != nil {
		return model.Image{}, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Image, error) {
	out, err := s.images.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return out, nil
}

// DownloadURL returns a presigned link to the original upload.
func (s *Service) DownloadURL(ctx context.Context, userID, imageID uuid.UUID) (string, error) {
	img, err := s.Get(ctx, userID, imageID)
	if err != nil {
		return "", err
	}
	url, err := s.objects.GetPresignedURL(ctx, img.StorageKey, s.presignExpirySeconds)
	if err != nil {
		return "", fmt.Errorf("presign image: %w", err)
	}
	return url, nil
}

// Delete removes the image record and its stored object. Tasks already
// referencing the image are untouched; in-flight ones fail when they try
// to read the missing object.
func (s *Service) Delete(ctx context.Context, userID, imageID uuid.UUID) error {
	img, err := s.Get(ctx, userID, imageID)
	if err != nil {
		return err
	}

	if err := s.images.Delete(ctx, imageID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.ErrNotFound
		}
		return fmt.Errorf("delete image: %w", err)
	}

	if err := s.objects.Delete(ctx, img.StorageKey); err != nil {
		logger.FromContext(ctx).Warn("failed to delete stored object",
			"image_id", imageID, "key", img.StorageKey, "error", err)
	}

	logger.FromContext(ctx).Info("image deleted", "image_id", imageID, "user_id", userID)
	return nil
}
