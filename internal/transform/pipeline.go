package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/storage"
)

// ErrNoOperations means the task's config enables no transforms. Checked
// at execution time, not admission.
var ErrNoOperations = errors.New("transform: config enables no operations")

// Pipeline runs a task's operations in order, staging multi-step output
// through the object store so each step reads its input the same way.
type Pipeline struct {
	store storage.Storage
}

func NewPipeline(store storage.Storage) *Pipeline {
	return &Pipeline{store: store}
}

// Run executes the task's configured operations against the source object
// and uploads the final artifact. It returns the result key. Any
// intermediate object is deleted before Run returns, on success and on
// failure alike.
func (p *Pipeline) Run(ctx context.Context, task model.ProcessingTask, sourceKey string) (string, error) {
	cfg := task.Config
	if cfg == nil || !cfg.HasOperations() {
		return "", ErrNoOperations
	}

	log := logger.FromContext(ctx)
	start := time.Now()

	src, err := p.store.Download(ctx, sourceKey)
	if err != nil {
		return "", fmt.Errorf("download source: %w", err)
	}
	defer src.Close()

	var result *Result
	switch {
	case cfg.ResizeEnabled && cfg.GrayscaleEnabled:
		resized, err := Resize(src, cfg.ResizePercentage)
		if err != nil {
			return "", err
		}

		interKey := storage.IntermediateKey(task.ID)
		size := int64(resized.Data.Len())
		if err := p.store.Upload(ctx, interKey, bytes.NewReader(resized.Data.Bytes()), resized.ContentType, size); err != nil {
			return "", fmt.Errorf("upload intermediate: %w", err)
		}
		defer func() {
			if err := p.store.Delete(ctx, interKey); err != nil {
				log.Warn("failed to delete intermediate artifact", "key", interKey, "error", err)
			}
		}()

		staged, err := p.store.Download(ctx, interKey)
		if err != nil {
			return "", fmt.Errorf("download intermediate: %w", err)
		}
		defer staged.Close()

		result, err = Grayscale(staged)
		if err != nil {
			return "", err
		}

	case cfg.ResizeEnabled:
		result, err = Resize(src, cfg.ResizePercentage)
		if err != nil {
			return "", err
		}

	default:
		result, err = Grayscale(src)
		if err != nil {
			return "", err
		}
	}

	resultKey := storage.ResultKey(task.ID, Ext(result.Format))
	size := int64(result.Data.Len())
	if err := p.store.Upload(ctx, resultKey, bytes.NewReader(result.Data.Bytes()), result.ContentType, size); err != nil {
		return "", fmt.Errorf("upload result: %w", err)
	}

	log.Debug("pipeline completed",
		"task_id", task.ID,
		"result_key", resultKey,
		"width", result.Width,
		"height", result.Height,
		"duration_ms", time.Since(start).Milliseconds())
	return resultKey, nil
}
