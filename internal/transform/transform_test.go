package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/storage"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestResize(t *testing.T) {
	src := testPNG(t, 100, 60)

	res, err := Resize(bytes.NewReader(src), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Width)
	assert.Equal(t, 30, res.Height)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, "image/png", res.ContentType)
}

func TestResizeInvalidPercentage(t *testing.T) {
	src := testPNG(t, 10, 10)

	for _, pct := range []int{0, -5, 101} {
		_, err := Resize(bytes.NewReader(src), pct)
		assert.ErrorIs(t, err, ErrInvalidPercent, "percentage %d", pct)
	}
}

func TestResizeFloorsAtOnePixel(t *testing.T) {
	src := testPNG(t, 10, 10)

	res, err := Resize(bytes.NewReader(src), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Width)
	assert.Equal(t, 1, res.Height)
}

func TestGrayscale(t *testing.T) {
	src := testPNG(t, 40, 40)

	res, err := Grayscale(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 40, res.Height)

	decoded, err := imaging.Decode(bytes.NewReader(res.Data.Bytes()))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(20, 5).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestDecodeFailure(t *testing.T) {
	_, err := Grayscale(strings.NewReader("not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func uuidMust() uuid.UUID {
	return uuid.New()
}

// failAfterIntermediate lets the intermediate upload through, then fails
// the result upload.
type failAfterIntermediate struct {
	*storage.MemoryStorage
	failKey string
}

func (f *failAfterIntermediate) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Upload(ctx, key, reader, contentType, size)
}

func newTask(t *testing.T, resize bool, pct int, gray bool) model.ProcessingTask {
	t.Helper()
	cfg, err := model.NewProcessingConfig(resize, pct, gray)
	require.NoError(t, err)
	task, err := model.NewProcessingTask(uuidMust(), cfg)
	require.NoError(t, err)
	return task
}

func TestPipelineResizeAndGrayscale(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	src := testPNG(t, 80, 80)
	require.NoError(t, store.Upload(ctx, "originals/src", bytes.NewReader(src), "image/png", int64(len(src))))

	task := newTask(t, true, 25, true)
	resultKey, err := NewPipeline(store).Run(ctx, task, "originals/src")
	require.NoError(t, err)

	data, ok := store.GetData(resultKey)
	require.True(t, ok)
	decoded, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 20, decoded.Bounds().Dx())
	assert.Equal(t, 20, decoded.Bounds().Dy())

	// the staged intermediate must be gone once the run finishes
	exists, err := store.Exists(ctx, storage.IntermediateKey(task.ID))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPipelineIntermediateRemovedOnFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	src := testPNG(t, 80, 80)
	require.NoError(t, store.Upload(ctx, "originals/src", bytes.NewReader(src), "image/png", int64(len(src))))

	task := newTask(t, true, 25, true)
	interKey := storage.IntermediateKey(task.ID)
	failing := &failAfterIntermediate{MemoryStorage: store, failKey: storage.ResultKey(task.ID, "png")}

	_, err := NewPipeline(failing).Run(ctx, task, "originals/src")
	require.Error(t, err)

	exists, err := store.Exists(ctx, interKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPipelineNoOperations(t *testing.T) {
	store := storage.NewMemoryStorage()
	task := newTask(t, false, 0, false)

	_, err := NewPipeline(store).Run(context.Background(), task, "originals/src")
	assert.ErrorIs(t, err, ErrNoOperations)
}

func TestPipelineSingleOperationStagesNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	src := testPNG(t, 30, 30)
	require.NoError(t, store.Upload(ctx, "originals/src", bytes.NewReader(src), "image/png", int64(len(src))))

	task := newTask(t, false, 0, true)
	resultKey, err := NewPipeline(store).Run(ctx, task, "originals/src")
	require.NoError(t, err)

	keys := store.Keys()
	assert.ElementsMatch(t, []string{"originals/src", resultKey}, keys)
}
