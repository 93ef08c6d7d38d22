// Package storage abstracts the object store holding original uploads,
// intermediate transform artifacts, and finished results.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error)
	HealthCheck(ctx context.Context) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// OriginalKey is where an uploaded image lives. The original filename's
// extension is preserved so downloads keep a sensible name.
func OriginalKey(ownerID, imageID uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("originals/%s/%s%s", ownerID, imageID, ext)
}

// IntermediateKey holds the output of a transform step that feeds the next
// one. Intermediates are deleted once the task finishes, success or not.
func IntermediateKey(taskID uuid.UUID) string {
	return fmt.Sprintf("intermediates/%s", taskID)
}

// ResultKey is the final artifact of a completed task.
func ResultKey(taskID uuid.UUID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("results/%s%s", taskID, ext)
}
