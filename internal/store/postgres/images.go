package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/store"
)

type ImageStore struct {
	db DBTX
}

var _ store.ImageStore = (*ImageStore)(nil)

const imageColumns = `id, owner_id, original_filename, content_type, size_bytes, storage_key, created_at`

func scanImage(row pgx.Row) (model.Image, error) {
	var img model.Image
	err := row.Scan(
		&img.ID,
		&img.OwnerID,
		&img.OriginalFilename,
		&img.ContentType,
		&img.SizeBytes,
		&img.StorageKey,
		&img.CreatedAt,
	)
	return img, err
}

func (s *ImageStore) Create(ctx context.Context, img model.Image) (model.Image, error) {
	query := `
		INSERT INTO images (id, owner_id, original_filename, content_type, size_bytes, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + imageColumns
	row := s.db.QueryRow(ctx, query,
		img.ID, img.OwnerID, img.OriginalFilename, img.ContentType, img.SizeBytes, img.StorageKey,
	)
	out, err := scanImage(row)
	if err != nil {
		return model.Image{}, fmt.Errorf("create image: %w", err)
	}
	return out, nil
}

func (s *ImageStore) GetByID(ctx context.Context, id uuid.UUID) (model.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`
	img, err := scanImage(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return model.Image{}, mapNoRows(err)
	}
	return img, nil
}

func (s *ImageStore) GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (model.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1 AND owner_id = $2`
	img, err := scanImage(s.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		return model.Image{}, mapNoRows(err)
	}
	return img, nil
}

func (s *ImageStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Image, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + imageColumns + `
		FROM images
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *ImageStore) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM images WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
