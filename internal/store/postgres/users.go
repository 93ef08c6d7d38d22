package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/store"
)

type UserStore struct {
	db DBTX
}

var _ store.UserStore = (*UserStore)(nil)

func (s *UserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, email, username)
		VALUES ($1, $2, $3)
		RETURNING id, email, username, created_at
	`
	row := s.db.QueryRow(ctx, query, user.ID, user.Email, user.Username)
	var out model.User
	if err := row.Scan(&out.ID, &out.Email, &out.Username, &out.CreatedAt); err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return out, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `
		SELECT id, email, username, created_at
		FROM users
		WHERE id = $1
	`
	row := s.db.QueryRow(ctx, query, id)
	var out model.User
	if err := row.Scan(&out.ID, &out.Email, &out.Username, &out.CreatedAt); err != nil {
		return model.User{}, mapNoRows(err)
	}
	return out, nil
}
