package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/store"
)

type QuotaStore struct {
	db DBTX
}

var _ store.QuotaStore = (*QuotaStore)(nil)

func (s *QuotaStore) Get(ctx context.Context, userID uuid.UUID) (model.QuotaUsage, error) {
	var q model.QuotaUsage
	err := s.db.QueryRow(ctx, `
		SELECT user_id, used_today, last_reset_date, updated_at
		FROM quota_usage
		WHERE user_id = $1
	`, userID).Scan(&q.UserID, &q.UsedToday, &q.LastResetDate, &q.UpdatedAt)
	if err != nil {
		return model.QuotaUsage{}, mapNoRows(err)
	}
	return q, nil
}

func (s *QuotaStore) Ensure(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO quota_usage (user_id, used_today, last_reset_date)
		VALUES ($1, 0, now())
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure quota row: %w", err)
	}
	return nil
}

// ResetIfStale zeroes the counter when the last reset predates staleBefore.
// The condition lives in the WHERE clause so concurrent callers cannot
// double-reset.
func (s *QuotaStore) ResetIfStale(ctx context.Context, userID uuid.UUID, staleBefore time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE quota_usage
		SET used_today = 0, last_reset_date = now(), updated_at = now()
		WHERE user_id = $1 AND last_reset_date < $2
	`, userID, staleBefore)
	if err != nil {
		return false, fmt.Errorf("reset quota: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Consume increments the counter only while it is below limit. The returned
// bool reports whether the increment happened; either way the current usage
// row comes back so callers can build an accurate quota error.
func (s *QuotaStore) Consume(ctx context.Context, userID uuid.UUID, limit int) (model.QuotaUsage, bool, error) {
	var q model.QuotaUsage
	err := s.db.QueryRow(ctx, `
		UPDATE quota_usage
		SET used_today = used_today + 1, updated_at = now()
		WHERE user_id = $1 AND used_today < $2
		RETURNING user_id, used_today, last_reset_date, updated_at
	`, userID, limit).Scan(&q.UserID, &q.UsedToday, &q.LastResetDate, &q.UpdatedAt)
	if err == nil {
		return q, true, nil
	}
	if err != pgx.ErrNoRows {
		return model.QuotaUsage{}, false, fmt.Errorf("consume quota: %w", err)
	}

	// No row matched: either the user is at the limit or the row is missing.
	q, err = s.Get(ctx, userID)
	if err != nil {
		return model.QuotaUsage{}, false, err
	}
	return q, false, nil
}

// ResetAll zeroes used counters and advances last_reset_date to resetTime.
// GREATEST keeps the stamp from regressing when the caller's clock trails
// a row touched through now().
func (s *QuotaStore) ResetAll(ctx context.Context, resetTime time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE quota_usage
		SET used_today = 0, last_reset_date = GREATEST(last_reset_date, $1), updated_at = now()
		WHERE used_today > 0 OR last_reset_date < $1
	`, resetTime)
	if err != nil {
		return 0, fmt.Errorf("reset all quotas: %w", err)
	}
	return tag.RowsAffected(), nil
}
