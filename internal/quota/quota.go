// Package quota enforces the per-user daily processing allowance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/apperror"
	"github.com/halftone-io/halftone/internal/logger"
	"github.com/halftone-io/halftone/internal/store"
)

// DefaultDailyLimit applies to users without a subscription.
const DefaultDailyLimit = 5

// Ledger mediates all quota reads and consumption. Counters reset lazily
// at first use each day, with a bulk sweep as backstop.
type Ledger struct {
	quotas store.QuotaStore
	subs   store.SubscriptionStore

	// now is a test seam.
	now func() time.Time
}

func NewLedger(quotas store.QuotaStore, subs store.SubscriptionStore) *Ledger {
	return &Ledger{
		quotas: quotas,
		subs:   subs,
		now:    time.Now,
	}
}

// CheckAndConsume admits one unit of work for the user or returns a quota
// error. Premium subscribers bypass the counter entirely, with no
// mutation, so a lapsed subscription leaves their usage where it was.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID uuid.UUID) error {
	log := logger.FromContext(ctx)

	premium, limit, err := l.resolveLimit(ctx, userID)
	if err != nil {
		return err
	}
	if premium {
		log.Debug("quota bypassed for premium subscriber", "user_id", userID)
		return nil
	}

	if err := l.quotas.Ensure(ctx, userID); err != nil {
		return fmt.Errorf("ensure quota: %w", err)
	}
	if err := l.resetIfStale(ctx, userID); err != nil {
		return err
	}

	usage, consumed, err := l.quotas.Consume(ctx, userID, limit)
	if err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	if !consumed {
		log.Info("quota exceeded", "user_id", userID, "used", usage.UsedToday, "limit", limit)
		return apperror.QuotaExceeded(usage.UsedToday, limit)
	}

	log.Debug("quota consumed", "user_id", userID, "used", usage.UsedToday, "limit", limit)
	return nil
}

// Remaining reports the user's current allowance without consuming.
// Premium subscribers report unlimited via the bool.
func (l *Ledger) Remaining(ctx context.Context, userID uuid.UUID) (remaining int, unlimited bool, err error) {
	premium, limit, err := l.resolveLimit(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if premium {
		return 0, true, nil
	}

	if err := l.quotas.Ensure(ctx, userID); err != nil {
		return 0, false, fmt.Errorf("ensure quota: %w", err)
	}
	if err := l.resetIfStale(ctx, userID); err != nil {
		return 0, false, err
	}

	usage, err := l.quotas.Get(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("get quota: %w", err)
	}

	remaining = limit - usage.UsedToday
	if remaining < 0 {
		remaining = 0
	}
	return remaining, false, nil
}

// ResetAll zeroes every counter and stamps the sweep time. Run by the
// sweeper at day rollover so counters are fresh even for users who never
// trigger a lazy reset. lastResetDate only ever moves forward.
func (l *Ledger) ResetAll(ctx context.Context) (int64, error) {
	n, err := l.quotas.ResetAll(ctx, l.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset all quotas: %w", err)
	}
	return n, nil
}

func (l *Ledger) resolveLimit(ctx context.Context, userID uuid.UUID) (premium bool, limit int, err error) {
	sub, plan, err := l.subs.GetActivePlan(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, DefaultDailyLimit, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("get active plan: %w", err)
	}
	if !sub.IsCurrent(l.now()) {
		return false, DefaultDailyLimit, nil
	}
	if plan.IsPremium {
		return true, 0, nil
	}
	return false, plan.DailyQuota, nil
}

func (l *Ledger) resetIfStale(ctx context.Context, userID uuid.UUID) error {
	reset, err := l.quotas.ResetIfStale(ctx, userID, startOfDay(l.now()))
	if err != nil {
		return fmt.Errorf("reset stale quota: %w", err)
	}
	if reset {
		logger.FromContext(ctx).Debug("quota counter reset", "user_id", userID)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
