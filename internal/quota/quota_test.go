package quota

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftone-io/halftone/internal/apperror"
	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/store"
)

func newLedger(t *testing.T) (*Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewLedger(mem.Quotas(), mem.Subscriptions()), mem
}

func seedSubscription(mem *store.Memory, userID uuid.UUID, premium bool, dailyQuota int, endDate *time.Time) {
	plan := model.Plan{
		ID:         uuid.New(),
		Name:       "test",
		DailyQuota: dailyQuota,
		IsPremium:  premium,
	}
	mem.AddPlan(plan)
	mem.AddSubscription(model.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    plan.ID,
		StartDate: time.Now().UTC().Add(-24 * time.Hour),
		EndDate:   endDate,
		Active:    true,
	})
}

func TestDefaultLimitEnforced(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	userID := uuid.New()

	for i := 0; i < DefaultDailyLimit; i++ {
		require.NoError(t, ledger.CheckAndConsume(ctx, userID), "unit %d", i+1)
	}

	err := ledger.CheckAndConsume(ctx, userID)
	require.Error(t, err)
	assert.True(t, apperror.IsQuotaExceeded(err))

	var qe *apperror.QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, DefaultDailyLimit, qe.Used)
	assert.Equal(t, DefaultDailyLimit, qe.Limit)
}

func TestPlanLimitOverridesDefault(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t)
	userID := uuid.New()
	seedSubscription(mem, userID, false, 2, nil)

	require.NoError(t, ledger.CheckAndConsume(ctx, userID))
	require.NoError(t, ledger.CheckAndConsume(ctx, userID))
	assert.True(t, apperror.IsQuotaExceeded(ledger.CheckAndConsume(ctx, userID)))
}

func TestPremiumBypassesWithoutMutation(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t)
	userID := uuid.New()
	seedSubscription(mem, userID, true, 0, nil)

	for i := 0; i < 3*DefaultDailyLimit; i++ {
		require.NoError(t, ledger.CheckAndConsume(ctx, userID))
	}

	// bypass must not create or touch a counter row
	_, err := mem.Quotas().Get(ctx, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLapsedPremiumFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t)
	userID := uuid.New()
	ended := time.Now().UTC().Add(-time.Hour)
	seedSubscription(mem, userID, true, 0, &ended)

	for i := 0; i < DefaultDailyLimit; i++ {
		require.NoError(t, ledger.CheckAndConsume(ctx, userID))
	}
	assert.True(t, apperror.IsQuotaExceeded(ledger.CheckAndConsume(ctx, userID)))
}

func TestCounterResetsLazilyNextDay(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t)
	userID := uuid.New()

	day1 := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := day1
	ledger.now = func() time.Time { return clock }
	mem.Now = func() time.Time { return clock }

	for i := 0; i < DefaultDailyLimit; i++ {
		require.NoError(t, ledger.CheckAndConsume(ctx, userID))
	}
	assert.True(t, apperror.IsQuotaExceeded(ledger.CheckAndConsume(ctx, userID)))

	// same day, still exhausted
	clock = day1.Add(8 * time.Hour)
	assert.True(t, apperror.IsQuotaExceeded(ledger.CheckAndConsume(ctx, userID)))

	// first touch after midnight resets the counter
	clock = day1.Add(10 * time.Hour)
	require.NoError(t, ledger.CheckAndConsume(ctx, userID))

	remaining, unlimited, err := ledger.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.False(t, unlimited)
	assert.Equal(t, DefaultDailyLimit-1, remaining)
}

func TestResetAllStampsSweepTime(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t)
	alice := uuid.New()
	bob := uuid.New()

	yesterday := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	clock := yesterday
	ledger.now = func() time.Time { return clock }
	mem.Now = func() time.Time { return clock }

	// bob's row dates from the previous evening
	require.NoError(t, ledger.CheckAndConsume(ctx, bob))

	// alice first consumes at noon the next day
	clock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.CheckAndConsume(ctx, alice))

	sweepTime := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	clock = sweepTime
	n, err := ledger.ResetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, userID := range []uuid.UUID{alice, bob} {
		usage, err := mem.Quotas().Get(ctx, userID)
		require.NoError(t, err)
		assert.Zero(t, usage.UsedToday)
		assert.True(t, usage.LastResetDate.Equal(sweepTime),
			"lastResetDate = %s, want sweep time %s", usage.LastResetDate, sweepTime)
	}
}

func TestRemaining(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t)
	userID := uuid.New()

	remaining, unlimited, err := ledger.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.False(t, unlimited)
	assert.Equal(t, DefaultDailyLimit, remaining)

	require.NoError(t, ledger.CheckAndConsume(ctx, userID))
	remaining, _, err = ledger.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, DefaultDailyLimit-1, remaining)

	premiumID := uuid.New()
	seedSubscription(mem, premiumID, true, 0, nil)
	_, unlimited, err = ledger.Remaining(ctx, premiumID)
	require.NoError(t, err)
	assert.True(t, unlimited)
}
