package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/model"
	"github.com/halftone-io/halftone/internal/store"
)

type SubscriptionStore struct {
	db DBTX
}

var _ store.SubscriptionStore = (*SubscriptionStore)(nil)

func (s *SubscriptionStore) GetActivePlan(ctx context.Context, userID uuid.UUID) (model.Subscription, model.Plan, error) {
	var (
		sub  model.Subscription
		plan model.Plan
	)
	err := s.db.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.plan_id, s.active, s.start_date, s.end_date,
		       p.id, p.name, p.daily_quota, p.is_premium, p.monthly_price_cents
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.user_id = $1 AND s.active
	`, userID).Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Active, &sub.StartDate, &sub.EndDate,
		&plan.ID, &plan.Name, &plan.DailyQuota, &plan.IsPremium, &plan.MonthlyPriceCents,
	)
	if err != nil {
		return model.Subscription{}, model.Plan{}, mapNoRows(err)
	}
	return sub, plan, nil
}
