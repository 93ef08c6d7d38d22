package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halftone-io/halftone/internal/model"
)

// Memory holds in-memory implementations of every repository interface,
// safe for concurrent use. It backs unit tests and local experiments; the
// per-entity stores are views over one shared dataset so ownership scoping
// across entities behaves like the relational schema.
type Memory struct {
	mu sync.Mutex

	users  map[uuid.UUID]model.User
	images map[uuid.UUID]model.Image
	tasks  map[uuid.UUID]model.ProcessingTask
	quotas map[uuid.UUID]model.QuotaUsage
	subs   map[uuid.UUID]model.Subscription
	plans  map[uuid.UUID]model.Plan

	// Now is the clock used for timestamps; overridable in tests.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[uuid.UUID]model.User),
		images: make(map[uuid.UUID]model.Image),
		tasks:  make(map[uuid.UUID]model.ProcessingTask),
		quotas: make(map[uuid.UUID]model.QuotaUsage),
		subs:   make(map[uuid.UUID]model.Subscription),
		plans:  make(map[uuid.UUID]model.Plan),
		Now:    time.Now,
	}
}

func (m *Memory) Users() UserStore                 { return (*memUsers)(m) }
func (m *Memory) Images() ImageStore               { return (*memImages)(m) }
func (m *Memory) Tasks() TaskStore                 { return (*memTasks)(m) }
func (m *Memory) Quotas() QuotaStore               { return (*memQuotas)(m) }
func (m *Memory) Subscriptions() SubscriptionStore { return (*memSubs)(m) }

// AddPlan seeds a plan record.
func (m *Memory) AddPlan(plan model.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
}

// AddSubscription seeds a subscription record.
func (m *Memory) AddSubscription(sub model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
}

type memUsers Memory

var _ UserStore = (*memUsers)(nil)

func (m *memUsers) Create(ctx context.Context, user model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.Now().UTC()
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

type memImages Memory

var _ ImageStore = (*memImages)(nil)

func (m *memImages) Create(ctx context.Context, img model.Image) (model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if img.CreatedAt.IsZero() {
		img.CreatedAt = m.Now().UTC()
	}
	m.images[img.ID] = img
	return img, nil
}

func (m *memImages) GetByID(ctx context.Context, id uuid.UUID) (model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[id]
	if !ok {
		return model.Image{}, ErrNotFound
	}
	return img, nil
}

func (m *memImages) GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[id]
	if !ok || img.OwnerID != ownerID {
		return model.Image{}, ErrNotFound
	}
	return img, nil
}

func (m *memImages) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Image
	for _, img := range m.images {
		if img.OwnerID == ownerID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (m *memImages) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[id]
	if !ok || img.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.images, id)
	return nil
}

type memTasks Memory

var _ TaskStore = (*memTasks)(nil)

func (m *memTasks) Create(ctx context.Context, task model.ProcessingTask) (model.ProcessingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	m.tasks[task.ID] = cloneTask(task)
	return task, nil
}

func (m *memTasks) GetByID(ctx context.Context, id uuid.UUID) (model.ProcessingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return model.ProcessingTask{}, ErrNotFound
	}
	return cloneTask(t), nil
}

func (m *memTasks) GetByIDForOwner(ctx context.Context, id, ownerID uuid.UUID) (model.ProcessingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return model.ProcessingTask{}, ErrNotFound
	}
	img, ok := m.images[t.ImageID]
	if !ok || img.OwnerID != ownerID {
		return model.ProcessingTask{}, ErrNotFound
	}
	return cloneTask(t), nil
}

func (m *memTasks) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.ProcessingTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ProcessingTask
	for _, t := range m.tasks {
		img, ok := m.images[t.ImageID]
		if ok && img.OwnerID == ownerID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (m *memTasks) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != model.TaskStatusPending {
		return false, nil
	}
	t.Status = model.TaskStatusProcessing
	t.UpdatedAt = m.Now().UTC()
	m.tasks[id] = t
	return true, nil
}

func (m *memTasks) MarkCompleted(ctx context.Context, id uuid.UUID, resultKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != model.TaskStatusProcessing {
		return false, nil
	}
	now := m.Now().UTC()
	t.Status = model.TaskStatusCompleted
	t.ResultKey = &resultKey
	t.ErrorMessage = nil
	t.CompletedAt = &now
	t.UpdatedAt = now
	m.tasks[id] = t
	return true, nil
}

func (m *memTasks) MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if !t.Status.CanTransitionTo(model.TaskStatusFailed) {
		return false, nil
	}
	now := m.Now().UTC()
	t.Status = model.TaskStatusFailed
	t.ErrorMessage = &message
	t.CompletedAt = &now
	t.UpdatedAt = now
	m.tasks[id] = t
	return true, nil
}

func (m *memTasks) FailStuck(ctx context.Context, status model.TaskStatus, olderThan time.Duration, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now().UTC()
	cutoff := now.Add(-olderThan)
	var n int64
	for id, t := range m.tasks {
		if t.Status != status || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		msg := message
		t.Status = model.TaskStatusFailed
		t.ErrorMessage = &msg
		t.CompletedAt = &now
		t.UpdatedAt = now
		m.tasks[id] = t
		n++
	}
	return n, nil
}

type memQuotas Memory

var _ QuotaStore = (*memQuotas)(nil)

func (m *memQuotas) Get(ctx context.Context, userID uuid.UUID) (model.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[userID]
	if !ok {
		return model.QuotaUsage{}, ErrNotFound
	}
	return q, nil
}

func (m *memQuotas) Ensure(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quotas[userID]; !ok {
		now := m.Now().UTC()
		m.quotas[userID] = model.QuotaUsage{
			UserID:        userID,
			UsedToday:     0,
			LastResetDate: now,
			UpdatedAt:     now,
		}
	}
	return nil
}

func (m *memQuotas) ResetIfStale(ctx context.Context, userID uuid.UUID, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[userID]
	if !ok {
		return false, nil
	}
	if !q.LastResetDate.Before(staleBefore) {
		return false, nil
	}
	now := m.Now().UTC()
	q.UsedToday = 0
	q.LastResetDate = now
	q.UpdatedAt = now
	m.quotas[userID] = q
	return true, nil
}

func (m *memQuotas) Consume(ctx context.Context, userID uuid.UUID, limit int) (model.QuotaUsage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[userID]
	if !ok {
		return model.QuotaUsage{}, false, ErrNotFound
	}
	if q.UsedToday >= limit {
		return q, false, nil
	}
	q.UsedToday++
	q.UpdatedAt = m.Now().UTC()
	m.quotas[userID] = q
	return q, true, nil
}

func (m *memQuotas) ResetAll(ctx context.Context, resetTime time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, q := range m.quotas {
		if q.UsedToday == 0 && !q.LastResetDate.Before(resetTime) {
			continue
		}
		q.UsedToday = 0
		if q.LastResetDate.Before(resetTime) {
			q.LastResetDate = resetTime
		}
		q.UpdatedAt = resetTime
		m.quotas[id] = q
		n++
	}
	return n, nil
}

type memSubs Memory

var _ SubscriptionStore = (*memSubs)(nil)

func (m *memSubs) GetActivePlan(ctx context.Context, userID uuid.UUID) (model.Subscription, model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subs {
		if s.UserID != userID || !s.Active {
			continue
		}
		p, ok := m.plans[s.PlanID]
		if !ok {
			return model.Subscription{}, model.Plan{}, ErrNotFound
		}
		return s, p, nil
	}
	return model.Subscription{}, model.Plan{}, ErrNotFound
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneTask(t model.ProcessingTask) model.ProcessingTask {
	if t.Config != nil {
		cfg := *t.Config
		t.Config = &cfg
	}
	if t.ResultKey != nil {
		k := *t.ResultKey
		t.ResultKey = &k
	}
	if t.ErrorMessage != nil {
		msg := *t.ErrorMessage
		t.ErrorMessage = &msg
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return t
}
