package repository

import (
	"context"
	"sync"
	"time"

	"imgforge/internal/model"

	"github.com/google/uuid"
)

// MemoryQuotaRepo is an in-process QuotaRepository. Every operation holds one mutex,
// so check-and-increment is serialized for all users of the process.
type MemoryQuotaRepo struct {
	mu     sync.Mutex
	quotas map[string]*model.Quota
	now    func() time.Time
}

var _ QuotaRepository = (*MemoryQuotaRepo)(nil)

func NewMemoryQuotaRepo() *MemoryQuotaRepo {
	return &MemoryQuotaRepo{
		quotas: make(map[string]*model.Quota),
		now:    time.Now,
	}
}

func memoryQuotaKey(userID, day string) string {
	return userID + "|" + day
}

func (r *MemoryQuotaRepo) FindQuota(_ context.Context, userID, day string) (*model.Quota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[memoryQuotaKey(userID, day)]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (r *MemoryQuotaRepo) CreateQuota(_ context.Context, userID, day string, limit int, resetAt time.Time) (*model.Quota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memoryQuotaKey(userID, day)
	if q, ok := r.quotas[key]; ok {
		cp := *q
		return &cp, nil
	}
	now := r.now()
	q := &model.Quota{
		ID:               uuid.NewString(),
		UserID:           userID,
		Day:              day,
		GenerationsLimit: limit,
		ResetAt:          resetAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.quotas[key] = q
	cp := *q
	return &cp, nil
}

func (r *MemoryQuotaRepo) UpdateQuotaLimit(_ context.Context, userID, day string, limit int) (*model.Quota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[memoryQuotaKey(userID, day)]
	if !ok {
		return nil, nil
	}
	q.GenerationsLimit = limit
	q.UpdatedAt = r.now()
	cp := *q
	return &cp, nil
}

func (r *MemoryQuotaRepo) AtomicIncrement(_ context.Context, userID, day string) (*model.Quota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[memoryQuotaKey(userID, day)]
	if !ok || q.GenerationsUsed >= q.GenerationsLimit {
		return nil, ErrQuotaIncrementRejected
	}
	q.GenerationsUsed++
	q.UpdatedAt = r.now()
	cp := *q
	return &cp, nil
}

func (r *MemoryQuotaRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, q := range r.quotas {
		if !q.ResetAt.After(now) {
			delete(r.quotas, key)
			n++
		}
	}
	return n, nil
}
