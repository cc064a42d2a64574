package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"imgforge/internal/model"
	"imgforge/internal/repository"

	"github.com/google/uuid"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	// lastPutDeadline reports whether the most recent Put carried a deadline.
	lastPutDeadline bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.lastPutDeadline = ctx.Deadline()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		r.users[u.UserID] = u
	}
	return r
}

func (r *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.UserID] = &cp
	return nil
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) UpdateTier(_ context.Context, id string, tier model.Tier) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u.Tier = tier
	cp := *u
	return &cp, nil
}

// fakeGenerationRepo enforces the same state transitions as the Postgres repository.
type fakeGenerationRepo struct {
	mu        sync.Mutex
	gens      map[string]*model.Generation
	createErr error
	updateErr error
}

var _ repository.GenerationRepository = (*fakeGenerationRepo)(nil)

func newFakeGenerationRepo() *fakeGenerationRepo {
	return &fakeGenerationRepo{gens: make(map[string]*model.Generation)}
}

func (r *fakeGenerationRepo) CreateGeneration(_ context.Context, g *model.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if r.createErr != nil {
		return r.createErr
	}
	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt
	cp := *g
	r.gens[g.ID] = &cp
	return nil
}

func (r *fakeGenerationRepo) UpdateGenerationTerminal(_ context.Context, id string, out model.GenerationOutcome) (*model.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	g, ok := r.gens[id]
	if !ok || g.Status != model.GenerationProcessing {
		return nil, repository.ErrGenerationStateConflict
	}
	applyOutcome(g, out)
	cp := *g
	return &cp, nil
}

func (r *fakeGenerationRepo) ResetForRetry(_ context.Context, id, userID string, startedAt time.Time) (*model.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gens[id]
	if !ok || g.UserID != userID || g.Status != model.GenerationFailed {
		return nil, repository.ErrGenerationStateConflict
	}
	g.Status = model.GenerationProcessing
	g.GeneratedImageURL = nil
	g.IsPlaceholder = false
	g.ErrorMessage = nil
	g.ErrorCode = nil
	g.ProcessingStartTime = startedAt
	g.ProcessingEndTime = nil
	g.Metadata.RetryCount++
	cp := *g
	return &cp, nil
}

func (r *fakeGenerationRepo) FindGeneration(_ context.Context, id, userID string) (*model.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gens[id]
	if !ok || g.UserID != userID {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGenerationRepo) ListGenerationsByUser(_ context.Context, userID string, limit, offset int) ([]model.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Generation
	for _, g := range r.gens {
		if g.UserID == userID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeGenerationRepo) FailStaleGenerations(_ context.Context, cutoff time.Time, code, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, g := range r.gens {
		if g.Status == model.GenerationProcessing && g.ProcessingStartTime.Before(cutoff) {
			applyOutcome(g, model.GenerationOutcome{
				Status:       model.GenerationFailed,
				ErrorCode:    &code,
				ErrorMessage: &message,
				Metadata:     g.Metadata,
				EndTime:      time.Now(),
			})
			n++
		}
	}
	return n, nil
}

func (r *fakeGenerationRepo) get(id string) *model.Generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gens[id]
	if !ok {
		return nil
	}
	cp := *g
	return &cp
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fn(ctx, req)
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordedEvent struct {
	status  model.GenerationStatus
	durable bool
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) GenerationFinished(_ context.Context, g *model.Generation, durable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{status: g.Status, durable: durable})
}

var errBoom = errors.New("boom")
