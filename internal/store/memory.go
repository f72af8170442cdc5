package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payrail/payrail/internal/domain/model"
)

// MemoryContactRepo is a map-backed ContactRepository for daemons running
// without a database and for tests.
type MemoryContactRepo struct {
	mu       sync.RWMutex
	contacts map[string]model.Contact
}

var _ ContactRepository = (*MemoryContactRepo)(nil)

func NewMemoryContactRepo() *MemoryContactRepo {
	return &MemoryContactRepo{contacts: make(map[string]model.Contact)}
}

func (r *MemoryContactRepo) Upsert(_ context.Context, c model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.Alias] = c
	return nil
}

func (r *MemoryContactRepo) Find(_ context.Context, alias string) (model.Contact, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[alias]
	return c, ok, nil
}

func (r *MemoryContactRepo) List(_ context.Context) ([]model.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

func (r *MemoryContactRepo) Delete(_ context.Context, alias string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contacts[alias]; !ok {
		return false, nil
	}
	delete(r.contacts, alias)
	return true, nil
}

// MemoryAttemptRepo is a slice-backed AttemptRepository.
type MemoryAttemptRepo struct {
	mu       sync.RWMutex
	attempts []model.PaymentAttempt
}

var _ AttemptRepository = (*MemoryAttemptRepo)(nil)

func NewMemoryAttemptRepo() *MemoryAttemptRepo {
	return &MemoryAttemptRepo{}
}

func (r *MemoryAttemptRepo) Append(_ context.Context, a model.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *MemoryAttemptRepo) ListByRequest(_ context.Context, requestID string) ([]model.PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.PaymentAttempt
	for _, a := range r.attempts {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}
