package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type preferenceRepositoryInMemory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewPreferenceRepository создаёт in-memory реализацию PreferenceStore.
func NewPreferenceRepository() domain.PreferenceStore {
	return &preferenceRepositoryInMemory{
		values: make(map[string]string),
	}
}

func (r *preferenceRepositoryInMemory) Get(_ context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrPreferenceKeyRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[key]
	if !ok {
		return "", domain.ErrPreferenceNotFound
	}
	return value, nil
}

func (r *preferenceRepositoryInMemory) Set(_ context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrPreferenceKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *preferenceRepositoryInMemory) Delete(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrPreferenceKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[key]; !ok {
		return domain.ErrPreferenceNotFound
	}
	delete(r.values, key)
	return nil
}

func (r *preferenceRepositoryInMemory) List(context.Context) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}

var _ domain.PreferenceStore = (*preferenceRepositoryInMemory)(nil)
