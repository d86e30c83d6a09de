package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned by Storage.Get for a missing key.
	ErrNotFound = errors.New("storage: key not found")
	// ErrQuotaExceeded is returned by Storage.Set when a value is larger than
	// the backend allows.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Storage is a durable key/value store for serialized learner state.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

func checkQuota(value []byte, quota int) error {
	if quota > 0 && len(value) > quota {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrQuotaExceeded, len(value), quota)
	}
	return nil
}

// MemoryStorage is an in-memory Storage for development and tests.
type MemoryStorage struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int
}

// NewMemoryStorage creates an in-memory store. A quota of zero disables the
// size limit.
func NewMemoryStorage(quota int) *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte), quota: quota}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	if err := checkQuota(value, m.quota); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStorage) HealthCheck(_ context.Context) error {
	return nil
}
