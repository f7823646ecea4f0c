// Package storage holds StateStorage adapters for the in-progress survey
// attempt: in memory, a JSON file on disk, or a Redis key.
package storage

import (
	"sync"

	"github.com/soaringjerry/truthpref/internal/services"
)

var (
	_ services.StateStorage = (*MemoryStorage)(nil)
	_ services.StateStorage = (*FileStorage)(nil)
	_ services.StateStorage = (*RedisStorage)(nil)
)

type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load() ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, false, nil
	}
	return append([]byte(nil), m.data...), true, nil
}

func (m *MemoryStorage) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
