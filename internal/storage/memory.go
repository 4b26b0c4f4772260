package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage keeps archived events in a map. It is used by all-in-one
// development runs and by tests; contents are lost on exit.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) SaveEvent(ctx context.Context, key EventKey, data []byte) error {
	if err := ValidateEventKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ObjectPath(key)] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStorage) GetEvent(ctx context.Context, key EventKey) ([]byte, error) {
	if err := ValidateEventKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[ObjectPath(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// ListEvents returns matching paths in lexical order.
func (m *MemoryStorage) ListEvents(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []string
	for path := range m.objects {
		if strings.HasPrefix(path, prefix) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
