package resultstore

import (
	"context"
	"sync"
)

// MemorySlots 单进程使用的槽后端，CLI 和没有 Redis 的部署用它
type MemorySlots struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{items: make(map[string]string)}
}

func (m *MemorySlots) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemorySlots) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemorySlots) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}
