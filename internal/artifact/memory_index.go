package artifact

import (
	"context"
	"sync"
	"time"
)

// keeps artifact records in process memory. single instance only
type MemoryIndex struct {
	mu        sync.Mutex
	artifacts map[string]Artifact
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{artifacts: make(map[string]Artifact)}
}

func (m *MemoryIndex) Put(_ context.Context, a Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.artifacts[a.ID] = a

	return nil
}

func (m *MemoryIndex) Take(_ context.Context, id string) (Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.artifacts[id]
	if !ok {
		return Artifact{}, ErrNotFound
	}

	delete(m.artifacts, id)

	return a, nil
}

func (m *MemoryIndex) ExpiredIDs(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, a := range m.artifacts {
		if a.Expired(now) {
			ids = append(ids, id)
		}
	}

	return ids, nil
}
