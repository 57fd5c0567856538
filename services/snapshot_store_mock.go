package services

import (
	"context"
	"fmt"
	"sync"
)

// MockSnapshotStore is an in-memory SnapshotStore for tests
type MockSnapshotStore struct {
	objects map[string]bool
	fail    error
	mu      sync.RWMutex
}

// NewMockSnapshotStore creates a mock holding the given object keys
func NewMockSnapshotStore(keys ...string) *MockSnapshotStore {
	m := &MockSnapshotStore{objects: make(map[string]bool)}
	for _, k := range keys {
		m.objects[k] = true
	}
	return m
}

// SetAsMockForTesting sets this mock as the global snapshot store
func (m *MockSnapshotStore) SetAsMockForTesting() {
	SetSnapshotStore(m)
}

// FailWith makes every call return err
func (m *MockSnapshotStore) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *MockSnapshotStore) GetPresignedURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return "", m.fail
	}
	if !m.objects[key] {
		return "", fmt.Errorf("snapshot not found in mock store: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}
