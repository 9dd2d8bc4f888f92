package testutil

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
)

// MemObjects is an in-memory object store with the method set of
// storage.ObjectStore.
type MemObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemObjects creates an empty store.
func NewMemObjects() *MemObjects {
	return &MemObjects{objects: make(map[string][]byte)}
}

// List returns the sorted keys of bucket starting with prefix.
func (m *MemObjects) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, bucket+"/"+prefix) {
			keys = append(keys, strings.TrimPrefix(k, bucket+"/"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Download writes the object to path.
func (m *MemObjects) Download(_ context.Context, bucket, key, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return os.WriteFile(path, m.objects[bucket+"/"+key], 0o600)
}

// Upload stores the file at path under key.
func (m *MemObjects) Upload(_ context.Context, bucket, key, path string) error {
	b, err := os.ReadFile(path) //nolint:gosec // test fixture
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = b
	return nil
}

// Remove deletes an object.
func (m *MemObjects) Remove(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}
