package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 内存对象存储（测试与本地开发用）
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte // key: bucket/path
	types   map[string]string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func key(bucket, path string) string {
	return bucket + "/" + path
}

func (m *MemoryStore) Upload(_ context.Context, bucket, path string, data []byte, opts UploadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(bucket, path)
	if _, exists := m.objects[k]; exists && !opts.Upsert {
		return fmt.Errorf("object %s already exists", k)
	}
	m.objects[k] = append([]byte(nil), data...)
	m.types[k] = opts.ContentType
	return nil
}

func (m *MemoryStore) Download(_ context.Context, bucket, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, path)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Remove(_ context.Context, bucket string, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range paths {
		k := key(bucket, p)
		delete(m.objects, k)
		delete(m.types, k)
	}
	return nil
}

// ContentType 返回对象的 Content-Type（测试断言用）
func (m *MemoryStore) ContentType(bucket, path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key(bucket, path)]
}

// Len 当前对象数量
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
