package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryObjectStore keeps objects in process memory. Used for local runs and
// tests; writes are atomic under the store lock.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

var _ ObjectStore = (*MemoryObjectStore)(nil)

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{buckets: make(map[string]map[string][]byte)}
}

func (s *MemoryObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (s *MemoryObjectStore) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = body
	return nil
}

func (s *MemoryObjectStore) DeleteObject(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if objects, ok := s.buckets[bucket]; ok {
		delete(objects, key)
	}
	return nil
}

// GetObject returns a stored object's bytes, for assertions in tests.
func (s *MemoryObjectStore) GetObject(bucket, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.buckets[bucket][key]
	return body, ok
}

// Keys lists the keys present in a bucket.
func (s *MemoryObjectStore) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	return keys
}
