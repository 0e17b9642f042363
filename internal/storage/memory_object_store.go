package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryObjectStore keeps objects in process memory. Used in tests and for
// single-process deployments that do not need the files on disk.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte
}

var _ ObjectStore = (*MemoryObjectStore)(nil)

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]map[string][]byte)}
}

func (s *MemoryObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[bucket]; !ok {
		s.objects[bucket] = make(map[string][]byte)
	}
	return nil
}

func (s *MemoryObjectStore) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("bucket and key are required")
	}

	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[bucket]; !ok {
		s.objects[bucket] = make(map[string][]byte)
	}
	s.objects[bucket][key] = content
	return nil
}

func (s *MemoryObjectStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *MemoryObjectStore) DeleteObject(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects[bucket], key)
	return nil
}

func (s *MemoryObjectStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[bucket][key]
	return ok, nil
}

// Keys returns the keys currently held in the bucket.
func (s *MemoryObjectStore) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects[bucket]))
	for key := range s.objects[bucket] {
		keys = append(keys, key)
	}
	return keys
}
