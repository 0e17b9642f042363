package utils

import (
	"errors"
	"sync"
)

var ErrKeySetFull = errors.New("key set is full")

// KeySet tracks a bounded set of keys that are currently held, for example
// jobs being worked on by this process.
type KeySet struct {
	mu      sync.Mutex
	keys    map[string]struct{}
	maxSize int
}

func NewKeySet(maxSize int) *KeySet {
	return &KeySet{keys: make(map[string]struct{}), maxSize: maxSize}
}

// TryAdd claims key. It returns false if the key is already held.
func (s *KeySet) TryAdd(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	if s.maxSize > 0 && len(s.keys) >= s.maxSize {
		return false, ErrKeySetFull
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *KeySet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

func (s *KeySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
