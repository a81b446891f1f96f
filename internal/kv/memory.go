package kv

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
}

// NewMemory returns a process-local Store. Values are copied on the way in and out.
func NewMemory() Store {
	return &memoryStore{namespaces: make(map[string]map[string][]byte)}
}

func (s *memoryStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.namespaces[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (s *memoryStore) Put(_ context.Context, namespace, key string, value []byte) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.namespaces[namespace]
	if !ok {
		entries = make(map[string][]byte)
		s.namespaces[namespace] = entries
	}
	entries[key] = cloneBytes(value)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, namespace, key string) (bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.namespaces[namespace]
	if !ok {
		return false, nil
	}
	if _, ok := entries[key]; !ok {
		return false, nil
	}
	delete(entries, key)
	return true, nil
}

func (s *memoryStore) Keys(_ context.Context, namespace string) ([]string, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.namespaces[namespace]
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) EnsureNamespace(_ context.Context, namespace string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[namespace]; !ok {
		s.namespaces[namespace] = make(map[string][]byte)
	}
	return nil
}

func (s *memoryStore) Namespaces(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStore) DropNamespace(_ context.Context, namespace string) (bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[namespace]; !ok {
		return false, nil
	}
	delete(s.namespaces, namespace)
	return true, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}
