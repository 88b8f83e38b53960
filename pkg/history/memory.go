package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store, used by tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte, 16)}
}

func (s *MemoryStore) Location() string {
	return "memory"
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

func (s *MemoryStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("file %q not found", name)
	}

	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Create(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrExists)
	}

	s.files[name] = append([]byte(nil), data...)

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, name)

	return nil
}

// Put stores data under name, replacing any existing entry. Tests use it to
// seed arbitrary (including corrupt) history.
func (s *MemoryStore) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[name] = append([]byte(nil), data...)
}
