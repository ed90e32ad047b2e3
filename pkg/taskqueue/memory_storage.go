package taskqueue

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStorage implements Storage in memory for tests and local
// development. It round-trips through JSON so it exercises the same
// serialization path as durable implementations.
type MemoryStorage struct {
	mu    sync.Mutex
	blob  []byte
	saves int
	fail  error
}

// NewMemoryStorage creates empty in-memory task storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load implements Storage.
func (s *MemoryStorage) Load(ctx context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return nil, s.fail
	}
	if s.blob == nil {
		return []Task{}, nil
	}

	var tasks []Task
	if err := json.Unmarshal(s.blob, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Save implements Storage.
func (s *MemoryStorage) Save(ctx context.Context, tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.fail != nil {
		return s.fail
	}

	blob, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	s.blob = blob
	return nil
}

// SaveCount reports how many saves were attempted. Intended for tests
// asserting per-transition persistence.
func (s *MemoryStorage) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FailWith makes subsequent operations return err; nil restores normal
// behavior. Intended for tests.
func (s *MemoryStorage) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}
