package history

import (
	"context"
	"sync"
)

// memoryStore implements Store with a map guarded by a mutex.
type memoryStore struct {
	mu       sync.Mutex
	capacity int
	windows  map[int64][]Turn
}

func newMemoryStore(capacity int) *memoryStore {
	return &memoryStore{
		capacity: capacity,
		windows:  make(map[int64][]Turn),
	}
}

// Append implements Store.
func (s *memoryStore) Append(ctx context.Context, userID int64, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := append(s.windows[userID], turn)
	if len(w) > s.capacity {
		w = append([]Turn(nil), w[len(w)-s.capacity:]...)
	}
	s.windows[userID] = w
	return nil
}

// Recent implements Store.
func (s *memoryStore) Recent(ctx context.Context, userID int64) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[userID]
	out := make([]Turn, len(w))
	copy(out, w)
	return out, nil
}

// Clear implements Store.
func (s *memoryStore) Clear(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, userID)
	return nil
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windows = make(map[int64][]Turn)
	return nil
}
