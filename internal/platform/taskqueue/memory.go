package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Repository with the same claim and retry
// semantics as the Postgres store. Used in development mode and by tests.
type MemStore struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*Task
	byKey       map[string]uuid.UUID
	retryDelay  time.Duration
	maxAttempts int
}

func NewMemStore(retryDelay time.Duration, maxAttempts int) *MemStore {
	return &MemStore{
		tasks:       make(map[uuid.UUID]*Task),
		byKey:       make(map[string]uuid.UUID),
		retryDelay:  retryDelay,
		maxAttempts: maxAttempts,
	}
}

func (s *MemStore) Enqueue(_ context.Context, task *Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.TaskKey != nil {
		if _, exists := s.byKey[*task.TaskKey]; exists {
			return false, nil
		}
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now()
	stored := *task
	stored.Status = StatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.tasks[stored.ID] = &stored
	if stored.TaskKey != nil {
		s.byKey[*stored.TaskKey] = stored.ID
	}
	return true, nil
}

func (s *MemStore) ClaimBatch(_ context.Context, n int, now time.Time) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Task
	for _, t := range s.tasks {
		if t.Status == StatusPending && !t.RunAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > n {
		due = due[:n]
	}

	claimed := make([]*Task, 0, len(due))
	for _, t := range due {
		t.Status = StatusRunning
		t.Attempts++
		t.UpdatedAt = now
		copy := *t
		claimed = append(claimed, &copy)
	}
	return claimed, nil
}

func (s *MemStore) Complete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Status != StatusRunning {
		return ErrNotFound
	}
	t.Status = StatusCompleted
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) Fail(_ context.Context, id uuid.UUID, taskErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Status != StatusRunning {
		return ErrNotFound
	}
	msg := taskErr
	t.LastError = &msg
	t.UpdatedAt = time.Now()
	if t.Attempts >= s.maxAttempts {
		t.Status = StatusFailed
		return nil
	}
	t.Status = StatusPending
	t.RunAt = time.Now().Add(s.retryDelay)
	return nil
}

func (s *MemStore) Get(_ context.Context, id uuid.UUID) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *t
	return &copy, nil
}
