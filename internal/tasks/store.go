// Package tasks provides the in-memory task handle store polled by the
// API surface.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/macmap/instaingest/internal/ingest"
)

// Store keeps task handles in memory. Handles live for the lifetime of
// the process; durability belongs to the scrape_status table, which is
// keyed by username rather than task id.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]ingest.Task
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]ingest.Task)}
}

// CreateTask stores a new task in queued status.
func (s *Store) CreateTask(_ context.Context, task ingest.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return errors.New("task already exists")
	}
	s.tasks[task.ID] = task
	return nil
}

// UpdateTask overwrites the status fields of a task. Redelivery may move
// a failed task back to running; no transition validation is applied.
func (s *Store) UpdateTask(
	_ context.Context,
	taskID string,
	status ingest.TaskStatus,
	attempts, posts int,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return ingest.ErrNotFound
	}
	task.Status = status
	task.Attempts = attempts
	task.Posts = posts
	task.ErrorText = errText
	now := time.Now().UTC()
	if status == ingest.TaskRunning && task.Started == nil {
		task.Started = pointerTime(now)
	}
	if isTerminal(status) {
		task.Finished = pointerTime(now)
	}
	s.tasks[taskID] = task
	return nil
}

// GetTask fetches a task by ID.
func (s *Store) GetTask(_ context.Context, taskID string) (ingest.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return ingest.Task{}, ingest.ErrNotFound
	}
	return task, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status ingest.TaskStatus) bool {
	switch status {
	case ingest.TaskSucceeded, ingest.TaskFailed:
		return true
	default:
		return false
	}
}
