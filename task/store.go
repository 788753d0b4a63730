package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"mediaforge/broadcast"
)

var ErrNotFound = errors.New("task not found")

// maxDetailBytes bounds the stored diagnostic text; only the tail of an
// oversized detail is kept.
const maxDetailBytes = 8 * 1024

// Store is the single source of truth for task state. Every component
// reads and writes through it; writes are pushed to the broadcast hub.
//
// Concurrency discipline: only the process supervisor owning a running
// task calls the mutating methods for it (single writer per task), so
// the mutex here only protects the map itself and cross-task reads.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	hub   *broadcast.Hub
}

// NewStore creates a store publishing every write to hub. A nil hub
// disables broadcasting.
func NewStore(hub *broadcast.Hub) *Store {
	return &Store{
		tasks: make(map[string]*Task),
		hub:   hub,
	}
}

// Put registers a newly created task. The stored copy is private to the
// store; later reads return copies too.
func (s *Store) Put(t Task) {
	s.mu.Lock()
	stored := t
	s.tasks[t.ID] = &stored
	s.mu.Unlock()

	s.publish(&stored)
}

// Get returns a copy of the task, if known.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns copies of all tasks belonging to owner, newest first.
func (s *Store) List(owner string) []Task {
	s.mu.RLock()
	out := make([]Task, 0)
	for _, t := range s.tasks {
		if t.Owner == owner {
			out = append(out, *t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SetProcessing admits a pending task. The only legal entry into the
// processing state.
func (s *Store) SetProcessing(id string) error {
	return s.mutate(id, func(t *Task) error {
		if t.Status != StatusPending {
			return fmt.Errorf("task %s is %s, not pending", id, t.Status)
		}
		t.Status = StatusProcessing
		t.Progress = 0
		return nil
	})
}

// SetProgress records new progress for a processing task. Values below
// the current progress are ignored, keeping progress non-decreasing.
func (s *Store) SetProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	return s.mutate(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return fmt.Errorf("task %s is %s, progress writes require processing", id, t.Status)
		}
		if progress <= t.Progress {
			return errNoChange
		}
		t.Progress = progress
		return nil
	})
}

// Complete finalizes a successful task. Exactly one terminal transition
// per task: completing an already-terminal task is an error.
func (s *Store) Complete(id string, outputPath string) error {
	return s.mutate(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return fmt.Errorf("task %s is %s, cannot complete", id, t.Status)
		}
		t.Status = StatusCompleted
		t.Progress = 100
		t.OutputPath = outputPath
		return nil
	})
}

// Fail finalizes an unsuccessful task, keeping a bounded diagnostic
// tail. Legal from pending (queued-cancel, spawn failure) and from
// processing; a second terminal write is an error.
func (s *Store) Fail(id string, detail string) error {
	return s.mutate(id, func(t *Task) error {
		if t.Status.Terminal() {
			return fmt.Errorf("task %s already %s", id, t.Status)
		}
		t.Status = StatusFailed
		t.ErrorDetail = boundDetail(detail)
		return nil
	})
}

// SignalStreamLoss broadcasts the abnormal-termination sentinel for a
// task whose progress stream died mid-run. Task state is untouched: the
// last observed progress remains authoritative.
func (s *Store) SignalStreamLoss(id string) {
	if s.hub == nil {
		return
	}
	s.mu.RLock()
	_, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	s.hub.Publish(broadcast.Update{
		TaskID:   id,
		Progress: broadcast.ProgressStreamLost,
	})
}

// errNoChange suppresses publication for writes that left the task
// unchanged (e.g. stale progress).
var errNoChange = errors.New("no change")

func (s *Store) mutate(id string, fn func(*Task) error) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if err := fn(t); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	t.UpdatedAt = time.Now()
	snapshot := *t
	s.mu.Unlock()

	s.publish(&snapshot)
	return nil
}

func (s *Store) publish(t *Task) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(broadcast.Update{
		TaskID:   t.ID,
		Progress: t.Progress,
		Status:   string(t.Status),
		Terminal: t.Status.Terminal(),
	})
}

func boundDetail(detail string) string {
	if len(detail) <= maxDetailBytes {
		return detail
	}
	return detail[len(detail)-maxDetailBytes:]
}
