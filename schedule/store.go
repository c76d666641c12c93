package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Filter selects scheduled tasks from a store. Zero-valued fields match
// everything.
type Filter struct {
	// AssignedTo filters by assignee.
	AssignedTo string

	// CaseID filters by owning case.
	CaseID string

	// Status filters by schedule status.
	Status string

	// From/To bound ScheduledTime inclusively at From, exclusively at To.
	From *time.Time
	To   *time.Time
}

func (f Filter) matches(st *ScheduledTask) bool {
	if f.AssignedTo != "" && st.AssignedTo != f.AssignedTo {
		return false
	}
	if f.CaseID != "" && st.CaseID != f.CaseID {
		return false
	}
	if f.Status != "" && st.Status.String() != f.Status {
		return false
	}
	if f.From != nil && st.ScheduledTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !st.ScheduledTime.Before(*f.To) {
		return false
	}
	return true
}

// ScheduleStore persists scheduled-task records. Implementations must be
// safe for concurrent use.
type ScheduleStore interface {
	// Put inserts or replaces a record.
	Put(st *ScheduledTask) error

	// Get returns the record with the given id, or an error when absent.
	Get(id string) (*ScheduledTask, error)

	// Delete removes a record. Deleting an unknown id is a no-op.
	Delete(id string) error

	// List returns records matching the filter ordered by scheduled time.
	List(f Filter) ([]*ScheduledTask, error)
}

// WorkloadStore persists per-user workload aggregates. Implementations must
// be safe for concurrent use.
type WorkloadStore interface {
	// Get returns the workload for a user, or nil when none exists yet.
	Get(userID string) (*UserWorkload, error)

	// Put inserts or replaces a workload record.
	Put(w *UserWorkload) error

	// List returns all workload records ordered by user id.
	List() ([]*UserWorkload, error)
}

// MemoryScheduleStore is the in-memory ScheduleStore used by tests and
// single-process deployments.
type MemoryScheduleStore struct {
	mu    sync.RWMutex
	tasks map[string]*ScheduledTask
}

// NewMemoryScheduleStore returns an empty in-memory schedule store.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{tasks: make(map[string]*ScheduledTask)}
}

func (s *MemoryScheduleStore) Put(st *ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[st.ID] = st
	return nil
}

func (s *MemoryScheduleStore) Get(id string) (*ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("scheduled task %s not found", id)
	}
	return st, nil
}

func (s *MemoryScheduleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *MemoryScheduleStore) List(f Filter) ([]*ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ScheduledTask
	for _, st := range s.tasks {
		if f.matches(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ScheduledTime.Before(out[j].ScheduledTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MemoryWorkloadStore is the in-memory WorkloadStore.
type MemoryWorkloadStore struct {
	mu        sync.RWMutex
	workloads map[string]*UserWorkload
}

// NewMemoryWorkloadStore returns an empty in-memory workload store.
func NewMemoryWorkloadStore() *MemoryWorkloadStore {
	return &MemoryWorkloadStore{workloads: make(map[string]*UserWorkload)}
}

func (s *MemoryWorkloadStore) Get(userID string) (*UserWorkload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workloads[userID], nil
}

func (s *MemoryWorkloadStore) Put(w *UserWorkload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workloads[w.UserID] = w
	return nil
}

func (s *MemoryWorkloadStore) List() ([]*UserWorkload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*UserWorkload, 0, len(s.workloads))
	for _, w := range s.workloads {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
