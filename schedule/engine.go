package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/caseflow/metric"
	"github.com/c360studio/caseflow/task"
)

const (
	// overlapWindow bounds how far around a new task's scheduled time other
	// tasks are considered for time-overlap conflicts.
	overlapWindow = 2 * time.Hour

	// defaultConflictThreshold is the gap below which two tasks for one user
	// count as overlapping.
	defaultConflictThreshold = 30 * time.Minute
)

// Engine is the task scheduling engine. Persistence is delegated to the
// store interfaces; the engine owns validation, conflict detection,
// workload accounting, reminders, and recurrence expansion.
type Engine struct {
	store     ScheduleStore
	workloads WorkloadStore
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine returns a scheduling engine on the given stores. Nil stores fall
// back to in-memory implementations; a nil logger falls back to
// slog.Default().
func NewEngine(store ScheduleStore, workloads WorkloadStore, logger *slog.Logger) *Engine {
	if store == nil {
		store = NewMemoryScheduleStore()
	}
	if workloads == nil {
		workloads = NewMemoryWorkloadStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		workloads: workloads,
		threshold: defaultConflictThreshold,
		logger:    logger,
		now:       time.Now,
	}
}

// SetConflictThreshold overrides the time-overlap threshold. Non-positive
// values restore the default.
func (e *Engine) SetConflictThreshold(d time.Duration) {
	if d <= 0 {
		d = defaultConflictThreshold
	}
	e.threshold = d
}

// ScheduleTask validates the request, detects conflicts, and places the
// task on the calendar. It returns an error only on validation failure or a
// high-severity conflict; medium-severity conflicts are attached to the
// returned record and do not block scheduling.
func (e *Engine) ScheduleTask(req Request) (*ScheduledTask, error) {
	if err := e.validateScheduleRequest(req); err != nil {
		return nil, err
	}

	conflicts, err := e.CheckScheduleConflicts(req)
	if err != nil {
		return nil, err
	}
	for _, c := range conflicts {
		if c.Severity == SeverityHigh {
			return nil, fmt.Errorf("unresolved high-severity conflict: %s", c.Message)
		}
	}

	now := e.now()
	priority := req.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}
	st := &ScheduledTask{
		ID:            "sched-" + uuid.NewString(),
		TaskID:        req.TaskID,
		CaseID:        req.CaseID,
		Title:         req.Title,
		Description:   req.Description,
		AssignedTo:    req.AssignedTo,
		AssignedBy:    req.AssignedBy,
		Priority:      priority,
		Status:        task.StatusPending,
		ScheduledTime: req.ScheduledTime,
		DueDate:       req.DueDate,
		Dependencies:  req.Dependencies,
		Recurrence:    req.Recurrence,
		Conflicts:     conflicts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if st.Recurrence != nil {
		st.Occurrence = 1
	}
	if err := e.store.Put(st); err != nil {
		return nil, fmt.Errorf("store scheduled task: %w", err)
	}
	if err := e.adjustWorkload(st.AssignedTo, st.Priority, true); err != nil {
		return nil, err
	}

	e.logger.Info("task scheduled",
		slog.String("schedule_id", st.ID),
		slog.String("assigned_to", st.AssignedTo),
		slog.Time("scheduled_time", st.ScheduledTime),
		slog.Int("conflicts", len(conflicts)))
	return st, nil
}

// validateScheduleRequest rejects malformed requests. All failures are
// collected so the caller sees every problem at once.
func (e *Engine) validateScheduleRequest(req Request) error {
	var errs []error
	if req.Title == "" {
		errs = append(errs, fmt.Errorf("title is required"))
	}
	if req.AssignedTo == "" {
		errs = append(errs, fmt.Errorf("assigned_to is required"))
	}
	if req.AssignedBy == "" {
		errs = append(errs, fmt.Errorf("assigned_by is required"))
	}
	now := e.now()
	if req.ScheduledTime.IsZero() {
		errs = append(errs, fmt.Errorf("scheduled_time is required"))
	} else if req.ScheduledTime.Before(now) {
		errs = append(errs, fmt.Errorf("scheduled_time is in the past"))
	}
	if req.DueDate != nil && req.DueDate.Before(req.ScheduledTime) {
		errs = append(errs, fmt.Errorf("due_date is before scheduled_time"))
	}
	if req.Priority != "" && !req.Priority.IsValid() {
		errs = append(errs, fmt.Errorf("unknown priority %q", req.Priority))
	}
	if req.Recurrence != nil {
		if err := req.Recurrence.Validate(now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckScheduleConflicts runs both conflict mechanisms in one pass:
// time-overlap against the assignee's other tasks inside the overlap
// window, and dependency ordering against each declared dependency.
func (e *Engine) CheckScheduleConflicts(req Request) ([]Conflict, error) {
	var conflicts []Conflict

	from := req.ScheduledTime.Add(-overlapWindow)
	to := req.ScheduledTime.Add(overlapWindow)
	others, err := e.store.List(Filter{AssignedTo: req.AssignedTo, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	for _, other := range others {
		if other.Status == task.StatusCancelled || other.Status == task.StatusCompleted {
			continue
		}
		gap := other.ScheduledTime.Sub(req.ScheduledTime)
		if gap < 0 {
			gap = -gap
		}
		if gap < e.threshold {
			conflicts = append(conflicts, Conflict{
				Type:          ConflictTimeOverlap,
				Severity:      SeverityMedium,
				ConflictingID: other.ID,
				Message: fmt.Sprintf("scheduled within %s of task %q (%s)",
					gap, other.Title, other.ScheduledTime.Format(time.RFC3339)),
			})
			metric.ScheduleConflictsTotal.WithLabelValues(string(SeverityMedium)).Inc()
		}
	}

	for _, depID := range req.Dependencies {
		dep, err := e.store.Get(depID)
		if err != nil {
			continue // unknown dependencies are not schedule conflicts
		}
		if dep.DueDate != nil && dep.DueDate.After(req.ScheduledTime) {
			conflicts = append(conflicts, Conflict{
				Type:          ConflictDependency,
				Severity:      SeverityHigh,
				ConflictingID: dep.ID,
				Message: fmt.Sprintf("dependency %q is due %s, after the scheduled start",
					dep.Title, dep.DueDate.Format(time.RFC3339)),
			})
			metric.ScheduleConflictsTotal.WithLabelValues(string(SeverityHigh)).Inc()
		}
	}
	return conflicts, nil
}

// RescheduleTask moves an existing record to a new time, re-running
// validation and conflict detection. High-severity conflicts block the move.
func (e *Engine) RescheduleTask(id string, newTime time.Time, newDue *time.Time) (*ScheduledTask, error) {
	st, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	req := Request{
		TaskID:        st.TaskID,
		CaseID:        st.CaseID,
		Title:         st.Title,
		AssignedTo:    st.AssignedTo,
		AssignedBy:    st.AssignedBy,
		Priority:      st.Priority,
		ScheduledTime: newTime,
		DueDate:       newDue,
		Dependencies:  st.Dependencies,
	}
	if err := e.validateScheduleRequest(req); err != nil {
		return nil, err
	}
	conflicts, err := e.CheckScheduleConflicts(req)
	if err != nil {
		return nil, err
	}
	var kept []Conflict
	for _, c := range conflicts {
		if c.ConflictingID == st.ID {
			continue // the record does not conflict with itself
		}
		if c.Severity == SeverityHigh {
			return nil, fmt.Errorf("unresolved high-severity conflict: %s", c.Message)
		}
		kept = append(kept, c)
	}

	st.ScheduledTime = newTime
	st.DueDate = newDue
	st.Conflicts = kept
	st.UpdatedAt = e.now()
	if err := e.store.Put(st); err != nil {
		return nil, fmt.Errorf("store scheduled task: %w", err)
	}
	e.logger.Info("task rescheduled",
		slog.String("schedule_id", st.ID), slog.Time("scheduled_time", newTime))
	return st, nil
}

// CancelTaskSchedule cancels a record and backs its load out of the
// assignee's workload. Cancelling an already-cancelled record is a no-op.
func (e *Engine) CancelTaskSchedule(id string) error {
	st, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if st.Status == task.StatusCancelled {
		return nil
	}
	wasActive := st.Status != task.StatusCompleted
	st.Status = task.StatusCancelled
	st.UpdatedAt = e.now()
	if err := e.store.Put(st); err != nil {
		return fmt.Errorf("store scheduled task: %w", err)
	}
	if wasActive {
		if err := e.adjustWorkload(st.AssignedTo, st.Priority, false); err != nil {
			return err
		}
	}
	e.logger.Info("schedule cancelled", slog.String("schedule_id", id))
	return nil
}

// CompleteScheduledTask marks a record completed and releases its workload.
func (e *Engine) CompleteScheduledTask(id string) error {
	st, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if st.Status == task.StatusCompleted {
		return nil
	}
	if st.Status == task.StatusCancelled {
		return fmt.Errorf("scheduled task %s is cancelled", id)
	}
	st.Status = task.StatusCompleted
	st.UpdatedAt = e.now()
	if err := e.store.Put(st); err != nil {
		return fmt.Errorf("store scheduled task: %w", err)
	}
	return e.adjustWorkload(st.AssignedTo, st.Priority, false)
}

// ScheduledTasks returns records matching the filter ordered by scheduled
// time.
func (e *Engine) ScheduledTasks(f Filter) ([]*ScheduledTask, error) {
	return e.store.List(f)
}

// ScheduledTask returns one record by id.
func (e *Engine) ScheduledTask(id string) (*ScheduledTask, error) {
	return e.store.Get(id)
}

// UpcomingReminders computes reminder fire times (due date minus template
// offset) for the user's scheduled tasks and filters to the next hoursAhead
// hours. Tasks without due dates produce no reminders.
func (e *Engine) UpcomingReminders(userID string, hoursAhead int) ([]Reminder, error) {
	tasks, err := e.store.List(Filter{AssignedTo: userID})
	if err != nil {
		return nil, err
	}
	now := e.now()
	horizon := now.Add(time.Duration(hoursAhead) * time.Hour)

	var out []Reminder
	for _, st := range tasks {
		if st.DueDate == nil || st.Status == task.StatusCancelled || st.Status == task.StatusCompleted {
			continue
		}
		for _, tmpl := range remindersFor(st.Priority) {
			fire := st.DueDate.Add(-time.Duration(tmpl.OffsetMinutes) * time.Minute)
			if fire.Before(now) || fire.After(horizon) {
				continue
			}
			out = append(out, Reminder{
				ScheduleID: st.ID,
				TaskID:     st.TaskID,
				Title:      st.Title,
				Priority:   st.Priority,
				Template:   tmpl.Name,
				Channel:    tmpl.Channel,
				Recipients: tmpl.Recipients,
				FireTime:   fire,
				DueDate:    *st.DueDate,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireTime.Before(out[j].FireTime) })
	return out, nil
}

// Workload returns the workload aggregate for a user, materializing an
// empty record for users with no scheduled tasks.
func (e *Engine) Workload(userID string) (*UserWorkload, error) {
	w, err := e.workloads.Get(userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return NewUserWorkload(userID), nil
	}
	return w, nil
}

// Workloads returns all workload aggregates.
func (e *Engine) Workloads() ([]*UserWorkload, error) {
	return e.workloads.List()
}

// adjustWorkload applies or removes one task's load incrementally.
func (e *Engine) adjustWorkload(userID string, p task.Priority, add bool) error {
	w, err := e.workloads.Get(userID)
	if err != nil {
		return fmt.Errorf("load workload for %s: %w", userID, err)
	}
	if w == nil {
		w = NewUserWorkload(userID)
	}
	if add {
		w.Add(p)
	} else {
		w.Remove(p)
	}
	w.UpdatedAt = e.now()
	if err := e.workloads.Put(w); err != nil {
		return fmt.Errorf("store workload for %s: %w", userID, err)
	}
	return nil
}

// ProcessRecurringTasks spawns the next occurrence for every completed
// recurring task that has not yet advanced. Pending and cancelled recurring
// tasks do not advance. The pass is idempotent: each occurrence spawns its
// successor at most once.
func (e *Engine) ProcessRecurringTasks() ([]*ScheduledTask, error) {
	all, err := e.store.List(Filter{})
	if err != nil {
		return nil, err
	}

	var spawned []*ScheduledTask
	for _, st := range all {
		if st.Recurrence == nil || st.SpawnedNext || st.Status != task.StatusCompleted {
			continue
		}
		occ := st.Occurrence
		if occ == 0 {
			occ = 1
		}
		next := st.Recurrence.CalculateNextOccurrence(st.ScheduledTime, occ)

		st.SpawnedNext = true
		st.UpdatedAt = e.now()
		if err := e.store.Put(st); err != nil {
			return spawned, fmt.Errorf("store scheduled task: %w", err)
		}
		if next == nil {
			continue // series exhausted
		}

		successor := &ScheduledTask{
			ID:            "sched-" + uuid.NewString(),
			TaskID:        st.TaskID,
			CaseID:        st.CaseID,
			Title:         st.Title,
			Description:   st.Description,
			AssignedTo:    st.AssignedTo,
			AssignedBy:    st.AssignedBy,
			Priority:      st.Priority,
			Status:        task.StatusPending,
			ScheduledTime: *next,
			Dependencies:  st.Dependencies,
			Recurrence:    st.Recurrence,
			Occurrence:    occ + 1,
			CreatedAt:     e.now(),
			UpdatedAt:     e.now(),
		}
		if st.DueDate != nil {
			due := next.Add(st.DueDate.Sub(st.ScheduledTime))
			successor.DueDate = &due
		}
		if err := e.store.Put(successor); err != nil {
			return spawned, fmt.Errorf("store scheduled task: %w", err)
		}
		if err := e.adjustWorkload(successor.AssignedTo, successor.Priority, true); err != nil {
			return spawned, err
		}
		spawned = append(spawned, successor)
		e.logger.Debug("recurring task advanced",
			slog.String("schedule_id", st.ID),
			slog.String("next_id", successor.ID),
			slog.Time("next_time", *next))
	}
	return spawned, nil
}
