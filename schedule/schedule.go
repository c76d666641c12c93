// Package schedule implements the task scheduling engine: scheduled-task
// records, conflict detection, reminder fan-out, per-user workload
// aggregates, and recurrence expansion.
package schedule

import (
	"fmt"
	"time"

	"github.com/c360studio/caseflow/task"
)

// RecurrenceType names the unit a recurrence rule advances by.
type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
)

// IsValid reports whether the recurrence type is known.
func (r RecurrenceType) IsValid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	default:
		return false
	}
}

// RecurrenceRule describes how a scheduled task repeats.
type RecurrenceRule struct {
	// Type is the recurrence unit.
	Type RecurrenceType `json:"type" yaml:"type"`

	// Interval multiplies the unit; every N days/weeks/months/years.
	Interval int `json:"interval" yaml:"interval"`

	// EndDate bounds the recurrence. Nil means unbounded.
	EndDate *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`

	// MaxOccurrences bounds the number of spawned occurrences. Zero means
	// unbounded.
	MaxOccurrences int `json:"max_occurrences,omitempty" yaml:"max_occurrences,omitempty"`

	// DaysOfWeek restricts weekly recurrences (0=Sunday .. 6=Saturday).
	DaysOfWeek []int `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"`

	// DayOfMonth restricts monthly recurrences (1-31).
	DayOfMonth int `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"`

	// MonthOfYear restricts yearly recurrences (1-12).
	MonthOfYear int `json:"month_of_year,omitempty" yaml:"month_of_year,omitempty"`

	// ExceptionDates lists dates (compared by calendar day) the recurrence
	// skips over.
	ExceptionDates []time.Time `json:"exception_dates,omitempty" yaml:"exception_dates,omitempty"`
}

// Validate checks rule shape against a reference time for the end date.
func (r *RecurrenceRule) Validate(now time.Time) error {
	if !r.Type.IsValid() {
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}
	if r.Interval <= 0 {
		return fmt.Errorf("recurrence interval must be positive")
	}
	if r.EndDate != nil && r.EndDate.Before(now) {
		return fmt.Errorf("recurrence end date is in the past")
	}
	if r.MaxOccurrences < 0 {
		return fmt.Errorf("recurrence max occurrences must be positive")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("day of week %d out of range 0-6", d)
		}
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return fmt.Errorf("day of month %d out of range 1-31", r.DayOfMonth)
	}
	if r.MonthOfYear < 0 || r.MonthOfYear > 12 {
		return fmt.Errorf("month of year %d out of range 1-12", r.MonthOfYear)
	}
	return nil
}

// CalculateNextOccurrence advances from the given time by the rule's unit
// and interval. It returns nil when the next occurrence would fall past the
// end date or exceed the occurrence bound. Computed dates present in the
// exception list are skipped by recursing to the following occurrence;
// skipped dates still consume an occurrence slot.
func (r *RecurrenceRule) CalculateNextOccurrence(from time.Time, occurrence int) *time.Time {
	var next time.Time
	switch r.Type {
	case RecurrenceDaily:
		next = from.AddDate(0, 0, r.Interval)
	case RecurrenceWeekly:
		next = from.AddDate(0, 0, 7*r.Interval)
	case RecurrenceMonthly:
		next = from.AddDate(0, r.Interval, 0)
	case RecurrenceYearly:
		next = from.AddDate(r.Interval, 0, 0)
	default:
		return nil
	}

	if r.EndDate != nil && next.After(*r.EndDate) {
		return nil
	}
	// The original record is occurrence 1; the bound caps computed
	// successors, so occurrence N may still compute successor N+1 while
	// N <= MaxOccurrences.
	if r.MaxOccurrences > 0 && occurrence > r.MaxOccurrences {
		return nil
	}
	for _, exc := range r.ExceptionDates {
		if sameDay(next, exc) {
			return r.CalculateNextOccurrence(next, occurrence+1)
		}
	}
	return &next
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ScheduledTask is a calendar record for one task occurrence.
type ScheduledTask struct {
	// ID is the schedule record identifier.
	ID string `json:"id"`

	// TaskID links back to the underlying task, when one exists.
	TaskID string `json:"task_id,omitempty"`

	// CaseID is the owning case.
	CaseID string `json:"case_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// AssignedTo is the user responsible for the task.
	AssignedTo string `json:"assigned_to"`

	// AssignedBy is the user who scheduled it.
	AssignedBy string `json:"assigned_by"`

	Priority task.Priority `json:"priority"`
	Status   task.Status   `json:"status"`

	// ScheduledTime is when work on the task is planned to start.
	ScheduledTime time.Time `json:"scheduled_time"`

	// DueDate is when the task must be complete.
	DueDate *time.Time `json:"due_date,omitempty"`

	// Dependencies lists schedule record ids this task depends on.
	Dependencies []string `json:"dependencies,omitempty"`

	// Recurrence makes the task repeating.
	Recurrence *RecurrenceRule `json:"recurrence,omitempty"`

	// Occurrence counts which occurrence of a recurring series this record
	// is, starting at 1.
	Occurrence int `json:"occurrence,omitempty"`

	// SpawnedNext marks a completed recurring occurrence whose successor has
	// been created, so recurrence processing is idempotent.
	SpawnedNext bool `json:"spawned_next,omitempty"`

	// Conflicts holds non-blocking conflicts detected at scheduling time.
	Conflicts []Conflict `json:"conflicts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConflictSeverity grades a schedule conflict.
type ConflictSeverity string

const (
	// SeverityMedium marks non-blocking conflicts (time overlap).
	SeverityMedium ConflictSeverity = "medium"
	// SeverityHigh marks blocking conflicts (dependency ordering).
	SeverityHigh ConflictSeverity = "high"
)

// ConflictType classifies what clashed.
type ConflictType string

const (
	// ConflictTimeOverlap marks two tasks for one user scheduled too close
	// together.
	ConflictTimeOverlap ConflictType = "time_overlap"
	// ConflictDependency marks a task scheduled before a dependency's due
	// date.
	ConflictDependency ConflictType = "dependency"
)

// Conflict describes one detected scheduling clash.
type Conflict struct {
	Type     ConflictType     `json:"type"`
	Severity ConflictSeverity `json:"severity"`

	// ConflictingID is the schedule record the new task clashes with.
	ConflictingID string `json:"conflicting_id"`

	Message string `json:"message"`
}

// Request asks the engine to place a task on the calendar.
type Request struct {
	TaskID        string          `json:"task_id,omitempty"`
	CaseID        string          `json:"case_id,omitempty"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	AssignedTo    string          `json:"assigned_to"`
	AssignedBy    string          `json:"assigned_by"`
	Priority      task.Priority   `json:"priority"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Dependencies  []string        `json:"dependencies,omitempty"`
	Recurrence    *RecurrenceRule `json:"recurrence,omitempty"`
}

// UserWorkload aggregates one user's scheduled load. Totals are mutated
// incrementally on every schedule and cancel, never recomputed from scratch.
type UserWorkload struct {
	UserID string `json:"user_id"`

	TotalTasks        int `json:"total_tasks"`
	ActiveTasks       int `json:"active_tasks"`
	HighPriorityTasks int `json:"high_priority_tasks"`

	// TotalHours sums per-task estimated hours by priority.
	TotalHours float64 `json:"total_hours"`

	// AvailableHours is the weekly capacity baseline.
	AvailableHours float64 `json:"available_hours"`

	// UtilizationRate is TotalHours/AvailableHours as a percentage.
	UtilizationRate float64 `json:"utilization_rate"`

	// CapacityStatus is under_capacity (<80%), at_capacity (80-100%), or
	// over_capacity (>100%).
	CapacityStatus string `json:"capacity_status"`

	UpdatedAt time.Time `json:"updated_at"`
}

// defaultAvailableHours is the weekly capacity baseline.
const defaultAvailableHours = 40

// NewUserWorkload returns an empty workload record for a user.
func NewUserWorkload(userID string) *UserWorkload {
	w := &UserWorkload{UserID: userID, AvailableHours: defaultAvailableHours}
	w.recompute()
	return w
}

// Add applies one scheduled task's load to the aggregates.
func (w *UserWorkload) Add(p task.Priority) {
	w.TotalTasks++
	w.ActiveTasks++
	if p == task.PriorityHigh || p == task.PriorityUrgent {
		w.HighPriorityTasks++
	}
	w.TotalHours += p.BaseHours()
	w.recompute()
}

// Remove backs one scheduled task's load out of the aggregates.
func (w *UserWorkload) Remove(p task.Priority) {
	if w.TotalTasks > 0 {
		w.TotalTasks--
	}
	if w.ActiveTasks > 0 {
		w.ActiveTasks--
	}
	if (p == task.PriorityHigh || p == task.PriorityUrgent) && w.HighPriorityTasks > 0 {
		w.HighPriorityTasks--
	}
	w.TotalHours -= p.BaseHours()
	if w.TotalHours < 0 {
		w.TotalHours = 0
	}
	w.recompute()
}

func (w *UserWorkload) recompute() {
	if w.AvailableHours <= 0 {
		w.AvailableHours = defaultAvailableHours
	}
	w.UtilizationRate = w.TotalHours / w.AvailableHours * 100
	switch {
	case w.UtilizationRate < 80:
		w.CapacityStatus = "under_capacity"
	case w.UtilizationRate <= 100:
		w.CapacityStatus = "at_capacity"
	default:
		w.CapacityStatus = "over_capacity"
	}
}
