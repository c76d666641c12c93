// Package task defines the shared task vocabulary used across the caseflow
// engines: task records, statuses, priorities, and notification descriptors.
//
// Tasks produced by this module are plain data records. Persisting them,
// assigning permanent identifiers, and delivering notifications is the
// caller's responsibility; the module generates transient ids for in-memory
// tracking only.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the execution state of a task.
type Status string

const (
	// StatusPending indicates the task has been created but not started.
	StatusPending Status = "pending"
	// StatusInProgress indicates the task is currently being worked on.
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"
	// StatusCancelled indicates the task was cancelled before completion.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a valid task status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if this status can transition to the target status.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusInProgress || target == StatusCancelled
	case StatusInProgress:
		return target == StatusCompleted || target == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false // Terminal states
	default:
		return false
	}
}

// Priority classifies the urgency of a task.
type Priority string

const (
	// PriorityLow is for routine work with no time pressure.
	PriorityLow Priority = "low"
	// PriorityMedium is the default priority.
	PriorityMedium Priority = "medium"
	// PriorityHigh is for time-sensitive work.
	PriorityHigh Priority = "high"
	// PriorityUrgent is for work that must be handled immediately.
	PriorityUrgent Priority = "urgent"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid returns true if the priority is a valid task priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// BaseHours returns the fixed per-priority hour estimate used for
// workload accounting. Unknown priorities fall back to the medium estimate.
func (p Priority) BaseHours() float64 {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Task represents a unit of legal case work produced or mutated by the
// workflow engines.
type Task struct {
	// ID is the transient identifier assigned at creation.
	ID string `json:"id"`

	// CaseID is the case this task belongs to.
	CaseID string `json:"case_id"`

	// TemplateID is the template that generated this task, if any.
	TemplateID string `json:"template_id,omitempty"`

	// Title is the human-readable task title.
	Title string `json:"title"`

	// Description explains the work to be done.
	Description string `json:"description,omitempty"`

	// Category groups related tasks (e.g., "risk_assessment", "filing").
	Category string `json:"category,omitempty"`

	// Priority is the task urgency.
	Priority Priority `json:"priority"`

	// Status is the current execution state.
	Status Status `json:"status"`

	// AssignedTo is the user the task is assigned to.
	AssignedTo string `json:"assigned_to,omitempty"`

	// AssignedRole is the role the task is intended for when no concrete
	// assignee has been selected yet.
	AssignedRole string `json:"assigned_role,omitempty"`

	// AssignedBy is the user or engine that made the assignment.
	AssignedBy string `json:"assigned_by,omitempty"`

	// DueDate is when the task must be completed.
	DueDate *time.Time `json:"due_date,omitempty"`

	// EstimatedHours is the estimated effort for this task.
	EstimatedHours float64 `json:"estimated_hours,omitempty"`

	// EscalationLevel tracks how many times the task has been escalated.
	// Zero means never escalated.
	EscalationLevel int `json:"escalation_level,omitempty"`

	// Dependencies lists task ids that must complete before this task.
	Dependencies []string `json:"dependencies,omitempty"`

	// Metadata carries free-form task data.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewID returns a transient task identifier.
func NewID() string {
	return "task-" + uuid.NewString()
}

// Notification is a structured notification descriptor. The module never
// delivers notifications itself; descriptors are returned to the caller for
// transport at the integration boundary.
type Notification struct {
	// Type identifies the notification kind (e.g., "tasks_created",
	// "task_escalated", "review_requested").
	Type string `json:"type"`

	// Recipients lists user ids or role names to notify.
	Recipients []string `json:"recipients"`

	// Template names the message template the delivery layer should render.
	Template string `json:"template"`

	// Urgency controls delivery priority.
	Urgency Priority `json:"urgency"`

	// Data carries template substitution values.
	Data map[string]any `json:"data,omitempty"`
}
