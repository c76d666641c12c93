// Package integration is the top-level façade tying the workflow,
// automation, business rule, and scheduling engines together. It owns the
// cross-engine write path for phase transitions and task completion, plus
// the read-only orchestration and health snapshots.
package integration

import (
	"time"

	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/schedule"
	"github.com/c360studio/caseflow/task"
)

// TransitionRequest asks the service to move a case to a new phase and run
// every downstream engine.
type TransitionRequest struct {
	CaseID    string          `json:"case_id"`
	FromPhase phase.CasePhase `json:"from_phase"`
	ToPhase   phase.CasePhase `json:"to_phase"`
	CaseType  phase.CaseType  `json:"case_type"`
	UserRole  phase.UserRole  `json:"user_role"`
	UserID    string          `json:"user_id,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Result aggregates the outcome of one cross-engine operation. Success is
// false iff any stage reported an error.
type Result struct {
	Success bool `json:"success"`

	// TasksCreated counts tasks created across all stages.
	TasksCreated int `json:"tasks_created"`

	// TasksUpdated counts tasks mutated by rule actions.
	TasksUpdated int `json:"tasks_updated"`

	// NotificationsSent counts notification descriptors produced.
	NotificationsSent int `json:"notifications_sent"`

	// Tasks holds the created task records.
	Tasks []*task.Task `json:"tasks,omitempty"`

	// Scheduled holds the calendar records placed for created tasks.
	Scheduled []*schedule.ScheduledTask `json:"scheduled,omitempty"`

	// Notifications holds every descriptor produced, for transport at the
	// caller's boundary.
	Notifications []task.Notification `json:"notifications,omitempty"`

	// Errors lists per-stage errors. A failed stage does not abort later
	// stages unless the state machine rejected the transition outright.
	Errors []string `json:"errors,omitempty"`
}

// Orchestration is the read-only cross-component snapshot for one case.
type Orchestration struct {
	CaseID string `json:"case_id"`

	// CurrentPhase is the latest phase recorded in workflow history.
	CurrentPhase phase.CasePhase `json:"current_phase,omitempty"`

	Transitions    int `json:"transitions"`
	ActiveTasks    int `json:"active_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	OverdueTasks   int `json:"overdue_tasks"`

	// AutomationRuns counts automation history records for the case.
	AutomationRuns int `json:"automation_runs"`

	// Workloads summarizes the users carrying the case's scheduled tasks.
	Workloads []*schedule.UserWorkload `json:"workloads,omitempty"`
}

// ComponentHealth reports one engine's status: "healthy" or "degraded".
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Health is the aggregate health snapshot across all engines.
type Health struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}
