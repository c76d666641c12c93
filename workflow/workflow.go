// Package workflow orchestrates case phase transitions: state machine
// validation, template-driven task creation, the workflow-level task rule
// table, and the per-case transition history.
package workflow

import (
	"fmt"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/task"
)

// Request describes one attempted case phase transition.
type Request struct {
	CaseID    string          `json:"case_id"`
	FromPhase phase.CasePhase `json:"from_phase"`
	ToPhase   phase.CasePhase `json:"to_phase"`
	CaseType  phase.CaseType  `json:"case_type"`
	UserRole  phase.UserRole  `json:"user_role"`
	UserID    string          `json:"user_id,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// TaskRule is a workflow-level rule applied after task creation on every
// accepted transition. The table is independent of the business rule engine:
// it covers generic workflow concerns (overdue escalation, high-priority
// auto-assignment) rather than per-firm policy.
type TaskRule struct {
	ID         string                `json:"id" yaml:"id"`
	Name       string                `json:"name" yaml:"name"`
	Conditions []condition.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions    []rule.Action         `json:"actions" yaml:"actions"`

	// Priority orders application; lower first.
	Priority int `json:"priority" yaml:"priority"`

	// Active disables the rule without removing it.
	Active bool `json:"active" yaml:"active"`
}

// Validate checks task rule shape.
func (r *TaskRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("task rule id is required")
	}
	if err := condition.ValidateAll(r.Conditions); err != nil {
		return fmt.Errorf("task rule %s: %w", r.ID, err)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("task rule %s: at least one action is required", r.ID)
	}
	for i := range r.Actions {
		if err := r.Actions[i].Validate(); err != nil {
			return fmt.Errorf("task rule %s: action %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// TransitionRecord is one entry in a case's workflow history.
type TransitionRecord struct {
	CaseID       string          `json:"case_id"`
	FromPhase    phase.CasePhase `json:"from_phase"`
	ToPhase      phase.CasePhase `json:"to_phase"`
	UserID       string          `json:"user_id,omitempty"`
	UserRole     phase.UserRole  `json:"user_role"`
	TasksCreated int             `json:"tasks_created"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Result is the outcome of processing one phase transition.
type Result struct {
	// Success is false when the state machine rejected the transition or
	// processing failed. Task rule action errors degrade Success too.
	Success bool `json:"success"`

	// Errors lists rejection reasons and processing errors.
	Errors []string `json:"errors,omitempty"`

	// CreatedTasks holds tasks instantiated from matching templates and by
	// task rule actions.
	CreatedTasks []*task.Task `json:"created_tasks,omitempty"`

	// UpdatedTasks holds existing tasks mutated by task rule actions.
	UpdatedTasks []*task.Task `json:"updated_tasks,omitempty"`

	// Notifications collects descriptors emitted during processing,
	// including the transition summary when tasks were created.
	Notifications []task.Notification `json:"notifications,omitempty"`

	// AppliedRules lists the ids of task rules whose conditions held.
	AppliedRules []string `json:"applied_rules,omitempty"`
}

// Statistics is a read-only per-case workflow summary.
type Statistics struct {
	CaseID          string          `json:"case_id"`
	Transitions     int             `json:"transitions"`
	TasksCreated    int             `json:"tasks_created"`
	CurrentPhase    phase.CasePhase `json:"current_phase,omitempty"`
	FirstTransition *time.Time      `json:"first_transition,omitempty"`
	LastTransition  *time.Time      `json:"last_transition,omitempty"`
}
