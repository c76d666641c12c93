// Package rule implements the business rule engine: weighted condition
// evaluation, a closed catalog of action handlers, role-based escalation
// paths, and the assignment-candidate directory seam.
package rule

import (
	"fmt"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/task"
)

// Rule is a business rule: ordered conditions gating ordered actions.
// A rule with Active=false is never evaluated or counted.
type Rule struct {
	// ID is the unique rule identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable rule name.
	Name string `json:"name" yaml:"name"`

	// Category groups related rules (e.g., "escalation", "assignment").
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Priority orders evaluation; lower runs first. Ordering is stable
	// across evaluation runs.
	Priority int `json:"priority" yaml:"priority"`

	// Active disables the rule without removing it.
	Active bool `json:"active" yaml:"active"`

	// Conditions gate the actions. Empty conditions always match.
	Conditions []condition.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Actions run in declared order when the rule matches.
	Actions []Action `json:"actions" yaml:"actions"`

	// TriggerCount is how many times the rule matched. Engine-mutated.
	TriggerCount int `json:"trigger_count,omitempty" yaml:"-"`

	// SuccessCount is how many matched evaluations completed without an
	// action error. Engine-mutated.
	SuccessCount int `json:"success_count,omitempty" yaml:"-"`

	// FailureCount is how many evaluations errored. Engine-mutated.
	FailureCount int `json:"failure_count,omitempty" yaml:"-"`

	// LastTriggered is when the rule last matched.
	LastTriggered *time.Time `json:"last_triggered,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Validate checks rule shape, conditions, and actions.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if err := condition.ValidateAll(r.Conditions); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	for i := range r.Actions {
		if err := r.Actions[i].Validate(); err != nil {
			return fmt.Errorf("rule %s: action %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// Context is the ephemeral, request-scoped evaluation context for a rule
// run. It is not persisted beyond in-memory history lists.
type Context struct {
	// CaseID is the case being processed.
	CaseID string `json:"case_id"`

	// TaskID is the task being processed, if any.
	TaskID string `json:"task_id,omitempty"`

	// UserID is the acting user, if any.
	UserID string `json:"user_id,omitempty"`

	// Event describes the triggering event (e.g., "phase_change").
	Event string `json:"event,omitempty"`

	// Task is the task under evaluation, when the event concerns one.
	// Action handlers that mutate task state read assignment and
	// escalation data from here.
	Task *task.Task `json:"task,omitempty"`

	// Metadata is the free-form context bag conditions evaluate against.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Timestamp is when the context was created.
	Timestamp time.Time `json:"timestamp"`
}

// ActionResult is the structured outcome of one action execution.
type ActionResult struct {
	// Type is the executed action type.
	Type ActionType `json:"type"`

	// Success reports whether the action completed.
	Success bool `json:"success"`

	// Result carries the action's output payload (e.g., the selected
	// assignee, the new escalation level, a created task record).
	Result map[string]any `json:"result,omitempty"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`

	// ExecutionTime is how long the action took.
	ExecutionTime time.Duration `json:"execution_time"`

	// Notifications holds descriptors emitted by the handler.
	Notifications []task.Notification `json:"notifications,omitempty"`

	// CreatedTasks holds task records created by the handler.
	CreatedTasks []*task.Task `json:"created_tasks,omitempty"`
}

// Result is the outcome of evaluating one rule.
type Result struct {
	// RuleID identifies the evaluated rule.
	RuleID string `json:"rule_id"`

	// RuleName is the rule's display name.
	RuleName string `json:"rule_name"`

	// Matched reports whether the rule's conditions held.
	Matched bool `json:"matched"`

	// Score is the weighted condition match score (0–100).
	Score float64 `json:"score"`

	// Confidence is matchedConditions/totalConditions.
	Confidence float64 `json:"confidence"`

	// Actions holds per-action results when the rule matched.
	Actions []ActionResult `json:"actions,omitempty"`

	// Notifications collects notification descriptors emitted by actions.
	Notifications []task.Notification `json:"notifications,omitempty"`

	// Tasks collects task records created by actions.
	Tasks []*task.Task `json:"tasks,omitempty"`

	// Error captures an evaluation failure. Evaluation errors are recorded
	// here, never propagated as panics or returned errors.
	Error string `json:"error,omitempty"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}
