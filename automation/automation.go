// Package automation implements the task automation engine: it maps domain
// events (case phase changes, task status changes, date-based triggers) to
// automation rules, executes their actions, and defers delayed actions to
// an explicit pending queue drained by a scheduler or by cooperative polls.
package automation

import (
	"fmt"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/task"
)

// TriggerType classifies the domain event an automation rule reacts to.
type TriggerType string

const (
	// TriggerPhaseChange fires on case phase transitions.
	TriggerPhaseChange TriggerType = "phase_change"
	// TriggerTaskStatusChange fires on task status transitions.
	TriggerTaskStatusChange TriggerType = "task_status_change"
	// TriggerDateBased fires on named date-based events (deadline scans,
	// periodic reviews), optionally on a cron schedule.
	TriggerDateBased TriggerType = "date_based"
)

// Trigger declares the event an automation rule matches. Matching a rule
// requires BOTH the trigger match and the rule conditions to hold.
type Trigger struct {
	// Type selects the event family.
	Type TriggerType `json:"type" yaml:"type"`

	// Phase restricts phase-change triggers to one target phase.
	// Empty matches any phase change.
	Phase phase.CasePhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// FromStatus/ToStatus restrict task-status triggers. Empty matches any.
	FromStatus task.Status `json:"from_status,omitempty" yaml:"from_status,omitempty"`
	ToStatus   task.Status `json:"to_status,omitempty" yaml:"to_status,omitempty"`

	// Priority restricts task-status triggers to tasks of one priority.
	Priority task.Priority `json:"priority,omitempty" yaml:"priority,omitempty"`

	// Event names the date-based event type.
	Event string `json:"event,omitempty" yaml:"event,omitempty"`

	// Schedule is an optional cron expression driving date-based rules
	// when a cron runner is attached.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Validate checks trigger shape per type.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerPhaseChange:
		if t.Phase != "" && !t.Phase.IsValid() {
			return fmt.Errorf("unknown trigger phase %q", t.Phase)
		}
	case TriggerTaskStatusChange:
		if t.FromStatus != "" && !t.FromStatus.IsValid() {
			return fmt.Errorf("unknown from_status %q", t.FromStatus)
		}
		if t.ToStatus != "" && !t.ToStatus.IsValid() {
			return fmt.Errorf("unknown to_status %q", t.ToStatus)
		}
		if t.Priority != "" && !t.Priority.IsValid() {
			return fmt.Errorf("unknown trigger priority %q", t.Priority)
		}
	case TriggerDateBased:
		if t.Event == "" {
			return fmt.Errorf("date_based trigger requires an event name")
		}
	default:
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}
	return nil
}

// Action wraps a rule action with an optional execution delay. Actions with
// a positive delay are queued rather than executed immediately.
type Action struct {
	// Action is the underlying rule action.
	Action rule.Action `json:"action" yaml:"action"`

	// DelayHours defers execution by the given number of hours.
	DelayHours float64 `json:"delay_hours,omitempty" yaml:"delay_hours,omitempty"`
}

// Delay returns the action delay as a duration.
func (a Action) Delay() time.Duration {
	return time.Duration(a.DelayHours * float64(time.Hour))
}

// Rule is an automation rule: one trigger, gating conditions, and the
// actions to run.
type Rule struct {
	ID         string                `json:"id" yaml:"id"`
	Name       string                `json:"name" yaml:"name"`
	Trigger    Trigger               `json:"trigger" yaml:"trigger"`
	Conditions []condition.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions    []Action              `json:"actions" yaml:"actions"`

	// Priority orders execution when multiple rules match; lower first.
	Priority int `json:"priority" yaml:"priority"`

	// Active disables the rule without removing it.
	Active bool `json:"active" yaml:"active"`

	// TriggerCount is how many times the rule fired. Engine-mutated.
	TriggerCount int `json:"trigger_count,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Validate checks rule shape.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("automation rule id is required")
	}
	if err := r.Trigger.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if err := condition.ValidateAll(r.Conditions); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %s: at least one action is required", r.ID)
	}
	for i := range r.Actions {
		if r.Actions[i].DelayHours < 0 {
			return fmt.Errorf("rule %s: action %d: delay must not be negative", r.ID, i)
		}
		if err := r.Actions[i].Action.Validate(); err != nil {
			return fmt.Errorf("rule %s: action %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// Pending is a delayed action waiting to fire.
type Pending struct {
	// ID is the generated pending-automation identifier.
	ID string `json:"id"`

	// RuleID/RuleName identify the owning rule.
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`

	// Action is the deferred action.
	Action rule.Action `json:"action"`

	// Context is the captured evaluation context.
	Context rule.Context `json:"context"`

	// ScheduledTime is when the action becomes due.
	ScheduledTime time.Time `json:"scheduled_time"`

	// CreatedAt is when the action was queued.
	CreatedAt time.Time `json:"created_at"`
}

// ExecutionRecord is one entry in the automation history log. Entries are
// appended in execution order and filterable by case id.
type ExecutionRecord struct {
	ID       string              `json:"id"`
	RuleID   string              `json:"rule_id"`
	RuleName string              `json:"rule_name"`
	Context  rule.Context        `json:"context"`
	Results  []rule.ActionResult `json:"results"`

	// Delayed marks records produced by draining the pending queue.
	Delayed bool `json:"delayed"`

	ExecutedAt time.Time `json:"executed_at"`
}

// Result aggregates the outcome of processing one domain event.
type Result struct {
	// Success is false iff any matched rule reported an action error.
	Success bool `json:"success"`

	// Event describes the processed event.
	Event string `json:"event"`

	// CaseID is the case the event concerned.
	CaseID string `json:"case_id,omitempty"`

	// MatchedRules lists the ids of rules whose trigger and conditions held.
	MatchedRules []string `json:"matched_rules,omitempty"`

	// Executions holds the immediate execution records.
	Executions []ExecutionRecord `json:"executions,omitempty"`

	// Scheduled holds delayed actions queued by this event.
	Scheduled []*Pending `json:"scheduled,omitempty"`

	// Notifications collects descriptors emitted by executed actions.
	Notifications []task.Notification `json:"notifications,omitempty"`

	// Tasks collects task records created by executed actions.
	Tasks []*task.Task `json:"tasks,omitempty"`

	// Errors lists action and processing errors. Non-empty Errors does not
	// abort remaining rules.
	Errors []string `json:"errors,omitempty"`
}
