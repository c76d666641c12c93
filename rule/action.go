package rule

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/task"
)

// ActionType identifies an action handler. The set is closed: the action
// dispatcher is exhaustively checked at compile time against the typed
// parameter structs below.
type ActionType string

const (
	// ActionAssignTask selects an assignee from the candidate directory.
	ActionAssignTask ActionType = "assign_task"
	// ActionEscalateTask advances a task one escalation level.
	ActionEscalateTask ActionType = "escalate_task"
	// ActionChangePriority changes a task's priority.
	ActionChangePriority ActionType = "change_priority"
	// ActionSetDeadline sets or moves a task's due date.
	ActionSetDeadline ActionType = "set_deadline"
	// ActionSendNotification emits a notification descriptor.
	ActionSendNotification ActionType = "send_notification"
	// ActionCreateDependency records a dependency between tasks.
	ActionCreateDependency ActionType = "create_dependency"
	// ActionUpdateStatus changes a task's status.
	ActionUpdateStatus ActionType = "update_status"
	// ActionRequestReview emits a review request notification.
	ActionRequestReview ActionType = "request_review"
	// ActionReassignTask moves a task to a named assignee.
	ActionReassignTask ActionType = "reassign_task"
	// ActionCreateTask creates a new task record.
	ActionCreateTask ActionType = "create_task"
)

// FailureStrategy controls what happens to the owning rule's remaining
// actions when an action fails.
type FailureStrategy string

const (
	// FailureContinue records the error and proceeds with remaining actions.
	// This is the default.
	FailureContinue FailureStrategy = "continue"
	// FailureStop aborts the owning rule's remaining actions on failure.
	FailureStop FailureStrategy = "stop"
)

// Params is the typed parameter payload of an Action. Each action type has
// exactly one parameter struct.
type Params interface {
	actionType() ActionType
}

// AssignmentStrategy selects how assign_task picks a candidate.
type AssignmentStrategy string

const (
	// StrategyExpertise filters candidates whose expertise covers the
	// required set, picking the highest score.
	StrategyExpertise AssignmentStrategy = "expertise_based"
	// StrategyWorkload filters candidates at or below the workload
	// threshold, picking the lowest workload.
	StrategyWorkload AssignmentStrategy = "workload_balance"
	// StrategyPriority filters candidates by required role, picking the
	// highest score.
	StrategyPriority AssignmentStrategy = "priority_based"
)

// AssignTaskParams parameterizes assign_task.
type AssignTaskParams struct {
	Strategy          AssignmentStrategy `json:"strategy" yaml:"strategy"`
	RequiredExpertise []string           `json:"required_expertise,omitempty" yaml:"required_expertise,omitempty"`
	MaxWorkload       float64            `json:"max_workload,omitempty" yaml:"max_workload,omitempty"`
	RequiredRole      phase.UserRole     `json:"required_role,omitempty" yaml:"required_role,omitempty"`
}

func (AssignTaskParams) actionType() ActionType { return ActionAssignTask }

// EscalateTaskParams parameterizes escalate_task.
type EscalateTaskParams struct {
	Reason           string `json:"reason,omitempty" yaml:"reason,omitempty"`
	NotifyManagement bool   `json:"notify_management,omitempty" yaml:"notify_management,omitempty"`
}

func (EscalateTaskParams) actionType() ActionType { return ActionEscalateTask }

// ChangePriorityParams parameterizes change_priority.
type ChangePriorityParams struct {
	Priority task.Priority `json:"priority" yaml:"priority"`
}

func (ChangePriorityParams) actionType() ActionType { return ActionChangePriority }

// SetDeadlineParams parameterizes set_deadline. DueIn is a Go duration
// string (e.g., "72h"); Absolute wins when both are set.
type SetDeadlineParams struct {
	DueIn    string     `json:"due_in,omitempty" yaml:"due_in,omitempty"`
	Absolute *time.Time `json:"absolute,omitempty" yaml:"absolute,omitempty"`
}

func (SetDeadlineParams) actionType() ActionType { return ActionSetDeadline }

// Duration parses the relative deadline.
func (p SetDeadlineParams) Duration() (time.Duration, error) {
	if p.DueIn == "" {
		return 0, nil
	}
	return time.ParseDuration(p.DueIn)
}

// SendNotificationParams parameterizes send_notification.
type SendNotificationParams struct {
	Template   string        `json:"template" yaml:"template"`
	Recipients []string      `json:"recipients,omitempty" yaml:"recipients,omitempty"`
	Urgency    task.Priority `json:"urgency,omitempty" yaml:"urgency,omitempty"`
}

func (SendNotificationParams) actionType() ActionType { return ActionSendNotification }

// CreateDependencyParams parameterizes create_dependency.
type CreateDependencyParams struct {
	// DependsOn is the task id the context task must wait for.
	DependsOn string `json:"depends_on" yaml:"depends_on"`
}

func (CreateDependencyParams) actionType() ActionType { return ActionCreateDependency }

// UpdateStatusParams parameterizes update_status.
type UpdateStatusParams struct {
	Status task.Status `json:"status" yaml:"status"`
}

func (UpdateStatusParams) actionType() ActionType { return ActionUpdateStatus }

// RequestReviewParams parameterizes request_review.
type RequestReviewParams struct {
	Reviewer phase.UserRole `json:"reviewer" yaml:"reviewer"`
	Message  string         `json:"message,omitempty" yaml:"message,omitempty"`
}

func (RequestReviewParams) actionType() ActionType { return ActionRequestReview }

// ReassignTaskParams parameterizes reassign_task.
type ReassignTaskParams struct {
	AssignTo string `json:"assign_to" yaml:"assign_to"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (ReassignTaskParams) actionType() ActionType { return ActionReassignTask }

// CreateTaskParams parameterizes create_task. DueIn is a Go duration string.
type CreateTaskParams struct {
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty"`
	Priority    task.Priority  `json:"priority,omitempty" yaml:"priority,omitempty"`
	AssignRole  phase.UserRole `json:"assign_role,omitempty" yaml:"assign_role,omitempty"`
	DueIn       string         `json:"due_in,omitempty" yaml:"due_in,omitempty"`
}

func (CreateTaskParams) actionType() ActionType { return ActionCreateTask }

// Duration parses the relative due date.
func (p CreateTaskParams) Duration() (time.Duration, error) {
	if p.DueIn == "" {
		return 0, nil
	}
	return time.ParseDuration(p.DueIn)
}

// Action is a tagged union: the Type tag selects the concrete Params
// struct. OnFailure defaults to continue.
type Action struct {
	Type      ActionType      `json:"type" yaml:"type"`
	OnFailure FailureStrategy `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	Params    Params          `json:"params,omitempty" yaml:"params,omitempty"`
}

// Validate checks that the type tag and parameter struct agree.
func (a *Action) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("action type is required")
	}
	if a.OnFailure != "" && a.OnFailure != FailureContinue && a.OnFailure != FailureStop {
		return fmt.Errorf("unknown failure strategy %q", a.OnFailure)
	}
	if _, err := newParams(a.Type); err != nil {
		return err
	}
	if a.Params != nil && a.Params.actionType() != a.Type {
		return fmt.Errorf("action type %s does not match params type %s", a.Type, a.Params.actionType())
	}
	return nil
}

// Strategy returns the effective failure strategy.
func (a *Action) Strategy() FailureStrategy {
	if a.OnFailure == FailureStop {
		return FailureStop
	}
	return FailureContinue
}

// newParams returns a pointer to a zero parameter struct for the type tag.
func newParams(t ActionType) (Params, error) {
	switch t {
	case ActionAssignTask:
		return &AssignTaskParams{}, nil
	case ActionEscalateTask:
		return &EscalateTaskParams{}, nil
	case ActionChangePriority:
		return &ChangePriorityParams{}, nil
	case ActionSetDeadline:
		return &SetDeadlineParams{}, nil
	case ActionSendNotification:
		return &SendNotificationParams{}, nil
	case ActionCreateDependency:
		return &CreateDependencyParams{}, nil
	case ActionUpdateStatus:
		return &UpdateStatusParams{}, nil
	case ActionRequestReview:
		return &RequestReviewParams{}, nil
	case ActionReassignTask:
		return &ReassignTaskParams{}, nil
	case ActionCreateTask:
		return &CreateTaskParams{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
}

// actionEnvelope is the wire shape of an Action.
type actionEnvelope struct {
	Type      ActionType      `json:"type" yaml:"type"`
	OnFailure FailureStrategy `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	env := struct {
		Type      ActionType      `json:"type"`
		OnFailure FailureStrategy `json:"on_failure,omitempty"`
		Params    Params          `json:"params,omitempty"`
	}{a.Type, a.OnFailure, a.Params}
	return json.Marshal(env)
}

// UnmarshalJSON implements json.Unmarshaler, decoding the params payload
// into the parameter struct selected by the type tag.
func (a *Action) UnmarshalJSON(data []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	a.Type = env.Type
	a.OnFailure = env.OnFailure
	a.Params = nil
	if len(env.Params) == 0 {
		params, err := newParams(env.Type)
		if err != nil {
			return err
		}
		a.Params = params
		return nil
	}
	params, err := newParams(env.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(env.Params, params); err != nil {
		return fmt.Errorf("decode %s params: %w", env.Type, err)
	}
	a.Params = params
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for config-defined rules.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	var env struct {
		Type      ActionType      `yaml:"type"`
		OnFailure FailureStrategy `yaml:"on_failure"`
		Params    yaml.Node       `yaml:"params"`
	}
	if err := value.Decode(&env); err != nil {
		return err
	}
	a.Type = env.Type
	a.OnFailure = env.OnFailure
	params, err := newParams(env.Type)
	if err != nil {
		return err
	}
	if env.Params.Kind != 0 {
		if err := env.Params.Decode(params); err != nil {
			return fmt.Errorf("decode %s params: %w", env.Type, err)
		}
	}
	a.Params = params
	return nil
}
