// Package template implements the task template engine: parameterized task
// templates keyed by case type and phase, variable validation, and concrete
// task instantiation with per-template usage tracking.
package template

import (
	"fmt"
	"regexp"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/task"
)

// VariableType classifies a template variable.
type VariableType string

const (
	// VariableString is a free-form string variable.
	VariableString VariableType = "string"
	// VariableNumber is a numeric variable.
	VariableNumber VariableType = "number"
	// VariableBoolean is a boolean variable.
	VariableBoolean VariableType = "boolean"
	// VariableDate is an RFC 3339 date variable.
	VariableDate VariableType = "date"
)

// VariableValidation constrains a template variable value.
type VariableValidation struct {
	// Min is the minimum numeric value or string length.
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum numeric value or string length.
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Pattern is a regular expression string values must match.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Message overrides the default validation error message.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Variable declares a template variable. Variable names are unique within
// a template.
type Variable struct {
	Name       string              `json:"name" yaml:"name"`
	Type       VariableType        `json:"type" yaml:"type"`
	Required   bool                `json:"required" yaml:"required"`
	Default    any                 `json:"default,omitempty" yaml:"default,omitempty"`
	Validation *VariableValidation `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// Step is an ordered work step within a template. Step dependencies must
// reference step ids declared within the same template.
type Step struct {
	ID             string   `json:"id" yaml:"id"`
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
	Order          int      `json:"order" yaml:"order"`
	DependsOn      []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`
}

// Trigger declares an event that should instantiate the template.
type Trigger struct {
	// Event names the triggering event (e.g., "phase_change").
	Event string `json:"event" yaml:"event"`

	// Conditions gate the trigger against context metadata.
	Conditions []condition.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Validation is a template-level rule applied to the variable bag after
// per-variable validation.
type Validation struct {
	// Field is the variable name the rule applies to.
	Field string `json:"field" yaml:"field"`

	// Rule is one of "required", "pattern", "min", "max".
	Rule string `json:"rule" yaml:"rule"`

	// Value parameterizes pattern/min/max rules.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	// Message overrides the default error message.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// TaskTemplate is a parameterized task definition keyed by case type and
// applicable phases.
type TaskTemplate struct {
	// ID is the unique template identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable template name.
	Name string `json:"name" yaml:"name"`

	// CaseType restricts the template to one case type.
	CaseType phase.CaseType `json:"case_type" yaml:"case_type"`

	// Phases lists the case phases the template applies to.
	Phases []phase.CasePhase `json:"phases" yaml:"phases"`

	// Category groups generated tasks.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// TitleTemplate is the task title with {variable} placeholders.
	TitleTemplate string `json:"title_template" yaml:"title_template"`

	// DescriptionTemplate is the task description with {variable} placeholders.
	DescriptionTemplate string `json:"description_template,omitempty" yaml:"description_template,omitempty"`

	// DefaultPriority is the priority assigned to generated tasks.
	DefaultPriority task.Priority `json:"default_priority" yaml:"default_priority"`

	// AssigneeRole is the role generated tasks are intended for.
	AssigneeRole phase.UserRole `json:"assignee_role,omitempty" yaml:"assignee_role,omitempty"`

	// DueIn is the default time-to-due for generated tasks. YAML definitions
	// carry this as a duration string; see the config package.
	DueIn time.Duration `json:"due_in,omitempty" yaml:"-"`

	// EstimatedHours is the default effort estimate.
	EstimatedHours float64 `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`

	// Variables declares the template variables.
	Variables []Variable `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Steps lists the ordered work steps.
	Steps []Step `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Triggers lists events that instantiate the template.
	Triggers []Trigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	// Validations are template-level rules applied to the variable bag
	// after per-variable validation.
	Validations []Validation `json:"validations,omitempty" yaml:"validations,omitempty"`

	// Conditions optionally gate auto-creation against transition metadata.
	Conditions []condition.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// AutoCreate marks the template for automatic instantiation on matching
	// phase transitions.
	AutoCreate bool `json:"auto_create" yaml:"auto_create"`

	// AutoAssign marks generated tasks for automatic assignment.
	AutoAssign bool `json:"auto_assign" yaml:"auto_assign"`

	// Active disables the template without removing it.
	Active bool `json:"active" yaml:"active"`

	// UsageCount tracks how many tasks were generated from this template.
	// Mutated by the engine, not by callers.
	UsageCount int `json:"usage_count,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Validate checks template shape: id and title present, variable names
// unique, and step dependencies referencing declared step ids.
func (t *TaskTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.TitleTemplate == "" {
		return fmt.Errorf("template %s: title template is required", t.ID)
	}
	if t.DefaultPriority != "" && !t.DefaultPriority.IsValid() {
		return fmt.Errorf("template %s: invalid default priority %q", t.ID, t.DefaultPriority)
	}
	seen := make(map[string]bool, len(t.Variables))
	for _, v := range t.Variables {
		if v.Name == "" {
			return fmt.Errorf("template %s: variable name is required", t.ID)
		}
		if seen[v.Name] {
			return fmt.Errorf("template %s: duplicate variable %q", t.ID, v.Name)
		}
		seen[v.Name] = true
		if v.Validation != nil && v.Validation.Pattern != "" {
			if _, err := regexp.Compile(v.Validation.Pattern); err != nil {
				return fmt.Errorf("template %s: variable %s: invalid pattern: %w", t.ID, v.Name, err)
			}
		}
	}
	stepIDs := make(map[string]bool, len(t.Steps))
	for _, s := range t.Steps {
		if s.ID == "" {
			return fmt.Errorf("template %s: step id is required", t.ID)
		}
		if stepIDs[s.ID] {
			return fmt.Errorf("template %s: duplicate step %q", t.ID, s.ID)
		}
		stepIDs[s.ID] = true
	}
	for _, s := range t.Steps {
		for _, dep := range s.DependsOn {
			if !stepIDs[dep] {
				return fmt.Errorf("template %s: step %s depends on undeclared step %q", t.ID, s.ID, dep)
			}
		}
	}
	if err := condition.ValidateAll(t.Conditions); err != nil {
		return fmt.Errorf("template %s: %w", t.ID, err)
	}
	return nil
}

// AppliesTo reports whether the template matches the case type and phase.
func (t *TaskTemplate) AppliesTo(caseType phase.CaseType, p phase.CasePhase) bool {
	if t.CaseType != "" && t.CaseType != caseType {
		return false
	}
	for _, tp := range t.Phases {
		if tp == p {
			return true
		}
	}
	return len(t.Phases) == 0
}
