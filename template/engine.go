package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/task"
)

// Instance records one task generated from a template.
type Instance struct {
	TaskID    string    `json:"task_id"`
	CaseID    string    `json:"case_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Engine stores task templates and instantiates concrete tasks from them.
// All mutable state is guarded by a single mutex; the engine is safe for
// concurrent use.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]*TaskTemplate
	instances map[string][]Instance
	logger    *slog.Logger

	now func() time.Time
}

// NewEngine returns an empty template engine. A nil logger falls back to
// slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		templates: make(map[string]*TaskTemplate),
		instances: make(map[string][]Instance),
		logger:    logger,
		now:       time.Now,
	}
}

// NewEngineWithDefaults returns a template engine preloaded with the
// default legal template set.
func NewEngineWithDefaults(logger *slog.Logger) (*Engine, error) {
	e := NewEngine(logger)
	for _, t := range DefaultTemplates() {
		if err := e.AddTemplate(t); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AddTemplate validates and registers a template. Adding a template with an
// existing id replaces it.
func (e *Engine) AddTemplate(t *TaskTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.templates[t.ID]; ok {
		t.CreatedAt = existing.CreatedAt
		t.UsageCount = existing.UsageCount
	} else {
		t.CreatedAt = e.now()
	}
	t.UpdatedAt = e.now()
	e.templates[t.ID] = t
	return nil
}

// RemoveTemplate deletes a template. Removing an unknown id is a no-op.
func (e *Engine) RemoveTemplate(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.templates, id)
}

// Template returns the template with the given id, or nil.
func (e *Engine) Template(id string) *TaskTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.templates[id]
}

// Templates returns all registered templates ordered by id.
func (e *Engine) Templates() []*TaskTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*TaskTemplate, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AutoCreateTemplates returns the active, auto-create templates applicable
// to the case type and phase, ordered by id.
func (e *Engine) AutoCreateTemplates(caseType phase.CaseType, p phase.CasePhase) []*TaskTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*TaskTemplate
	for _, t := range e.templates {
		if t.Active && t.AutoCreate && t.AppliesTo(caseType, p) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GenerateTask instantiates a task from a template. It returns nil when the
// template id is unknown — callers must check, this is not an error.
// Unresolved {placeholders} are left verbatim in the output so missing
// variables stay visible downstream.
func (e *Engine) GenerateTask(templateID, caseID string, variables map[string]any) *task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.templates[templateID]
	if !ok {
		e.logger.Debug("template not found", slog.String("template_id", templateID))
		return nil
	}

	vars := withDefaults(t, variables)
	now := e.now()
	created := &task.Task{
		ID:             task.NewID(),
		CaseID:         caseID,
		TemplateID:     t.ID,
		Title:          Substitute(t.TitleTemplate, vars),
		Description:    Substitute(t.DescriptionTemplate, vars),
		Category:       t.Category,
		Priority:       t.DefaultPriority,
		Status:         task.StatusPending,
		AssignedRole:   t.AssigneeRole.String(),
		EstimatedHours: t.EstimatedHours,
		Metadata:       map[string]any{"variables": vars},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if created.Priority == "" {
		created.Priority = task.PriorityMedium
	}
	if t.DueIn > 0 {
		due := now.Add(t.DueIn)
		created.DueDate = &due
	}

	t.UsageCount++
	t.UpdatedAt = now
	e.instances[t.ID] = append(e.instances[t.ID], Instance{TaskID: created.ID, CaseID: caseID, CreatedAt: now})
	return created
}

// Instances returns the generation records for a template.
func (e *Engine) Instances(templateID string) []Instance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Instance, len(e.instances[templateID]))
	copy(out, e.instances[templateID])
	return out
}

// ValidateVariables applies per-variable validation followed by
// template-level validation rules, accumulating every error so a caller
// sees all problems at once.
func (e *Engine) ValidateVariables(t *TaskTemplate, variables map[string]any) []string {
	var errs []string
	vars := withDefaults(t, variables)

	for _, v := range t.Variables {
		value, present := vars[v.Name]
		if !present || value == nil {
			if v.Required {
				errs = append(errs, fmt.Sprintf("variable %s is required", v.Name))
			}
			continue
		}
		errs = append(errs, validateVariable(v, value)...)
	}

	for _, rule := range templateValidations(t) {
		if msg := applyValidation(rule, vars); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func validateVariable(v Variable, value any) []string {
	var errs []string
	switch v.Type {
	case VariableNumber:
		if _, ok := numeric(value); !ok {
			errs = append(errs, fmt.Sprintf("variable %s must be a number", v.Name))
			return errs
		}
	case VariableBoolean:
		if _, ok := value.(bool); !ok {
			errs = append(errs, fmt.Sprintf("variable %s must be a boolean", v.Name))
			return errs
		}
	case VariableDate:
		s, ok := value.(string)
		if !ok {
			errs = append(errs, fmt.Sprintf("variable %s must be an RFC 3339 date string", v.Name))
			return errs
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			if _, err := time.Parse("2006-01-02", s); err != nil {
				errs = append(errs, fmt.Sprintf("variable %s must be an RFC 3339 date string", v.Name))
				return errs
			}
		}
	}
	if v.Validation == nil {
		return errs
	}
	val := v.Validation
	if n, ok := numeric(value); ok {
		if val.Min != nil && n < *val.Min {
			errs = append(errs, message(val, fmt.Sprintf("variable %s must be at least %v", v.Name, *val.Min)))
		}
		if val.Max != nil && n > *val.Max {
			errs = append(errs, message(val, fmt.Sprintf("variable %s must be at most %v", v.Name, *val.Max)))
		}
	} else if s, ok := value.(string); ok {
		if val.Min != nil && float64(len(s)) < *val.Min {
			errs = append(errs, message(val, fmt.Sprintf("variable %s must be at least %v characters", v.Name, *val.Min)))
		}
		if val.Max != nil && float64(len(s)) > *val.Max {
			errs = append(errs, message(val, fmt.Sprintf("variable %s must be at most %v characters", v.Name, *val.Max)))
		}
		if val.Pattern != "" {
			if re, err := regexp.Compile(val.Pattern); err == nil && !re.MatchString(s) {
				errs = append(errs, message(val, fmt.Sprintf("variable %s does not match required pattern", v.Name)))
			}
		}
	}
	return errs
}

// Validations declared on the template apply after per-variable rules.
func templateValidations(t *TaskTemplate) []Validation {
	return t.Validations
}

func applyValidation(rule Validation, vars map[string]any) string {
	value, present := vars[rule.Field]
	switch rule.Rule {
	case "required":
		if !present || value == nil || value == "" {
			return message2(rule, fmt.Sprintf("field %s is required", rule.Field))
		}
	case "pattern":
		s, _ := value.(string)
		pat, _ := rule.Value.(string)
		if pat == "" {
			return ""
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Sprintf("field %s has invalid validation pattern", rule.Field)
		}
		if !re.MatchString(s) {
			return message2(rule, fmt.Sprintf("field %s does not match required pattern", rule.Field))
		}
	case "min":
		n, ok := numeric(value)
		limit, okL := numeric(rule.Value)
		if ok && okL && n < limit {
			return message2(rule, fmt.Sprintf("field %s must be at least %v", rule.Field, limit))
		}
	case "max":
		n, ok := numeric(value)
		limit, okL := numeric(rule.Value)
		if ok && okL && n > limit {
			return message2(rule, fmt.Sprintf("field %s must be at most %v", rule.Field, limit))
		}
	}
	return ""
}

func message(v *VariableValidation, fallback string) string {
	if v.Message != "" {
		return v.Message
	}
	return fallback
}

func message2(r Validation, fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}

func withDefaults(t *TaskTemplate, variables map[string]any) map[string]any {
	vars := make(map[string]any, len(variables)+len(t.Variables))
	for _, v := range t.Variables {
		if v.Default != nil {
			vars[v.Name] = v.Default
		}
	}
	for k, v := range variables {
		vars[k] = v
	}
	return vars
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Substitute replaces {key} placeholders with values from the variable bag.
// Placeholders without a corresponding variable are left verbatim.
func Substitute(tmpl string, vars map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := strings.Trim(m, "{}")
		if v, ok := vars[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return m
	})
}
