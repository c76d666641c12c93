package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/metric"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/task"
	"github.com/c360studio/caseflow/template"
)

// ActionExecutor executes task rule actions. Implemented by rule.Engine.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, a rule.Action, rctx *rule.Context) rule.ActionResult
}

// Engine processes case phase transitions. The state machine is the sole
// authority on transition legality; the engine owns everything that happens
// after acceptance.
type Engine struct {
	mu        sync.RWMutex
	taskRules map[string]*TaskRule
	history   map[string][]TransitionRecord

	sm        *phase.StateMachine
	templates *template.Engine
	exec      ActionExecutor
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine returns a workflow engine preloaded with the default task rule
// table. A nil logger falls back to slog.Default().
func NewEngine(sm *phase.StateMachine, templates *template.Engine, exec ActionExecutor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		taskRules: make(map[string]*TaskRule),
		history:   make(map[string][]TransitionRecord),
		sm:        sm,
		templates: templates,
		exec:      exec,
		logger:    logger,
		now:       time.Now,
	}
	for _, r := range DefaultTaskRules() {
		e.taskRules[r.ID] = r
	}
	return e
}

// AddTaskRule validates and registers a task rule, replacing any rule with
// the same id.
func (e *Engine) AddTaskRule(r *TaskRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.taskRules[r.ID] = r
	return nil
}

// RemoveTaskRule deletes a task rule. Removing an unknown id is a no-op.
func (e *Engine) RemoveTaskRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.taskRules, id)
}

// TaskRules returns all task rules ordered by priority then id.
func (e *Engine) TaskRules() []*TaskRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*TaskRule, 0, len(e.taskRules))
	for _, r := range e.taskRules {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ProcessPhaseTransition validates and executes one phase transition.
// A state machine rejection returns immediately with the rejection errors
// and no side effects. Processing failures after acceptance degrade the
// result, they do not roll the transition back.
func (e *Engine) ProcessPhaseTransition(ctx context.Context, req Request) (res *Result) {
	res = &Result{Success: true}

	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("workflow processing panic: %v", rec))
			e.logger.Error("workflow processing panicked",
				slog.String("case_id", req.CaseID), slog.Any("panic", rec))
		}
	}()

	check := e.sm.CanTransition(req.FromPhase, req.ToPhase, req.UserRole, req.CaseType, req.Metadata)
	if !check.Success {
		metric.TransitionsTotal.WithLabelValues("rejected").Inc()
		e.logger.Info("phase transition rejected",
			slog.String("case_id", req.CaseID),
			slog.String("from", req.FromPhase.String()),
			slog.String("to", req.ToPhase.String()),
			slog.String("role", req.UserRole.String()))
		return &Result{Success: false, Errors: check.Errors}
	}
	metric.TransitionsTotal.WithLabelValues("accepted").Inc()

	e.applyTemplates(ctx, req, res)
	e.applyTaskRules(ctx, req, res)

	if n := len(res.CreatedTasks); n > 0 {
		res.Notifications = append(res.Notifications, e.summaryNotification(req, n))
	}

	e.recordTransition(req, len(res.CreatedTasks))
	e.logger.Info("phase transition processed",
		slog.String("case_id", req.CaseID),
		slog.String("from", req.FromPhase.String()),
		slog.String("to", req.ToPhase.String()),
		slog.Int("tasks_created", len(res.CreatedTasks)))
	return res
}

// applyTemplates instantiates tasks from every active auto-create template
// matching either endpoint of the transition: templates keyed to the phase
// being left cover exit work, templates keyed to the phase being entered
// cover entry work. Template conditions gate creation against the case
// metadata.
func (e *Engine) applyTemplates(ctx context.Context, req Request, res *Result) {
	seen := make(map[string]bool)
	var matched []*template.TaskTemplate
	for _, p := range []phase.CasePhase{req.FromPhase, req.ToPhase} {
		for _, t := range e.templates.AutoCreateTemplates(req.CaseType, p) {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			matched = append(matched, t)
		}
	}

	for _, t := range matched {
		if len(t.Conditions) > 0 {
			if eval := condition.Evaluate(t.Conditions, req.Metadata); !eval.Matched {
				continue
			}
		}
		created := e.templates.GenerateTask(t.ID, req.CaseID, req.Metadata)
		if created == nil {
			continue
		}
		metric.TasksCreatedTotal.Inc()
		if t.AutoAssign {
			e.autoAssign(ctx, t, created, req, res)
		}
		res.CreatedTasks = append(res.CreatedTasks, created)
	}
}

// autoAssign runs an assignment action for a freshly created task when its
// template asks for it. Assignment failure is reported but does not void
// the created task.
func (e *Engine) autoAssign(ctx context.Context, t *template.TaskTemplate, created *task.Task, req Request, res *Result) {
	action := rule.Action{
		Type: rule.ActionAssignTask,
		Params: &rule.AssignTaskParams{
			Strategy:     rule.StrategyWorkload,
			RequiredRole: t.AssigneeRole,
		},
	}
	rctx := rule.Context{
		CaseID:    req.CaseID,
		TaskID:    created.ID,
		UserID:    req.UserID,
		Event:     "phase_transition",
		Task:      created,
		Metadata:  req.Metadata,
		Timestamp: e.now(),
	}
	ar := e.exec.ExecuteAction(ctx, action, &rctx)
	if !ar.Success {
		res.Errors = append(res.Errors, fmt.Sprintf("auto-assign task %s: %s", created.ID, ar.Error))
		res.Success = false
	}
	res.Notifications = append(res.Notifications, ar.Notifications...)
}

// applyTaskRules runs the workflow task rule table over each created task.
func (e *Engine) applyTaskRules(ctx context.Context, req Request, res *Result) {
	rules := e.TaskRules()
	applied := make(map[string]bool)

	for _, created := range res.CreatedTasks {
		rctx := rule.Context{
			CaseID:    req.CaseID,
			TaskID:    created.ID,
			UserID:    req.UserID,
			Event:     "phase_transition",
			Task:      created,
			Metadata:  transitionMetadata(req),
			Timestamp: e.now(),
		}
		data := rule.EvaluationData(rctx, e.now())

		for _, r := range rules {
			if !r.Active {
				continue
			}
			if eval := condition.Evaluate(r.Conditions, data); !eval.Matched {
				continue
			}
			if !applied[r.ID] {
				applied[r.ID] = true
				res.AppliedRules = append(res.AppliedRules, r.ID)
			}
			for _, a := range r.Actions {
				ar := e.exec.ExecuteAction(ctx, a, &rctx)
				res.Notifications = append(res.Notifications, ar.Notifications...)
				res.CreatedTasks = append(res.CreatedTasks, ar.CreatedTasks...)
				if !ar.Success {
					res.Errors = append(res.Errors, fmt.Sprintf("task rule %s: %s: %s", r.ID, ar.Type, ar.Error))
					res.Success = false
					if a.Strategy() == rule.FailureStop {
						break
					}
				}
			}
			res.UpdatedTasks = append(res.UpdatedTasks, created)
		}
	}
}

func (e *Engine) summaryNotification(req Request, created int) task.Notification {
	recipients := []string{req.UserID}
	if req.UserID == "" {
		recipients = []string{req.UserRole.String()}
	}
	return task.Notification{
		Type:       "workflow_tasks_created",
		Recipients: recipients,
		Template:   "phase_transition_summary",
		Urgency:    task.PriorityMedium,
		Data: map[string]any{
			"case_id":       req.CaseID,
			"from_phase":    req.FromPhase.String(),
			"to_phase":      req.ToPhase.String(),
			"tasks_created": created,
		},
	}
}

func (e *Engine) recordTransition(req Request, created int) {
	rec := TransitionRecord{
		CaseID:       req.CaseID,
		FromPhase:    req.FromPhase,
		ToPhase:      req.ToPhase,
		UserID:       req.UserID,
		UserRole:     req.UserRole,
		TasksCreated: created,
		OccurredAt:   e.now(),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[req.CaseID] = append(e.history[req.CaseID], rec)
}

// History returns the transition records for a case, oldest first.
func (e *Engine) History(caseID string) []TransitionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TransitionRecord, len(e.history[caseID]))
	copy(out, e.history[caseID])
	return out
}

// CaseStatistics summarizes a case's workflow history.
func (e *Engine) CaseStatistics(caseID string) Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := Statistics{CaseID: caseID}
	records := e.history[caseID]
	stats.Transitions = len(records)
	for _, rec := range records {
		stats.TasksCreated += rec.TasksCreated
	}
	if len(records) > 0 {
		first := records[0].OccurredAt
		last := records[len(records)-1].OccurredAt
		stats.FirstTransition = &first
		stats.LastTransition = &last
		stats.CurrentPhase = records[len(records)-1].ToPhase
	}
	return stats
}

// transitionMetadata merges the request metadata with transition facts so
// task rule conditions can reference the phases involved.
func transitionMetadata(req Request) map[string]any {
	out := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		out[k] = v
	}
	out["fromPhase"] = req.FromPhase.String()
	out["toPhase"] = req.ToPhase.String()
	out["caseType"] = req.CaseType.String()
	return out
}

// DefaultTaskRules returns the built-in workflow task rule table: overdue
// tasks escalate, unassigned high-priority tasks get auto-assigned.
func DefaultTaskRules() []*TaskRule {
	return []*TaskRule{
		{
			ID:       "overdue_escalation",
			Name:     "Escalate overdue tasks",
			Priority: 10,
			Active:   true,
			Conditions: []condition.Condition{
				{Field: "task.overdue", Operator: condition.OpEquals, Value: true},
			},
			Actions: []rule.Action{
				{Type: rule.ActionEscalateTask, Params: &rule.EscalateTaskParams{Reason: "task overdue"}},
			},
		},
		{
			ID:       "high_priority_auto_assign",
			Name:     "Auto-assign unassigned high-priority tasks",
			Priority: 20,
			Active:   true,
			Conditions: []condition.Condition{
				{Field: "task.priority", Operator: condition.OpIn, Value: []any{"high", "urgent"}, Logical: condition.LogicalAnd},
				{Field: "task.assignedTo", Operator: condition.OpEquals, Value: ""},
			},
			Actions: []rule.Action{
				{Type: rule.ActionAssignTask, Params: &rule.AssignTaskParams{Strategy: rule.StrategyWorkload}},
			},
		},
	}
}
