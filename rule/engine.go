package rule

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
	"github.com/c360studio/caseflow/task"
)

// Engine evaluates business rules against request-scoped contexts and
// executes their actions. All mutable state (the rule table and the
// escalation paths) is guarded by a single mutex; these are low-volume
// control-plane structures, not hot data paths.
type Engine struct {
	mu          sync.RWMutex
	rules       map[string]*Rule
	escalations map[phase.UserRole][]EscalationLevel
	directory   Directory
	logger      *slog.Logger

	now func() time.Time
}

// NewEngine returns a rule engine with the default escalation paths and an
// empty candidate directory. A nil logger falls back to slog.Default().
func NewEngine(directory Directory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if directory == nil {
		directory = StaticDirectory(nil)
	}
	return &Engine{
		rules:       make(map[string]*Rule),
		escalations: DefaultEscalationPaths(),
		directory:   directory,
		logger:      logger,
		now:         time.Now,
	}
}

// AddRule validates and registers a rule. Adding a rule with an existing id
// replaces it, preserving its counters.
func (e *Engine) AddRule(r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.rules[r.ID]; ok {
		r.TriggerCount = existing.TriggerCount
		r.SuccessCount = existing.SuccessCount
		r.FailureCount = existing.FailureCount
		r.LastTriggered = existing.LastTriggered
		r.CreatedAt = existing.CreatedAt
	} else {
		r.CreatedAt = e.now()
	}
	r.UpdatedAt = e.now()
	e.rules[r.ID] = r
	return nil
}

// RemoveRule deletes a rule. Removing an unknown id is a no-op.
func (e *Engine) RemoveRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, id)
}

// Rule returns the rule with the given id, or nil.
func (e *Engine) Rule(id string) *Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules[id]
}

// Rules returns all rules in evaluation order.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orderedRulesLocked(false)
}

// SetEscalationPath registers the escalation path for a role after
// validating the strictly increasing level invariant.
func (e *Engine) SetEscalationPath(role phase.UserRole, levels []EscalationLevel) error {
	if err := validateEscalationPath(role, levels); err != nil {
		return err
	}
	sorted := make([]EscalationLevel, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	e.mu.Lock()
	defer e.mu.Unlock()
	e.escalations[role] = sorted
	return nil
}

// EscalationPath returns the escalation path for a role.
func (e *Engine) EscalationPath(role phase.UserRole) []EscalationLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EscalationLevel, len(e.escalations[role]))
	copy(out, e.escalations[role])
	return out
}

// orderedRulesLocked returns rules sorted by ascending priority with id as
// the stable tiebreak. When activeOnly is set, inactive rules are excluded.
func (e *Engine) orderedRulesLocked(activeOnly bool) []*Rule {
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if activeOnly && !r.Active {
			continue
		}
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

// EvaluateRules evaluates all active rules in ascending priority order.
// A rule with Active=false is never evaluated or counted.
func (e *Engine) EvaluateRules(ctx context.Context, rctx Context) []Result {
	e.mu.RLock()
	rules := e.orderedRulesLocked(true)
	e.mu.RUnlock()

	results := make([]Result, 0, len(rules))
	for _, r := range rules {
		results = append(results, e.EvaluateRule(ctx, r, rctx))
	}
	return results
}

// EvaluateRule evaluates one rule: conditions first, then — only on a
// match — actions in declared order under each action's failure strategy.
// Evaluation exceptions are captured in the result, never propagated.
func (e *Engine) EvaluateRule(ctx context.Context, r *Rule, rctx Context) (res Result) {
	res = Result{RuleID: r.ID, RuleName: r.Name, EvaluatedAt: e.now()}

	defer func() {
		if rec := recover(); rec != nil {
			res.Error = fmt.Sprintf("rule evaluation panic: %v", rec)
			res.Matched = false
			e.recordFailure(r)
			metric.RuleEvaluationsTotal.WithLabelValues("error").Inc()
			e.logger.Error("rule evaluation panicked",
				slog.String("rule_id", r.ID), slog.Any("panic", rec))
		}
	}()

	eval := condition.Evaluate(r.Conditions, EvaluationData(rctx, e.now()))
	res.Matched = eval.Matched
	res.Score = eval.Score
	res.Confidence = eval.Confidence

	if !eval.Matched {
		metric.RuleEvaluationsTotal.WithLabelValues("unmatched").Inc()
		return res
	}

	actionFailed := false
	for i := range r.Actions {
		ar := e.ExecuteAction(ctx, r.Actions[i], &rctx)
		res.Actions = append(res.Actions, ar)
		collectOutputs(&res, ar)
		if !ar.Success {
			actionFailed = true
			e.logger.Warn("rule action failed",
				slog.String("rule_id", r.ID),
				slog.String("action", string(ar.Type)),
				slog.String("error", ar.Error))
			if r.Actions[i].Strategy() == FailureStop {
				break
			}
		}
	}

	e.recordTrigger(r, !actionFailed)
	metric.RuleEvaluationsTotal.WithLabelValues("matched").Inc()
	return res
}

// ExecuteAction dispatches one action to its handler and returns the
// structured result. The context task, when present, is mutated in place;
// persisting the updated record is the caller's responsibility.
func (e *Engine) ExecuteAction(ctx context.Context, a Action, rctx *Context) ActionResult {
	start := e.now()
	res := ActionResult{Type: a.Type}

	defer func() {
		res.ExecutionTime = e.now().Sub(start)
		metric.ActionExecutionSeconds.WithLabelValues(string(a.Type)).Observe(res.ExecutionTime.Seconds())
	}()

	payload, notes, created, err := e.dispatch(ctx, a, rctx)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Result = payload
	res.Notifications = notes
	res.CreatedTasks = created
	return res
}

// dispatch is the exhaustive action switch. Adding an ActionType without a
// case here fails the default branch at runtime and Validate at config time.
func (e *Engine) dispatch(ctx context.Context, a Action, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	switch p := a.Params.(type) {
	case *AssignTaskParams:
		return e.assignTask(ctx, *p, rctx)
	case *EscalateTaskParams:
		return e.escalateTask(*p, rctx)
	case *ChangePriorityParams:
		return e.changePriority(*p, rctx)
	case *SetDeadlineParams:
		return e.setDeadline(*p, rctx)
	case *SendNotificationParams:
		return e.sendNotification(*p, rctx)
	case *CreateDependencyParams:
		return e.createDependency(*p, rctx)
	case *UpdateStatusParams:
		return e.updateStatus(*p, rctx)
	case *RequestReviewParams:
		return e.requestReview(*p, rctx)
	case *ReassignTaskParams:
		return e.reassignTask(*p, rctx)
	case *CreateTaskParams:
		return e.createTask(*p, rctx)
	default:
		return nil, nil, nil, fmt.Errorf("no handler for action type %q", a.Type)
	}
}

func (e *Engine) recordTrigger(r *Rule, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	r.TriggerCount++
	if success {
		r.SuccessCount++
	}
	r.LastTriggered = &now
	r.UpdatedAt = now
}

func (e *Engine) recordFailure(r *Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r.FailureCount++
	r.UpdatedAt = e.now()
}

// collectOutputs lifts notifications and created tasks from an action
// result onto the rule result.
func collectOutputs(res *Result, ar ActionResult) {
	res.Notifications = append(res.Notifications, ar.Notifications...)
	res.Tasks = append(res.Tasks, ar.CreatedTasks...)
}

// EvaluationData flattens a rule context into the nested metadata map the
// condition evaluator resolves dot-notation paths against. Context fields
// are exposed at the top level and, when a task is present, under "task".
// The caller's clock decides overdue.
func EvaluationData(rctx Context, now time.Time) map[string]any {
	data := make(map[string]any, len(rctx.Metadata)+5)
	for k, v := range rctx.Metadata {
		data[k] = v
	}
	data["caseId"] = rctx.CaseID
	data["taskId"] = rctx.TaskID
	data["userId"] = rctx.UserID
	data["event"] = rctx.Event
	if t := rctx.Task; t != nil {
		taskData := map[string]any{
			"id":              t.ID,
			"priority":        string(t.Priority),
			"status":          string(t.Status),
			"category":        t.Category,
			"assignedTo":      t.AssignedTo,
			"assignedRole":    t.AssignedRole,
			"escalationLevel": t.EscalationLevel,
		}
		if t.DueDate != nil {
			taskData["dueDate"] = t.DueDate.Format(time.RFC3339)
			taskData["overdue"] = t.DueDate.Before(now) && t.Status != task.StatusCompleted
		}
		data["task"] = taskData
	}
	return data
}
