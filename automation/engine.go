package automation

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/metric"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/task"
)

// defaultHistoryLimit caps the in-memory automation history log.
const defaultHistoryLimit = 1000

// ActionExecutor executes a single rule action. Implemented by rule.Engine;
// the automation engine owns trigger matching, not action semantics.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, a rule.Action, rctx *rule.Context) rule.ActionResult
}

// PhaseChangeRequest describes a case phase transition event.
type PhaseChangeRequest struct {
	CaseID    string          `json:"case_id"`
	FromPhase phase.CasePhase `json:"from_phase"`
	ToPhase   phase.CasePhase `json:"to_phase"`
	CaseType  phase.CaseType  `json:"case_type"`
	UserID    string          `json:"user_id,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// StatusChangeRequest describes a task status transition event.
type StatusChangeRequest struct {
	TaskID    string         `json:"task_id"`
	OldStatus task.Status    `json:"old_status"`
	NewStatus task.Status    `json:"new_status"`
	CaseID    string         `json:"case_id"`
	UserID    string         `json:"user_id,omitempty"`
	Task      *task.Task     `json:"task,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HistoryFilter selects automation history records.
type HistoryFilter struct {
	// CaseID filters by case. Empty matches all.
	CaseID string

	// Limit caps the number of returned records, newest last. Zero means all.
	Limit int
}

// Engine is the task automation engine. All mutable state (rule table,
// pending queue, history log) is guarded by one mutex.
type Engine struct {
	mu         sync.RWMutex
	rules      map[string]*Rule
	pending    map[string]*Pending
	queue      pendingQueue
	history    []ExecutionRecord
	historyMax int

	exec   ActionExecutor
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine returns an automation engine delegating action execution to
// exec. A nil logger falls back to slog.Default().
func NewEngine(exec ActionExecutor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:      make(map[string]*Rule),
		pending:    make(map[string]*Pending),
		history:    nil,
		historyMax: defaultHistoryLimit,
		exec:       exec,
		logger:     logger,
		now:        time.Now,
	}
}

// SetHistoryLimit caps the in-memory history log. Non-positive limits
// restore the default.
func (e *Engine) SetHistoryLimit(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 {
		n = defaultHistoryLimit
	}
	e.historyMax = n
	e.trimHistoryLocked()
}

// AddRule validates and registers an automation rule.
func (e *Engine) AddRule(r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.rules[r.ID]; ok {
		r.TriggerCount = existing.TriggerCount
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

// Rules returns all rules ordered by priority then id.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
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

// ProcessCasePhaseChange runs all automation rules whose phase-change
// trigger and conditions match the transition.
func (e *Engine) ProcessCasePhaseChange(ctx context.Context, req PhaseChangeRequest) *Result {
	metadata := cloneMetadata(req.Metadata)
	metadata["fromPhase"] = req.FromPhase.String()
	metadata["toPhase"] = req.ToPhase.String()
	metadata["caseType"] = req.CaseType.String()

	rctx := rule.Context{
		CaseID:    req.CaseID,
		UserID:    req.UserID,
		Event:     "phase_change",
		Metadata:  metadata,
		Timestamp: e.now(),
	}
	match := func(r *Rule) bool {
		t := r.Trigger
		return t.Type == TriggerPhaseChange && (t.Phase == "" || t.Phase == req.ToPhase)
	}
	return e.processEvent(ctx, "phase_change", rctx, match)
}

// ProcessTaskStatusChange runs all automation rules whose task-status
// trigger and conditions match the transition. Follow-up tasks created by
// matched rules are returned on the result.
func (e *Engine) ProcessTaskStatusChange(ctx context.Context, req StatusChangeRequest) *Result {
	metadata := cloneMetadata(req.Metadata)
	metadata["oldStatus"] = req.OldStatus.String()
	metadata["newStatus"] = req.NewStatus.String()

	rctx := rule.Context{
		CaseID:    req.CaseID,
		TaskID:    req.TaskID,
		UserID:    req.UserID,
		Event:     "task_status_change",
		Task:      req.Task,
		Metadata:  metadata,
		Timestamp: e.now(),
	}
	match := func(r *Rule) bool {
		t := r.Trigger
		if t.Type != TriggerTaskStatusChange {
			return false
		}
		if t.FromStatus != "" && t.FromStatus != req.OldStatus {
			return false
		}
		if t.ToStatus != "" && t.ToStatus != req.NewStatus {
			return false
		}
		if t.Priority != "" && (req.Task == nil || t.Priority != req.Task.Priority) {
			return false
		}
		return true
	}
	return e.processEvent(ctx, "task_status_change", rctx, match)
}

// ProcessDateBasedTrigger runs every automation rule registered for the
// named date-based event, returning one result per matched rule.
func (e *Engine) ProcessDateBasedTrigger(ctx context.Context, eventType string, metadata map[string]any) []*Result {
	rctx := rule.Context{
		Event:     eventType,
		Metadata:  cloneMetadata(metadata),
		Timestamp: e.now(),
	}
	match := func(r *Rule) bool {
		return r.Trigger.Type == TriggerDateBased && r.Trigger.Event == eventType
	}

	var results []*Result
	for _, r := range e.matchedRules(rctx, match) {
		id := r.ID
		single := e.processEvent(ctx, eventType, rctx, func(cand *Rule) bool {
			return cand.ID == id
		})
		results = append(results, single)
	}
	return results
}

// processEvent matches rules, executes immediate actions, and queues
// delayed ones. Errors are collected, never propagated.
func (e *Engine) processEvent(ctx context.Context, event string, rctx rule.Context, match func(*Rule) bool) *Result {
	res := &Result{Success: true, Event: event, CaseID: rctx.CaseID}

	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("automation processing panic: %v", rec))
			e.logger.Error("automation processing panicked", slog.Any("panic", rec))
		}
	}()

	for _, r := range e.matchedRules(rctx, match) {
		res.MatchedRules = append(res.MatchedRules, r.ID)
		e.bumpTrigger(r)

		var immediate []rule.ActionResult
		for _, a := range r.Actions {
			if a.Delay() > 0 {
				p := e.enqueue(r, a, rctx)
				res.Scheduled = append(res.Scheduled, p)
				continue
			}
			ar := e.exec.ExecuteAction(ctx, a.Action, &rctx)
			immediate = append(immediate, ar)
			res.Notifications = append(res.Notifications, ar.Notifications...)
			res.Tasks = append(res.Tasks, ar.CreatedTasks...)
			if !ar.Success {
				res.Success = false
				res.Errors = append(res.Errors, fmt.Sprintf("rule %s: %s: %s", r.ID, ar.Type, ar.Error))
				if a.Action.Strategy() == rule.FailureStop {
					break
				}
			}
		}
		if len(immediate) > 0 {
			rec := e.record(r, rctx, immediate, false)
			res.Executions = append(res.Executions, rec)
			metric.AutomationExecutionsTotal.WithLabelValues("immediate").Inc()
		}
	}
	return res
}

// matchedRules returns active rules whose trigger matches and whose
// conditions evaluate true, in priority order.
func (e *Engine) matchedRules(rctx rule.Context, match func(*Rule) bool) []*Rule {
	data := rule.EvaluationData(rctx, e.now())
	var out []*Rule
	for _, r := range e.Rules() {
		if !r.Active || !match(r) {
			continue
		}
		if eval := condition.Evaluate(r.Conditions, data); !eval.Matched {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) bumpTrigger(r *Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r.TriggerCount++
	r.UpdatedAt = e.now()
}

// enqueue places a delayed action on the pending queue.
func (e *Engine) enqueue(r *Rule, a Action, rctx rule.Context) *Pending {
	now := e.now()
	p := &Pending{
		ID:            "auto-" + uuid.NewString(),
		RuleID:        r.ID,
		RuleName:      r.Name,
		Action:        a.Action,
		Context:       rctx,
		ScheduledTime: now.Add(a.Delay()),
		CreatedAt:     now,
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[p.ID] = p
	heap.Push(&e.queue, p)
	metric.PendingAutomations.Set(float64(len(e.pending)))
	e.logger.Debug("queued delayed automation",
		slog.String("rule_id", r.ID),
		slog.String("pending_id", p.ID),
		slog.Time("scheduled_time", p.ScheduledTime))
	return p
}

// Pending returns the queued delayed automations ordered by fire time.
func (e *Engine) Pending() []*Pending {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Pending, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out
}

// ProcessPendingAutomations executes every queued automation whose
// scheduled time has passed. The drain is cooperative: it runs when a
// Scheduler ticks or when a caller invokes it directly.
func (e *Engine) ProcessPendingAutomations(ctx context.Context) []ExecutionRecord {
	now := e.now()

	e.mu.Lock()
	var due []*Pending
	for e.queue.Len() > 0 {
		next := e.queue[0]
		if next.ScheduledTime.After(now) {
			break
		}
		heap.Pop(&e.queue)
		delete(e.pending, next.ID)
		due = append(due, next)
	}
	metric.PendingAutomations.Set(float64(len(e.pending)))
	e.mu.Unlock()

	var records []ExecutionRecord
	for _, p := range due {
		rctx := p.Context
		ar := e.exec.ExecuteAction(ctx, p.Action, &rctx)
		// TriggerCount was bumped when the rule matched; draining its
		// delayed actions is not a new trigger event.
		rec := ExecutionRecord{
			ID:         "exec-" + uuid.NewString(),
			RuleID:     p.RuleID,
			RuleName:   p.RuleName,
			Context:    rctx,
			Results:    []rule.ActionResult{ar},
			Delayed:    true,
			ExecutedAt: e.now(),
		}
		e.appendHistory(rec)
		records = append(records, rec)
		metric.AutomationExecutionsTotal.WithLabelValues("delayed").Inc()
	}
	return records
}

// record appends an immediate execution to the history log.
func (e *Engine) record(r *Rule, rctx rule.Context, results []rule.ActionResult, delayed bool) ExecutionRecord {
	rec := ExecutionRecord{
		ID:         "exec-" + uuid.NewString(),
		RuleID:     r.ID,
		RuleName:   r.Name,
		Context:    rctx,
		Results:    results,
		Delayed:    delayed,
		ExecutedAt: e.now(),
	}
	e.appendHistory(rec)
	return rec
}

func (e *Engine) appendHistory(rec ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, rec)
	e.trimHistoryLocked()
}

func (e *Engine) trimHistoryLocked() {
	if len(e.history) > e.historyMax {
		e.history = e.history[len(e.history)-e.historyMax:]
	}
}

// History returns execution records matching the filter, oldest first.
func (e *Engine) History(f HistoryFilter) []ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []ExecutionRecord
	for _, rec := range e.history {
		if f.CaseID != "" && rec.Context.CaseID != f.CaseID {
			continue
		}
		out = append(out, rec)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// pendingQueue is a min-heap of pending automations ordered by fire time.
type pendingQueue []*Pending

func (q pendingQueue) Len() int           { return len(q) }
func (q pendingQueue) Less(i, j int) bool { return q[i].ScheduledTime.Before(q[j].ScheduledTime) }
func (q pendingQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pendingQueue) Push(x any)        { *q = append(*q, x.(*Pending)) }
func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
