package rule

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/task"
)

// Handlers return (payload, notifications, createdTasks, err). A non-nil
// error marks the action failed; whether the owning rule continues depends
// on the action's failure strategy.

func (e *Engine) assignTask(ctx context.Context, p AssignTaskParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	pool, err := e.directory.Candidates(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("candidate lookup: %w", err)
	}
	selected, err := selectCandidate(pool, p)
	if err != nil {
		return nil, nil, nil, err
	}
	if rctx.Task != nil {
		rctx.Task.AssignedTo = selected.UserID
		rctx.Task.AssignedRole = selected.Role.String()
		rctx.Task.UpdatedAt = e.now()
	}
	payload := map[string]any{
		"assigned_to": selected.UserID,
		"role":        selected.Role.String(),
		"strategy":    string(p.Strategy),
	}
	return payload, nil, nil, nil
}

// escalateTask advances the context task exactly one escalation level.
// Escalating past the last defined level, or from a role with no path, is
// an error — never a silent no-op.
func (e *Engine) escalateTask(p EscalateTaskParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	t := rctx.Task
	if t == nil {
		return nil, nil, nil, fmt.Errorf("escalate_task requires a task in context")
	}
	role := phase.UserRole(t.AssignedRole)
	if role == "" {
		return nil, nil, nil, fmt.Errorf("task %s has no assigned role to escalate from", t.ID)
	}

	e.mu.RLock()
	path := e.escalations[role]
	e.mu.RUnlock()
	if len(path) == 0 {
		return nil, nil, nil, fmt.Errorf("no escalation path defined for role %s", role)
	}

	nextLevel := t.EscalationLevel + 1
	var entry *EscalationLevel
	for i := range path {
		if path[i].Level == nextLevel {
			entry = &path[i]
			break
		}
	}
	if entry == nil {
		return nil, nil, nil, fmt.Errorf("no next escalation level found for role %s beyond level %d", role, t.EscalationLevel)
	}

	if len(entry.Conditions) > 0 {
		if eval := condition.Evaluate(entry.Conditions, EvaluationData(*rctx, e.now())); !eval.Matched {
			return nil, nil, nil, fmt.Errorf("escalation level %d conditions not met for task %s", nextLevel, t.ID)
		}
	}

	t.EscalationLevel = nextLevel
	t.AssignedRole = entry.ToRole.String()
	t.AssignedTo = "" // Reassignment at the new level is a follow-up action.
	t.UpdatedAt = e.now()

	var notes []task.Notification
	for _, tmpl := range entry.NotifyTemplates {
		notes = append(notes, task.Notification{
			Type:       "task_escalated",
			Recipients: []string{entry.ToRole.String()},
			Template:   tmpl,
			Urgency:    task.PriorityHigh,
			Data: map[string]any{
				"task_id": t.ID,
				"case_id": rctx.CaseID,
				"level":   nextLevel,
				"reason":  p.Reason,
			},
		})
	}
	if p.NotifyManagement {
		notes = append(notes, task.Notification{
			Type:       "task_escalated",
			Recipients: []string{phase.RolePartner.String()},
			Template:   "management_escalation",
			Urgency:    task.PriorityUrgent,
			Data:       map[string]any{"task_id": t.ID, "case_id": rctx.CaseID, "level": nextLevel},
		})
	}

	payload := map[string]any{
		"level":             nextLevel,
		"from_role":         role.String(),
		"to_role":           entry.ToRole.String(),
		"approval_required": entry.ApprovalRequired,
	}
	return payload, notes, nil, nil
}

func (e *Engine) changePriority(p ChangePriorityParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	if rctx.Task == nil {
		return nil, nil, nil, fmt.Errorf("change_priority requires a task in context")
	}
	if !p.Priority.IsValid() {
		return nil, nil, nil, fmt.Errorf("invalid priority %q", p.Priority)
	}
	previous := rctx.Task.Priority
	rctx.Task.Priority = p.Priority
	rctx.Task.UpdatedAt = e.now()
	return map[string]any{"previous": string(previous), "priority": string(p.Priority)}, nil, nil, nil
}

func (e *Engine) setDeadline(p SetDeadlineParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	if rctx.Task == nil {
		return nil, nil, nil, fmt.Errorf("set_deadline requires a task in context")
	}
	var due time.Time
	if p.Absolute != nil {
		due = *p.Absolute
	} else {
		d, err := p.Duration()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid due_in: %w", err)
		}
		if d <= 0 {
			return nil, nil, nil, fmt.Errorf("set_deadline requires due_in or absolute")
		}
		due = e.now().Add(d)
	}
	rctx.Task.DueDate = &due
	rctx.Task.UpdatedAt = e.now()
	return map[string]any{"due_date": due.Format(time.RFC3339)}, nil, nil, nil
}

func (e *Engine) sendNotification(p SendNotificationParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	if p.Template == "" {
		return nil, nil, nil, fmt.Errorf("send_notification requires a template")
	}
	recipients := p.Recipients
	if len(recipients) == 0 && rctx.Task != nil && rctx.Task.AssignedTo != "" {
		recipients = []string{rctx.Task.AssignedTo}
	}
	if len(recipients) == 0 {
		return nil, nil, nil, fmt.Errorf("send_notification has no recipients")
	}
	urgency := p.Urgency
	if urgency == "" {
		urgency = task.PriorityMedium
	}
	note := task.Notification{
		Type:       "rule_notification",
		Recipients: recipients,
		Template:   p.Template,
		Urgency:    urgency,
		Data:       map[string]any{"case_id": rctx.CaseID, "task_id": rctx.TaskID},
	}
	return map[string]any{"template": p.Template, "recipients": recipients}, []task.Notification{note}, nil, nil
}

func (e *Engine) createDependency(p CreateDependencyParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	if rctx.Task == nil {
		return nil, nil, nil, fmt.Errorf("create_dependency requires a task in context")
	}
	if p.DependsOn == "" {
		return nil, nil, nil, fmt.Errorf("create_dependency requires depends_on")
	}
	for _, dep := range rctx.Task.Dependencies {
		if dep == p.DependsOn {
			return map[string]any{"depends_on": p.DependsOn, "already_present": true}, nil, nil, nil
		}
	}
	rctx.Task.Dependencies = append(rctx.Task.Dependencies, p.DependsOn)
	rctx.Task.UpdatedAt = e.now()
	return map[string]any{"depends_on": p.DependsOn}, nil, nil, nil
}

func (e *Engine) updateStatus(p UpdateStatusParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	if rctx.Task == nil {
		return nil, nil, nil, fmt.Errorf("update_status requires a task in context")
	}
	if !p.Status.IsValid() {
		return nil, nil, nil, fmt.Errorf("invalid status %q", p.Status)
	}
	current := rctx.Task.Status
	if !current.CanTransitionTo(p.Status) {
		return nil, nil, nil, fmt.Errorf("task %s cannot transition from %s to %s", rctx.Task.ID, current, p.Status)
	}
	rctx.Task.Status = p.Status
	rctx.Task.UpdatedAt = e.now()
	return map[string]any{"previous": string(current), "status": string(p.Status)}, nil, nil, nil
}

func (e *Engine) requestReview(p RequestReviewParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	reviewer := p.Reviewer
	if reviewer == "" {
		reviewer = phase.RoleAttorney
	}
	note := task.Notification{
		Type:       "review_requested",
		Recipients: []string{reviewer.String()},
		Template:   "review_request",
		Urgency:    task.PriorityHigh,
		Data: map[string]any{
			"case_id": rctx.CaseID,
			"task_id": rctx.TaskID,
			"message": p.Message,
		},
	}
	return map[string]any{"reviewer": reviewer.String()}, []task.Notification{note}, nil, nil
}

func (e *Engine) reassignTask(p ReassignTaskParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	if rctx.Task == nil {
		return nil, nil, nil, fmt.Errorf("reassign_task requires a task in context")
	}
	if p.AssignTo == "" {
		return nil, nil, nil, fmt.Errorf("reassign_task requires assign_to")
	}
	previous := rctx.Task.AssignedTo
	rctx.Task.AssignedTo = p.AssignTo
	rctx.Task.UpdatedAt = e.now()
	return map[string]any{"previous": previous, "assigned_to": p.AssignTo, "reason": p.Reason}, nil, nil, nil
}

func (e *Engine) createTask(p CreateTaskParams, rctx *Context) (map[string]any, []task.Notification, []*task.Task, error) {
	if p.Title == "" {
		return nil, nil, nil, fmt.Errorf("create_task requires a title")
	}
	priority := p.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, nil, nil, fmt.Errorf("invalid priority %q", priority)
	}
	now := e.now()
	created := &task.Task{
		ID:           task.NewID(),
		CaseID:       rctx.CaseID,
		Title:        p.Title,
		Description:  p.Description,
		Category:     p.Category,
		Priority:     priority,
		Status:       task.StatusPending,
		AssignedRole: p.AssignRole.String(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if d, err := p.Duration(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid due_in: %w", err)
	} else if d > 0 {
		due := now.Add(d)
		created.DueDate = &due
	}
	return map[string]any{"task_id": created.ID}, nil, []*task.Task{created}, nil
}
