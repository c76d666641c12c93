package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/caseflow/automation"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/schedule"
	"github.com/c360studio/caseflow/task"
	"github.com/c360studio/caseflow/workflow"
)

// Service drives the engines through the cross-engine write paths. The
// engines stay independently usable; the service only sequences them.
type Service struct {
	sm         *phase.StateMachine
	workflow   *workflow.Engine
	automation *automation.Engine
	rules      *rule.Engine
	scheduler  *schedule.Engine
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the façade. A nil logger falls back to slog.Default().
func NewService(sm *phase.StateMachine, wf *workflow.Engine, auto *automation.Engine, rules *rule.Engine, sched *schedule.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sm:         sm,
		workflow:   wf,
		automation: auto,
		rules:      rules,
		scheduler:  sched,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleCasePhaseTransition runs the full transition pipeline: state machine
// pre-validation, workflow processing, automation processing, per-task
// scheduling, and business rule evaluation over the merged context. The
// pre-validation failure short-circuits; later stage errors degrade the
// aggregate result without aborting remaining stages.
func (s *Service) HandleCasePhaseTransition(ctx context.Context, req TransitionRequest) *Result {
	res := &Result{Success: true}

	check := s.sm.CanTransition(req.FromPhase, req.ToPhase, req.UserRole, req.CaseType, req.Metadata)
	if !check.Success {
		res.Success = false
		res.Errors = append(res.Errors, check.Errors...)
		return res
	}

	wfRes := s.workflow.ProcessPhaseTransition(ctx, workflow.Request{
		CaseID:    req.CaseID,
		FromPhase: req.FromPhase,
		ToPhase:   req.ToPhase,
		CaseType:  req.CaseType,
		UserRole:  req.UserRole,
		UserID:    req.UserID,
		Metadata:  req.Metadata,
	})
	res.Tasks = append(res.Tasks, wfRes.CreatedTasks...)
	res.TasksUpdated += len(wfRes.UpdatedTasks)
	res.Notifications = append(res.Notifications, wfRes.Notifications...)
	if !wfRes.Success {
		res.Success = false
		res.Errors = append(res.Errors, wfRes.Errors...)
	}

	autoRes := s.automation.ProcessCasePhaseChange(ctx, automation.PhaseChangeRequest{
		CaseID:    req.CaseID,
		FromPhase: req.FromPhase,
		ToPhase:   req.ToPhase,
		CaseType:  req.CaseType,
		UserID:    req.UserID,
		Metadata:  req.Metadata,
	})
	res.Tasks = append(res.Tasks, autoRes.Tasks...)
	res.Notifications = append(res.Notifications, autoRes.Notifications...)
	if !autoRes.Success {
		res.Success = false
		res.Errors = append(res.Errors, autoRes.Errors...)
	}

	for _, t := range res.Tasks {
		st, err := s.scheduleTask(t, req.CaseType, req.ToPhase, req.UserID)
		if err != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("schedule task %s: %v", t.ID, err))
			continue
		}
		res.Scheduled = append(res.Scheduled, st)
	}

	ruleResults := s.rules.EvaluateRules(ctx, s.mergedContext(req, res))
	for _, rr := range ruleResults {
		if rr.Error != "" {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("rule %s: %s", rr.RuleID, rr.Error))
		}
		res.Tasks = append(res.Tasks, rr.Tasks...)
		res.Notifications = append(res.Notifications, rr.Notifications...)
	}

	res.TasksCreated = len(res.Tasks)
	res.NotificationsSent = len(res.Notifications)

	s.logger.Info("phase transition handled",
		slog.String("case_id", req.CaseID),
		slog.String("to", req.ToPhase.String()),
		slog.Int("tasks_created", res.TasksCreated),
		slog.Bool("success", res.Success))
	return res
}

// HandleTaskCompletion cancels the completed task's schedule, lets the
// automation engine react to the status change, and schedules any follow-up
// tasks the automation produced.
func (s *Service) HandleTaskCompletion(ctx context.Context, taskID, caseID, userID string, metadata map[string]any) *Result {
	res := &Result{Success: true}

	records, err := s.scheduler.ScheduledTasks(schedule.Filter{CaseID: caseID})
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, fmt.Sprintf("list schedules: %v", err))
	}
	for _, st := range records {
		if st.TaskID != taskID {
			continue
		}
		if err := s.scheduler.CompleteScheduledTask(st.ID); err != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("complete schedule %s: %v", st.ID, err))
		}
	}

	autoRes := s.automation.ProcessTaskStatusChange(ctx, automation.StatusChangeRequest{
		TaskID:    taskID,
		CaseID:    caseID,
		UserID:    userID,
		OldStatus: task.StatusInProgress,
		NewStatus: task.StatusCompleted,
		Metadata:  metadata,
	})
	res.Tasks = append(res.Tasks, autoRes.Tasks...)
	res.Notifications = append(res.Notifications, autoRes.Notifications...)
	if !autoRes.Success {
		res.Success = false
		res.Errors = append(res.Errors, autoRes.Errors...)
	}

	for _, t := range autoRes.Tasks {
		st, err := s.scheduleTask(t, "", "", userID)
		if err != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("schedule follow-up %s: %v", t.ID, err))
			continue
		}
		res.Scheduled = append(res.Scheduled, st)
	}

	res.TasksCreated = len(res.Tasks)
	res.NotificationsSent = len(res.Notifications)
	return res
}

// scheduleTask places one created task on the calendar, filling in the
// case-type/phase due-date heuristic when the task has no explicit due
// date.
func (s *Service) scheduleTask(t *task.Task, caseType phase.CaseType, p phase.CasePhase, userID string) (*schedule.ScheduledTask, error) {
	assignee := t.AssignedTo
	if assignee == "" {
		// Unassigned tasks are parked on their role's queue.
		assignee = t.AssignedRole
	}
	if assignee == "" {
		assignee = phase.RoleAssociate.String()
	}
	assignedBy := t.AssignedBy
	if assignedBy == "" {
		assignedBy = userID
	}
	if assignedBy == "" {
		assignedBy = "system"
	}

	due := t.DueDate
	if due == nil {
		d := s.now().Add(defaultDueIn(caseType, p, t.Priority))
		due = &d
		t.DueDate = due
	}

	st, err := s.scheduler.ScheduleTask(schedule.Request{
		TaskID:        t.ID,
		CaseID:        t.CaseID,
		Title:         t.Title,
		Description:   t.Description,
		AssignedTo:    assignee,
		AssignedBy:    assignedBy,
		Priority:      t.Priority,
		ScheduledTime: s.now().Add(time.Hour),
		DueDate:       due,
		Dependencies:  nil, // task dependencies reference task ids, not schedule ids
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// mergedContext synthesizes the business rule context from the transition
// request and everything the earlier stages produced.
func (s *Service) mergedContext(req TransitionRequest, res *Result) rule.Context {
	metadata := make(map[string]any, len(req.Metadata)+6)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["fromPhase"] = req.FromPhase.String()
	metadata["toPhase"] = req.ToPhase.String()
	metadata["caseType"] = req.CaseType.String()
	metadata["tasksCreated"] = len(res.Tasks)
	metadata["tasksScheduled"] = len(res.Scheduled)

	rctx := rule.Context{
		CaseID:    req.CaseID,
		UserID:    req.UserID,
		Event:     "phase_transition",
		Metadata:  metadata,
		Timestamp: s.now(),
	}
	if len(res.Tasks) > 0 {
		rctx.Task = res.Tasks[0]
		rctx.TaskID = res.Tasks[0].ID
	}
	return rctx
}

// defaultDueIn is the case-type/phase-keyed due-date heuristic for tasks
// without explicit due dates. Proceedings work is tighter than intake work;
// urgent priority halves the window.
func defaultDueIn(caseType phase.CaseType, p phase.CasePhase, priority task.Priority) time.Duration {
	days := 7
	switch p {
	case phase.PhaseIntakeRiskAssessment:
		days = 3
	case phase.PhasePreProceedingPreparation:
		days = 7
	case phase.PhaseFormalProceedings:
		days = 2
	case phase.PhaseResolutionPostProceeding:
		days = 5
	case phase.PhaseClosureReviewArchiving:
		days = 14
	}
	if caseType == phase.CaseTypeCriminalDefense && days > 2 {
		days-- // criminal matters run on statutory clocks
	}
	d := time.Duration(days) * 24 * time.Hour
	if priority == task.PriorityUrgent {
		d /= 2
	}
	return d
}
