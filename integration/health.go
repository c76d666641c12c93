package integration

import (
	"fmt"

	"github.com/c360studio/caseflow/automation"
	"github.com/c360studio/caseflow/schedule"
	"github.com/c360studio/caseflow/task"
)

// pendingDegradedThreshold is the pending-queue depth past which the
// automation engine reports degraded.
const pendingDegradedThreshold = 100

// TaskWorkflowOrchestration returns the read-only cross-component snapshot
// for one case. It never mutates engine state.
func (s *Service) TaskWorkflowOrchestration(caseID string) (*Orchestration, error) {
	o := &Orchestration{CaseID: caseID}

	stats := s.workflow.CaseStatistics(caseID)
	o.Transitions = stats.Transitions
	o.CurrentPhase = stats.CurrentPhase

	records, err := s.scheduler.ScheduledTasks(schedule.Filter{CaseID: caseID})
	if err != nil {
		return nil, fmt.Errorf("list schedules for case %s: %w", caseID, err)
	}
	now := s.now()
	users := make(map[string]bool)
	for _, st := range records {
		switch st.Status {
		case task.StatusCompleted:
			o.CompletedTasks++
		case task.StatusCancelled:
		default:
			o.ActiveTasks++
			if st.DueDate != nil && st.DueDate.Before(now) {
				o.OverdueTasks++
			}
		}
		users[st.AssignedTo] = true
	}

	o.AutomationRuns = len(s.automation.History(automation.HistoryFilter{CaseID: caseID}))

	for userID := range users {
		w, err := s.scheduler.Workload(userID)
		if err != nil {
			return nil, fmt.Errorf("load workload for %s: %w", userID, err)
		}
		o.Workloads = append(o.Workloads, w)
	}
	return o, nil
}

// IntegrationHealth reports per-engine status. The aggregate is degraded
// when any component is.
func (s *Service) IntegrationHealth() *Health {
	h := &Health{Status: "healthy", CheckedAt: s.now()}

	h.Components = append(h.Components, ComponentHealth{Name: "workflow", Status: "healthy"})

	autoStatus := ComponentHealth{Name: "automation", Status: "healthy"}
	if pending := len(s.automation.Pending()); pending > pendingDegradedThreshold {
		autoStatus.Status = "degraded"
		autoStatus.Detail = fmt.Sprintf("%d pending automations queued", pending)
	}
	h.Components = append(h.Components, autoStatus)

	ruleStatus := ComponentHealth{Name: "rules", Status: "healthy"}
	if len(s.rules.Rules()) == 0 {
		ruleStatus.Detail = "no rules registered"
	}
	h.Components = append(h.Components, ruleStatus)

	schedStatus := ComponentHealth{Name: "schedule", Status: "healthy"}
	if workloads, err := s.scheduler.Workloads(); err != nil {
		schedStatus.Status = "degraded"
		schedStatus.Detail = err.Error()
	} else {
		over := 0
		for _, w := range workloads {
			if w.CapacityStatus == "over_capacity" {
				over++
			}
		}
		if over > 0 {
			schedStatus.Status = "degraded"
			schedStatus.Detail = fmt.Sprintf("%d users over capacity", over)
		}
	}
	h.Components = append(h.Components, schedStatus)

	for _, c := range h.Components {
		if c.Status != "healthy" {
			h.Status = "degraded"
			break
		}
	}
	return h
}
