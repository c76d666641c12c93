package automation

import (
	"context"
	"testing"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/task"
)

// fakeExecutor records executed actions so tests can assert on dispatch
// without pulling in the full rule engine.
type fakeExecutor struct {
	executed []rule.ActionType
	fail     bool
}

func (f *fakeExecutor) ExecuteAction(_ context.Context, a rule.Action, _ *rule.Context) rule.ActionResult {
	f.executed = append(f.executed, a.Type)
	if f.fail {
		return rule.ActionResult{Type: a.Type, Success: false, Error: "executor down"}
	}
	return rule.ActionResult{Type: a.Type, Success: true}
}

func notifyAction(delayHours float64) Action {
	return Action{
		Action: rule.Action{
			Type:   rule.ActionSendNotification,
			Params: &rule.SendNotificationParams{Template: "t", Recipients: []string{"x"}},
		},
		DelayHours: delayHours,
	}
}

func TestPhaseChangeTriggerMatching(t *testing.T) {
	exec := &fakeExecutor{}
	e := NewEngine(exec, nil)

	addRule := func(r *Rule) {
		t.Helper()
		if err := e.AddRule(r); err != nil {
			t.Fatalf("AddRule(%s): %v", r.ID, err)
		}
	}
	addRule(&Rule{
		ID: "any-phase", Name: "Any phase", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange},
		Actions: []Action{notifyAction(0)},
	})
	addRule(&Rule{
		ID: "prep-only", Name: "Preparation only", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange, Phase: phase.PhasePreProceedingPreparation},
		Actions: []Action{notifyAction(0)},
	})
	addRule(&Rule{
		ID: "closure-only", Name: "Closure only", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange, Phase: phase.PhaseClosureReviewArchiving},
		Actions: []Action{notifyAction(0)},
	})
	addRule(&Rule{
		ID: "inactive", Name: "Inactive", Active: false,
		Trigger: Trigger{Type: TriggerPhaseChange},
		Actions: []Action{notifyAction(0)},
	})
	addRule(&Rule{
		ID: "criminal-only", Name: "Criminal only", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange},
		Conditions: []condition.Condition{
			{Field: "caseType", Operator: condition.OpEquals, Value: "criminal_defense"},
		},
		Actions: []Action{notifyAction(0)},
	})

	res := e.ProcessCasePhaseChange(context.Background(), PhaseChangeRequest{
		CaseID:    "case-1",
		FromPhase: phase.PhaseIntakeRiskAssessment,
		ToPhase:   phase.PhasePreProceedingPreparation,
		CaseType:  phase.CaseTypeFamilyLaw,
	})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	want := map[string]bool{"any-phase": true, "prep-only": true}
	if len(res.MatchedRules) != len(want) {
		t.Fatalf("MatchedRules = %v, want %v", res.MatchedRules, want)
	}
	for _, id := range res.MatchedRules {
		if !want[id] {
			t.Errorf("unexpected match %s", id)
		}
	}
	if len(exec.executed) != 2 {
		t.Errorf("executed = %d actions, want 2", len(exec.executed))
	}
}

func TestTaskStatusTriggerMatching(t *testing.T) {
	urgent := &task.Task{ID: "task-1", Priority: task.PriorityUrgent, Status: task.StatusCompleted}

	tests := []struct {
		name    string
		trigger Trigger
		want    bool
	}{
		{"any status change", Trigger{Type: TriggerTaskStatusChange}, true},
		{"to completed", Trigger{Type: TriggerTaskStatusChange, ToStatus: task.StatusCompleted}, true},
		{"from pending mismatch", Trigger{Type: TriggerTaskStatusChange, FromStatus: task.StatusPending}, false},
		{"priority match", Trigger{Type: TriggerTaskStatusChange, Priority: task.PriorityUrgent}, true},
		{"priority mismatch", Trigger{Type: TriggerTaskStatusChange, Priority: task.PriorityLow}, false},
		{"wrong family", Trigger{Type: TriggerPhaseChange}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(&fakeExecutor{}, nil)
			err := e.AddRule(&Rule{
				ID: "r", Name: "R", Active: true,
				Trigger: tt.trigger,
				Actions: []Action{notifyAction(0)},
			})
			if err != nil {
				t.Fatalf("AddRule: %v", err)
			}
			res := e.ProcessTaskStatusChange(context.Background(), StatusChangeRequest{
				TaskID:    "task-1",
				CaseID:    "case-1",
				OldStatus: task.StatusInProgress,
				NewStatus: task.StatusCompleted,
				Task:      urgent,
			})
			if matched := len(res.MatchedRules) == 1; matched != tt.want {
				t.Errorf("matched = %v, want %v", matched, tt.want)
			}
		})
	}
}

func TestDelayedActionQueuedThenDrained(t *testing.T) {
	exec := &fakeExecutor{}
	e := NewEngine(exec, nil)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	err := e.AddRule(&Rule{
		ID: "followup", Name: "Follow-up", Active: true,
		Trigger: Trigger{Type: TriggerTaskStatusChange, ToStatus: task.StatusCompleted},
		Actions: []Action{notifyAction(2)},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	res := e.ProcessTaskStatusChange(context.Background(), StatusChangeRequest{
		TaskID: "task-1", CaseID: "case-1",
		OldStatus: task.StatusInProgress, NewStatus: task.StatusCompleted,
	})
	if len(res.Scheduled) != 1 {
		t.Fatalf("Scheduled = %d, want 1", len(res.Scheduled))
	}
	if len(exec.executed) != 0 {
		t.Fatalf("delayed action executed immediately")
	}
	if got := res.Scheduled[0].ScheduledTime; !got.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("ScheduledTime = %v", got)
	}

	// Not due yet.
	if recs := e.ProcessPendingAutomations(context.Background()); len(recs) != 0 {
		t.Fatalf("drained %d records before due time", len(recs))
	}

	e.now = func() time.Time { return base.Add(3 * time.Hour) }
	recs := e.ProcessPendingAutomations(context.Background())
	if len(recs) != 1 {
		t.Fatalf("drained = %d, want 1", len(recs))
	}
	if !recs[0].Delayed {
		t.Error("drained record must be marked delayed")
	}
	if len(e.Pending()) != 0 {
		t.Error("pending queue not emptied")
	}
	if len(exec.executed) != 1 {
		t.Errorf("executed = %d, want 1", len(exec.executed))
	}

	// Draining again is a no-op.
	if recs := e.ProcessPendingAutomations(context.Background()); len(recs) != 0 {
		t.Errorf("second drain produced %d records", len(recs))
	}
}

func TestTriggerCountsOncePerEvent(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, nil)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	err := e.AddRule(&Rule{
		ID: "followup", Name: "Follow-up", Active: true,
		Trigger: Trigger{Type: TriggerTaskStatusChange, ToStatus: task.StatusCompleted},
		Actions: []Action{notifyAction(0), notifyAction(2)},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	e.ProcessTaskStatusChange(context.Background(), StatusChangeRequest{
		TaskID: "task-1", CaseID: "case-1",
		OldStatus: task.StatusInProgress, NewStatus: task.StatusCompleted,
	})

	e.now = func() time.Time { return base.Add(3 * time.Hour) }
	if recs := e.ProcessPendingAutomations(context.Background()); len(recs) != 1 {
		t.Fatalf("drained = %d, want 1", len(recs))
	}

	// One event, one trigger: draining the delayed action must not count
	// as another.
	for _, r := range e.Rules() {
		if r.ID == "followup" && r.TriggerCount != 1 {
			t.Errorf("TriggerCount = %d after a single trigger event, want 1", r.TriggerCount)
		}
	}
}

func TestPendingOrderedByFireTime(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, nil)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	err := e.AddRule(&Rule{
		ID: "multi", Name: "Multi", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange},
		Actions: []Action{notifyAction(48), notifyAction(1), notifyAction(24)},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	e.ProcessCasePhaseChange(context.Background(), PhaseChangeRequest{
		CaseID: "case-1", ToPhase: phase.PhaseFormalProceedings,
	})

	pending := e.Pending()
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].ScheduledTime.Before(pending[i-1].ScheduledTime) {
			t.Fatalf("pending not ordered by fire time: %v", pending)
		}
	}

	// Only the 1h action is due after 90 minutes.
	e.now = func() time.Time { return base.Add(90 * time.Minute) }
	if recs := e.ProcessPendingAutomations(context.Background()); len(recs) != 1 {
		t.Fatalf("drained = %d, want only the earliest", len(recs))
	}
}

func TestDateBasedTriggerPerRuleResults(t *testing.T) {
	exec := &fakeExecutor{}
	e := NewEngine(exec, nil)

	for _, id := range []string{"scan-a", "scan-b"} {
		err := e.AddRule(&Rule{
			ID: id, Name: id, Active: true,
			Trigger: Trigger{Type: TriggerDateBased, Event: "deadline_scan"},
			Actions: []Action{notifyAction(0)},
		})
		if err != nil {
			t.Fatalf("AddRule(%s): %v", id, err)
		}
	}
	err := e.AddRule(&Rule{
		ID: "other-event", Name: "Other", Active: true,
		Trigger: Trigger{Type: TriggerDateBased, Event: "weekly_review"},
		Actions: []Action{notifyAction(0)},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	results := e.ProcessDateBasedTrigger(context.Background(), "deadline_scan", map[string]any{"scheduled": true})
	if len(results) != 2 {
		t.Fatalf("results = %d, want one per matched rule", len(results))
	}
	for _, res := range results {
		if len(res.MatchedRules) != 1 {
			t.Errorf("result matched %v, want exactly one rule", res.MatchedRules)
		}
	}
}

func TestActionFailureCollectsErrors(t *testing.T) {
	exec := &fakeExecutor{fail: true}
	e := NewEngine(exec, nil)

	err := e.AddRule(&Rule{
		ID: "fragile", Name: "Fragile", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange},
		Actions: []Action{
			{Action: rule.Action{
				Type:      rule.ActionSendNotification,
				OnFailure: rule.FailureStop,
				Params:    &rule.SendNotificationParams{Template: "t", Recipients: []string{"x"}},
			}},
			notifyAction(0),
		},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	res := e.ProcessCasePhaseChange(context.Background(), PhaseChangeRequest{
		CaseID: "case-1", ToPhase: phase.PhaseFormalProceedings,
	})
	if res.Success {
		t.Fatal("result must report failure")
	}
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %v", res.Errors)
	}
	if len(exec.executed) != 1 {
		t.Errorf("stop strategy must halt remaining actions, executed %d", len(exec.executed))
	}
}

func TestHistoryFilter(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, nil)
	err := e.AddRule(&Rule{
		ID: "audit", Name: "Audit", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange},
		Actions: []Action{notifyAction(0)},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	for _, caseID := range []string{"case-1", "case-2", "case-1"} {
		e.ProcessCasePhaseChange(context.Background(), PhaseChangeRequest{
			CaseID: caseID, ToPhase: phase.PhaseFormalProceedings,
		})
	}

	if got := e.History(HistoryFilter{}); len(got) != 3 {
		t.Fatalf("unfiltered history = %d, want 3", len(got))
	}
	if got := e.History(HistoryFilter{CaseID: "case-1"}); len(got) != 2 {
		t.Fatalf("case-1 history = %d, want 2", len(got))
	}
	got := e.History(HistoryFilter{Limit: 1})
	if len(got) != 1 || got[0].Context.CaseID != "case-1" {
		t.Fatalf("limited history = %+v, want newest record", got)
	}
}

func TestHistoryLimitTrims(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, nil)
	e.SetHistoryLimit(2)
	err := e.AddRule(&Rule{
		ID: "audit", Name: "Audit", Active: true,
		Trigger: Trigger{Type: TriggerPhaseChange},
		Actions: []Action{notifyAction(0)},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	for i := 0; i < 5; i++ {
		e.ProcessCasePhaseChange(context.Background(), PhaseChangeRequest{
			CaseID: "case-1", ToPhase: phase.PhaseFormalProceedings,
		})
	}
	if got := e.History(HistoryFilter{}); len(got) != 2 {
		t.Fatalf("history = %d, want trimmed to 2", len(got))
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{
			"valid",
			Rule{ID: "r", Name: "R", Trigger: Trigger{Type: TriggerPhaseChange}, Actions: []Action{notifyAction(0)}},
			false,
		},
		{
			"missing id",
			Rule{Name: "R", Trigger: Trigger{Type: TriggerPhaseChange}, Actions: []Action{notifyAction(0)}},
			true,
		},
		{
			"no actions",
			Rule{ID: "r", Name: "R", Trigger: Trigger{Type: TriggerPhaseChange}},
			true,
		},
		{
			"negative delay",
			Rule{ID: "r", Name: "R", Trigger: Trigger{Type: TriggerPhaseChange}, Actions: []Action{notifyAction(-1)}},
			true,
		},
		{
			"date based without event",
			Rule{ID: "r", Name: "R", Trigger: Trigger{Type: TriggerDateBased}, Actions: []Action{notifyAction(0)}},
			true,
		},
		{
			"unknown trigger type",
			Rule{ID: "r", Name: "R", Trigger: Trigger{Type: "solar_eclipse"}, Actions: []Action{notifyAction(0)}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
