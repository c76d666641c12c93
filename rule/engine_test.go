package rule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/task"
)

func testDirectory() StaticDirectory {
	return StaticDirectory{
		{UserID: "alice", Role: phase.RoleAttorney, Expertise: []string{"criminal", "appeals"}, Workload: 30, Score: 90, Available: true},
		{UserID: "bob", Role: phase.RoleAssociate, Expertise: []string{"criminal"}, Workload: 10, Score: 70, Available: true},
		{UserID: "carol", Role: phase.RoleAttorney, Expertise: []string{"corporate"}, Workload: 45, Score: 95, Available: true},
		{UserID: "dave", Role: phase.RoleParalegal, Workload: 5, Score: 99, Available: false},
	}
}

func escalatableTask() *task.Task {
	return &task.Task{
		ID:           "task-1",
		CaseID:       "case-1",
		Title:        "Review discovery",
		Priority:     task.PriorityHigh,
		Status:       task.StatusInProgress,
		AssignedTo:   "bob",
		AssignedRole: phase.RoleAssociate.String(),
	}
}

func TestOverdueFollowsEngineClock(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	e.now = func() time.Time { return time.Date(2031, 1, 1, 9, 0, 0, 0, time.UTC) }

	err := e.AddRule(&Rule{
		ID: "overdue_escalation", Name: "Overdue escalation", Active: true,
		Conditions: []condition.Condition{
			{Field: "task.overdue", Operator: condition.OpEquals, Value: true},
		},
		Actions: []Action{{
			Type:   ActionSendNotification,
			Params: &SendNotificationParams{Template: "overdue", Recipients: []string{"attorney"}},
		}},
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	// Due in 2030: overdue under the engine clock, not under wall time.
	due := time.Date(2030, 6, 1, 17, 0, 0, 0, time.UTC)
	tk := escalatableTask()
	tk.DueDate = &due

	results := e.EvaluateRules(context.Background(), Context{
		CaseID: "case-1", TaskID: tk.ID, Task: tk,
	})
	if len(results) != 1 || !results[0].Matched {
		t.Fatalf("results = %+v, want the overdue rule matched", results)
	}
}

func TestEscalateAdvancesExactlyOneLevel(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	tk := escalatableTask()
	rctx := &Context{CaseID: "case-1", TaskID: tk.ID, Task: tk}

	res := e.ExecuteAction(context.Background(), Action{
		Type:   ActionEscalateTask,
		Params: &EscalateTaskParams{Reason: "overdue"},
	}, rctx)
	if !res.Success {
		t.Fatalf("escalation failed: %s", res.Error)
	}
	if tk.EscalationLevel != 1 {
		t.Errorf("EscalationLevel = %d, want 1", tk.EscalationLevel)
	}
	if tk.AssignedRole != phase.RoleAttorney.String() {
		t.Errorf("AssignedRole = %s, want attorney", tk.AssignedRole)
	}
	if tk.AssignedTo != "" {
		t.Errorf("AssignedTo = %q, want cleared", tk.AssignedTo)
	}
	if len(res.Notifications) == 0 {
		t.Error("escalation must emit a notification")
	}
}

func TestEscalatePastLastLevelFails(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	tk := escalatableTask()
	tk.AssignedRole = phase.RoleAssociate.String()
	tk.EscalationLevel = 2 // associate path tops out at level 2 (partner)
	rctx := &Context{CaseID: "case-1", Task: tk}

	res := e.ExecuteAction(context.Background(), Action{
		Type:   ActionEscalateTask,
		Params: &EscalateTaskParams{},
	}, rctx)
	if res.Success {
		t.Fatal("escalating past the final level must fail")
	}
	if !strings.Contains(res.Error, "no next escalation level") {
		t.Errorf("error = %q", res.Error)
	}
	if tk.EscalationLevel != 2 {
		t.Errorf("failed escalation mutated level to %d", tk.EscalationLevel)
	}
}

func TestEscalateNotifiesManagement(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	tk := escalatableTask()
	rctx := &Context{CaseID: "case-1", Task: tk}

	res := e.ExecuteAction(context.Background(), Action{
		Type:   ActionEscalateTask,
		Params: &EscalateTaskParams{Reason: "stalled", NotifyManagement: true},
	}, rctx)
	if !res.Success {
		t.Fatalf("escalation failed: %s", res.Error)
	}
	var mgmt bool
	for _, n := range res.Notifications {
		for _, r := range n.Recipients {
			if r == phase.RolePartner.String() {
				mgmt = true
			}
		}
	}
	if !mgmt {
		t.Error("notify_management must add a partner notification")
	}
}

func TestAssignmentStrategies(t *testing.T) {
	tests := []struct {
		name   string
		params AssignTaskParams
		want   string
	}{
		{
			name:   "expertise filters then ranks by score",
			params: AssignTaskParams{Strategy: StrategyExpertise, RequiredExpertise: []string{"criminal"}},
			want:   "alice",
		},
		{
			name:   "workload picks least loaded under threshold",
			params: AssignTaskParams{Strategy: StrategyWorkload, MaxWorkload: 40},
			want:   "bob",
		},
		{
			name:   "priority filters by role then ranks by score",
			params: AssignTaskParams{Strategy: StrategyPriority, RequiredRole: phase.RoleAttorney},
			want:   "carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testDirectory(), nil)
			tk := escalatableTask()
			rctx := &Context{CaseID: "case-1", Task: tk}
			res := e.ExecuteAction(context.Background(), Action{Type: ActionAssignTask, Params: &tt.params}, rctx)
			if !res.Success {
				t.Fatalf("assignment failed: %s", res.Error)
			}
			if tk.AssignedTo != tt.want {
				t.Errorf("AssignedTo = %s, want %s", tk.AssignedTo, tt.want)
			}
		})
	}
}

func TestAssignmentSkipsUnavailableCandidates(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	rctx := &Context{CaseID: "case-1", Task: escalatableTask()}

	// dave has the best score and lowest workload but is unavailable.
	res := e.ExecuteAction(context.Background(), Action{
		Type:   ActionAssignTask,
		Params: &AssignTaskParams{Strategy: StrategyWorkload},
	}, rctx)
	if !res.Success {
		t.Fatalf("assignment failed: %s", res.Error)
	}
	if rctx.Task.AssignedTo == "dave" {
		t.Error("unavailable candidate selected")
	}
}

func TestEvaluateRulesPriorityOrderAndInactiveSkip(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	add := func(id string, priority int, active bool) {
		t.Helper()
		err := e.AddRule(&Rule{
			ID:       id,
			Name:     id,
			Priority: priority,
			Active:   active,
			Actions: []Action{{
				Type:   ActionSendNotification,
				Params: &SendNotificationParams{Template: "t", Recipients: []string{"x"}},
			}},
		})
		if err != nil {
			t.Fatalf("AddRule(%s): %v", id, err)
		}
	}
	add("rule-c", 20, true)
	add("rule-a", 10, true)
	add("rule-b", 10, true)
	add("rule-off", 1, false)

	results := e.EvaluateRules(context.Background(), Context{CaseID: "case-1"})
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3 (inactive skipped)", len(results))
	}
	order := []string{results[0].RuleID, results[1].RuleID, results[2].RuleID}
	want := []string{"rule-a", "rule-b", "rule-c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("evaluation order = %v, want %v", order, want)
		}
	}
	if got := e.Rule("rule-off").TriggerCount; got != 0 {
		t.Errorf("inactive rule TriggerCount = %d, want 0", got)
	}
}

func TestEvaluateRuleUnmatchedSkipsActions(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	r := &Rule{
		ID:     "gated",
		Name:   "Gated",
		Active: true,
		Conditions: []condition.Condition{
			{Field: "caseType", Operator: condition.OpEquals, Value: "corporate"},
		},
		Actions: []Action{{
			Type:   ActionSendNotification,
			Params: &SendNotificationParams{Template: "t", Recipients: []string{"x"}},
		}},
	}
	if err := e.AddRule(r); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	res := e.EvaluateRule(context.Background(), r, Context{
		CaseID:   "case-1",
		Metadata: map[string]any{"caseType": "criminal_defense"},
	})
	if res.Matched {
		t.Fatal("rule must not match")
	}
	if len(res.Actions) != 0 {
		t.Errorf("unmatched rule ran %d actions", len(res.Actions))
	}
	if r.TriggerCount != 0 {
		t.Errorf("unmatched rule counted as triggered")
	}
}

func TestFailureStrategies(t *testing.T) {
	// escalate_task with no task in context always fails; the second action
	// observes the strategy.
	tests := []struct {
		name        string
		onFailure   FailureStrategy
		wantActions int
	}{
		{"stop aborts remaining actions", FailureStop, 1},
		{"continue runs remaining actions", FailureContinue, 2},
		{"default is continue", "", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testDirectory(), nil)
			r := &Rule{
				ID:     "failing",
				Name:   "Failing",
				Active: true,
				Actions: []Action{
					{Type: ActionEscalateTask, OnFailure: tt.onFailure, Params: &EscalateTaskParams{}},
					{Type: ActionSendNotification, Params: &SendNotificationParams{Template: "t", Recipients: []string{"x"}}},
				},
			}
			if err := e.AddRule(r); err != nil {
				t.Fatalf("AddRule: %v", err)
			}
			res := e.EvaluateRule(context.Background(), r, Context{CaseID: "case-1"})
			if len(res.Actions) != tt.wantActions {
				t.Fatalf("actions executed = %d, want %d", len(res.Actions), tt.wantActions)
			}
			if res.Actions[0].Success {
				t.Error("first action must fail without a task in context")
			}
			if r.SuccessCount != 0 {
				t.Errorf("SuccessCount = %d after action failure", r.SuccessCount)
			}
			if r.TriggerCount != 1 {
				t.Errorf("TriggerCount = %d, want 1", r.TriggerCount)
			}
		})
	}
}

func TestAddRulePreservesCounters(t *testing.T) {
	e := NewEngine(testDirectory(), nil)
	r := &Rule{
		ID:     "r1",
		Name:   "R1",
		Active: true,
		Actions: []Action{{
			Type:   ActionSendNotification,
			Params: &SendNotificationParams{Template: "t", Recipients: []string{"x"}},
		}},
	}
	if err := e.AddRule(r); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	e.EvaluateRule(context.Background(), r, Context{CaseID: "case-1"})

	replacement := &Rule{ID: "r1", Name: "R1 v2", Active: true, Actions: r.Actions}
	if err := e.AddRule(replacement); err != nil {
		t.Fatalf("AddRule replacement: %v", err)
	}
	got := e.Rule("r1")
	if got.Name != "R1 v2" {
		t.Errorf("Name = %s, want replaced", got.Name)
	}
	if got.TriggerCount != 1 || got.SuccessCount != 1 {
		t.Errorf("counters = %d/%d, want preserved 1/1", got.TriggerCount, got.SuccessCount)
	}
}

func TestSetEscalationPathValidation(t *testing.T) {
	e := NewEngine(nil, nil)

	err := e.SetEscalationPath(phase.RoleParalegal, []EscalationLevel{
		{Level: 1, ToRole: phase.RoleAssociate},
		{Level: 3, ToRole: phase.RolePartner},
	})
	if err == nil {
		t.Fatal("gap in levels must be rejected")
	}

	err = e.SetEscalationPath(phase.RoleParalegal, []EscalationLevel{
		{Level: 2, ToRole: phase.RolePartner},
		{Level: 1, ToRole: phase.RoleAssociate},
	})
	if err != nil {
		t.Fatalf("out-of-order but contiguous levels must be accepted: %v", err)
	}
	path := e.EscalationPath(phase.RoleParalegal)
	if len(path) != 2 || path[0].Level != 1 {
		t.Errorf("path not sorted: %+v", path)
	}
}

func TestActionValidateTypeParamsMismatch(t *testing.T) {
	a := Action{Type: ActionEscalateTask, Params: &AssignTaskParams{Strategy: StrategyWorkload}}
	if err := a.Validate(); err == nil {
		t.Fatal("mismatched type tag and params must be rejected")
	}
	a = Action{Type: ActionType("drop_case")}
	if err := a.Validate(); err == nil {
		t.Fatal("unknown action type must be rejected")
	}
}

func TestCreateTaskAction(t *testing.T) {
	e := NewEngine(nil, nil)
	rctx := &Context{CaseID: "case-7"}

	res := e.ExecuteAction(context.Background(), Action{
		Type: ActionCreateTask,
		Params: &CreateTaskParams{
			Title:      "File motion to suppress",
			Priority:   task.PriorityUrgent,
			AssignRole: phase.RoleAttorney,
			DueIn:      "72h",
		},
	}, rctx)
	if !res.Success {
		t.Fatalf("create_task failed: %s", res.Error)
	}
	if len(res.CreatedTasks) != 1 {
		t.Fatalf("CreatedTasks = %d, want 1", len(res.CreatedTasks))
	}
	created := res.CreatedTasks[0]
	if created.CaseID != "case-7" || created.Status != task.StatusPending {
		t.Errorf("created = %+v", created)
	}
	if created.DueDate == nil {
		t.Error("due_in must set a due date")
	}
}
