package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/caseflow/automation"
	"github.com/c360studio/caseflow/config"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/storage"
	"github.com/c360studio/caseflow/task"
	"github.com/c360studio/caseflow/template"
)

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestSeedEnginesMergesStoreAndDefinitions(t *testing.T) {
	defsDir := t.TempDir()
	writeDefinition(t, defsDir, config.RulesFile, `
rules:
  - id: urgent_review
    name: Request review for urgent tasks
    priority: 10
    active: true
    actions:
      - type: request_review
        params:
          reviewer: partner
`)
	writeDefinition(t, defsDir, config.AutomationsFile, `
automations:
  - id: completion_followup
    name: Follow up after completion
    active: true
    trigger:
      type: task_status_change
      to_status: completed
    actions:
      - delay_hours: 24
        action:
          type: send_notification
          params:
            template: followup
            recipients: [assignee]
`)

	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "caseflow.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	ruleStore := storage.NewRuleStore(db)
	if err := ruleStore.SaveBusinessRule(&rule.Rule{
		ID: "retention_notice", Name: "Retention notice", Active: true, Priority: 5,
		Actions: []rule.Action{{
			Type:   rule.ActionSendNotification,
			Params: &rule.SendNotificationParams{Template: "retention", Recipients: []string{"partner"}},
		}},
	}); err != nil {
		t.Fatalf("SaveBusinessRule: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Definitions.Dir = defsDir

	logger := slog.Default()
	rules := rule.NewEngine(defaultDirectory(), logger)
	auto := automation.NewEngine(rules, logger)
	templates, err := template.NewEngineWithDefaults(logger)
	if err != nil {
		t.Fatalf("NewEngineWithDefaults: %v", err)
	}

	if err := seedEngines(cfg, ruleStore, rules, auto, templates); err != nil {
		t.Fatalf("seedEngines: %v", err)
	}

	if rules.Rule("retention_notice") == nil {
		t.Error("persisted rule not loaded into the rule engine")
	}
	if rules.Rule("urgent_review") == nil {
		t.Error("definition rule not loaded into the rule engine")
	}
	var foundAuto bool
	for _, r := range auto.Rules() {
		if r.ID == "completion_followup" {
			foundAuto = true
		}
	}
	if !foundAuto {
		t.Error("definition automation not loaded into the automation engine")
	}

	// Definition files are written back so the next start sees them even
	// if the directory disappears.
	stored, err := ruleStore.BusinessRules()
	if err != nil {
		t.Fatalf("BusinessRules: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored business rules = %d, want 2", len(stored))
	}
	storedAuto, err := ruleStore.AutomationRules()
	if err != nil {
		t.Fatalf("AutomationRules: %v", err)
	}
	if len(storedAuto) != 1 {
		t.Errorf("stored automation rules = %d, want 1", len(storedAuto))
	}
}

func TestDefaultDirectoryCoversAssignment(t *testing.T) {
	e := rule.NewEngine(defaultDirectory(), slog.Default())
	tk := &task.Task{ID: "task-1", CaseID: "case-1", Priority: task.PriorityHigh, Status: task.StatusPending}
	rctx := rule.Context{CaseID: "case-1", TaskID: tk.ID, Task: tk}

	res := e.ExecuteAction(context.Background(), rule.Action{
		Type:   rule.ActionAssignTask,
		Params: &rule.AssignTaskParams{Strategy: rule.StrategyWorkload},
	}, &rctx)
	if !res.Success {
		t.Fatalf("workload assignment with the default candidate pool failed: %s", res.Error)
	}
	if tk.AssignedTo != "associate-1" {
		t.Errorf("AssignedTo = %q, want associate-1 (lowest workload)", tk.AssignedTo)
	}
}
