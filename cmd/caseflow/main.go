// Package main provides the caseflow binary entry point.
// Caseflow is the case-phase workflow and task-automation engine for legal
// case management: phase transitions, task templates, business rules,
// delayed automations, and schedule/workload tracking.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/caseflow/automation"
	"github.com/c360studio/caseflow/config"
	"github.com/c360studio/caseflow/integration"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/schedule"
	"github.com/c360studio/caseflow/storage"
	"github.com/c360studio/caseflow/template"
	"github.com/c360studio/caseflow/workflow"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "caseflow"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Case workflow and task automation engine",
		Long: `Caseflow drives legal case management workflows:

- Case phase transitions with role and metadata gating
- Task creation from templates on phase changes
- Business rules with weighted conditions and a closed action catalog
- Delayed automations drained by a scheduler
- Schedule conflict detection, reminders, and workload tracking`,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cobra.OnInitialize(func() { configureLogging(logLevel) })

	cmd.AddCommand(validateCmd())
	cmd.AddCommand(simulateCmd())
	cmd.AddCommand(healthCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// validateCmd checks a definitions directory without running anything.
func validateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate rule, automation, template, and escalation definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := config.LoadDefinitions(dir)
			if err != nil {
				return err
			}

			var problems []string
			for _, r := range defs.Rules {
				if err := r.Validate(); err != nil {
					problems = append(problems, err.Error())
				}
			}
			for _, r := range defs.Automations {
				if err := r.Validate(); err != nil {
					problems = append(problems, err.Error())
				}
			}
			for _, t := range defs.Templates {
				if err := t.Validate(); err != nil {
					problems = append(problems, err.Error())
				}
			}
			eng := rule.NewEngine(nil, slog.Default())
			for role, levels := range defs.Escalations {
				if err := eng.SetEscalationPath(role, levels); err != nil {
					problems = append(problems, err.Error())
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintf(os.Stderr, "invalid: %s\n", p)
				}
				return fmt.Errorf("%d invalid definitions", len(problems))
			}
			fmt.Printf("ok: %d rules, %d automations, %d templates, %d escalation paths\n",
				len(defs.Rules), len(defs.Automations), len(defs.Templates), len(defs.Escalations))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Definitions directory")
	return cmd
}

// simulateCmd runs one phase transition through the full pipeline and
// prints the aggregate result.
func simulateCmd() *cobra.Command {
	var (
		caseID   string
		caseType string
		from     string
		to       string
		role     string
		userID   string
		metaJSON string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a case phase transition through every engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()

			metadata := map[string]any{}
			if metaJSON != "" {
				if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
					return fmt.Errorf("parse --metadata: %w", err)
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			res := svc.HandleCasePhaseTransition(ctx, integration.TransitionRequest{
				CaseID:    caseID,
				FromPhase: phase.CasePhase(from),
				ToPhase:   phase.CasePhase(to),
				CaseType:  phase.CaseType(caseType),
				UserRole:  phase.UserRole(role),
				UserID:    userID,
				Metadata:  metadata,
			})
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "case-demo", "Case identifier")
	cmd.Flags().StringVar(&caseType, "case-type", phase.CaseTypeCriminalDefense.String(), "Case type")
	cmd.Flags().StringVar(&from, "from", phase.PhaseIntakeRiskAssessment.String(), "Current phase")
	cmd.Flags().StringVar(&to, "to", phase.PhasePreProceedingPreparation.String(), "Target phase")
	cmd.Flags().StringVar(&role, "role", phase.RoleAttorney.String(), "Acting user role")
	cmd.Flags().StringVar(&userID, "user", "user-demo", "Acting user id")
	cmd.Flags().StringVar(&metaJSON, "metadata", "", "Case metadata as JSON")
	return cmd
}

// healthCmd prints the integration health snapshot.
func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the cross-engine health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			return printJSON(svc.IntegrationHealth())
		},
	}
}

// buildService wires the engines from layered configuration.
func buildService() (*integration.Service, func(), error) {
	logger := slog.Default()
	cfg, err := config.NewLoader(logger).Load()
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var schedStore schedule.ScheduleStore
	var workloadStore schedule.WorkloadStore
	var ruleStore *storage.RuleStore
	if cfg.Storage.Path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := storage.Open(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = db.Close() }
		schedStore = storage.NewScheduleStore(db)
		workloadStore = storage.NewWorkloadStore(db)
		ruleStore = storage.NewRuleStore(db)
	}

	sm := phase.NewStateMachine()
	templates, err := template.NewEngineWithDefaults(logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	rules := rule.NewEngine(defaultDirectory(), logger)
	auto := automation.NewEngine(rules, logger)
	auto.SetHistoryLimit(cfg.Automation.HistoryLimit)
	wf := workflow.NewEngine(sm, templates, rules, logger)
	sched := schedule.NewEngine(schedStore, workloadStore, logger)
	if d, err := cfg.Schedule.ConflictThresholdDuration(); err == nil && d > 0 {
		sched.SetConflictThreshold(d)
	}

	if err := seedEngines(cfg, ruleStore, rules, auto, templates); err != nil {
		cleanup()
		return nil, nil, err
	}

	return integration.NewService(sm, wf, auto, rules, sched, logger), cleanup, nil
}

// defaultDirectory is the assignment candidate pool used when no directory
// backend is configured. Without it, workload and priority assignment
// strategies have nobody to pick and every assign_task action fails.
func defaultDirectory() rule.StaticDirectory {
	return rule.StaticDirectory{
		{UserID: "attorney-1", Role: phase.RoleAttorney, Expertise: []string{"criminal"}, Workload: 20, Score: 90, Available: true},
		{UserID: "associate-1", Role: phase.RoleAssociate, Workload: 10, Score: 70, Available: true},
		{UserID: "paralegal-1", Role: phase.RoleParalegal, Workload: 15, Score: 60, Available: true},
	}
}

// seedEngines loads persisted rules first, then the definition files, which
// override by id and are written back to the store.
func seedEngines(cfg *config.Config, ruleStore *storage.RuleStore, rules *rule.Engine, auto *automation.Engine, templates *template.Engine) error {
	if ruleStore != nil {
		stored, err := ruleStore.BusinessRules()
		if err != nil {
			return err
		}
		for _, r := range stored {
			if err := rules.AddRule(r); err != nil {
				return err
			}
		}
		storedAuto, err := ruleStore.AutomationRules()
		if err != nil {
			return err
		}
		for _, r := range storedAuto {
			if err := auto.AddRule(r); err != nil {
				return err
			}
		}
	}

	if cfg.Definitions.Dir == "" {
		return nil
	}
	defs, err := config.LoadDefinitions(cfg.Definitions.Dir)
	if err != nil {
		return err
	}
	for _, r := range defs.Rules {
		if err := rules.AddRule(r); err != nil {
			return err
		}
		if ruleStore != nil {
			if err := ruleStore.SaveBusinessRule(r); err != nil {
				return err
			}
		}
	}
	for _, r := range defs.Automations {
		if err := auto.AddRule(r); err != nil {
			return err
		}
		if ruleStore != nil {
			if err := ruleStore.SaveAutomationRule(r); err != nil {
				return err
			}
		}
	}
	for _, t := range defs.Templates {
		if err := templates.AddTemplate(t); err != nil {
			return err
		}
	}
	for role, levels := range defs.Escalations {
		if err := rules.SetEscalationPath(role, levels); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
