// Package metric exposes Prometheus collectors for the caseflow engines.
// Collectors are registered on the default registry at init time; embedders
// that scrape the default registry pick them up without extra wiring.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts phase transitions processed by the workflow
	// engine, labeled by outcome.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Subsystem: "workflow",
		Name:      "transitions_total",
		Help:      "Phase transitions processed, by result.",
	}, []string{"result"})

	// TasksCreatedTotal counts tasks created from templates and rule actions.
	TasksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseflow",
		Subsystem: "workflow",
		Name:      "tasks_created_total",
		Help:      "Tasks created by the workflow engines.",
	})

	// RuleEvaluationsTotal counts business rule evaluations, by outcome.
	RuleEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Subsystem: "rules",
		Name:      "evaluations_total",
		Help:      "Business rule evaluations, by outcome (matched, unmatched, error).",
	}, []string{"outcome"})

	// ActionExecutionSeconds observes rule action execution latency by action type.
	ActionExecutionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "caseflow",
		Subsystem: "rules",
		Name:      "action_execution_seconds",
		Help:      "Rule action execution latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	// AutomationExecutionsTotal counts automation rule executions.
	AutomationExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Subsystem: "automation",
		Name:      "executions_total",
		Help:      "Automation rule executions, by mode (immediate, delayed).",
	}, []string{"mode"})

	// PendingAutomations tracks the number of queued delayed automations.
	PendingAutomations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "caseflow",
		Subsystem: "automation",
		Name:      "pending",
		Help:      "Delayed automations waiting to fire.",
	})

	// ScheduleConflictsTotal counts scheduling conflicts, by severity.
	ScheduleConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Subsystem: "schedule",
		Name:      "conflicts_total",
		Help:      "Scheduling conflicts detected, by severity.",
	}, []string{"severity"})
)
