package rule

import (
	"fmt"
	"sort"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
)

// EscalationLevel is one entry in a role's escalation path. Levels for a
// role form a strictly increasing 1-based sequence.
type EscalationLevel struct {
	// Level is the 1-based escalation step.
	Level int `json:"level" yaml:"level"`

	// FromRole is the role this entry escalates from.
	FromRole phase.UserRole `json:"from_role" yaml:"from_role"`

	// ToRole is the role the task escalates to at this level.
	ToRole phase.UserRole `json:"to_role" yaml:"to_role"`

	// Conditions gate the level against context metadata.
	Conditions []condition.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// NotifyTemplates names notification templates fired on escalation.
	NotifyTemplates []string `json:"notify_templates,omitempty" yaml:"notify_templates,omitempty"`

	// ApprovalRequired requires management approval before the escalated
	// task proceeds.
	ApprovalRequired bool `json:"approval_required,omitempty" yaml:"approval_required,omitempty"`
}

// validateEscalationPath checks the strictly increasing level invariant.
func validateEscalationPath(role phase.UserRole, levels []EscalationLevel) error {
	if len(levels) == 0 {
		return fmt.Errorf("escalation path for %s is empty", role)
	}
	sorted := make([]EscalationLevel, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	prev := 0
	for _, l := range sorted {
		if l.Level != prev+1 {
			return fmt.Errorf("escalation path for %s: levels must increase strictly from 1, got %d after %d", role, l.Level, prev)
		}
		if l.ToRole == "" {
			return fmt.Errorf("escalation path for %s: level %d has no target role", role, l.Level)
		}
		prev = l.Level
	}
	return nil
}

// DefaultEscalationPaths returns the firm's default escalation ladder:
// paralegal → associate → attorney → partner, with partner as the final
// level everywhere.
func DefaultEscalationPaths() map[phase.UserRole][]EscalationLevel {
	return map[phase.UserRole][]EscalationLevel{
		phase.RoleParalegal: {
			{Level: 1, FromRole: phase.RoleParalegal, ToRole: phase.RoleAssociate, NotifyTemplates: []string{"task_escalated"}},
			{Level: 2, FromRole: phase.RoleParalegal, ToRole: phase.RoleAttorney, NotifyTemplates: []string{"task_escalated"}},
			{Level: 3, FromRole: phase.RoleParalegal, ToRole: phase.RolePartner, NotifyTemplates: []string{"task_escalated"}, ApprovalRequired: true},
		},
		phase.RoleAssociate: {
			{Level: 1, FromRole: phase.RoleAssociate, ToRole: phase.RoleAttorney, NotifyTemplates: []string{"task_escalated"}},
			{Level: 2, FromRole: phase.RoleAssociate, ToRole: phase.RolePartner, NotifyTemplates: []string{"task_escalated"}, ApprovalRequired: true},
		},
		phase.RoleAttorney: {
			{Level: 1, FromRole: phase.RoleAttorney, ToRole: phase.RolePartner, NotifyTemplates: []string{"task_escalated"}, ApprovalRequired: true},
		},
	}
}
