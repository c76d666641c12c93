package template

import (
	"time"

	"github.com/c360studio/caseflow/condition"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/task"
)

// DefaultTemplates returns the default legal task template set. Each case
// type gets one auto-create intake template; preparation and closure
// templates cover the phases every case passes through.
func DefaultTemplates() []*TaskTemplate {
	return []*TaskTemplate{
		{
			ID:                  "criminal_intake_risk_assessment",
			Name:                "Criminal Defense Intake Risk Assessment",
			CaseType:            phase.CaseTypeCriminalDefense,
			Phases:              []phase.CasePhase{phase.PhaseIntakeRiskAssessment},
			Category:            "risk_assessment",
			TitleTemplate:       "Risk assessment for case {caseNumber}",
			DescriptionTemplate: "Complete the intake risk assessment. Client: {clientInformation}. Matter: {caseDescription}.",
			DefaultPriority:     task.PriorityHigh,
			AssigneeRole:        phase.RoleAttorney,
			DueIn:               72 * time.Hour,
			EstimatedHours:      3,
			Variables: []Variable{
				{Name: "caseNumber", Type: VariableString, Default: "unassigned"},
				{Name: "clientInformation", Type: VariableString, Required: true},
				{Name: "caseDescription", Type: VariableString, Required: true},
			},
			Steps: []Step{
				{ID: "collect_evidence", Title: "Review initial evidence", Order: 1, EstimatedHours: 1},
				{ID: "assess_exposure", Title: "Assess client exposure", Order: 2, DependsOn: []string{"collect_evidence"}, EstimatedHours: 1.5},
				{ID: "document_findings", Title: "Document assessment findings", Order: 3, DependsOn: []string{"assess_exposure"}, EstimatedHours: 0.5},
			},
			AutoCreate: true,
			AutoAssign: true,
			Active:     true,
		},
		{
			ID:                  "civil_intake_review",
			Name:                "Civil Litigation Intake Review",
			CaseType:            phase.CaseTypeCivilLitigation,
			Phases:              []phase.CasePhase{phase.PhaseIntakeRiskAssessment},
			Category:            "intake",
			TitleTemplate:       "Intake review for {clientInformation}",
			DescriptionTemplate: "Review the claim, identify counterparties, and record the limitation period.",
			DefaultPriority:     task.PriorityMedium,
			AssigneeRole:        phase.RoleAssociate,
			DueIn:               5 * 24 * time.Hour,
			EstimatedHours:      2,
			Variables: []Variable{
				{Name: "clientInformation", Type: VariableString, Required: true},
			},
			AutoCreate: true,
			Active:     true,
		},
		{
			ID:                  "preparation_discovery_plan",
			Name:                "Discovery Plan",
			Phases:              []phase.CasePhase{phase.PhasePreProceedingPreparation},
			Category:            "preparation",
			TitleTemplate:       "Draft discovery plan",
			DescriptionTemplate: "Draft the discovery plan and witness list for the upcoming proceedings.",
			DefaultPriority:     task.PriorityHigh,
			AssigneeRole:        phase.RoleAssociate,
			DueIn:               7 * 24 * time.Hour,
			EstimatedHours:      4,
			// Only cases flagged as contested need a discovery plan.
			Conditions: []condition.Condition{
				{Field: "contested", Operator: condition.OpEquals, Value: true},
			},
			AutoCreate: true,
			Active:     true,
		},
		{
			ID:                  "proceedings_hearing_prep",
			Name:                "Hearing Preparation",
			Phases:              []phase.CasePhase{phase.PhaseFormalProceedings},
			Category:            "proceedings",
			TitleTemplate:       "Prepare for hearing on {hearingDate}",
			DescriptionTemplate: "Prepare submissions, exhibits, and client briefing for the hearing.",
			DefaultPriority:     task.PriorityUrgent,
			AssigneeRole:        phase.RoleAttorney,
			DueIn:               48 * time.Hour,
			EstimatedHours:      6,
			Variables: []Variable{
				{Name: "hearingDate", Type: VariableDate},
			},
			AutoCreate: true,
			Active:     true,
		},
		{
			ID:                  "closure_file_archive",
			Name:                "Case File Archiving",
			Phases:              []phase.CasePhase{phase.PhaseClosureReviewArchiving},
			Category:            "closure",
			TitleTemplate:       "Archive case file",
			DescriptionTemplate: "Index, archive, and confirm retention schedule for the case file.",
			DefaultPriority:     task.PriorityLow,
			AssigneeRole:        phase.RoleParalegal,
			DueIn:               14 * 24 * time.Hour,
			EstimatedHours:      1,
			AutoCreate:          true,
			Active:              true,
		},
	}
}
