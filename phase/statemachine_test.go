package phase

import (
	"strings"
	"testing"
)

// completeMetadata satisfies every default requirement for the preparation
// phase, including the criminal/civil evidence requirement.
func completeMetadata() map[string]any {
	return map[string]any{
		"riskAssessmentCompleted": true,
		"clientInformation":       "Jane Doe",
		"caseDescription":         "retail theft allegation",
		"initialEvidence":         true,
	}
}

func TestCanTransition(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		name     string
		current  CasePhase
		target   CasePhase
		role     UserRole
		caseType CaseType
		metadata map[string]any
		wantOK   bool
		wantErr  string
	}{
		{
			name:     "forward transition by attorney",
			current:  PhaseIntakeRiskAssessment,
			target:   PhasePreProceedingPreparation,
			role:     RoleAttorney,
			caseType: CaseTypeCriminalDefense,
			metadata: completeMetadata(),
			wantOK:   true,
		},
		{
			name:     "phase skip rejected",
			current:  PhaseIntakeRiskAssessment,
			target:   PhaseFormalProceedings,
			role:     RolePartner,
			caseType: CaseTypeCriminalDefense,
			metadata: completeMetadata(),
			wantOK:   false,
			wantErr:  "not permitted",
		},
		{
			name:     "assistant lacks permission",
			current:  PhaseIntakeRiskAssessment,
			target:   PhasePreProceedingPreparation,
			role:     RoleAssistant,
			caseType: CaseTypeCriminalDefense,
			metadata: completeMetadata(),
			wantOK:   false,
			wantErr:  "insufficient permissions",
		},
		{
			name:     "missing risk assessment blocks preparation",
			current:  PhaseIntakeRiskAssessment,
			target:   PhasePreProceedingPreparation,
			role:     RoleAttorney,
			caseType: CaseTypeCriminalDefense,
			metadata: map[string]any{
				"clientInformation": "Jane Doe",
				"caseDescription":   "retail theft allegation",
				"initialEvidence":   true,
			},
			wantOK:  false,
			wantErr: "riskAssessmentCompleted",
		},
		{
			name:     "evidence requirement skipped for family law",
			current:  PhaseIntakeRiskAssessment,
			target:   PhasePreProceedingPreparation,
			role:     RoleAttorney,
			caseType: CaseTypeFamilyLaw,
			metadata: map[string]any{
				"riskAssessmentCompleted": true,
				"clientInformation":       "Jane Doe",
				"caseDescription":         "custody dispute",
			},
			wantOK: true,
		},
		{
			name:     "partner may reopen proceedings",
			current:  PhaseResolutionPostProceeding,
			target:   PhaseFormalProceedings,
			role:     RolePartner,
			caseType: CaseTypeCivilLitigation,
			metadata: map[string]any{"preparationCompleted": true},
			wantOK:   true,
		},
		{
			name:     "associate may not reopen proceedings",
			current:  PhaseResolutionPostProceeding,
			target:   PhaseFormalProceedings,
			role:     RoleAssociate,
			caseType: CaseTypeCivilLitigation,
			metadata: map[string]any{"preparationCompleted": true},
			wantOK:   false,
			wantErr:  "insufficient permissions",
		},
		{
			name:     "unknown target phase",
			current:  PhaseIntakeRiskAssessment,
			target:   CasePhase("appeals"),
			role:     RoleAttorney,
			caseType: CaseTypeCriminalDefense,
			metadata: completeMetadata(),
			wantOK:   false,
			wantErr:  "unknown target phase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sm.CanTransition(tt.current, tt.target, tt.role, tt.caseType, tt.metadata)
			if res.Success != tt.wantOK {
				t.Fatalf("Success = %v, want %v (errors: %v)", res.Success, tt.wantOK, res.Errors)
			}
			if tt.wantErr != "" {
				found := false
				for _, e := range res.Errors {
					if strings.Contains(e, tt.wantErr) {
						found = true
					}
				}
				if !found {
					t.Errorf("errors %v do not mention %q", res.Errors, tt.wantErr)
				}
			}
		})
	}
}

func TestRejectionIsRecoverable(t *testing.T) {
	sm := NewStateMachine()

	res := sm.CanTransition(PhaseIntakeRiskAssessment, PhaseClosureReviewArchiving, RolePartner, CaseTypeCorporate, nil)
	if res.Success {
		t.Fatal("expected rejection")
	}
	if len(res.Errors) == 0 {
		t.Fatal("rejection must carry errors")
	}

	// The same machine keeps validating after a rejection.
	ok := sm.CanTransition(PhaseIntakeRiskAssessment, PhasePreProceedingPreparation, RolePartner, CaseTypeFamilyLaw, map[string]any{
		"riskAssessmentCompleted": true,
		"clientInformation":       "x",
		"caseDescription":         "y",
	})
	if !ok.Success {
		t.Fatalf("expected acceptance after earlier rejection, got %v", ok.Errors)
	}
}

func TestGetAvailableTransitions(t *testing.T) {
	sm := NewStateMachine()

	got := sm.GetAvailableTransitions(PhaseResolutionPostProceeding, RolePartner)
	if len(got) != 2 {
		t.Fatalf("partner transitions from resolution = %v, want closure and reopened proceedings", got)
	}

	got = sm.GetAvailableTransitions(PhaseResolutionPostProceeding, RoleAssociate)
	if len(got) != 1 || got[0] != PhaseClosureReviewArchiving {
		t.Fatalf("associate transitions from resolution = %v, want only closure", got)
	}

	if got := sm.GetAvailableTransitions(PhaseClosureReviewArchiving, RolePartner); len(got) != 0 {
		t.Fatalf("closure is terminal, got %v", got)
	}
}

func TestGetPhaseRequirementsFiltersCaseType(t *testing.T) {
	sm := NewStateMachine()

	criminal := sm.GetPhaseRequirements(PhasePreProceedingPreparation, CaseTypeCriminalDefense)
	family := sm.GetPhaseRequirements(PhasePreProceedingPreparation, CaseTypeFamilyLaw)
	if len(criminal) != len(family)+1 {
		t.Fatalf("criminal requirements = %d, family = %d; want evidence requirement only for criminal", len(criminal), len(family))
	}
}

func TestMetadataSatisfies(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"true bool", true, true},
		{"false bool", false, false},
		{"non-empty string", "x", true},
		{"empty string", "", false},
		{"zero number", 0, false},
		{"non-zero float", 1.5, true},
		{"nil", nil, false},
		{"struct value", struct{}{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := map[string]any{"field": tt.value}
			if got := metadataSatisfies(md, "field"); got != tt.want {
				t.Errorf("metadataSatisfies(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
	if metadataSatisfies(map[string]any{}, "absent") {
		t.Error("absent field must not satisfy")
	}
}
