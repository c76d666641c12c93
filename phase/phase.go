// Package phase defines the legal case phases and the state machine that
// governs phase transitions. The state machine is the sole authority on
// whether a transition, skip, or reversal is permitted for a given case
// type, user role, and case metadata.
package phase

// CasePhase represents a stage in the legal case lifecycle.
type CasePhase string

const (
	// PhaseIntakeRiskAssessment is the initial intake and risk assessment phase.
	PhaseIntakeRiskAssessment CasePhase = "intake_risk_assessment"
	// PhasePreProceedingPreparation covers preparation before formal proceedings.
	PhasePreProceedingPreparation CasePhase = "pre_proceeding_preparation"
	// PhaseFormalProceedings covers active court or negotiation proceedings.
	PhaseFormalProceedings CasePhase = "formal_proceedings"
	// PhaseResolutionPostProceeding covers resolution and post-proceeding work.
	PhaseResolutionPostProceeding CasePhase = "resolution_post_proceeding"
	// PhaseClosureReviewArchiving is the terminal closure, review, and archiving phase.
	PhaseClosureReviewArchiving CasePhase = "closure_review_archiving"
)

// String returns the string representation of the phase.
func (p CasePhase) String() string {
	return string(p)
}

// IsValid returns true if the phase is a valid case phase.
func (p CasePhase) IsValid() bool {
	switch p {
	case PhaseIntakeRiskAssessment, PhasePreProceedingPreparation,
		PhaseFormalProceedings, PhaseResolutionPostProceeding,
		PhaseClosureReviewArchiving:
		return true
	default:
		return false
	}
}

// AllPhases returns the phases in their normal forward order.
func AllPhases() []CasePhase {
	return []CasePhase{
		PhaseIntakeRiskAssessment,
		PhasePreProceedingPreparation,
		PhaseFormalProceedings,
		PhaseResolutionPostProceeding,
		PhaseClosureReviewArchiving,
	}
}

// CaseType classifies the legal matter a case represents.
type CaseType string

const (
	// CaseTypeCriminalDefense is a criminal defense matter.
	CaseTypeCriminalDefense CaseType = "criminal_defense"
	// CaseTypeCivilLitigation is a civil litigation matter.
	CaseTypeCivilLitigation CaseType = "civil_litigation"
	// CaseTypeFamilyLaw is a family law matter.
	CaseTypeFamilyLaw CaseType = "family_law"
	// CaseTypeCorporate is a corporate or commercial matter.
	CaseTypeCorporate CaseType = "corporate"
	// CaseTypeLaborLaw is an employment or labor matter.
	CaseTypeLaborLaw CaseType = "labor_law"
)

// String returns the string representation of the case type.
func (t CaseType) String() string {
	return string(t)
}

// IsValid returns true if the case type is known.
func (t CaseType) IsValid() bool {
	switch t {
	case CaseTypeCriminalDefense, CaseTypeCivilLitigation, CaseTypeFamilyLaw,
		CaseTypeCorporate, CaseTypeLaborLaw:
		return true
	default:
		return false
	}
}

// UserRole identifies a firm role for transition authorization and task
// assignment.
type UserRole string

const (
	// RoleAdmin is a firm administrator.
	RoleAdmin UserRole = "admin"
	// RolePartner is a firm partner.
	RolePartner UserRole = "partner"
	// RoleAttorney is a licensed attorney.
	RoleAttorney UserRole = "attorney"
	// RoleAssociate is an associate attorney.
	RoleAssociate UserRole = "associate"
	// RoleParalegal is a paralegal.
	RoleParalegal UserRole = "paralegal"
	// RoleAssistant is an administrative assistant.
	RoleAssistant UserRole = "assistant"
)

// String returns the string representation of the role.
func (r UserRole) String() string {
	return string(r)
}

// IsValid returns true if the role is known.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RolePartner, RoleAttorney, RoleAssociate, RoleParalegal, RoleAssistant:
		return true
	default:
		return false
	}
}
