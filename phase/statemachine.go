package phase

import (
	"fmt"
	"sort"
)

// Requirement describes a metadata field a case must carry before it may
// enter a phase.
type Requirement struct {
	// Field is the metadata key that must be present and truthy.
	Field string `json:"field" yaml:"field"`

	// Description explains the requirement for error messages.
	Description string `json:"description" yaml:"description"`

	// CaseTypes restricts the requirement to specific case types.
	// Empty means the requirement applies to all case types.
	CaseTypes []CaseType `json:"case_types,omitempty" yaml:"case_types,omitempty"`
}

// Result reports the outcome of a transition check. A rejected transition
// is a recoverable, reportable condition, not a fatal one: callers must
// check Success before proceeding.
type Result struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// edge identifies a directed phase transition.
type edge struct {
	from, to CasePhase
}

// StateMachine validates and enumerates legal phase transitions. Transition
// legality depends on a static adjacency table, per-edge role authorization,
// and metadata completeness requirements on the target phase.
//
// The zero value is not usable; construct with NewStateMachine.
type StateMachine struct {
	adjacency    map[CasePhase][]CasePhase
	edgeRoles    map[edge][]UserRole
	requirements map[CasePhase][]Requirement
}

// NewStateMachine returns a state machine loaded with the default legal
// case transition tables.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		adjacency:    make(map[CasePhase][]CasePhase),
		edgeRoles:    make(map[edge][]UserRole),
		requirements: make(map[CasePhase][]Requirement),
	}

	// Normal cases move strictly forward through the phase sequence.
	forward := AllPhases()
	for i := 0; i < len(forward)-1; i++ {
		sm.addEdge(forward[i], forward[i+1], RoleAdmin, RolePartner, RoleAttorney, RoleAssociate)
	}

	// Reopened proceedings: resolution may fall back to formal proceedings,
	// but only partners and admins may authorize the reversal.
	sm.addEdge(PhaseResolutionPostProceeding, PhaseFormalProceedings, RoleAdmin, RolePartner)

	sm.requirements = defaultRequirements()
	return sm
}

func (sm *StateMachine) addEdge(from, to CasePhase, roles ...UserRole) {
	sm.adjacency[from] = append(sm.adjacency[from], to)
	sm.edgeRoles[edge{from, to}] = roles
}

// SetRequirements replaces the requirement descriptors for a phase.
func (sm *StateMachine) SetRequirements(p CasePhase, reqs []Requirement) {
	sm.requirements[p] = reqs
}

// CanTransition reports whether the transition from current to target is
// legal for the given role and case metadata. On rejection the Result
// carries a non-empty error list; the method never panics or errors out.
func (sm *StateMachine) CanTransition(current, target CasePhase, role UserRole, caseType CaseType, metadata map[string]any) Result {
	var errs []string

	if !current.IsValid() {
		errs = append(errs, fmt.Sprintf("unknown current phase %q", current))
	}
	if !target.IsValid() {
		errs = append(errs, fmt.Sprintf("unknown target phase %q", target))
	}
	if len(errs) > 0 {
		return Result{Success: false, Errors: errs}
	}

	if !sm.hasEdge(current, target) {
		errs = append(errs, fmt.Sprintf("transition from %s to %s is not permitted", current, target))
		return Result{Success: false, Errors: errs}
	}

	if !sm.roleAllowed(current, target, role) {
		errs = append(errs, fmt.Sprintf("insufficient permissions: role %s may not move a case from %s to %s", role, current, target))
	}

	for _, req := range sm.GetPhaseRequirements(target, caseType) {
		if !metadataSatisfies(metadata, req.Field) {
			errs = append(errs, fmt.Sprintf("entering %s requires %s (%s)", target, req.Field, req.Description))
		}
	}

	return Result{Success: len(errs) == 0, Errors: errs}
}

// GetAvailableTransitions returns the target phases the given role may move
// a case to from the current phase, ignoring metadata requirements.
func (sm *StateMachine) GetAvailableTransitions(current CasePhase, role UserRole) []CasePhase {
	var out []CasePhase
	for _, target := range sm.adjacency[current] {
		if sm.roleAllowed(current, target, role) {
			out = append(out, target)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetPhaseRequirements returns the requirement descriptors that apply when
// a case of the given type enters the phase.
func (sm *StateMachine) GetPhaseRequirements(p CasePhase, caseType CaseType) []Requirement {
	var out []Requirement
	for _, req := range sm.requirements[p] {
		if len(req.CaseTypes) == 0 {
			out = append(out, req)
			continue
		}
		for _, t := range req.CaseTypes {
			if t == caseType {
				out = append(out, req)
				break
			}
		}
	}
	return out
}

func (sm *StateMachine) hasEdge(from, to CasePhase) bool {
	for _, t := range sm.adjacency[from] {
		if t == to {
			return true
		}
	}
	return false
}

func (sm *StateMachine) roleAllowed(from, to CasePhase, role UserRole) bool {
	roles, ok := sm.edgeRoles[edge{from, to}]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// metadataSatisfies reports whether the metadata field is present and truthy.
// Empty strings, false booleans, and zero numbers do not satisfy a requirement.
func metadataSatisfies(metadata map[string]any, field string) bool {
	v, ok := metadata[field]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

// defaultRequirements returns the default metadata completeness checks per
// target phase. The intake requirements are checked when a case is (re)entered
// into intake; the preparation phase requires a completed risk assessment.
func defaultRequirements() map[CasePhase][]Requirement {
	return map[CasePhase][]Requirement{
		PhaseIntakeRiskAssessment: {
			{Field: "clientInformation", Description: "client information on file"},
			{Field: "caseDescription", Description: "case description recorded"},
		},
		PhasePreProceedingPreparation: {
			{Field: "riskAssessmentCompleted", Description: "completed risk assessment"},
			{Field: "clientInformation", Description: "client information on file"},
			{Field: "caseDescription", Description: "case description recorded"},
			{Field: "initialEvidence", Description: "initial evidence collected", CaseTypes: []CaseType{CaseTypeCriminalDefense, CaseTypeCivilLitigation}},
		},
		PhaseFormalProceedings: {
			{Field: "preparationCompleted", Description: "pre-proceeding preparation signed off"},
		},
		PhaseResolutionPostProceeding: {
			{Field: "proceedingsConcluded", Description: "formal proceedings concluded"},
		},
		PhaseClosureReviewArchiving: {
			{Field: "resolutionRecorded", Description: "resolution outcome recorded"},
			{Field: "billingSettled", Description: "billing settled"},
		},
	}
}
