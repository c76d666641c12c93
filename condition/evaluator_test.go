package condition

import (
	"math"
	"testing"
)

func caseData() map[string]any {
	return map[string]any{
		"caseType": "criminal_defense",
		"severity": 7,
		"tags":     []any{"urgent", "custody"},
		"client": map[string]any{
			"name":     "Jane Doe",
			"state":    "CA",
			"retained": true,
		},
	}
}

func TestMatchOperators(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals string", Condition{Field: "caseType", Operator: OpEquals, Value: "criminal_defense"}, true},
		{"equals numeric coercion", Condition{Field: "severity", Operator: OpEquals, Value: 7.0}, true},
		{"not equals", Condition{Field: "caseType", Operator: OpNotEquals, Value: "family_law"}, true},
		{"contains in list", Condition{Field: "tags", Operator: OpContains, Value: "urgent"}, true},
		{"contains substring", Condition{Field: "client.name", Operator: OpContains, Value: "Doe"}, true},
		{"exists nested", Condition{Field: "client.state", Operator: OpExists}, true},
		{"not exists", Condition{Field: "client.phone", Operator: OpNotExists}, true},
		{"greater than", Condition{Field: "severity", Operator: OpGreaterThan, Value: 5}, true},
		{"greater than false", Condition{Field: "severity", Operator: OpGreaterThan, Value: 7}, false},
		{"less than", Condition{Field: "severity", Operator: OpLessThan, Value: 10}, true},
		{"in list", Condition{Field: "client.state", Operator: OpIn, Value: []any{"CA", "NY"}}, true},
		{"not in list", Condition{Field: "client.state", Operator: OpNotIn, Value: []any{"TX", "FL"}}, true},
		{"pattern match", Condition{Field: "client.name", Operator: OpMatchesPattern, Value: `^Jane\s`}, true},
		{"pattern mismatch", Condition{Field: "client.name", Operator: OpMatchesPattern, Value: `^John`}, false},
		{"missing field equals", Condition{Field: "client.phone", Operator: OpEquals, Value: "555"}, false},
	}

	data := caseData()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.cond, data); got != tt.want {
				t.Errorf("Match(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestEvaluateWeightedScore(t *testing.T) {
	conds := []Condition{
		{Field: "caseType", Operator: OpEquals, Value: "criminal_defense", Weight: 3},
		{Field: "severity", Operator: OpGreaterThan, Value: 9, Weight: 1},
	}
	eval := Evaluate(conds, caseData())

	if eval.Matched {
		t.Error("AND fold with one false operand must not match")
	}
	if eval.Score != 75 {
		t.Errorf("Score = %v, want 75 (3 of 4 weight matched)", eval.Score)
	}
	if eval.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", eval.Confidence)
	}
	if eval.MatchedCount != 1 || eval.Total != 2 {
		t.Errorf("counts = %d/%d, want 1/2", eval.MatchedCount, eval.Total)
	}
}

func TestEvaluateOrShortCircuit(t *testing.T) {
	// First operand false, OR-linked second true: the fold matches while
	// confidence still reflects that only one of two conditions held.
	conds := []Condition{
		{Field: "severity", Operator: OpGreaterThan, Value: 9, Logical: LogicalOr},
		{Field: "caseType", Operator: OpEquals, Value: "criminal_defense"},
	}
	eval := Evaluate(conds, caseData())

	if !eval.Matched {
		t.Error("OR fold with a true operand must match")
	}
	if eval.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", eval.Confidence)
	}
	if eval.Score != 50 {
		t.Errorf("Score = %v, want 50 with default weights", eval.Score)
	}
}

func TestEvaluateEmptyConditions(t *testing.T) {
	eval := Evaluate(nil, caseData())
	if !eval.Matched || eval.Score != 100 || eval.Confidence != 1 {
		t.Errorf("empty list = %+v, want full match", eval)
	}
}

func TestEvaluateDefaultWeight(t *testing.T) {
	// Unweighted conditions count as weight 1.
	conds := []Condition{
		{Field: "caseType", Operator: OpEquals, Value: "criminal_defense"},
		{Field: "severity", Operator: OpGreaterThan, Value: 9},
		{Field: "client.retained", Operator: OpEquals, Value: true},
	}
	eval := Evaluate(conds, caseData())
	want := 2.0 / 3.0 * 100
	if math.Abs(eval.Score-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", eval.Score, want)
	}
}

func TestConditionValidate(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		wantErr bool
	}{
		{"valid", Condition{Field: "a", Operator: OpEquals, Value: 1}, false},
		{"missing field", Condition{Operator: OpEquals, Value: 1}, true},
		{"unknown operator", Condition{Field: "a", Operator: "near", Value: 1}, true},
		{"bad logical", Condition{Field: "a", Operator: OpEquals, Value: 1, Logical: "xor"}, true},
		{"missing value", Condition{Field: "a", Operator: OpGreaterThan}, true},
		{"bad pattern", Condition{Field: "a", Operator: OpMatchesPattern, Value: "("}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cond.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLookupDotNotation(t *testing.T) {
	data := caseData()
	if v, ok := Lookup(data, "client.state"); !ok || v != "CA" {
		t.Errorf("Lookup(client.state) = %v, %v", v, ok)
	}
	if _, ok := Lookup(data, "client.address.zip"); ok {
		t.Error("Lookup through a missing branch must fail")
	}
	if v, ok := Lookup(data, "caseType"); !ok || v != "criminal_defense" {
		t.Errorf("Lookup(caseType) = %v, %v", v, ok)
	}
}
