// Package condition provides the shared condition model and evaluator used
// by the business rule, automation, and workflow engines. Keeping a single
// operator switch here removes drift between the three rule tables.
package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Operator identifies a comparison operator.
type Operator string

const (
	// OpEquals matches when the field equals the comparison value.
	OpEquals Operator = "equals"
	// OpNotEquals matches when the field differs from the comparison value.
	OpNotEquals Operator = "not_equals"
	// OpContains matches when a string field contains the comparison value,
	// or a list field contains an equal element.
	OpContains Operator = "contains"
	// OpExists matches when the field is present and non-nil.
	OpExists Operator = "exists"
	// OpNotExists matches when the field is absent or nil.
	OpNotExists Operator = "not_exists"
	// OpGreaterThan matches when a numeric field exceeds the comparison value.
	OpGreaterThan Operator = "greater_than"
	// OpLessThan matches when a numeric field is below the comparison value.
	OpLessThan Operator = "less_than"
	// OpIn matches when the field equals any element of the comparison list.
	OpIn Operator = "in"
	// OpNotIn matches when the field equals no element of the comparison list.
	OpNotIn Operator = "not_in"
	// OpMatchesPattern matches when a string field matches the comparison
	// value interpreted as a regular expression.
	OpMatchesPattern Operator = "matches_pattern"
)

// IsValid returns true if the operator is known.
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpExists, OpNotExists,
		OpGreaterThan, OpLessThan, OpIn, OpNotIn, OpMatchesPattern:
		return true
	default:
		return false
	}
}

// Logical links a condition to the next condition in a list.
type Logical string

const (
	// LogicalAnd requires both linked conditions to match. This is the
	// default when no logical operator is declared.
	LogicalAnd Logical = "and"
	// LogicalOr lets either linked condition satisfy the pair.
	LogicalOr Logical = "or"
)

// Condition is a single field comparison with an optional weight and an
// optional logical operator linking it to the next condition in its list.
type Condition struct {
	// Field is a dot-notation path into the context metadata
	// (e.g., "case.priority" or "task.assignedRole").
	Field string `json:"field" yaml:"field"`

	// Operator is the comparison operator.
	Operator Operator `json:"operator" yaml:"operator"`

	// Value is the comparison value. Unused for exists/not_exists.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	// Weight contributes to the weighted match score. Zero means 1.
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`

	// Logical links this condition to the next one. Empty means AND.
	Logical Logical `json:"logical,omitempty" yaml:"logical,omitempty"`
}

// EffectiveWeight returns the condition weight, defaulting to 1.
func (c Condition) EffectiveWeight() float64 {
	if c.Weight <= 0 {
		return 1
	}
	return c.Weight
}

// Validate checks the condition shape.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("unknown condition operator %q", c.Operator)
	}
	if c.Logical != "" && c.Logical != LogicalAnd && c.Logical != LogicalOr {
		return fmt.Errorf("unknown logical operator %q", c.Logical)
	}
	switch c.Operator {
	case OpExists, OpNotExists:
		// No comparison value required.
	case OpMatchesPattern:
		pat, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("matches_pattern requires a string pattern, got %T", c.Value)
		}
		if _, err := compilePattern(pat); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pat, err)
		}
	default:
		if c.Value == nil {
			return fmt.Errorf("operator %s requires a comparison value", c.Operator)
		}
	}
	return nil
}

// Lookup resolves a dot-notation path against nested metadata. Each path
// segment must resolve to a map[string]any except the last.
func Lookup(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

var patternCache sync.Map // pattern string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// Match evaluates a single condition against the metadata. Evaluation is
// deterministic: the same condition and data always produce the same result.
func Match(c Condition, data map[string]any) bool {
	value, found := Lookup(data, c.Field)

	switch c.Operator {
	case OpExists:
		return found && value != nil
	case OpNotExists:
		return !found || value == nil
	}

	if !found {
		// not_equals and not_in treat a missing field as a non-match of the
		// comparison value.
		return c.Operator == OpNotEquals || c.Operator == OpNotIn
	}

	switch c.Operator {
	case OpEquals:
		return looseEqual(value, c.Value)
	case OpNotEquals:
		return !looseEqual(value, c.Value)
	case OpContains:
		return contains(value, c.Value)
	case OpGreaterThan:
		a, okA := toFloat(value)
		b, okB := toFloat(c.Value)
		return okA && okB && a > b
	case OpLessThan:
		a, okA := toFloat(value)
		b, okB := toFloat(c.Value)
		return okA && okB && a < b
	case OpIn:
		return inList(value, c.Value)
	case OpNotIn:
		return !inList(value, c.Value)
	case OpMatchesPattern:
		pat, ok := c.Value.(string)
		if !ok {
			return false
		}
		re, err := compilePattern(pat)
		if err != nil {
			return false
		}
		return re.MatchString(toString(value))
	default:
		return false
	}
}

// looseEqual compares two values, coercing numerics so JSON-decoded float64
// values compare equal to int comparison values.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return toString(a) == toString(b) && a != nil && b != nil
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toString(needle))
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range h {
			if item == toString(needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func inList(value, list any) bool {
	switch l := list.(type) {
	case []any:
		for _, item := range l {
			if looseEqual(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range l {
			if toString(value) == item {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
