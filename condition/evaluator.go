package condition

// Evaluation is the outcome of evaluating an ordered condition list.
type Evaluation struct {
	// Matched is the folded boolean outcome of the condition list.
	Matched bool `json:"matched"`

	// Score is totalMatchedWeight/totalWeight × 100 over all conditions.
	Score float64 `json:"score"`

	// Confidence is matchedCount/conditionCount.
	Confidence float64 `json:"confidence"`

	// MatchedCount is the number of conditions that matched individually.
	MatchedCount int `json:"matched_count"`

	// Total is the number of conditions evaluated.
	Total int `json:"total"`
}

// Evaluate evaluates an ordered condition list against the metadata.
//
// Every condition is matched individually for scoring: a matched condition
// contributes weight×100 to the running score and its weight to the running
// total; an unmatched condition contributes its weight to the total only.
//
// The Matched boolean folds left-to-right. Conditions combine with AND
// unless the previous condition declares OR; once an OR-linked operand is
// true the fold short-circuits to a match. Mixed AND/OR chains therefore
// have no precedence beyond the left fold — rule authors should split
// complex logic across rules rather than rely on chained mixing.
//
// An empty condition list matches with full score and confidence.
func Evaluate(conditions []Condition, data map[string]any) Evaluation {
	if len(conditions) == 0 {
		return Evaluation{Matched: true, Score: 100, Confidence: 1}
	}

	matches := make([]bool, len(conditions))
	var totalWeight, matchedWeight float64
	matchedCount := 0
	for i, c := range conditions {
		m := Match(c, data)
		matches[i] = m
		w := c.EffectiveWeight()
		totalWeight += w
		if m {
			matchedWeight += w
			matchedCount++
		}
	}

	matched := matches[0]
	for i := 1; i < len(conditions); i++ {
		if conditions[i-1].Logical == LogicalOr {
			matched = matched || matches[i]
			if matched {
				break
			}
		} else {
			matched = matched && matches[i]
		}
	}

	score := 0.0
	if totalWeight > 0 {
		score = matchedWeight / totalWeight * 100
	}
	return Evaluation{
		Matched:      matched,
		Score:        score,
		Confidence:   float64(matchedCount) / float64(len(conditions)),
		MatchedCount: matchedCount,
		Total:        len(conditions),
	}
}

// ValidateAll validates every condition in the list, returning the first
// error encountered.
func ValidateAll(conditions []Condition) error {
	for i := range conditions {
		if err := conditions[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
