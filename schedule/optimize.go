package schedule

import (
	"fmt"
	"time"

	"github.com/c360studio/caseflow/task"
)

// OptimizationRequest scopes an optimization pass to one user and window.
type OptimizationRequest struct {
	UserID string `json:"user_id"`

	// From/To bound the window. A zero To defaults to one week after From;
	// a zero From defaults to now.
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Suggestion proposes one schedule adjustment. Suggestions are advisory;
// applying them is the caller's decision.
type Suggestion struct {
	ScheduleID string `json:"schedule_id"`

	// Type is "reschedule" or "rebalance".
	Type string `json:"type"`

	// SuggestedTime carries the proposed new start for reschedule
	// suggestions.
	SuggestedTime *time.Time `json:"suggested_time,omitempty"`

	Reason string `json:"reason"`
}

// OptimizationResult reports the findings of one optimization pass.
type OptimizationResult struct {
	UserID          string       `json:"user_id"`
	TasksExamined   int          `json:"tasks_examined"`
	ConflictsFound  int          `json:"conflicts_found"`
	UtilizationRate float64      `json:"utilization_rate"`
	CapacityStatus  string       `json:"capacity_status"`
	Suggestions     []Suggestion `json:"suggestions,omitempty"`
}

// OptimizeSchedule scans a user's window for overlap clusters and capacity
// pressure and proposes adjustments: overlapping tasks get staggered start
// times, and an over-capacity workload yields rebalance suggestions for the
// lowest-priority tasks.
func (e *Engine) OptimizeSchedule(req OptimizationRequest) (*OptimizationResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	from := req.From
	if from.IsZero() {
		from = e.now()
	}
	to := req.To
	if to.IsZero() {
		to = from.Add(7 * 24 * time.Hour)
	}

	tasks, err := e.store.List(Filter{AssignedTo: req.UserID, From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	active := tasks[:0]
	for _, st := range tasks {
		if st.Status != task.StatusCancelled && st.Status != task.StatusCompleted {
			active = append(active, st)
		}
	}

	res := &OptimizationResult{UserID: req.UserID, TasksExamined: len(active)}

	// The list is ordered by scheduled time; stagger each task that starts
	// inside the threshold of its predecessor.
	lastEnd := time.Time{}
	for i, st := range active {
		if i > 0 && st.ScheduledTime.Sub(lastEnd) < 0 {
			res.ConflictsFound++
			proposed := lastEnd
			res.Suggestions = append(res.Suggestions, Suggestion{
				ScheduleID:    st.ID,
				Type:          "reschedule",
				SuggestedTime: &proposed,
				Reason:        fmt.Sprintf("overlaps task %q; move start to %s", active[i-1].Title, proposed.Format(time.RFC3339)),
			})
			lastEnd = proposed.Add(e.threshold)
			continue
		}
		lastEnd = st.ScheduledTime.Add(e.threshold)
	}

	w, err := e.Workload(req.UserID)
	if err != nil {
		return nil, err
	}
	res.UtilizationRate = w.UtilizationRate
	res.CapacityStatus = w.CapacityStatus
	if w.CapacityStatus == "over_capacity" {
		for i := len(active) - 1; i >= 0; i-- {
			st := active[i]
			if st.Priority == task.PriorityLow || st.Priority == task.PriorityMedium {
				res.Suggestions = append(res.Suggestions, Suggestion{
					ScheduleID: st.ID,
					Type:       "rebalance",
					Reason:     fmt.Sprintf("user is over capacity (%.0f%%); consider reassigning %q", w.UtilizationRate, st.Title),
				})
				break
			}
		}
	}
	return res, nil
}
