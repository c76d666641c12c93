package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/caseflow/automation"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/schedule"
	"github.com/c360studio/caseflow/task"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "caseflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestScheduleStoreRoundTrip(t *testing.T) {
	store := NewScheduleStore(openTestDB(t))

	due := time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC)
	st := &schedule.ScheduledTask{
		ID:            "sched-1",
		TaskID:        "task-1",
		CaseID:        "case-1",
		Title:         "File motion",
		AssignedTo:    "alice",
		AssignedBy:    "partner-1",
		Priority:      task.PriorityHigh,
		Status:        task.StatusPending,
		ScheduledTime: due.Add(-48 * time.Hour),
		DueDate:       &due,
	}
	require.NoError(t, store.Put(st))

	got, err := store.Get("sched-1")
	require.NoError(t, err)
	assert.Equal(t, st.Title, got.Title)
	assert.Equal(t, st.AssignedTo, got.AssignedTo)
	assert.Equal(t, st.Priority, got.Priority)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))

	// Upsert replaces in place.
	st.Status = task.StatusCompleted
	require.NoError(t, store.Put(st))
	got, err = store.Get("sched-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)

	require.NoError(t, store.Delete("sched-1"))
	_, err = store.Get("sched-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduleStoreListFilters(t *testing.T) {
	store := NewScheduleStore(openTestDB(t))

	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	seed := []*schedule.ScheduledTask{
		{ID: "s1", CaseID: "case-1", AssignedTo: "alice", Status: task.StatusPending, ScheduledTime: base},
		{ID: "s2", CaseID: "case-1", AssignedTo: "bob", Status: task.StatusCompleted, ScheduledTime: base.Add(2 * time.Hour)},
		{ID: "s3", CaseID: "case-2", AssignedTo: "alice", Status: task.StatusPending, ScheduledTime: base.Add(26 * time.Hour)},
	}
	for _, st := range seed {
		st.Title = "t"
		require.NoError(t, store.Put(st))
	}

	byCase, err := store.List(schedule.Filter{CaseID: "case-1"})
	require.NoError(t, err)
	assert.Len(t, byCase, 2)

	byAssignee, err := store.List(schedule.Filter{AssignedTo: "alice", Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, byAssignee, 2)

	from := base.Add(time.Hour)
	to := base.Add(24 * time.Hour)
	windowed, err := store.List(schedule.Filter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "s2", windowed[0].ID)

	all, err := store.List(schedule.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Ordered by scheduled time.
	assert.Equal(t, "s1", all[0].ID)
	assert.Equal(t, "s3", all[2].ID)
}

func TestWorkloadStore(t *testing.T) {
	store := NewWorkloadStore(openTestDB(t))

	// Absent workloads materialize lazily.
	got, err := store.Get("nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	w := schedule.NewUserWorkload("alice")
	w.Add(task.PriorityHigh)
	require.NoError(t, store.Put(w))

	got, err = store.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ActiveTasks)
	assert.Equal(t, task.PriorityHigh.BaseHours(), got.TotalHours)

	require.NoError(t, store.Put(schedule.NewUserWorkload("bob")))
	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].UserID)
	assert.Equal(t, "bob", all[1].UserID)
}

func TestRuleStoreRoundTrip(t *testing.T) {
	store := NewRuleStore(openTestDB(t))

	br := &rule.Rule{
		ID: "urgent_review", Name: "Urgent review", Active: true, Priority: 10,
		Actions: []rule.Action{{
			Type:   rule.ActionRequestReview,
			Params: &rule.RequestReviewParams{Reviewer: "partner", Message: "needs review"},
		}},
	}
	require.NoError(t, store.SaveBusinessRule(br))

	ar := &automation.Rule{
		ID: "completion_followup", Name: "Follow up", Active: true,
		Trigger: automation.Trigger{Type: automation.TriggerTaskStatusChange, ToStatus: task.StatusCompleted},
		Actions: []automation.Action{{
			DelayHours: 24,
			Action: rule.Action{
				Type:   rule.ActionSendNotification,
				Params: &rule.SendNotificationParams{Template: "followup", Recipients: []string{"assignee"}},
			},
		}},
	}
	require.NoError(t, store.SaveAutomationRule(ar))

	rules, err := store.BusinessRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	// Tagged-union params must decode back to their concrete type.
	params, ok := rules[0].Actions[0].Params.(*rule.RequestReviewParams)
	require.True(t, ok, "params decoded as %T", rules[0].Actions[0].Params)
	assert.EqualValues(t, "partner", params.Reviewer)

	autos, err := store.AutomationRules()
	require.NoError(t, err)
	require.Len(t, autos, 1)
	assert.Equal(t, 24*time.Hour, autos[0].Actions[0].Delay())

	require.NoError(t, store.DeleteRule("urgent_review", "business"))
	assert.ErrorIs(t, store.DeleteRule("urgent_review", "business"), ErrNotFound)
}
