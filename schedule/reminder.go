package schedule

import (
	"time"

	"github.com/c360studio/caseflow/task"
)

// ReminderTemplate is one entry in the static reminder table: a named
// offset before the due date, a delivery channel, and recipient roles.
type ReminderTemplate struct {
	Name          string   `json:"name"`
	OffsetMinutes int      `json:"offset_minutes"`
	Channel       string   `json:"channel"`
	Recipients    []string `json:"recipients"`
}

// Reminder is a computed reminder occurrence for one scheduled task.
type Reminder struct {
	ScheduleID string        `json:"schedule_id"`
	TaskID     string        `json:"task_id,omitempty"`
	Title      string        `json:"title"`
	Priority   task.Priority `json:"priority"`
	Template   string        `json:"template"`
	Channel    string        `json:"channel"`
	Recipients []string      `json:"recipients"`

	// FireTime is DueDate minus the template offset.
	FireTime time.Time `json:"fire_time"`
	DueDate  time.Time `json:"due_date"`
}

// reminderTable maps priority tiers to reminder templates. The "deadline"
// tier applies to every task with a due date regardless of priority.
var reminderTable = map[string][]ReminderTemplate{
	"urgent": {
		{Name: "urgent_24h", OffsetMinutes: 24 * 60, Channel: "email", Recipients: []string{"assignee", "attorney"}},
		{Name: "urgent_4h", OffsetMinutes: 4 * 60, Channel: "push", Recipients: []string{"assignee"}},
		{Name: "urgent_1h", OffsetMinutes: 60, Channel: "sms", Recipients: []string{"assignee"}},
	},
	"high": {
		{Name: "high_48h", OffsetMinutes: 48 * 60, Channel: "email", Recipients: []string{"assignee"}},
		{Name: "high_8h", OffsetMinutes: 8 * 60, Channel: "push", Recipients: []string{"assignee"}},
	},
	"medium": {
		{Name: "medium_72h", OffsetMinutes: 72 * 60, Channel: "email", Recipients: []string{"assignee"}},
	},
	"deadline": {
		{Name: "deadline_30m", OffsetMinutes: 30, Channel: "push", Recipients: []string{"assignee"}},
	},
}

// remindersFor returns the reminder templates for a priority. Low-priority
// tasks get only the deadline tier.
func remindersFor(p task.Priority) []ReminderTemplate {
	var out []ReminderTemplate
	switch p {
	case task.PriorityUrgent:
		out = append(out, reminderTable["urgent"]...)
	case task.PriorityHigh:
		out = append(out, reminderTable["high"]...)
	case task.PriorityMedium:
		out = append(out, reminderTable["medium"]...)
	}
	out = append(out, reminderTable["deadline"]...)
	return out
}
