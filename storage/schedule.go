package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/c360studio/caseflow/schedule"
)

// ScheduleStore is the sqlite-backed schedule.ScheduleStore. Records are
// stored as JSON documents alongside the columns the list filters need.
type ScheduleStore struct {
	db *DB
}

// NewScheduleStore returns a schedule store on the shared handle.
func NewScheduleStore(db *DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) Put(st *schedule.ScheduledTask) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal scheduled task %s: %w", st.ID, err)
	}
	_, err = s.db.db.ExecContext(context.Background(),
		`INSERT INTO scheduled_tasks (id, assigned_to, case_id, status, scheduled_at_unixms, doc_json)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			assigned_to=excluded.assigned_to,
			case_id=excluded.case_id,
			status=excluded.status,
			scheduled_at_unixms=excluded.scheduled_at_unixms,
			doc_json=excluded.doc_json`,
		st.ID, st.AssignedTo, st.CaseID, st.Status.String(), st.ScheduledTime.UnixMilli(), string(doc))
	if err != nil {
		return fmt.Errorf("store scheduled task %s: %w", st.ID, err)
	}
	return nil
}

func (s *ScheduleStore) Get(id string) (*schedule.ScheduledTask, error) {
	var doc string
	err := s.db.db.QueryRowContext(context.Background(),
		`SELECT doc_json FROM scheduled_tasks WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scheduled task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load scheduled task %s: %w", id, err)
	}
	var st schedule.ScheduledTask
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("decode scheduled task %s: %w", id, err)
	}
	return &st, nil
}

func (s *ScheduleStore) Delete(id string) error {
	_, err := s.db.db.ExecContext(context.Background(),
		`DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled task %s: %w", id, err)
	}
	return nil
}

func (s *ScheduleStore) List(f schedule.Filter) ([]*schedule.ScheduledTask, error) {
	query := `SELECT doc_json FROM scheduled_tasks WHERE 1=1`
	var args []any
	if f.AssignedTo != "" {
		query += ` AND assigned_to = ?`
		args = append(args, f.AssignedTo)
	}
	if f.CaseID != "" {
		query += ` AND case_id = ?`
		args = append(args, f.CaseID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.From != nil {
		query += ` AND scheduled_at_unixms >= ?`
		args = append(args, f.From.UnixMilli())
	}
	if f.To != nil {
		query += ` AND scheduled_at_unixms < ?`
		args = append(args, f.To.UnixMilli())
	}
	query += ` ORDER BY scheduled_at_unixms, id`

	rows, err := s.db.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []*schedule.ScheduledTask
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan scheduled task: %w", err)
		}
		var st schedule.ScheduledTask
		if err := json.Unmarshal([]byte(doc), &st); err != nil {
			return nil, fmt.Errorf("decode scheduled task: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

// WorkloadStore is the sqlite-backed schedule.WorkloadStore.
type WorkloadStore struct {
	db *DB
}

// NewWorkloadStore returns a workload store on the shared handle.
func NewWorkloadStore(db *DB) *WorkloadStore {
	return &WorkloadStore{db: db}
}

func (s *WorkloadStore) Get(userID string) (*schedule.UserWorkload, error) {
	var doc string
	err := s.db.db.QueryRowContext(context.Background(),
		`SELECT doc_json FROM workloads WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // absent workloads materialize lazily
	}
	if err != nil {
		return nil, fmt.Errorf("load workload %s: %w", userID, err)
	}
	var w schedule.UserWorkload
	if err := json.Unmarshal([]byte(doc), &w); err != nil {
		return nil, fmt.Errorf("decode workload %s: %w", userID, err)
	}
	return &w, nil
}

func (s *WorkloadStore) Put(w *schedule.UserWorkload) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workload %s: %w", w.UserID, err)
	}
	_, err = s.db.db.ExecContext(context.Background(),
		`INSERT INTO workloads (user_id, doc_json) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET doc_json=excluded.doc_json`,
		w.UserID, string(doc))
	if err != nil {
		return fmt.Errorf("store workload %s: %w", w.UserID, err)
	}
	return nil
}

func (s *WorkloadStore) List() ([]*schedule.UserWorkload, error) {
	rows, err := s.db.db.QueryContext(context.Background(),
		`SELECT doc_json FROM workloads ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list workloads: %w", err)
	}
	defer rows.Close()

	var out []*schedule.UserWorkload
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan workload: %w", err)
		}
		var w schedule.UserWorkload
		if err := json.Unmarshal([]byte(doc), &w); err != nil {
			return nil, fmt.Errorf("decode workload: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
