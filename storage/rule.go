package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/c360studio/caseflow/automation"
	"github.com/c360studio/caseflow/rule"
)

// Rule kinds stored in the shared rules table.
const (
	kindBusiness   = "business"
	kindAutomation = "automation"
)

// RuleStore persists business and automation rules as JSON documents so a
// deployment can reload its rule tables across restarts. Engines remain the
// runtime authority; the store is load/save only.
type RuleStore struct {
	db *DB
}

// NewRuleStore returns a rule store on the shared handle.
func NewRuleStore(db *DB) *RuleStore {
	return &RuleStore{db: db}
}

// SaveBusinessRule inserts or replaces one business rule.
func (s *RuleStore) SaveBusinessRule(r *rule.Rule) error {
	return s.save(r.ID, kindBusiness, r)
}

// SaveAutomationRule inserts or replaces one automation rule.
func (s *RuleStore) SaveAutomationRule(r *automation.Rule) error {
	return s.save(r.ID, kindAutomation, r)
}

// BusinessRules loads every stored business rule.
func (s *RuleStore) BusinessRules() ([]*rule.Rule, error) {
	docs, err := s.load(kindBusiness)
	if err != nil {
		return nil, err
	}
	out := make([]*rule.Rule, 0, len(docs))
	for _, doc := range docs {
		var r rule.Rule
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decode business rule: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// AutomationRules loads every stored automation rule.
func (s *RuleStore) AutomationRules() ([]*automation.Rule, error) {
	docs, err := s.load(kindAutomation)
	if err != nil {
		return nil, err
	}
	out := make([]*automation.Rule, 0, len(docs))
	for _, doc := range docs {
		var r automation.Rule
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decode automation rule: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// DeleteRule removes one rule of either kind.
func (s *RuleStore) DeleteRule(id, kind string) error {
	res, err := s.db.db.ExecContext(context.Background(),
		`DELETE FROM rules WHERE id = ? AND kind = ?`, id, kind)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %s (%s): %w", id, kind, ErrNotFound)
	}
	return nil
}

func (s *RuleStore) save(id, kind string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal rule %s: %w", id, err)
	}
	_, err = s.db.db.ExecContext(context.Background(),
		`INSERT INTO rules (id, kind, doc_json) VALUES (?, ?, ?)
		 ON CONFLICT(id, kind) DO UPDATE SET doc_json=excluded.doc_json`,
		id, kind, string(payload))
	if err != nil {
		return fmt.Errorf("store rule %s: %w", id, err)
	}
	return nil
}

func (s *RuleStore) load(kind string) ([]string, error) {
	rows, err := s.db.db.QueryContext(context.Background(),
		`SELECT doc_json FROM rules WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s rules: %w", kind, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
