package rule

import (
	"context"
	"fmt"
	"sort"

	"github.com/c360studio/caseflow/phase"
)

// Candidate is an assignment candidate supplied by the directory.
type Candidate struct {
	// UserID identifies the candidate.
	UserID string `json:"user_id"`

	// Role is the candidate's firm role.
	Role phase.UserRole `json:"role"`

	// Expertise lists expertise tags (e.g., "criminal", "appeals").
	Expertise []string `json:"expertise,omitempty"`

	// Workload is the candidate's current workload in hours.
	Workload float64 `json:"workload"`

	// Score ranks the candidate for expertise and priority strategies.
	Score float64 `json:"score"`

	// Available excludes the candidate when false.
	Available bool `json:"available"`
}

// Directory supplies assignment candidates. A production deployment backs
// this with the firm's user directory; the engine itself never assumes a
// particular candidate source.
type Directory interface {
	// Candidates returns the current candidate pool.
	Candidates(ctx context.Context) ([]Candidate, error)
}

// StaticDirectory is a fixed in-process candidate pool, suitable for tests
// and single-tenant embedding.
type StaticDirectory []Candidate

// Candidates implements Directory.
func (d StaticDirectory) Candidates(_ context.Context) ([]Candidate, error) {
	out := make([]Candidate, len(d))
	copy(out, d)
	return out, nil
}

// selectCandidate applies the assignment strategy to the candidate pool.
// Selection is deterministic: ties break on UserID.
func selectCandidate(pool []Candidate, p AssignTaskParams) (*Candidate, error) {
	available := pool[:0:0]
	for _, c := range pool {
		if c.Available {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no available assignment candidates")
	}

	var filtered []Candidate
	switch p.Strategy {
	case StrategyExpertise:
		for _, c := range available {
			if hasExpertise(c, p.RequiredExpertise) {
				filtered = append(filtered, c)
			}
		}
		sortByScoreDesc(filtered)
	case StrategyWorkload:
		threshold := p.MaxWorkload
		if threshold <= 0 {
			threshold = 40
		}
		for _, c := range available {
			if c.Workload <= threshold {
				filtered = append(filtered, c)
			}
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			if filtered[i].Workload != filtered[j].Workload {
				return filtered[i].Workload < filtered[j].Workload
			}
			return filtered[i].UserID < filtered[j].UserID
		})
	case StrategyPriority:
		for _, c := range available {
			if p.RequiredRole == "" || c.Role == p.RequiredRole {
				filtered = append(filtered, c)
			}
		}
		sortByScoreDesc(filtered)
	default:
		return nil, fmt.Errorf("unknown assignment strategy %q", p.Strategy)
	}

	if len(filtered) == 0 {
		return nil, fmt.Errorf("no candidates match %s criteria", p.Strategy)
	}
	selected := filtered[0]
	return &selected, nil
}

func hasExpertise(c Candidate, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(c.Expertise))
	for _, e := range c.Expertise {
		have[e] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

func sortByScoreDesc(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].UserID < cs[j].UserID
	})
}
