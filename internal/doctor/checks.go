package doctor

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/dgxops/internal/util"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{"pass", "warn", "fail"}

func (s CheckStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText writes the status by name, so --json reports read without
// a lookup table.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CheckStatus) UnmarshalText(b []byte) error {
	i := slices.Index(statusNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("unknown check status %q", b)
	}
	*s = CheckStatus(i)
	return nil
}

// CheckResult is what a check found.
type CheckResult struct {
	Name       string      `json:"name"`
	Status     CheckStatus `json:"status"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Fixable    bool        `json:"fixable,omitempty"` // --fix can address it
}

func (r CheckResult) issue() bool { return r.Status != StatusPass }

// Check is one diagnostic.
type Check interface {
	Name() string
	// Category groups checks in the report: CONFIG, SSH, DAEMON,
	// CONNECTIONS or REMOTE.
	Category() string
	// Run inspects the system. Checks that touch the network stop when
	// ctx ends.
	Run(ctx context.Context) CheckResult
	// Fix repairs what Run reported. Checks that can't fix anything
	// return nil.
	Fix() error
}

// DefaultParallelism bounds how many checks run at once. Remote checks
// each hold an SSH session.
const DefaultParallelism = 8

// RunAll runs checks concurrently, at most limit at a time (no limit when
// limit <= 0), and returns results in the order of checks.
func RunAll(ctx context.Context, checks []Check, limit int) []CheckResult {
	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, c := range checks {
		g.Go(func() error {
			results[i] = c.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FixAll runs Fix on every check whose result is a fixable issue and
// returns the names of the checks it fixed. results must be in the order
// of checks.
func FixAll(checks []Check, results []CheckResult) (fixed []string, errs []error) {
	for i, c := range checks {
		if r := results[i]; !r.Fixable || !r.issue() {
			continue
		}
		if err := c.Fix(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		fixed = append(fixed, c.Name())
	}
	return fixed, errs
}

// Tally counts results by outcome.
type Tally struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	Fixable  int  `json:"fixable"`
	AllClear bool `json:"all_clear"`
}

// Issues is the number of warnings and failures.
func (t Tally) Issues() int { return t.Warn + t.Fail }

// Count tallies results.
func Count(results []CheckResult) Tally {
	var t Tally
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			t.Pass++
		case StatusWarn:
			t.Warn++
		default:
			t.Fail++
		}
		if r.Fixable && r.issue() {
			t.Fixable++
		}
	}
	t.AllClear = t.Issues() == 0
	return t
}

// Summary is the one-line verdict on results.
func Summary(results []CheckResult) string {
	n := Count(results).Issues()
	if n == 0 {
		return "Everything looks good"
	}
	return fmt.Sprintf("%d %s found", n, util.Pluralize(n, "issue", "issues"))
}
