package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "pass"},
		{StatusWarn, "warn"},
		{StatusFail, "fail"},
		{CheckStatus(99), "unknown"},
	}

	for _, tc := range tests {
		if got := tc.status.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
		b, err := json.Marshal(tc.status)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != `"`+tc.want+`"` {
			t.Errorf("json.Marshal = %s, want %q", b, tc.want)
		}
		if tc.status == CheckStatus(99) {
			continue
		}
		var back CheckStatus
		if err := json.Unmarshal(b, &back); err != nil || back != tc.status {
			t.Errorf("round trip of %s = %v, %v", b, back, err)
		}
	}

	var s CheckStatus
	if err := json.Unmarshal([]byte(`"maybe"`), &s); err == nil {
		t.Error("expected an error for an unknown status")
	}
}

// mockCheck is a Check with a canned result.
type mockCheck struct {
	name     string
	category string
	result   CheckResult
	delay    time.Duration
	running  *int32
	peak     *int32
	fixErr   error
	fixCalls int
}

func (m *mockCheck) Name() string     { return m.name }
func (m *mockCheck) Category() string { return m.category }
func (m *mockCheck) Run(context.Context) CheckResult {
	if m.running != nil {
		n := atomic.AddInt32(m.running, 1)
		for {
			p := atomic.LoadInt32(m.peak)
			if n <= p || atomic.CompareAndSwapInt32(m.peak, p, n) {
				break
			}
		}
		defer atomic.AddInt32(m.running, -1)
	}
	time.Sleep(m.delay)
	return m.result
}
func (m *mockCheck) Fix() error {
	m.fixCalls++
	return m.fixErr
}

func TestRunAll_KeepsOrder(t *testing.T) {
	checks := []Check{
		&mockCheck{name: "slow", delay: 20 * time.Millisecond, result: CheckResult{Name: "slow", Status: StatusFail}},
		&mockCheck{name: "fast", result: CheckResult{Name: "fast", Status: StatusPass}},
		&mockCheck{name: "mid", delay: 5 * time.Millisecond, result: CheckResult{Name: "mid", Status: StatusWarn}},
	}

	results := RunAll(context.Background(), checks, 0)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"slow", "fast", "mid"} {
		if results[i].Name != want {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Name, want)
		}
	}
}

func TestRunAll_Limit(t *testing.T) {
	var running, peak int32
	var checks []Check
	for i := 0; i < 6; i++ {
		checks = append(checks, &mockCheck{
			name:    fmt.Sprintf("c%d", i),
			delay:   10 * time.Millisecond,
			running: &running,
			peak:    &peak,
		})
	}

	RunAll(context.Background(), checks, 2)

	if peak > 2 {
		t.Errorf("ran %d checks at once, limit was 2", peak)
	}
}

func TestCount(t *testing.T) {
	tally := Count([]CheckResult{
		{Status: StatusPass, Fixable: true},
		{Status: StatusPass},
		{Status: StatusWarn, Fixable: true},
		{Status: StatusFail, Fixable: true},
		{Status: StatusFail},
	})

	want := Tally{Pass: 2, Warn: 1, Fail: 2, Fixable: 2}
	if tally != want {
		t.Errorf("Count() = %+v, want %+v", tally, want)
	}
	if tally.Issues() != 3 {
		t.Errorf("Issues() = %d, want 3", tally.Issues())
	}

	if clean := Count([]CheckResult{{Status: StatusPass}}); !clean.AllClear {
		t.Error("expected AllClear with only passing results")
	}
	if empty := Count(nil); !empty.AllClear {
		t.Error("expected AllClear with no results")
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{"all good", []CheckResult{{Status: StatusPass}}, "Everything looks good"},
		{"one issue", []CheckResult{{Status: StatusFail}}, "1 issue found"},
		{"warn and fail", []CheckResult{{Status: StatusFail}, {Status: StatusWarn}}, "2 issues found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Summary(tc.results); got != tc.want {
				t.Errorf("Summary() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFixAll(t *testing.T) {
	fixable := &mockCheck{name: "fixable"}
	broken := &mockCheck{name: "broken", fixErr: fmt.Errorf("read-only")}
	passing := &mockCheck{name: "passing"}
	manual := &mockCheck{name: "manual"}

	checks := []Check{fixable, broken, passing, manual}
	results := []CheckResult{
		{Status: StatusWarn, Fixable: true},
		{Status: StatusFail, Fixable: true},
		{Status: StatusPass, Fixable: true},
		{Status: StatusFail},
	}

	fixed, errs := FixAll(checks, results)

	if len(fixed) != 1 || fixed[0] != "fixable" {
		t.Errorf("fixed = %v, want [fixable]", fixed)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if passing.fixCalls != 0 || manual.fixCalls != 0 {
		t.Errorf("Fix called on a check that didn't need it")
	}
	if broken.fixCalls != 1 {
		t.Errorf("expected broken to be fixed once, got %d", broken.fixCalls)
	}
}
