package require

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

// Results is one host's tool checks, in the order the tools were given.
type Results []CheckResult

// Missing returns the unsatisfied checks.
func (rs Results) Missing() Results {
	var out Results
	for _, r := range rs {
		if !r.Satisfied {
			out = append(out, r)
		}
	}
	return out
}

// Blocking reports whether a required tool is missing.
func (rs Results) Blocking() bool {
	for _, r := range rs {
		if r.Required && !r.Satisfied {
			return true
		}
	}
	return false
}

// String lists the checks by name, annotating optional ones with what
// they're for: "setsid, nvidia-smi (optional, GPU telemetry)".
func (rs Results) String() string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
		if !r.Required {
			names[i] = fmt.Sprintf("%s (optional, %s)", r.Name, r.Purpose)
		}
	}
	return strings.Join(names, ", ")
}

// lookup runs "command -v" for one tool. Names that could smuggle shell
// syntax are reported missing without touching the host.
func lookup(ctx context.Context, client sshutil.SSHClient, tool Tool) CheckResult {
	r := CheckResult{Tool: tool}
	if !ValidateToolName(tool.Name) {
		return r
	}
	stdout, _, code, err := client.ExecContext(ctx, "command -v "+tool.Name)
	if err == nil && code == 0 {
		r.Satisfied = true
		r.Path = strings.TrimSpace(string(stdout))
	}
	return r
}

// Check looks tools up on the host behind client, concurrently. Answers
// already in cache under hostKey are reused and fresh ones stored. A
// missing tool is a result; the only error is ctx's.
func Check(ctx context.Context, client sshutil.SSHClient, tools []Tool, cache *Cache, hostKey string) (Results, error) {
	out := make(Results, len(tools))
	g, gctx := errgroup.WithContext(ctx)
	for i, tool := range tools {
		if r, ok := cache.Get(hostKey, tool.Name); ok {
			out[i] = r
			continue
		}
		g.Go(func() error {
			out[i] = lookup(gctx, client, tool)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		cache.Set(hostKey, r.Name, r)
	}
	return out, nil
}
