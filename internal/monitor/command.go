package monitor

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/dgxops/internal/monitor/parsers"
)

// OutputSeparator splits the sections of the batched command output.
const OutputSeparator = "---"

const (
	sectionMeminfo = iota
	sectionNetDev
	sectionGPU
	sectionCount
)

// BuildMetricsCommand returns a single batched command that collects
// every metric in one exec. nvidia-smi failing leaves its section empty.
func BuildMetricsCommand() string {
	return fmt.Sprintf(`cat /proc/meminfo; echo "%[1]s"; cat /proc/net/dev; echo "%[1]s"; nvidia-smi --query-gpu=%[2]s --format=csv,noheader,nounits 2>/dev/null || true`,
		OutputSeparator, parsers.NvidiaSMIQuery)
}

// splitSections cuts command output into its sections. Missing trailing
// sections come back empty.
func splitSections(output string) []string {
	sections := make([]string, sectionCount)
	var current []string
	idx := 0
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == OutputSeparator {
			if idx < sectionCount {
				sections[idx] = strings.Join(current, "\n")
			}
			idx++
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	if idx < sectionCount {
		sections[idx] = strings.Join(current, "\n")
	}
	return sections
}
