package operation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// Progress is what could be read out of an operation's recent log output.
type Progress struct {
	Percent int
	Message string

	// Anomaly is the log line that looks like trouble, if any.
	Anomaly string
}

type patternKind int

const (
	kindPercent patternKind = iota
	kindEpoch
	kindStep
)

type progressPattern struct {
	re   *regexp.Regexp
	kind patternKind
}

var progressPatterns = []progressPattern{
	{regexp.MustCompile(`(?i)\bepoch\s*[:\[]?\s*(\d+)\s*(?:/|of)\s*(\d+)`), kindEpoch},
	{regexp.MustCompile(`(?i)\bstep\s*[:\[]?\s*(\d+)\s*(?:/|of)\s*(\d+)`), kindStep},
	{regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`), kindPercent},
}

var anomalyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Traceback \(most recent call last\)`),
	regexp.MustCompile(`(?i)CUDA out of memory`),
	regexp.MustCompile(`(?i)\bOutOfMemoryError\b`),
	regexp.MustCompile(`(?i)\bloss\b[^\n]*?\bnan\b`),
}

// ParseProgress scans log output from newest to oldest line and reports
// the latest progress marker. Within a line, epoch markers win over step
// and percent markers, and a job's configured epoch count overrides the
// total printed in the log. Percent is models.ProgressIndeterminate when
// nothing matched.
func ParseProgress(output string, op *models.Operation) Progress {
	p := Progress{Percent: models.ProgressIndeterminate}
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if p.Anomaly == "" {
			for _, re := range anomalyPatterns {
				if re.MatchString(line) {
					p.Anomaly = line
					break
				}
			}
		}
		if p.Percent == models.ProgressIndeterminate {
			if pct, ok := matchProgress(line, op); ok {
				p.Percent = pct
				p.Message = line
			}
		}
		if p.Anomaly != "" && p.Percent != models.ProgressIndeterminate {
			break
		}
	}
	return p
}

func matchProgress(line string, op *models.Operation) (int, bool) {
	for _, pat := range progressPatterns {
		m := pat.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch pat.kind {
		case kindEpoch, kindStep:
			cur, err1 := strconv.Atoi(m[1])
			total, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil || total <= 0 {
				continue
			}
			if pat.kind == kindEpoch && op != nil && op.Epochs != nil && *op.Epochs > 0 {
				total = *op.Epochs
			}
			return clampPercent(cur * 100 / total), true
		case kindPercent:
			f, err := strconv.ParseFloat(m[1], 64)
			if err != nil || f > 100 {
				continue
			}
			return clampPercent(int(f)), true
		}
	}
	return 0, false
}

func clampPercent(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
