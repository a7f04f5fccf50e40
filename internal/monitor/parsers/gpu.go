package parsers

import (
	"fmt"
	"strconv"
	"strings"
)

// NvidiaSMIQuery is the --query-gpu field list ParseNvidiaSMI reads, in
// column order. Run it with --format=csv,noheader,nounits.
const NvidiaSMIQuery = "name,utilization.gpu,memory.used,memory.total,temperature.gpu,power.draw,power.limit"

// Column indexes into one line of NvidiaSMIQuery output.
const (
	colName = iota
	colUtil
	colMemUsed
	colMemTotal
	colTemp
	colPower
	colPowerLimit
	smiColumns
)

var smiColumnNames = [smiColumns]string{
	"name", "utilization", "memory used", "memory total", "temperature", "power draw", "power limit",
}

// Outputs nvidia-smi prints instead of CSV when there's nothing to query.
var noGPUMarkers = []string{"no devices", "not found", "failed", "error"}

// ParseNvidiaSMI folds one CSV line per GPU into a host total:
// utilization averaged, memory and power summed, hottest temperature.
// It returns nil, nil when the host has no usable GPU.
//
// Cells reading [N/A] or [Not Supported] are skipped. If any card leaves
// memory out, as GB10 parts sharing system RAM do, the host is marked
// Unified and memory is left at zero.
func ParseNvidiaSMI(output string) (*GPUMetrics, error) {
	output = strings.TrimSpace(output)
	lower := strings.ToLower(output)
	for _, m := range noGPUMarkers {
		if strings.Contains(lower, m) {
			return nil, nil
		}
	}

	m := &GPUMetrics{}
	var utilSum float64
	for line := range strings.Lines(output) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := splitSMILine(line)
		if err != nil {
			return nil, err
		}

		if m.Name == "" {
			m.Name = row[colName]
		}
		m.Count++

		var cells [smiColumns]float64
		var known [smiColumns]bool
		for col := colUtil; col < smiColumns; col++ {
			if cells[col], known[col], err = smiNumber(row[col], col); err != nil {
				return nil, err
			}
		}

		if known[colUtil] {
			utilSum += cells[colUtil]
		}
		if known[colMemUsed] && known[colMemTotal] {
			m.MemoryUsedMB += int64(cells[colMemUsed])
			m.MemoryTotalMB += int64(cells[colMemTotal])
		} else {
			m.Unified = true
		}
		if known[colTemp] {
			m.Temperature = max(m.Temperature, int(cells[colTemp]))
		}
		if known[colPower] {
			m.PowerWatts += cells[colPower]
		}
		if known[colPowerLimit] {
			m.PowerLimitWatts += cells[colPowerLimit]
		}
	}

	if m.Count == 0 {
		return nil, nil
	}
	m.Percent = utilSum / float64(m.Count)
	if m.Unified {
		m.MemoryUsedMB, m.MemoryTotalMB = 0, 0
	}
	return m, nil
}

func splitSMILine(line string) ([]string, error) {
	row := strings.Split(line, ",")
	if len(row) < smiColumns {
		return nil, fmt.Errorf("nvidia-smi line has %d fields, want %d: %q", len(row), smiColumns, strings.TrimSpace(line))
	}
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	return row, nil
}

// smiNumber parses one numeric cell. ok is false for the driver's
// placeholders.
func smiNumber(cell string, col int) (v float64, ok bool, err error) {
	if cell == "" || cell == "N/A" || cell == "[N/A]" || strings.HasPrefix(cell, "[Not Supported") {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse GPU %s %q: %w", smiColumnNames[col], cell, err)
	}
	return v, true, nil
}
