package watch

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Braille patterns pack a 2x4 dot matrix into one cell, starting at U+2800.
// brailleDots maps [row][col] inside the cell to the pattern's bit offset.
const brailleBase = '⠀'

var brailleDots = [4][2]uint8{
	{0, 3},
	{1, 4},
	{2, 5},
	{6, 7},
}

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// valueRange returns the scale for data. Percentage series (everything in
// 0..100) always use the fixed 0..100 scale so graphs stay comparable.
func valueRange(data []float64) (lo, hi float64, percent bool) {
	if len(data) == 0 {
		return 0, 100, true
	}
	lo, hi = data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo >= 0 && hi <= 100 {
		return 0, 100, true
	}
	return lo, hi, false
}

func normalize(v, lo, hi float64) float64 {
	if hi > lo {
		return (v - lo) / (hi - lo)
	}
	return 0.5
}

func clampInt(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// RenderBraille draws data as a width x height braille graph. Each cell
// holds two samples; short series are right-aligned so the newest sample
// is always at the right edge. Percentage series are colored per column
// by MetricColor, anything else uses color.
func RenderBraille(data []float64, width, height int, color lipgloss.Color) string {
	if len(data) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	lo, hi, percent := valueRange(data)
	dots := height * 4
	points := width * 2

	series := data
	if len(series) > points {
		series = resample(series, points)
	}
	offset := points - len(series)

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(string(brailleBase), width))
	}
	colMax := make([]float64, width)

	for i, v := range series {
		col := (i + offset) / 2
		sub := (i + offset) % 2
		if v > colMax[col] {
			colMax[col] = v
		}
		h := clampInt(int(normalize(v, lo, hi)*float64(dots)), dots)
		for d := 0; d < h; d++ {
			row := height - 1 - d/4
			grid[row][col] |= rune(1 << brailleDots[3-d%4][sub])
		}
	}

	lines := make([]string, 0, height)
	for _, row := range grid {
		var b strings.Builder
		for col, r := range row {
			c := color
			if percent {
				c = MetricColor(colMax[col])
			}
			b.WriteString(lipgloss.NewStyle().Foreground(c).Render(string(r)))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// RenderSparkline draws a one-row block sparkline, colored by the latest
// value.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	lo, hi, percent := valueRange(data)
	var b strings.Builder
	for _, v := range resample(data, width) {
		idx := clampInt(int(normalize(v, lo, hi)*float64(len(sparkBlocks)-1)), len(sparkBlocks)-1)
		b.WriteRune(sparkBlocks[idx])
	}
	color := ColorGraph
	if percent {
		color = MetricColor(data[len(data)-1])
	}
	return lipgloss.NewStyle().Foreground(color).Render(b.String())
}

// resample stretches or squeezes data to size. Downsampling keeps the max
// of each bucket so spikes survive; upsampling interpolates linearly.
func resample(data []float64, size int) []float64 {
	if len(data) == 0 || size <= 0 {
		return nil
	}
	if len(data) == size {
		return data
	}

	out := make([]float64, size)
	if len(data) == 1 {
		for i := range out {
			out[i] = data[0]
		}
		return out
	}

	if len(data) > size {
		bucket := float64(len(data)) / float64(size)
		for i := range out {
			start := int(float64(i) * bucket)
			end := int(float64(i+1) * bucket)
			if end > len(data) {
				end = len(data)
			}
			if start >= end {
				start = end - 1
			}
			m := data[start]
			for _, v := range data[start+1 : end] {
				if v > m {
					m = v
				}
			}
			out[i] = m
		}
		return out
	}

	scale := float64(len(data)-1) / float64(size-1)
	for i := range out {
		pos := float64(i) * scale
		idx := int(pos)
		if idx >= len(data)-1 {
			out[i] = data[len(data)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = data[idx]*(1-frac) + data[idx+1]*frac
	}
	return out
}
