package watch

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestResample(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		size int
		want []float64
	}{
		{"empty", nil, 4, nil},
		{"same size", []float64{1, 2}, 2, []float64{1, 2}},
		{"single value fills", []float64{7}, 3, []float64{7, 7, 7}},
		{"downsample keeps peaks", []float64{1, 9, 2, 3, 8, 1}, 3, []float64{9, 3, 8}},
		{"upsample interpolates", []float64{0, 10}, 3, []float64{0, 5, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resample(tt.data, tt.size))
		})
	}
}

func TestValueRange(t *testing.T) {
	lo, hi, pct := valueRange([]float64{10, 20})
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 100.0, hi)
	assert.True(t, pct)

	lo, hi, pct = valueRange([]float64{150, 300})
	assert.Equal(t, 150.0, lo)
	assert.Equal(t, 300.0, hi)
	assert.False(t, pct)
}

func TestRenderBraille(t *testing.T) {
	assert.Empty(t, RenderBraille(nil, 10, 2, ColorGraph))

	out := RenderBraille([]float64{0, 25, 50, 100}, 10, 3, ColorGraph)
	rows := strings.Split(out, "\n")
	assert.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, 10, lipgloss.Width(r))
	}
	// Full-scale sample lights the top row.
	assert.NotEqual(t, strings.Repeat(string(brailleBase), 10), stripStyles(rows[0]))
}

func TestRenderSparkline(t *testing.T) {
	assert.Empty(t, RenderSparkline(nil, 5))
	out := RenderSparkline([]float64{0, 100}, 6)
	assert.Equal(t, 6, lipgloss.Width(out))
	assert.Contains(t, out, "█")
	assert.Contains(t, out, "▁")
}

func stripStyles(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= brailleBase && r <= brailleBase+0xFF {
			b.WriteRune(r)
		}
	}
	return b.String()
}
