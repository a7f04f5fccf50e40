package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderConnectionTable(t *testing.T) {
	rows := []ConnectionRow{
		{Status: "online", Name: "spark-1", Address: "ubuntu@spark-1.lan:22", LastSeen: "2m ago"},
		{Status: "error", Name: "spark-2", Address: "ubuntu@spark-2.lan:22", LastSeen: "never", Error: "Can't reach 'spark-2.lan'"},
	}

	output := RenderConnectionTable(rows)

	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "LAST CONNECTED")
	assert.Contains(t, output, "spark-1")
	assert.Contains(t, output, "ubuntu@spark-2.lan:22")
	assert.Contains(t, output, "2m ago")

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	last := lines[len(lines)-1]
	assert.True(t, strings.HasPrefix(last, "    "), "error should be indented under its row")
	assert.Contains(t, last, "Can't reach")
}

func TestRenderConnectionTable_EmptyRows(t *testing.T) {
	assert.Equal(t, "No connections configured\n", RenderConnectionTable(nil))
}

func TestRenderConnectionTable_WideNames(t *testing.T) {
	rows := []ConnectionRow{
		{Status: "offline", Name: "a-really-long-connection-name", Address: "x@y:22"},
	}

	output := RenderConnectionTable(rows)
	assert.Contains(t, output, "a-really-long-connection-name  x@y:22")
}

func TestRenderOperationTable(t *testing.T) {
	rows := []OperationRow{
		{ID: "op-1", Name: "lora", Type: "job", Status: "running", Progress: 50, Detail: "epoch 2/4"},
		{ID: "op-2", Name: "comfy", Type: "server", Status: "completed", Progress: -1},
	}

	output := RenderOperationTable(rows)

	assert.Contains(t, output, "PROGRESS")
	assert.Contains(t, output, "lora")
	assert.Contains(t, output, "comfy")
	assert.Contains(t, output, "50%")
	assert.Contains(t, output, "epoch 2/4")
}

func TestRenderOperationTable_NoBarWhenUnknown(t *testing.T) {
	rows := []OperationRow{
		{ID: "op-1", Name: "setup", Type: "script", Status: "running", Progress: -1},
	}

	output := RenderOperationTable(rows)
	assert.NotContains(t, output, "%")
}

func TestRenderOperationTable_EmptyRows(t *testing.T) {
	assert.Equal(t, "No operations\n", RenderOperationTable(nil))
}

func TestPadRight(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "shorter than width",
			input:    "foo",
			width:    5,
			expected: "foo  ",
		},
		{
			name:     "equal to width",
			input:    "foobar",
			width:    6,
			expected: "foobar",
		},
		{
			name:     "longer than width",
			input:    "foobar",
			width:    3,
			expected: "foobar",
		},
		{
			name:     "empty string",
			input:    "",
			width:    3,
			expected: "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padRight(tt.input, tt.width)
			assert.Equal(t, tt.expected, result)
		})
	}
}
